package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sensiblebit/keyfile"
)

// GenerateOptions holds parameters for key file generation.
type GenerateOptions struct {
	Format keyfile.Format
	// OutPath is the file to write. Empty means the caller prints Data.
	OutPath string
	// Force allows replacing an existing file at OutPath.
	Force bool
}

// GenerateResult holds a generated key file.
type GenerateResult struct {
	Data        []byte
	Fingerprint string
	File        string
}

// GenerateKeyFile creates a new random key encoded in opts.Format and writes
// it to opts.OutPath when one is set.
func GenerateKeyFile(opts GenerateOptions) (*GenerateResult, error) {
	var buf bytes.Buffer
	key, err := keyfile.Generate(&buf, opts.Format)
	if err != nil {
		return nil, err
	}
	result := &GenerateResult{Data: buf.Bytes(), Fingerprint: keyfile.Fingerprint(key)}

	if opts.OutPath == "" {
		return result, nil
	}
	if !opts.Force {
		if _, err := os.Lstat(opts.OutPath); err == nil {
			return nil, fmt.Errorf("%s already exists (use --force to overwrite)", opts.OutPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking %s: %w", opts.OutPath, err)
		}
	}
	if err := writeFileAtomic(opts.OutPath, result.Data, 0600); err != nil {
		return nil, fmt.Errorf("writing %s: %w", opts.OutPath, err)
	}
	result.File = opts.OutPath
	return result, nil
}

// writeFileAtomic writes b to a temp file in the target directory, then
// renames it over path.
func writeFileAtomic(path string, b []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
