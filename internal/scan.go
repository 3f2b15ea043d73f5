package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sensiblebit/keyfile"
)

// errEntryTooLarge is returned by a maxSizeReader once its limit is passed.
var errEntryTooLarge = errors.New("entry exceeds maximum size")

// maxSizeReader fails with errEntryTooLarge instead of truncating, so an
// oversized stream never yields a digest of a prefix.
type maxSizeReader struct {
	r         io.Reader
	remaining int64
}

func newMaxSizeReader(r io.Reader, limit int64) *maxSizeReader {
	return &maxSizeReader{r: r, remaining: limit}
}

func (m *maxSizeReader) Read(p []byte) (int, error) {
	if m.remaining < 0 {
		return 0, errEntryTooLarge
	}
	// Allow one byte past the limit so overflow is detectable.
	if m.remaining < math.MaxInt64 && int64(len(p)) > m.remaining+1 {
		p = p[:m.remaining+1]
	}
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		return n, errEntryTooLarge
	}
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ProcessReader loads a key file from r and records the outcome in the
// catalog under path. A file that fails to load is recorded as a scan error
// and is not an error of ProcessReader; only catalog failures are returned.
func ProcessReader(r io.Reader, path string, cfg *Config) error {
	_, err := processStream(r, path, cfg)
	return err
}

func processStream(r io.Reader, path string, cfg *Config) (int64, error) {
	slog.Debug("loading key file", "path", path)

	cr := &countingReader{r: r}
	res, err := keyfile.Inspect(cr)
	if err != nil {
		return cr.n, recordFailure(cfg.DB, path, err)
	}

	rec := KeyFileRecord{
		Path:        path,
		Format:      res.Format.String(),
		Version:     sql.NullString{String: res.Version, Valid: res.Version != ""},
		KeyLength:   len(res.Key),
		Fingerprint: keyfile.Fingerprint(res.Key),
		Size:        cr.n,
		ScannedAt:   time.Now().UTC(),
	}
	if err := cfg.DB.InsertKeyFile(rec); err != nil {
		return cr.n, fmt.Errorf("recording %s: %w", path, err)
	}
	slog.Info("found key file", "path", path, "format", rec.Format, "fingerprint", rec.Fingerprint)
	return cr.n, nil
}

// ErrorKind classifies a load failure as ErrorKindInvalid or
// ErrorKindUnreadable.
func ErrorKind(err error) string {
	if errors.Is(err, keyfile.ErrInvalidKeyFile) {
		return ErrorKindInvalid
	}
	return ErrorKindUnreadable
}

func recordFailure(db *DB, path string, loadErr error) error {
	kind := ErrorKind(loadErr)
	slog.Warn("key file failed to load", "path", path, "kind", kind, "error", loadErr)
	if err := db.InsertScanError(ScanErrorRecord{Path: path, Kind: kind, Message: loadErr.Error()}); err != nil {
		return fmt.Errorf("recording %s: %w", path, err)
	}
	return nil
}

// ProcessFile loads the key file at path, or standard input when path is
// "-". Archives are expanded when the scan rules allow it; files larger than
// the maximum file size are skipped.
func ProcessFile(path string, cfg *Config) error {
	if path == "-" {
		return ProcessReader(os.Stdin, path, cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return recordFailure(cfg.DB, path, err)
	}
	if info.Size() > cfg.Rules.MaxFileSize {
		slog.Debug("skipping oversized file", "path", path, "size", info.Size(), "limit", cfg.Rules.MaxFileSize)
		return nil
	}

	if format := ArchiveFormat(path); format != "" && cfg.Rules.Archives {
		data, err := os.ReadFile(path)
		if err != nil {
			return recordFailure(cfg.DB, path, err)
		}
		_, err = ProcessArchive(ProcessArchiveInput{
			ArchivePath: path,
			Data:        data,
			Format:      format,
			Config:      cfg,
		})
		if err != nil {
			slog.Warn("processing archive", "path", path, "error", err)
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return recordFailure(cfg.DB, path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("closing file", "path", path, "error", closeErr)
		}
	}()
	return ProcessReader(f, path, cfg)
}

// ScanPath walks cfg.InputPath and loads every candidate file into the
// catalog. A single file or "-" is loaded directly.
func ScanPath(ctx context.Context, cfg *Config) error {
	root := cfg.InputPath
	if root == "-" {
		return ProcessFile(root, cfg)
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("input path %s: %w", root, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			if recErr := recordFailure(cfg.DB, path, err); recErr != nil {
				return recErr
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && cfg.Rules.SkipDir(d.Name()) {
				slog.Debug("skipping directory", "path", path)
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		isArchive := cfg.Rules.Archives && IsArchive(path)
		if path != root && !isArchive && !cfg.Rules.MatchFile(path) {
			return nil
		}
		return ProcessFile(path, cfg)
	})
}
