package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sensiblebit/keyfile"
	"github.com/sensiblebit/keyfile/internal/kdf"
	"github.com/spf13/pflag"
)

// encodableFormats are the key file formats that can be written.
var encodableFormats = []keyfile.Format{
	keyfile.FormatBinary,
	keyfile.FormatHex,
	keyfile.FormatXMLV1,
	keyfile.FormatXMLV2,
}

// formatValue is a pflag.Value accepting an encodable key file format name.
type formatValue struct {
	f *keyfile.Format
}

var _ pflag.Value = formatValue{}

func (v formatValue) String() string {
	if v.f == nil {
		return ""
	}
	return v.f.String()
}

func (v formatValue) Set(s string) error {
	f, err := keyfile.ParseFormat(strings.ToLower(s))
	if err != nil || f == keyfile.FormatDigest {
		return fmt.Errorf("must be one of %s", strings.Join(formatNames(), ", "))
	}
	*v.f = f
	return nil
}

func (v formatValue) Type() string { return "format" }

func formatNames() []string {
	names := make([]string, len(encodableFormats))
	for i, f := range encodableFormats {
		names[i] = f.String()
	}
	return names
}

// kdfValue is a pflag.Value accepting a key derivation function name.
type kdfValue struct {
	k *kdf.Kind
}

var _ pflag.Value = kdfValue{}

func (v kdfValue) String() string {
	if v.k == nil {
		return ""
	}
	return string(*v.k)
}

func (v kdfValue) Set(s string) error {
	for _, k := range kdf.Kinds {
		if strings.EqualFold(s, string(k)) {
			*v.k = k
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(kdfNames(), ", "))
}

func (v kdfValue) Type() string { return "kdf" }

func kdfNames() []string {
	names := make([]string, len(kdf.Kinds))
	for i, k := range kdf.Kinds {
		names[i] = string(k)
	}
	return names
}

// writeOutput writes command output to w. Output on stdout is checked so a
// closed pipe or full disk fails the command; stderr diagnostics are not.
func writeOutput(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// checkRawOutput refuses to write raw key bytes to a terminal unless forced.
func checkRawOutput(force bool) error {
	fd := os.Stdout.Fd()
	if !force && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) {
		return errors.New("refusing to write raw key bytes to a terminal (redirect output or use --force)")
	}
	return nil
}
