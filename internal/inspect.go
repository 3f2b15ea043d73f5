package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sensiblebit/keyfile"
)

// InspectResult holds the inspection details for a key file. The key itself
// is never included, only its fingerprint.
type InspectResult struct {
	Path        string `json:"path"`
	Format      string `json:"format"`
	Version     string `json:"version,omitempty"`
	KeyLength   int    `json:"key_length"`
	Fingerprint string `json:"sha256_fingerprint"`
}

// InspectFile loads the key file at path, or standard input for "-", and
// describes how its key was obtained.
func InspectFile(path string) (*InspectResult, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	return InspectReader(r, path)
}

// InspectReader loads a key file from r and describes it under the given
// display path.
func InspectReader(r io.Reader, path string) (*InspectResult, error) {
	res, err := keyfile.Inspect(r)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return &InspectResult{
		Path:        path,
		Format:      res.Format.String(),
		Version:     res.Version,
		KeyLength:   len(res.Key),
		Fingerprint: keyfile.Fingerprint(res.Key),
	}, nil
}

// FormatInspectResults formats inspection results as text or JSON.
func FormatInspectResults(results []InspectResult, format string) (string, error) {
	switch format {
	case "text":
		return formatInspectText(results), nil
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling JSON: %w", err)
		}
		return string(data) + "\n", nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text or json)", format)
	}
}

var formatDescriptions = map[string]string{
	"binary": "raw 32-byte key",
	"hex":    "64 hex characters",
	"xml1":   "XML key file, base64 data",
	"xml2":   "XML key file, hex data with checksum",
	"digest": "SHA-256 of file contents",
}

func formatInspectText(results []InspectResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Key File: %s\n", r.Path)
		if desc, ok := formatDescriptions[r.Format]; ok {
			fmt.Fprintf(&sb, "  Format:      %s (%s)\n", r.Format, desc)
		} else {
			fmt.Fprintf(&sb, "  Format:      %s\n", r.Format)
		}
		if r.Version != "" {
			fmt.Fprintf(&sb, "  Version:     %s\n", r.Version)
		}
		fmt.Fprintf(&sb, "  Key Length:  %d bytes\n", r.KeyLength)
		fmt.Fprintf(&sb, "  SHA-256:     %s\n", r.Fingerprint)
	}
	return sb.String()
}
