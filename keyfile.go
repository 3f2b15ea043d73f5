// Package keyfile loads key material from KeePass-style key files.
//
// A key file may be a raw 32-byte key, a 64-character hex key, an XML key
// file (version 1.0 base64 or version 2.0 hex with a truncated SHA-256
// checksum), or any other file, in which case the SHA-256 of its content is
// the key. Detection works on non-seekable streams.
package keyfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Format identifies how key material was encoded in a key file.
type Format int

const (
	FormatUnknown Format = iota
	// FormatBinary is a file of exactly 32 bytes used verbatim.
	FormatBinary
	// FormatHex is a file of exactly 64 hex characters.
	FormatHex
	// FormatXMLV1 is an XML key file with base64 key data.
	FormatXMLV1
	// FormatXMLV2 is a version 2.0 XML key file with hex key data and a
	// truncated SHA-256 checksum.
	FormatXMLV2
	// FormatDigest means no structure was recognized and the key is the
	// SHA-256 of the whole file.
	FormatDigest
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatBinary:  "binary",
	FormatHex:     "hex",
	FormatXMLV1:   "xml1",
	FormatXMLV2:   "xml2",
	FormatDigest:  "digest",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat converts a format name as returned by Format.String back to a
// Format.
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name && f != FormatUnknown {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown key file format %q", name)
}

// Result is the outcome of a successful load.
type Result struct {
	Key    []byte
	Format Format
	// Version is the KeyFile/Meta/Version text for XML key files.
	Version string
}

// verdict is the outcome of one detection stage.
type verdict int

const (
	// verdictNoMatch means the stream is not in this stage's format; the
	// next stage should be tried.
	verdictNoMatch verdict = iota
	verdictMatch
	// verdictFatal aborts the load.
	verdictFatal
)

// Load reads key material from r. The caller keeps ownership of r; it is
// never closed. See Inspect for the detection order.
func Load(r io.Reader) ([]byte, error) {
	res, err := Inspect(r)
	if err != nil {
		return nil, err
	}
	return res.Key, nil
}

// LoadFile opens path and loads key material from it.
func LoadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening key file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Inspect reads key material from r and reports which format it was found
// in. Formats are tried in order: 32-byte binary, 64-byte hex, XML, and
// finally the SHA-256 of the whole stream. Each byte of r is read once.
//
// An XML key file with missing key data or a bad checksum returns an error
// wrapping ErrInvalidKeyFile rather than falling back to the digest. Read
// failures are returned as *ReadError.
func Inspect(r io.Reader) (*Result, error) {
	dr := newDigestReader(r)
	pr := newPushbackReader(dr, probeSize)

	buf := make([]byte, probeSize)
	n, err := probe(pr, buf)
	if err != nil {
		return nil, &ReadError{Op: "probe", Err: err}
	}

	res, v, err := classifyFixedLength(buf[:n])
	if v == verdictMatch {
		slog.Debug("loaded fixed-length key file", "format", res.Format, "bytes", n)
		return res, nil
	}
	slog.Debug("not a fixed-length key file", "reason", err)

	if err := pr.Unread(buf[:n]); err != nil {
		return nil, fmt.Errorf("restoring probed bytes: %w", err)
	}

	res, v, err = parseXMLKeyFile(io.NopCloser(pr))
	if srcErr := dr.Err(); srcErr != nil {
		return nil, &ReadError{Op: "xml", Err: srcErr}
	}
	switch v {
	case verdictMatch:
		slog.Debug("loaded XML key file", "format", res.Format, "version", res.Version)
		return res, nil
	case verdictFatal:
		return nil, err
	}
	slog.Debug("not an XML key file", "reason", err)

	return digestRemainder(pr, dr)
}

// digestRemainder drains r, which must read through dr, and returns the
// SHA-256 of everything dr has seen.
func digestRemainder(r io.Reader, dr *digestReader) (*Result, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, &ReadError{Op: "digest", Err: err}
	}
	slog.Debug("using key file digest as key")
	return &Result{Key: dr.Sum(), Format: FormatDigest}, nil
}

// Fingerprint returns the lowercase hex SHA-256 of key material. It
// identifies a key without revealing it.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}
