package keyfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestEncode_RoundTrip(t *testing.T) {
	// WHY: Every encodable format must load back as the same key and be
	// detected as the format it was written in.
	t.Parallel()
	key := randomBytes(t, KeySize)

	for _, f := range []Format{FormatBinary, FormatHex, FormatXMLV1, FormatXMLV2} {
		t.Run(f.String(), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := Encode(&buf, key, f); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			res, err := Inspect(&buf)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if res.Format != f {
				t.Errorf("format = %s, want %s", res.Format, f)
			}
			if !bytes.Equal(res.Key, key) {
				t.Errorf("key = %x, want %x", res.Key, key)
			}
		})
	}
}

func TestEncode_XMLArbitraryLength(t *testing.T) {
	// WHY: XML key files are not limited to 32-byte keys.
	t.Parallel()
	key := randomBytes(t, 77)
	for _, f := range []Format{FormatXMLV1, FormatXMLV2} {
		var buf bytes.Buffer
		if err := Encode(&buf, key, f); err != nil {
			t.Fatalf("Encode(%s): %v", f, err)
		}
		got, err := Load(&buf)
		if err != nil {
			t.Fatalf("Load(%s): %v", f, err)
		}
		if !bytes.Equal(got, key) {
			t.Errorf("%s: key = %x, want %x", f, got, key)
		}
	}
}

func TestEncode_XMLV2Layout(t *testing.T) {
	// WHY: Version 2.0 files must carry the 4-byte uppercase checksum and
	// grouped key data that other KeePass implementations expect.
	t.Parallel()
	key := bytes.Repeat([]byte{0xAB}, KeySize)
	var buf bytes.Buffer
	if err := Encode(&buf, key, FormatXMLV2); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	sum := sha256.Sum256(key)
	wantHash := `Hash="` + strings.ToUpper(hex.EncodeToString(sum[:4])) + `"`
	if !strings.Contains(out, wantHash) {
		t.Errorf("output missing %s:\n%s", wantHash, out)
	}
	if !strings.Contains(out, "<Version>2.0</Version>") {
		t.Errorf("output missing version 2.0:\n%s", out)
	}
	row := "ABABABAB ABABABAB ABABABAB ABABABAB"
	if strings.Count(out, row) != 2 {
		t.Errorf("expected two rows of four groups, got:\n%s", out)
	}
}

func TestEncode_Rejects(t *testing.T) {
	// WHY: Keys that a format cannot represent must be refused instead of
	// producing a file that loads as a different key.
	t.Parallel()
	tests := []struct {
		name   string
		key    []byte
		format Format
	}{
		{"empty key", nil, FormatXMLV2},
		{"short binary", make([]byte, 16), FormatBinary},
		{"long hex", make([]byte, 40), FormatHex},
		{"digest", make([]byte, KeySize), FormatDigest},
		{"unknown", make([]byte, KeySize), FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := Encode(&buf, tt.key, tt.format); err == nil {
				t.Error("expected error")
			}
			if buf.Len() != 0 {
				t.Errorf("wrote %d bytes on error", buf.Len())
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	// WHY: Generated keys must be KeySize random bytes that load back from
	// the written file; two generations must differ.
	t.Parallel()
	var a, b bytes.Buffer
	keyA, err := Generate(&a, FormatXMLV2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	keyB, err := Generate(&b, FormatHex)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(keyA) != KeySize {
		t.Errorf("key length = %d, want %d", len(keyA), KeySize)
	}
	if bytes.Equal(keyA, keyB) {
		t.Error("two generated keys are equal")
	}
	loaded, err := Load(&a)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(loaded, keyA) {
		t.Errorf("loaded %x, want %x", loaded, keyA)
	}
}

func TestEncode_WriteError(t *testing.T) {
	// WHY: Write failures must be returned, not swallowed.
	t.Parallel()
	errFull := errors.New("disk full")
	if err := Encode(failingWriter{errFull}, make([]byte, KeySize), FormatBinary); !errors.Is(err, errFull) {
		t.Errorf("err = %v, want %v", err, errFull)
	}
	if err := Encode(failingWriter{errFull}, make([]byte, KeySize), FormatXMLV1); !errors.Is(err, errFull) {
		t.Errorf("err = %v, want %v", err, errFull)
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

// writeKeyFile encodes key into a new file at path.
func writeKeyFile(t *testing.T, path string, key []byte, f Format) {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, key, f); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
}
