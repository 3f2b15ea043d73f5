package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sensiblebit/keyfile"
	"github.com/sensiblebit/keyfile/internal"
	"github.com/sensiblebit/keyfile/internal/kdf"
)

func TestFormatValue(t *testing.T) {
	// WHY: --type accepts only encodable formats, case-insensitively; the
	// digest format has no file layout and must be rejected.
	t.Parallel()
	tests := []struct {
		in      string
		want    keyfile.Format
		wantErr bool
	}{
		{"binary", keyfile.FormatBinary, false},
		{"HEX", keyfile.FormatHex, false},
		{"xml1", keyfile.FormatXMLV1, false},
		{"xml2", keyfile.FormatXMLV2, false},
		{"digest", 0, true},
		{"pem", 0, true},
	}
	for _, tt := range tests {
		f := keyfile.FormatUnknown
		err := formatValue{&f}.Set(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Set(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Set(%q): %v", tt.in, err)
			continue
		}
		if f != tt.want {
			t.Errorf("Set(%q) = %s, want %s", tt.in, f, tt.want)
		}
		if got := (formatValue{&f}).String(); got != tt.want.String() {
			t.Errorf("String() = %q, want %q", got, tt.want.String())
		}
	}
}

func TestKDFValue(t *testing.T) {
	// WHY: --kdf accepts the supported key derivation functions only.
	t.Parallel()
	var k kdf.Kind
	v := kdfValue{&k}
	if err := v.Set("Argon2id"); err != nil || k != kdf.KindArgon2id {
		t.Errorf("Set(Argon2id): k=%q err=%v", k, err)
	}
	if err := v.Set("aes"); err != nil || k != kdf.KindAES {
		t.Errorf("Set(aes): k=%q err=%v", k, err)
	}
	err := v.Set("scrypt")
	if err == nil || !strings.Contains(err.Error(), "aes, argon2id") {
		t.Errorf("Set(scrypt): err=%v, want list of choices", err)
	}
}

func TestPrintScanSummary(t *testing.T) {
	// WHY: The summary lists only formats that were found and annotates
	// failures on the headline.
	t.Parallel()
	db, err := internal.NewDB()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, rec := range []internal.KeyFileRecord{
		{Path: "/a", Format: "xml2", KeyLength: 32, Fingerprint: "f1"},
		{Path: "/b", Format: "xml2", KeyLength: 32, Fingerprint: "f1"},
		{Path: "/c", Format: "digest", KeyLength: 32, Fingerprint: "f2"},
	} {
		if err := db.InsertKeyFile(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.InsertScanError(internal.ScanErrorRecord{Path: "/d", Kind: internal.ErrorKindInvalid, Message: "m"}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printScanSummary(&buf, db); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 3 key file(s) (1 invalid)", "XML 2.0:  2", "Digest:   1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Binary:") {
		t.Errorf("summary should omit empty formats:\n%s", out)
	}

	buf.Reset()
	if err := printDuplicates(&buf, db); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "f1\n    /a\n    /b\n") {
		t.Errorf("unexpected duplicates output:\n%s", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestCommandOutputWriteErrors(t *testing.T) {
	// WHY: Every command reports a failed write to stdout instead of exiting
	// zero with truncated output.
	t.Parallel()
	db, err := internal.NewDB()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.InsertKeyFile(internal.KeyFileRecord{Path: "/a", Format: "hex", KeyLength: 32, Fingerprint: "f1"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"writeOutput", func(w io.Writer) error { return writeOutput(w, "x\n") }},
		{"printScanSummary", func(w io.Writer) error { return printScanSummary(w, db) }},
		{"printDuplicates", func(w io.Writer) error { return printDuplicates(w, db) }},
	}
	for _, tt := range tests {
		err := tt.write(failingWriter{})
		if !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("%s: err = %v, want it to wrap io.ErrClosedPipe", tt.name, err)
		}
	}
}
