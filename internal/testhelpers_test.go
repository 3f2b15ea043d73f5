package internal

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"crypto/rand"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sensiblebit/keyfile"
)

// newTestConfig creates a Config with an in-memory catalog and default rules.
func newTestConfig(t *testing.T) *Config {
	t.Helper()
	db, err := NewDB()
	if err != nil {
		t.Fatalf("create test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Config{
		DB:     db,
		Rules:  DefaultScanRules(),
		Limits: DefaultArchiveLimits(),
	}
}

// newKey returns 32 random bytes.
func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keyfile.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

// encodeKeyFile returns key encoded as a key file of format f.
func encodeKeyFile(t *testing.T, key []byte, f keyfile.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := keyfile.Encode(&buf, key, f); err != nil {
		t.Fatalf("encoding %s key file: %v", f, err)
	}
	return buf.Bytes()
}

// writeTestFile writes data to name under dir, creating parent directories.
func writeTestFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// xmlV2Corrupted is a version 2.0 key file whose Hash attribute does not
// match its data.
const xmlV2Corrupted = `<?xml version="1.0" encoding="utf-8"?>
<KeyFile><Meta><Version>2.0</Version></Meta>
<Key><Data Hash="AABBCCDD">48656C6C6F</Data></Key></KeyFile>`

func createTestZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func createTestTar(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	writeTar(t, &buf, files)
	return buf.Bytes()
}

func createTestTarGz(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	writeTar(t, gw, files)
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func createTestTarZst(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("create zstd writer: %v", err)
	}
	writeTar(t, zw, files)
	if err := zw.Close(); err != nil {
		t.Fatalf("close zstd: %v", err)
	}
	return buf.Bytes()
}

func writeTar(t *testing.T, w io.Writer, files map[string][]byte) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		data := files[name]
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0600,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatalf("write tar header %s: %v", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("write tar entry %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
}
