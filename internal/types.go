package internal

import (
	"database/sql"
	"time"
)

// Config holds the runtime configuration of a scan.
type Config struct {
	InputPath string
	DB        *DB
	Rules     ScanRules
	Limits    ArchiveLimits
}

// KeyFileRecord describes one loaded key file. The key itself is never
// stored, only its fingerprint.
type KeyFileRecord struct {
	Path        string         `db:"path"`
	Format      string         `db:"format"`
	Version     sql.NullString `db:"version"`
	KeyLength   int            `db:"key_length"`
	Fingerprint string         `db:"fingerprint"`
	Size        int64          `db:"size"`
	ScannedAt   time.Time      `db:"scanned_at"`
}

// Scan error kinds.
const (
	// ErrorKindInvalid marks a structured key file whose key cannot be trusted.
	ErrorKindInvalid = "invalid"
	// ErrorKindUnreadable marks a file that could not be read.
	ErrorKindUnreadable = "unreadable"
)

// ScanErrorRecord describes a file that could not be loaded as a key file.
type ScanErrorRecord struct {
	Path    string `db:"path"`
	Kind    string `db:"kind"`
	Message string `db:"message"`
}

// DuplicateGroup lists key files that yield the same key material.
type DuplicateGroup struct {
	Fingerprint string   `json:"fingerprint"`
	Paths       []string `json:"paths"`
}
