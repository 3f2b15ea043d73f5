package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/sensiblebit/keyfile"
	_ "modernc.org/sqlite"
)

// DB is the key file catalog.
type DB struct {
	*sqlx.DB
}

// NewDB creates and initializes a new in-memory catalog.
// Use SaveToDisk/LoadFromDisk to persist or restore data.
func NewDB() (*DB, error) {
	// Pin to a single connection: each :memory: connection is a separate
	// database, so connection pooling must be disabled. PRAGMAs are set via
	// the DSN so they apply automatically to reconnections.
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	dbObj := &DB{DB: db}

	if err := dbObj.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	slog.Debug("database initialized")

	return dbObj, nil
}

func (db *DB) initSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS key_files (
			path        text PRIMARY KEY,
			format      text NOT NULL,
			version     text,
			key_length  integer NOT NULL,
			fingerprint text NOT NULL,
			size        integer NOT NULL,
			scanned_at  timestamp NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating key_files table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_key_files_fingerprint ON key_files (fingerprint);
	`)
	if err != nil {
		return fmt.Errorf("creating fingerprint index on key_files table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scan_errors (
			path    text PRIMARY KEY,
			kind    text NOT NULL,
			message text NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating scan_errors table: %w", err)
	}
	return nil
}

// SaveToDisk writes the in-memory database to a file at the given path.
// Uses VACUUM INTO which produces a clean, compact copy in a single operation.
func (db *DB) SaveToDisk(path string) error {
	_, err := db.Exec("VACUUM INTO ?", path)
	if err != nil {
		return fmt.Errorf("saving database to %s: %w", path, err)
	}
	slog.Info("database saved to disk", "path", path)
	return nil
}

// LoadFromDisk loads records from an on-disk database into the in-memory
// database. Existing in-memory records win on conflict.
func (db *DB) LoadFromDisk(path string) error {
	_, err := db.Exec("ATTACH DATABASE ? AS diskdb", path)
	if err != nil {
		return fmt.Errorf("attaching database %s: %w", path, err)
	}
	defer func() {
		if _, err := db.Exec("DETACH DATABASE diskdb"); err != nil {
			slog.Warn("detaching database", "path", path, "error", err)
		}
	}()

	_, err = db.Exec("INSERT OR IGNORE INTO key_files SELECT * FROM diskdb.key_files")
	if err != nil {
		return fmt.Errorf("loading key files from %s: %w", path, err)
	}

	_, err = db.Exec("INSERT OR IGNORE INTO scan_errors SELECT * FROM diskdb.scan_errors")
	if err != nil {
		return fmt.Errorf("loading scan errors from %s: %w", path, err)
	}

	slog.Info("database loaded from disk", "path", path)
	return nil
}

// InsertKeyFile records a loaded key file, replacing any earlier record or
// error for the same path.
func (db *DB) InsertKeyFile(rec KeyFileRecord) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM scan_errors WHERE path = ?", rec.Path); err != nil {
		return fmt.Errorf("clearing scan error: %w", err)
	}
	_, err = tx.NamedExec(`
		INSERT OR REPLACE INTO key_files (path, format, version, key_length, fingerprint, size, scanned_at)
		VALUES (:path, :format, :version, :key_length, :fingerprint, :size, :scanned_at)
	`, rec)
	if err != nil {
		return fmt.Errorf("inserting key file: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing key file: %w", err)
	}
	return nil
}

// InsertScanError records a file that failed to load, replacing any earlier
// record for the same path.
func (db *DB) InsertScanError(rec ScanErrorRecord) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM key_files WHERE path = ?", rec.Path); err != nil {
		return fmt.Errorf("clearing key file: %w", err)
	}
	_, err = tx.NamedExec(`
		INSERT OR REPLACE INTO scan_errors (path, kind, message)
		VALUES (:path, :kind, :message)
	`, rec)
	if err != nil {
		return fmt.Errorf("inserting scan error: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scan error: %w", err)
	}
	return nil
}

// GetKeyFile returns the record for path, or nil if there is none.
func (db *DB) GetKeyFile(path string) (*KeyFileRecord, error) {
	var rec KeyFileRecord
	err := db.Get(&rec, "SELECT * FROM key_files WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting key file: %w", err)
	}
	return &rec, nil
}

// GetAllKeyFiles returns all key file records ordered by path.
func (db *DB) GetAllKeyFiles() ([]KeyFileRecord, error) {
	var recs []KeyFileRecord
	if err := db.Select(&recs, "SELECT * FROM key_files ORDER BY path"); err != nil {
		return nil, fmt.Errorf("getting all key files: %w", err)
	}
	return recs, nil
}

// GetScanErrors returns all scan error records ordered by path.
func (db *DB) GetScanErrors() ([]ScanErrorRecord, error) {
	var recs []ScanErrorRecord
	if err := db.Select(&recs, "SELECT * FROM scan_errors ORDER BY path"); err != nil {
		return nil, fmt.Errorf("getting scan errors: %w", err)
	}
	return recs, nil
}

// GetDuplicates returns groups of key files that share key material,
// ordered by fingerprint.
func (db *DB) GetDuplicates() ([]DuplicateGroup, error) {
	var rows []struct {
		Fingerprint string `db:"fingerprint"`
		Path        string `db:"path"`
	}
	err := db.Select(&rows, `
		SELECT fingerprint, path FROM key_files
		WHERE fingerprint IN (
			SELECT fingerprint FROM key_files GROUP BY fingerprint HAVING COUNT(*) > 1
		)
		ORDER BY fingerprint, path
	`)
	if err != nil {
		return nil, fmt.Errorf("getting duplicate key files: %w", err)
	}

	var groups []DuplicateGroup
	for _, row := range rows {
		if n := len(groups); n > 0 && groups[n-1].Fingerprint == row.Fingerprint {
			groups[n-1].Paths = append(groups[n-1].Paths, row.Path)
			continue
		}
		groups = append(groups, DuplicateGroup{Fingerprint: row.Fingerprint, Paths: []string{row.Path}})
	}
	return groups, nil
}

// ScanSummary holds aggregate counts from a scan operation.
type ScanSummary struct {
	Binary     int `json:"binary"`
	Hex        int `json:"hex"`
	XMLV1      int `json:"xml_v1"`
	XMLV2      int `json:"xml_v2"`
	Digest     int `json:"digest"`
	Invalid    int `json:"invalid"`
	Unreadable int `json:"unreadable"`
}

// Total returns the number of successfully loaded key files.
func (s *ScanSummary) Total() int {
	return s.Binary + s.Hex + s.XMLV1 + s.XMLV2 + s.Digest
}

// GetScanSummary queries the database for aggregate counts.
func (db *DB) GetScanSummary() (*ScanSummary, error) {
	s := &ScanSummary{}

	var formats []struct {
		Format string `db:"format"`
		Count  int    `db:"count"`
	}
	if err := db.Select(&formats, "SELECT format, COUNT(*) AS count FROM key_files GROUP BY format"); err != nil {
		return nil, fmt.Errorf("counting key files: %w", err)
	}
	for _, f := range formats {
		switch f.Format {
		case keyfile.FormatBinary.String():
			s.Binary = f.Count
		case keyfile.FormatHex.String():
			s.Hex = f.Count
		case keyfile.FormatXMLV1.String():
			s.XMLV1 = f.Count
		case keyfile.FormatXMLV2.String():
			s.XMLV2 = f.Count
		case keyfile.FormatDigest.String():
			s.Digest = f.Count
		default:
			slog.Warn("unexpected key file format in catalog", "format", f.Format, "count", f.Count)
		}
	}

	if err := db.Get(&s.Invalid, "SELECT COUNT(*) FROM scan_errors WHERE kind = ?", ErrorKindInvalid); err != nil {
		return nil, fmt.Errorf("counting invalid key files: %w", err)
	}
	if err := db.Get(&s.Unreadable, "SELECT COUNT(*) FROM scan_errors WHERE kind = ?", ErrorKindUnreadable); err != nil {
		return nil, fmt.Errorf("counting unreadable files: %w", err)
	}

	return s, nil
}

// DumpDB logs all catalog records at debug level.
func (db *DB) DumpDB() error {
	slog.Debug("dumping key files")

	rows, err := db.Queryx("SELECT * FROM key_files ORDER BY path")
	if err != nil {
		return fmt.Errorf("querying key files: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var rec KeyFileRecord
		if err := rows.StructScan(&rec); err != nil {
			return fmt.Errorf("scanning key file: %w", err)
		}
		slog.Debug("key file details",
			"path", rec.Path,
			"format", rec.Format,
			"version", rec.Version.String,
			"key_length", rec.KeyLength,
			"fingerprint", rec.Fingerprint,
			"size", rec.Size)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating key files: %w", err)
	}
	slog.Debug("total key files", "count", count)

	return nil
}
