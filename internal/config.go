package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScanRules controls which files a scan considers. It is read from a YAML
// file; fields left out keep their defaults.
type ScanRules struct {
	// MaxFileSize is the largest regular file, in bytes, that is loaded.
	// Larger files are skipped rather than digested.
	MaxFileSize int64 `yaml:"maxFileSize"`
	// Extensions restricts the scan to files with these extensions
	// (case-insensitive, with the leading dot). Empty means every file.
	Extensions []string `yaml:"extensions,omitempty"`
	// SkipDirs lists directory names that are never descended into.
	SkipDirs []string `yaml:"skipDirs,omitempty"`
	// IncludeHidden scans dot-files and dot-directories.
	IncludeHidden bool `yaml:"includeHidden"`
	// Archives enables scanning inside zip and tar archives.
	Archives bool `yaml:"archives"`
}

// DefaultScanRules returns the rules used when no config file is given.
func DefaultScanRules() ScanRules {
	return ScanRules{
		MaxFileSize: 10 * 1024 * 1024, // 10 MB
		SkipDirs: []string{
			".git", ".hg", ".svn",
			"node_modules", "__pycache__", ".tox", ".venv",
			"vendor",
		},
		Archives: true,
	}
}

// LoadScanRules loads scan rules from the YAML file at path on top of the
// defaults. If allowMissing is set, a nonexistent file yields the defaults.
func LoadScanRules(path string, allowMissing bool) (ScanRules, error) {
	rules := DefaultScanRules()

	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return rules, nil
		}
		return ScanRules{}, fmt.Errorf("reading scan config: %w", err)
	}

	if err := yaml.Unmarshal(data, &rules); err != nil {
		return ScanRules{}, fmt.Errorf("parsing scan config %s: %w", path, err)
	}
	if rules.MaxFileSize <= 0 {
		return ScanRules{}, fmt.Errorf("scan config %s: maxFileSize must be positive", path)
	}
	for i, ext := range rules.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		rules.Extensions[i] = ext
	}
	return rules, nil
}

// SkipDir reports whether a directory with the given name is not scanned.
func (r ScanRules) SkipDir(name string) bool {
	if !r.IncludeHidden && isHidden(name) {
		return true
	}
	return slices.Contains(r.SkipDirs, name)
}

// MatchFile reports whether the file at path is a scan candidate.
func (r ScanRules) MatchFile(path string) bool {
	if !r.IncludeHidden && isHidden(filepath.Base(path)) {
		return false
	}
	if len(r.Extensions) == 0 {
		return true
	}
	return slices.Contains(r.Extensions, strings.ToLower(filepath.Ext(path)))
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}
