package internal

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ArchiveLimits controls zip bomb protection thresholds.
type ArchiveLimits struct {
	// MaxDecompressionRatio is the maximum allowed ratio of uncompressed to
	// compressed size for a single ZIP entry. TAR entries are not ratio-checked
	// because TAR stores uncompressed data.
	MaxDecompressionRatio int64

	// MaxTotalSize is the maximum total bytes that may be read from a single
	// archive across all entries.
	MaxTotalSize int64

	// MaxEntryCount is the maximum number of entries that will be loaded
	// from a single archive.
	MaxEntryCount int

	// MaxEntrySize is the maximum allowed size of a single decompressed entry.
	// Typically set from the scan rules' maxFileSize.
	MaxEntrySize int64
}

// DefaultArchiveLimits returns conservative defaults for archive extraction.
func DefaultArchiveLimits() ArchiveLimits {
	return ArchiveLimits{
		MaxDecompressionRatio: 100,
		MaxTotalSize:          256 * 1024 * 1024, // 256 MB
		MaxEntryCount:         10_000,
		MaxEntrySize:          DefaultScanRules().MaxFileSize,
	}
}

// ProcessArchiveInput holds the parameters for archive processing.
type ProcessArchiveInput struct {
	ArchivePath string
	Data        []byte
	Format      string
	Config      *Config
}

var archiveExtensions = map[string]string{
	".zip":  "zip",
	".tar":  "tar",
	".tgz":  "tar.gz",
	".tzst": "tar.zst",
}

// ArchiveFormat returns the archive format for the given path based on its
// extension, or "" if the path is not a recognized archive. Compound
// extensions like ".tar.gz" are checked first.
func ArchiveFormat(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"):
		return "tar.gz"
	case strings.HasSuffix(lower, ".tar.zst"):
		return "tar.zst"
	}
	return archiveExtensions[filepath.Ext(lower)]
}

// IsArchive reports whether the given path has a recognized archive extension.
func IsArchive(path string) bool {
	return ArchiveFormat(path) != ""
}

// ProcessArchive loads every candidate entry of an archive as a key file and
// records the outcome under "<archive>:<entry>". Returns the number of entries
// loaded. Archives inside archives are not recursed into.
func ProcessArchive(input ProcessArchiveInput) (int, error) {
	switch input.Format {
	case "zip":
		return processZipArchive(input)
	case "tar":
		return processTarArchive(input, bytes.NewReader(input.Data))
	case "tar.gz":
		gr, err := gzip.NewReader(bytes.NewReader(input.Data))
		if err != nil {
			return 0, fmt.Errorf("opening gzip layer for %s: %w", input.ArchivePath, err)
		}
		defer func() {
			if closeErr := gr.Close(); closeErr != nil {
				slog.Warn("closing gzip reader", "archive", input.ArchivePath, "error", closeErr)
			}
		}()
		return processTarArchive(input, gr)
	case "tar.zst":
		zr, err := zstd.NewReader(bytes.NewReader(input.Data))
		if err != nil {
			return 0, fmt.Errorf("opening zstd layer for %s: %w", input.ArchivePath, err)
		}
		defer zr.Close()
		return processTarArchive(input, zr)
	default:
		return 0, fmt.Errorf("unsupported archive format: %q", input.Format)
	}
}

func processZipArchive(input ProcessArchiveInput) (int, error) {
	reader, err := zip.NewReader(bytes.NewReader(input.Data), int64(len(input.Data)))
	if err != nil {
		return 0, fmt.Errorf("opening ZIP archive %s: %w", input.ArchivePath, err)
	}

	limits := input.Config.Limits
	var totalSize int64
	processed := 0

	for _, f := range reader.File {
		if processed >= limits.MaxEntryCount {
			slog.Warn("archive entry count limit reached, stopping",
				"archive", input.ArchivePath, "limit", limits.MaxEntryCount)
			break
		}
		if f.FileInfo().IsDir() || !input.Config.Rules.MatchFile(f.Name) {
			continue
		}
		if IsArchive(f.Name) {
			slog.Debug("skipping nested archive", "archive", input.ArchivePath, "entry", f.Name)
			continue
		}

		if f.CompressedSize64 > 0 {
			ratio := int64(f.UncompressedSize64 / f.CompressedSize64)
			if ratio > limits.MaxDecompressionRatio {
				slog.Warn("skipping suspicious ZIP entry: decompression ratio too high",
					"archive", input.ArchivePath, "entry", f.Name,
					"ratio", ratio, "limit", limits.MaxDecompressionRatio)
				continue
			}
		}
		if int64(f.UncompressedSize64) > limits.MaxEntrySize {
			slog.Debug("skipping oversized ZIP entry",
				"archive", input.ArchivePath, "entry", f.Name,
				"size", f.UncompressedSize64, "limit", limits.MaxEntrySize)
			continue
		}
		if totalSize+int64(f.UncompressedSize64) > limits.MaxTotalSize {
			slog.Warn("archive total size limit reached, stopping",
				"archive", input.ArchivePath, "limit", limits.MaxTotalSize)
			break
		}

		virtualPath := input.ArchivePath + ":" + f.Name
		n, err := processZipEntry(f, virtualPath, input.Config)
		if err != nil {
			return processed, err
		}
		totalSize += n
		processed++
	}

	slog.Info("processed archive", "archive", input.ArchivePath, "format", "zip", "entries", processed)
	return processed, nil
}

func processZipEntry(f *zip.File, virtualPath string, cfg *Config) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, recordFailure(cfg.DB, virtualPath, fmt.Errorf("opening ZIP entry: %w", err))
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			slog.Debug("closing ZIP entry", "entry", f.Name, "error", closeErr)
		}
	}()
	return processStream(newMaxSizeReader(rc, cfg.Limits.MaxEntrySize), virtualPath, cfg)
}

// processTarArchive loads entries from an uncompressed tar stream.
func processTarArchive(input ProcessArchiveInput, r io.Reader) (int, error) {
	limits := input.Config.Limits
	tr := tar.NewReader(r)
	var totalSize int64
	processed := 0

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Corrupted tar: keep what was recorded so far
			if processed > 0 {
				slog.Warn("tar read error after processing entries",
					"archive", input.ArchivePath, "processed", processed, "error", err)
				break
			}
			return 0, fmt.Errorf("reading TAR archive %s: %w", input.ArchivePath, err)
		}

		if processed >= limits.MaxEntryCount {
			slog.Warn("archive entry count limit reached, stopping",
				"archive", input.ArchivePath, "limit", limits.MaxEntryCount)
			break
		}
		if header.Typeflag != tar.TypeReg || !input.Config.Rules.MatchFile(header.Name) {
			continue
		}
		if IsArchive(header.Name) {
			slog.Debug("skipping nested archive", "archive", input.ArchivePath, "entry", header.Name)
			continue
		}
		if header.Size > limits.MaxEntrySize {
			slog.Debug("skipping oversized TAR entry",
				"archive", input.ArchivePath, "entry", header.Name,
				"size", header.Size, "limit", limits.MaxEntrySize)
			continue
		}
		if totalSize+header.Size > limits.MaxTotalSize {
			slog.Warn("archive total size limit reached, stopping",
				"archive", input.ArchivePath, "limit", limits.MaxTotalSize)
			break
		}

		virtualPath := input.ArchivePath + ":" + header.Name
		n, err := processStream(newMaxSizeReader(tr, limits.MaxEntrySize), virtualPath, input.Config)
		if err != nil {
			return processed, err
		}
		totalSize += n
		processed++
	}

	slog.Info("processed archive", "archive", input.ArchivePath, "format", input.Format, "entries", processed)
	return processed, nil
}
