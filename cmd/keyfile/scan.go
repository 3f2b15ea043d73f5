package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/sensiblebit/keyfile/internal"
	"github.com/spf13/cobra"
)

var (
	scanDBPath     string
	scanConfigPath string
	scanDuplicates bool
)

const defaultScanConfig = "./keyfile-scan.yaml"

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan and catalog key files",
	Long: `Load every candidate file under a path as a key file and catalog the results
in SQLite. Files inside zip, tar, tar.gz, and tar.zst archives are loaded too.
Prints a summary of the formats found.`,
	Example: `  keyfile scan ~/secrets
  keyfile scan ./backup.tar.zst --duplicates
  keyfile scan . --db catalog.db --config scan.yaml`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: directoryCompletion,
	RunE:              runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanDBPath, "db", "d", "", "SQLite catalog path; existing records are merged (default: in-memory only)")
	scanCmd.Flags().StringVarP(&scanConfigPath, "config", "c", defaultScanConfig, "Path to scan rules YAML")
	scanCmd.Flags().BoolVar(&scanDuplicates, "duplicates", false, "List files that yield the same key")

	registerCompletion(scanCmd, completionInput{"db", fileCompletion})
	registerCompletion(scanCmd, completionInput{"config", fileCompletion})
}

func runScan(cmd *cobra.Command, args []string) error {
	rules, err := internal.LoadScanRules(scanConfigPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	limits := internal.DefaultArchiveLimits()
	limits.MaxEntrySize = rules.MaxFileSize

	db, err := internal.NewDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if scanDBPath != "" {
		if _, err := os.Stat(scanDBPath); err == nil {
			if err := db.LoadFromDisk(scanDBPath); err != nil {
				return err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking database %s: %w", scanDBPath, err)
		}
	}

	cfg := &internal.Config{
		InputPath: args[0],
		DB:        db,
		Rules:     rules,
		Limits:    limits,
	}
	if err := internal.ScanPath(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("scanning %s: %w", args[0], err)
	}

	if err := db.DumpDB(); err != nil {
		slog.Warn("dumping database", "error", err)
	}
	if scanDBPath != "" {
		if err := os.Remove(scanDBPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("replacing database %s: %w", scanDBPath, err)
		}
		if err := db.SaveToDisk(scanDBPath); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if err := printScanSummary(out, db); err != nil {
		return err
	}
	if scanDuplicates {
		return printDuplicates(out, db)
	}
	return nil
}

func printScanSummary(w io.Writer, db *internal.DB) error {
	summary, err := db.GetScanSummary()
	if err != nil {
		return fmt.Errorf("generating summary: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nFound %d key file(s)%s\n", summary.Total(),
		internal.ScanAnnotation(summary.Invalid, summary.Unreadable))
	rows := []struct {
		label string
		count int
	}{
		{"Binary:", summary.Binary},
		{"Hex:", summary.Hex},
		{"XML 1.0:", summary.XMLV1},
		{"XML 2.0:", summary.XMLV2},
		{"Digest:", summary.Digest},
	}
	for _, r := range rows {
		if r.count > 0 {
			fmt.Fprintf(&sb, "  %-9s %d\n", r.label, r.count)
		}
	}
	return writeOutput(w, sb.String())
}

func printDuplicates(w io.Writer, db *internal.DB) error {
	groups, err := db.GetDuplicates()
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return writeOutput(w, "\nNo duplicate keys\n")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%d key(s) shared by more than one file:\n", len(groups))
	for _, g := range groups {
		fmt.Fprintf(&sb, "  %s\n", g.Fingerprint)
		for _, p := range g.Paths {
			fmt.Fprintf(&sb, "    %s\n", p)
		}
	}
	return writeOutput(w, sb.String())
}
