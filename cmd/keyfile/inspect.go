package main

import (
	"github.com/sensiblebit/keyfile/internal"
	"github.com/spf13/cobra"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "Display how a key file's key is obtained",
	Long:  "Show the detected format, XML version, key length, and SHA-256 fingerprint of one or more key files. The key itself is never printed.",
	Example: `  keyfile inspect db.keyx
  keyfile inspect *.key --format json`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: fileCompletion,
	RunE:              runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format: text or json")
	registerCompletion(inspectCmd, completionInput{"format", fixedCompletion("text", "json")})
}

func runInspect(cmd *cobra.Command, args []string) error {
	results := make([]internal.InspectResult, 0, len(args))
	for _, path := range args {
		res, err := internal.InspectFile(path)
		if err != nil {
			return err
		}
		results = append(results, *res)
	}

	output, err := internal.FormatInspectResults(results, inspectFormat)
	if err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), output)
}
