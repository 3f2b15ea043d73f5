package main

import (
	"fmt"
	"os"

	"github.com/sensiblebit/keyfile"
	"github.com/sensiblebit/keyfile/internal"
	"github.com/spf13/cobra"
)

var (
	generateFormat  = keyfile.FormatXMLV2
	generateOutPath string
	generateForce   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new random key file",
	Long: `Generate a key file holding 32 random bytes.

Output is printed to stdout by default. Use -o to write a file instead; the
file is created with owner-only permissions.`,
	Example: `  keyfile generate -o db.keyx
  keyfile generate --type hex
  keyfile generate --type binary -o db.key`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().VarP(formatValue{&generateFormat}, "type", "t", "Key file type: binary, hex, xml1, or xml2")
	generateCmd.Flags().StringVarP(&generateOutPath, "out", "o", "", "Output file (default: print to stdout)")
	generateCmd.Flags().BoolVarP(&generateForce, "force", "f", false, "Overwrite an existing file, or print a binary key to a terminal")

	registerCompletion(generateCmd, completionInput{"type", fixedCompletion(formatNames()...)})
	registerCompletion(generateCmd, completionInput{"out", fileCompletion})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if generateOutPath == "" && generateFormat == keyfile.FormatBinary {
		if err := checkRawOutput(generateForce); err != nil {
			return err
		}
	}

	result, err := internal.GenerateKeyFile(internal.GenerateOptions{
		Format:  generateFormat,
		OutPath: generateOutPath,
		Force:   generateForce,
	})
	if err != nil {
		return fmt.Errorf("generating key file: %w", err)
	}

	if result.File == "" {
		if _, err := cmd.OutOrStdout().Write(result.Data); err != nil {
			return fmt.Errorf("writing key file: %w", err)
		}
		return nil
	}
	fmt.Fprintf(os.Stderr, "Key file: %s (%s)\n", result.File, generateFormat)
	fmt.Fprintf(os.Stderr, "SHA-256:  %s\n", result.Fingerprint)
	return nil
}
