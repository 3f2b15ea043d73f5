package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sensiblebit/keyfile"
	"github.com/spf13/cobra"
)

var (
	loadRaw   bool
	loadForce bool
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Print the key material of a key file",
	Long: `Load a key file and print the 32-byte key it yields, hex-encoded.

Binary, hex, and XML key files yield their embedded key; any other file yields
the SHA-256 of its contents. Use - to read from standard input.`,
	Example: `  keyfile load db.keyx
  keyfile load --raw photo.jpg > key.bin
  cat db.key | keyfile load -`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: fileCompletion,
	RunE:              runLoad,
}

func init() {
	loadCmd.Flags().BoolVar(&loadRaw, "raw", false, "Write raw key bytes instead of hex")
	loadCmd.Flags().BoolVarP(&loadForce, "force", "f", false, "Allow raw output to a terminal")
}

func runLoad(cmd *cobra.Command, args []string) error {
	if loadRaw {
		if err := checkRawOutput(loadForce); err != nil {
			return err
		}
	}

	var key []byte
	var err error
	if args[0] == "-" {
		key, err = keyfile.Load(os.Stdin)
	} else {
		key, err = keyfile.LoadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", args[0], err)
	}

	if loadRaw {
		_, err = cmd.OutOrStdout().Write(key)
	} else {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
	}
	if err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	return nil
}
