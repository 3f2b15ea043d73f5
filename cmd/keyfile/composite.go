package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sensiblebit/keyfile"
	"github.com/sensiblebit/keyfile/internal"
	"github.com/sensiblebit/keyfile/internal/kdf"
	"github.com/spf13/cobra"
)

var (
	compositePasswordFile string
	compositeNoPassword   bool
	compositeKeyFile      string
	compositeKDF          kdf.Kind
	compositeSeed         string
	compositeRounds       uint64
	compositeMemoryKiB    uint32
	compositeParallelism  uint8
)

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "Derive a composite key from a password and key file",
	Long: `Combine a master password and a key file into a KeePass composite key and
print it hex-encoded. With --kdf, the composite key is also transformed with
AES-KDF or Argon2id as a database would do on open.

The password is read from --password-file, or prompted for when standard input
is a terminal.`,
	Example: `  keyfile composite --key-file db.keyx
  keyfile composite --password-file pw.txt --key-file db.keyx --kdf argon2id --seed <hex>
  keyfile composite --no-password --key-file db.key --kdf aes --rounds 60000`,
	Args: cobra.NoArgs,
	RunE: runComposite,
}

func init() {
	f := compositeCmd.Flags()
	f.StringVar(&compositePasswordFile, "password-file", "", "File whose first line is the master password")
	f.BoolVar(&compositeNoPassword, "no-password", false, "Use the key file alone")
	f.StringVarP(&compositeKeyFile, "key-file", "k", "", "Key file to combine with the password")
	f.Var(kdfValue{&compositeKDF}, "kdf", "Transform the composite key: aes or argon2id")
	f.StringVar(&compositeSeed, "seed", "", "Hex AES seed or Argon2 salt (default: random)")
	f.Uint64Var(&compositeRounds, "rounds", 0, "AES rounds or Argon2 iterations (default: KeePass defaults)")
	f.Uint32Var(&compositeMemoryKiB, "memory", kdf.DefaultArgon2MemoryKiB, "Argon2 memory in KiB")
	f.Uint8Var(&compositeParallelism, "parallelism", kdf.DefaultArgon2Parallelism, "Argon2 parallelism")

	compositeCmd.MarkFlagsMutuallyExclusive("password-file", "no-password")
	registerCompletion(compositeCmd, completionInput{"password-file", fileCompletion})
	registerCompletion(compositeCmd, completionInput{"key-file", fileCompletion})
	registerCompletion(compositeCmd, completionInput{"kdf", fixedCompletion(kdfNames()...)})
}

func runComposite(cmd *cobra.Command, args []string) error {
	password, err := compositePassword()
	if err != nil {
		return err
	}

	var keyMaterial []byte
	if compositeKeyFile != "" {
		keyMaterial, err = keyfile.LoadFile(compositeKeyFile)
		if err != nil {
			return fmt.Errorf("loading %s: %w", compositeKeyFile, err)
		}
	}
	if password == nil && keyMaterial == nil {
		return errors.New("a composite key needs a password, a key file, or both")
	}

	composite := keyfile.CompositeKey(password, keyMaterial)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Composite: %s\n", hex.EncodeToString(composite))
	if compositeKDF == "" {
		return writeOutput(cmd.OutOrStdout(), sb.String())
	}

	params, err := compositeKDFParams()
	if err != nil {
		return err
	}
	slog.Debug("deriving key", "kdf", params.Kind, "rounds", params.Rounds)
	derived, err := kdf.Derive(composite, params)
	if err != nil {
		return fmt.Errorf("deriving key: %w", err)
	}
	fmt.Fprintf(&sb, "KDF:       %s (rounds %d)\n", params.Kind, params.Rounds)
	fmt.Fprintf(&sb, "Seed:      %s\n", hex.EncodeToString(params.Seed))
	fmt.Fprintf(&sb, "Derived:   %s\n", hex.EncodeToString(derived))
	return writeOutput(cmd.OutOrStdout(), sb.String())
}

// compositePassword returns the master password, or nil when none is used.
func compositePassword() ([]byte, error) {
	if compositeNoPassword {
		return nil, nil
	}
	if compositePasswordFile != "" {
		pw, err := internal.LoadPasswordFromFile(compositePasswordFile)
		if err != nil {
			return nil, err
		}
		return []byte(pw), nil
	}
	pw, err := internal.PromptPassword("Master password: ")
	if errors.Is(err, internal.ErrNoTerminal) {
		slog.Debug("no terminal for password prompt, continuing without password")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(pw), nil
}

func compositeKDFParams() (kdf.Params, error) {
	params := kdf.Params{
		Kind:        compositeKDF,
		Rounds:      compositeRounds,
		MemoryKiB:   compositeMemoryKiB,
		Parallelism: compositeParallelism,
	}
	if params.Rounds == 0 {
		params.Rounds = kdf.DefaultAESRounds
		if params.Kind == kdf.KindArgon2id {
			params.Rounds = kdf.DefaultArgon2Iterations
		}
	}

	if compositeSeed != "" {
		seed, err := hex.DecodeString(compositeSeed)
		if err != nil {
			return kdf.Params{}, fmt.Errorf("decoding --seed: %w", err)
		}
		params.Seed = seed
	} else {
		params.Seed = make([]byte, kdf.KeySize)
		if _, err := rand.Read(params.Seed); err != nil {
			return kdf.Params{}, fmt.Errorf("generating seed: %w", err)
		}
	}
	if err := params.Validate(); err != nil {
		return kdf.Params{}, fmt.Errorf("invalid --kdf parameters: %w", err)
	}
	return params, nil
}
