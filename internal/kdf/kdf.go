// Package kdf transforms a composite key into the key that unlocks a
// KeePass database, using either AES-KDF or Argon2id.
package kdf

import (
	"crypto/aes"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeySize is the length of every derived key.
const KeySize = 32

// Kind names a key derivation function.
type Kind string

const (
	KindAES      Kind = "aes"
	KindArgon2id Kind = "argon2id"
)

// Kinds lists the supported key derivation functions.
var Kinds = []Kind{KindAES, KindArgon2id}

// Defaults used by KeePass 2.x for new databases.
const (
	DefaultAESRounds         = 60_000
	DefaultArgon2Iterations  = 2
	DefaultArgon2MemoryKiB   = 64 * 1024
	DefaultArgon2Parallelism = 2
)

// Params selects a key derivation function and its parameters. Seed is the
// AES transform seed or the Argon2 salt.
type Params struct {
	Kind        Kind
	Seed        []byte
	Rounds      uint64 // AES rounds or Argon2 iterations
	MemoryKiB   uint32
	Parallelism uint8
}

// Validate reports whether p can be used with Derive.
func (p Params) Validate() error {
	switch p.Kind {
	case KindAES:
		if len(p.Seed) != KeySize {
			return fmt.Errorf("aes seed must be %d bytes, got %d", KeySize, len(p.Seed))
		}
	case KindArgon2id:
		if len(p.Seed) < 8 {
			return fmt.Errorf("argon2id salt must be at least 8 bytes, got %d", len(p.Seed))
		}
		if p.Rounds < 1 || p.Rounds > 1<<32-1 {
			return fmt.Errorf("argon2id iterations out of range: %d", p.Rounds)
		}
		if p.Parallelism < 1 {
			return errors.New("argon2id parallelism must be at least 1")
		}
		if p.MemoryKiB < 8*uint32(p.Parallelism) {
			return fmt.Errorf("argon2id memory must be at least %d KiB", 8*uint32(p.Parallelism))
		}
	default:
		return fmt.Errorf("unknown key derivation function %q", p.Kind)
	}
	return nil
}

// Derive transforms composite according to p.
func Derive(composite []byte, p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Kind == KindAES {
		return AESKDF(composite, p.Seed, p.Rounds)
	}
	return Argon2id(composite, p.Seed, uint32(p.Rounds), p.MemoryKiB, p.Parallelism), nil
}

// AESKDF encrypts the 32-byte composite key rounds times with AES-256 in ECB
// mode keyed by seed, then hashes the result with SHA-256.
func AESKDF(composite, seed []byte, rounds uint64) ([]byte, error) {
	if len(composite) != KeySize {
		return nil, fmt.Errorf("composite key must be %d bytes, got %d", KeySize, len(composite))
	}
	if len(seed) != KeySize {
		return nil, fmt.Errorf("aes seed must be %d bytes, got %d", KeySize, len(seed))
	}
	block, err := aes.NewCipher(seed)
	if err != nil {
		return nil, fmt.Errorf("creating aes cipher: %w", err)
	}

	buf := make([]byte, KeySize)
	copy(buf, composite)
	lo, hi := buf[:aes.BlockSize], buf[aes.BlockSize:]
	for range rounds {
		block.Encrypt(lo, lo)
		block.Encrypt(hi, hi)
	}
	sum := sha256.Sum256(buf)
	return sum[:], nil
}

// Argon2id derives a KeySize-byte key from composite with Argon2id.
func Argon2id(composite, salt []byte, iterations, memoryKiB uint32, parallelism uint8) []byte {
	return argon2.IDKey(composite, salt, iterations, memoryKiB, parallelism, KeySize)
}
