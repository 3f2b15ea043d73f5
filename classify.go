package keyfile

import (
	"encoding/hex"
	"fmt"
)

const (
	// probeSize is one byte more than the longest fixed-length key so a
	// stream of exactly 64 bytes can be told apart from a longer one.
	probeSize = 65

	binaryKeyLen = 32
	hexKeyLen    = 64
)

// classifyFixedLength decides whether the probed bytes are a raw 32-byte key
// or a 64-character hex key. probed holds the whole stream when the stream
// is shorter than the probe buffer, so its length is the stream length.
func classifyFixedLength(probed []byte) (*Result, verdict, error) {
	switch len(probed) {
	case binaryKeyLen:
		key := make([]byte, binaryKeyLen)
		copy(key, probed)
		return &Result{Key: key, Format: FormatBinary}, verdictMatch, nil
	case hexKeyLen:
		key := make([]byte, hex.DecodedLen(hexKeyLen))
		if _, err := hex.Decode(key, probed); err != nil {
			return nil, verdictNoMatch, fmt.Errorf("decoding 64-byte hex key: %w", err)
		}
		return &Result{Key: key, Format: FormatHex}, verdictMatch, nil
	default:
		return nil, verdictNoMatch, fmt.Errorf("length %d is not a fixed-length key", len(probed))
	}
}
