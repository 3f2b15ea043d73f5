package keyfile

import (
	"errors"
	"fmt"
)

// ErrInvalidKeyFile is returned when a stream is recognizably a structured
// key file but its key cannot be trusted: the key data is missing, or the
// embedded checksum does not match. Callers must not retry with another
// interpretation of the same stream.
var ErrInvalidKeyFile = errors.New("invalid key file")

// ErrMissingKeyData is returned for a KeyFile document without key data.
var ErrMissingKeyData = fmt.Errorf("%w: key file does not contain a key", ErrInvalidKeyFile)

// ErrHashMismatch is returned when the truncated SHA-256 stored in a
// version 2.0 key file does not match its key data.
var ErrHashMismatch = fmt.Errorf("%w: invalid key in signature file", ErrInvalidKeyFile)

// ReadError reports a failure reading the underlying stream. Op names the
// stage that was reading when the failure occurred.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("reading key file (%s): %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
