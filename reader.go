package keyfile

import (
	"crypto/sha256"
	"errors"
	"hash"
	"io"
)

// digestReader hashes every byte it pulls from the source. It sits directly
// on the caller's stream so each byte is hashed exactly once, no matter how
// many times the layers above replay it.
//
// The first non-EOF error from the source is remembered, because parsers
// layered above may replace it with a syntax error of their own.
type digestReader struct {
	r   io.Reader
	h   hash.Hash
	err error
}

func newDigestReader(r io.Reader) *digestReader {
	return &digestReader{r: r, h: sha256.New()}
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
	}
	if err != nil && err != io.EOF && d.err == nil {
		d.err = err
	}
	return n, err
}

// Err returns the first failure of the source, if any.
func (d *digestReader) Err() error {
	return d.err
}

// Sum returns the SHA-256 of everything read so far.
func (d *digestReader) Sum() []byte {
	return d.h.Sum(nil)
}

// errPushbackFull is returned by Unread when the bytes would not fit in the
// pushback buffer.
var errPushbackFull = errors.New("pushback buffer full")

// pushbackReader allows a bounded amount of data to be pushed back onto a
// stream that cannot seek. Reads drain pending bytes first, then the source.
type pushbackReader struct {
	r       io.Reader
	pending []byte
	size    int
}

func newPushbackReader(r io.Reader, size int) *pushbackReader {
	return &pushbackReader{r: r, pending: make([]byte, 0, size), size: size}
}

func (p *pushbackReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[:copy(p.pending, p.pending[n:])]
		return n, nil
	}
	return p.r.Read(b)
}

// Unread pushes b back so it is returned, in order, ahead of any bytes
// already pending. b must be the bytes most recently read from p.
func (p *pushbackReader) Unread(b []byte) error {
	if len(b)+len(p.pending) > p.size {
		return errPushbackFull
	}
	buf := make([]byte, 0, p.size)
	buf = append(buf, b...)
	p.pending = append(buf, p.pending...)
	return nil
}

// probe reads up to len(buf) bytes. A stream shorter than buf is not an
// error; only failures of the source are returned.
func probe(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
