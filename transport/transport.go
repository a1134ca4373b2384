// Package transport implements the byte-oriented connections the bus reads
// frames from and writes frames to (C5): a file/pipe transport and a TCP
// transport, both satisfying the same narrow interface so the bus never
// has to know which one it was handed.
package transport

import (
	"errors"
	"io"
)

// ErrEOF is returned by Read once the underlying stream is exhausted and
// will never produce more bytes, distinguishing a clean end from a
// transient read error the bus might want to retry.
var ErrEOF = errors.New("transport: end of stream")

// Transport is the minimal byte-stream contract the bus drives (C5):
// Read blocks for at least one byte or returns ErrEOF/err, Write is
// synchronous, Close releases the underlying resource and unblocks any
// pending Read.
type Transport interface {
	Read(buf []byte) (n int, err error)
	Write(buf []byte) (n int, err error)
	Close() error
}

// wrapReadErr normalizes io.EOF to ErrEOF so the bus only ever has to
// check for one end-of-stream sentinel; any other error, including a
// read after Close, is returned unchanged.
func wrapReadErr(err error) error {
	if err == io.EOF {
		return ErrEOF
	}
	return err
}
