package transport

import (
	"os"
)

// File replays frames from a capture file and optionally appends
// everything written to an output file. With no output path, writes are
// accepted and discarded, so the same client code can drive a replay and
// a live link interchangeably.
type File struct {
	in  *os.File
	out *os.File
}

// OpenFile opens inPath for reading and, when appendPath is non-empty,
// opens (creating if needed) appendPath for appending.
func OpenFile(inPath, appendPath string) (*File, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, err
	}
	var out *os.File
	if appendPath != "" {
		out, err = os.OpenFile(appendPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			in.Close()
			return nil, err
		}
	}
	return &File{in: in, out: out}, nil
}

// NewFile wraps an already-open file for both reading and writing (the
// out-of-process worker hands its pipe ends over this way).
func NewFile(f *os.File) *File {
	return &File{in: f, out: f}
}

func (t *File) Read(buf []byte) (int, error) {
	n, err := t.in.Read(buf)
	if err != nil {
		return n, wrapReadErr(err)
	}
	return n, nil
}

func (t *File) Write(buf []byte) (int, error) {
	if t.out == nil {
		return len(buf), nil
	}
	return t.out.Write(buf)
}

func (t *File) Close() error {
	err := t.in.Close()
	if t.out != nil && t.out != t.in {
		if cerr := t.out.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
