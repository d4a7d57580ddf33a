package transport

import (
	"errors"
	"fmt"
	"io"
)

// errLocal marks failures of the caller's reader or writer, as opposed to
// failures of the remote side.
var errLocal = errors.New("local i/o")

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", errLocal, err)
	}
	return n, err
}

type localWriter struct {
	w io.Writer
}

func (l localWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if err != nil {
		err = fmt.Errorf("%w: %w", errLocal, err)
	}
	return n, err
}
