package transport

import (
	"context"
	"errors"
	"fmt"
)

// ConnectError is returned when a connection could not be established
type ConnectError struct {
	Profile string
	Addr    string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s (%s): %v", e.Profile, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ListError is returned when a remote directory could not be listed
type ListError struct {
	Profile string
	Path    string
	Err     error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list %s on %s: %v", e.Path, e.Profile, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// MkdirError names the first directory of a chain that could not be created
type MkdirError struct {
	Profile string
	Path    string
	Err     error
}

func (e *MkdirError) Error() string {
	return fmt.Sprintf("mkdir %s on %s: %v", e.Path, e.Profile, e.Err)
}

func (e *MkdirError) Unwrap() error { return e.Err }

// TransferError is returned when an upload or download fails
type TransferError struct {
	Op      string // upload or download
	Profile string
	Path    string
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s on %s: %v", e.Op, e.Path, e.Profile, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// IsTimeout reports whether err was caused by an expired deadline
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
