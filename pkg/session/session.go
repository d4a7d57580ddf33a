package session

import (
	"context"
	"io"
	"sync"

	"github.com/quocson95/ideaftp/pkg/profile"
	"github.com/quocson95/ideaftp/pkg/transport"
)

// State of a session
type State int

const (
	StateConnecting State = iota
	StateReady
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Session is a connection owned by a Manager. Operations on one session run
// one at a time.
type Session struct {
	profile profile.Profile

	opMu sync.Mutex // held for the duration of an operation

	mu    sync.Mutex
	conn  transport.Conn
	state State
}

func newSession(p profile.Profile) *Session {
	return &Session{profile: p, state: StateConnecting}
}

// Name returns the profile name
func (s *Session) Name() string {
	return s.profile.Name
}

// Profile returns the profile the session was opened with
func (s *Session) Profile() profile.Profile {
	return s.profile
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ready(conn transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.state = StateReady
}

func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting || s.state == StateReady {
		s.state = StateErrored
	}
}

// usable reports whether the session is ready and its connection alive.
// A dead connection moves the session to errored.
func (s *Session) usable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return false
	}
	if !s.conn.Alive() {
		s.state = StateErrored
		return false
	}
	return true
}

func (s *Session) close() error {
	s.mu.Lock()
	conn := s.conn
	if s.state != StateErrored {
		s.state = StateClosed
	}
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Do runs fn with exclusive use of the connection, so that a multi-step
// operation such as ensure-then-upload is not interleaved with others.
func (s *Session) Do(fn func(conn transport.Conn) error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateReady {
		return transport.ErrClosed
	}

	err := fn(conn)
	if !conn.Alive() {
		s.fail()
	}
	return err
}

// Session satisfies transport.Conn so single-step operations can be handed
// the session directly. Each call is its own operation.
var _ transport.Conn = (*Session)(nil)

func (s *Session) Protocol() profile.Protocol {
	return s.profile.Protocol
}

func (s *Session) ReadDir(ctx context.Context, dir string) (entries []transport.Entry, err error) {
	err = s.Do(func(conn transport.Conn) error {
		entries, err = conn.ReadDir(ctx, dir)
		return err
	})
	return entries, err
}

func (s *Session) MakeDir(ctx context.Context, dir string) (created bool, err error) {
	err = s.Do(func(conn transport.Conn) error {
		created, err = conn.MakeDir(ctx, dir)
		return err
	})
	return created, err
}

func (s *Session) Put(ctx context.Context, path string, r io.Reader) (n int64, err error) {
	err = s.Do(func(conn transport.Conn) error {
		n, err = conn.Put(ctx, path, r)
		return err
	})
	return n, err
}

func (s *Session) Get(ctx context.Context, path string, w io.Writer) (n int64, err error) {
	err = s.Do(func(conn transport.Conn) error {
		n, err = conn.Get(ctx, path, w)
		return err
	})
	return n, err
}

func (s *Session) Alive() bool {
	return s.usable()
}

// Close closes the connection. Sessions registered with a Manager should be
// closed through Manager.Disconnect instead.
func (s *Session) Close() error {
	return s.close()
}
