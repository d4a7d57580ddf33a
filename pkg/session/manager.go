// Package session keeps at most one open connection per profile.
package session

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/quocson95/ideaftp/pkg/profile"
	"github.com/quocson95/ideaftp/pkg/transport"
)

// OpenFunc opens a new connection for a profile
type OpenFunc func(ctx context.Context, p profile.Profile) (transport.Conn, error)

// Status is the externally visible state of a profile's session
type Status string

const (
	Connected    Status = "connected"
	Disconnected Status = "disconnected"
)

// Manager manages the sessions of all profiles. Each profile has at most one
// live session: connected sessions stay open until Disconnect, temporary
// ones opened by Acquire are closed when their last user releases them.
type Manager struct {
	open  OpenFunc
	log   *zap.Logger
	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	s      *Session
	pinned bool // opened or adopted by Connect
	refs   int  // outstanding Acquire calls
}

// NewManager creates a new session manager
func NewManager(open OpenFunc, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		open:     open,
		log:      log,
		sessions: make(map[string]*entry),
	}
}

// Connect returns the ready session of p, opening one if needed. Concurrent
// calls for the same profile share a single connection attempt. A temporary
// session that is already open is kept open from now on.
func (m *Manager) Connect(ctx context.Context, p profile.Profile) (*Session, error) {
	return m.attach(ctx, p, func(e *entry) {
		if !e.pinned {
			e.pinned = true
			m.log.Info("session connected", zap.String("profile", p.Name))
		}
	})
}

// Acquire returns a session for p along with a release function. An existing
// session is shared and release leaves it open. Otherwise a temporary session
// is opened, shared with concurrent callers, and closed by the last release.
func (m *Manager) Acquire(ctx context.Context, p profile.Profile) (*Session, func(), error) {
	var acquired *entry
	s, err := m.attach(ctx, p, func(e *entry) {
		e.refs++
		acquired = e
	})
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	return s, func() {
		once.Do(func() { m.release(p.Name, acquired) })
	}, nil
}

func (m *Manager) release(name string, e *entry) {
	m.mu.Lock()
	e.refs--
	last := e.refs == 0 && !e.pinned && m.sessions[name] == e
	if last {
		delete(m.sessions, name)
	}
	m.mu.Unlock()

	if last {
		if err := e.s.close(); err != nil {
			m.log.Debug("closing temporary session", zap.String("profile", name), zap.Error(err))
		}
	}
}

// attach runs fn on the live entry of p under the registry lock, opening the
// session first when there is none. Opening goes through the singleflight
// group so only one attempt per profile is ever in flight.
func (m *Manager) attach(ctx context.Context, p profile.Profile, fn func(e *entry)) (*Session, error) {
	for {
		m.mu.Lock()
		e, dead := m.lookup(p.Name)
		if e != nil {
			fn(e)
			m.mu.Unlock()
			return e.s, nil
		}
		m.mu.Unlock()
		m.drop(p.Name, dead)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err, _ := m.group.Do(p.Name, func() (interface{}, error) {
			return nil, m.register(ctx, p)
		}); err != nil {
			return nil, err
		}
	}
}

// lookup returns the usable entry of name. A dead entry is unregistered and
// returned separately so the caller can close it outside the lock.
func (m *Manager) lookup(name string) (live, dead *entry) {
	e, ok := m.sessions[name]
	if !ok {
		return nil, nil
	}
	if e.s.usable() {
		return e, nil
	}
	delete(m.sessions, name)
	return nil, e
}

func (m *Manager) drop(name string, dead *entry) {
	if dead == nil {
		return
	}
	dead.s.close()
	m.log.Warn("dropped dead session", zap.String("profile", name))
}

// register opens a session for p unless another caller registered one first
func (m *Manager) register(ctx context.Context, p profile.Profile) error {
	m.mu.Lock()
	e, dead := m.lookup(p.Name)
	m.mu.Unlock()
	m.drop(p.Name, dead)
	if e != nil {
		return nil
	}

	s, err := m.dial(ctx, p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.sessions[p.Name]
	m.sessions[p.Name] = &entry{s: s}
	m.mu.Unlock()

	if old != nil {
		old.s.close()
	}
	m.log.Debug("session opened", zap.String("profile", p.Name))
	return nil
}

func (m *Manager) dial(ctx context.Context, p profile.Profile) (*Session, error) {
	s := newSession(p)
	conn, err := m.open(ctx, p)
	if err != nil {
		s.fail()
		return nil, err
	}
	s.ready(conn)
	return s, nil
}

// Probe opens and immediately closes a connection for p without touching
// the registered sessions.
func (m *Manager) Probe(ctx context.Context, p profile.Profile) error {
	conn, err := m.open(ctx, p)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Get returns the connected session of a profile if it is alive. A session
// whose connection died is dropped.
func (m *Manager) Get(name string) (*Session, bool) {
	m.mu.Lock()
	e, dead := m.lookup(name)
	m.mu.Unlock()
	m.drop(name, dead)

	if e == nil || !e.pinned {
		return nil, false
	}
	return e.s, true
}

// Disconnect closes the session of a profile, temporary or not. Unknown
// names are ignored.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	e, ok := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.log.Info("session disconnected", zap.String("profile", name))
	return e.s.close()
}

// DisconnectAll closes all sessions
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for name, e := range sessions {
		if err := e.s.close(); err != nil {
			m.log.Debug("close failed", zap.String("profile", name), zap.Error(err))
		}
	}
}

// Status reports whether a profile currently has a connected session
func (m *Manager) Status(name string) Status {
	if _, ok := m.Get(name); ok {
		return Connected
	}
	return Disconnected
}

// Names returns the profiles with a connected session, sorted
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.sessions))
	for name, e := range m.sessions {
		if e.pinned {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
