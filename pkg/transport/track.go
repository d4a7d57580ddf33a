package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// connTracker hands out sockets for one logical connection (the FTP control
// channel plus every data channel, or the single SSH socket) and can close
// all of them at once.
type connTracker struct {
	ctx    context.Context
	cancel context.CancelFunc
	dialer net.Dialer

	mu    sync.Mutex
	conns map[*trackedConn]struct{}
}

func newConnTracker(dialTimeout time.Duration) *connTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &connTracker{
		ctx:    ctx,
		cancel: cancel,
		dialer: net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second},
		conns:  make(map[*trackedConn]struct{}),
	}
}

// dial matches the signature jlaffaye/ftp expects from DialWithDialFunc
func (t *connTracker) dial(network, addr string) (net.Conn, error) {
	c, err := t.dialer.DialContext(t.ctx, network, addr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx.Err() != nil {
		c.Close()
		return nil, ErrClosed
	}
	tc := &trackedConn{Conn: c, t: t}
	t.conns[tc] = struct{}{}
	return tc, nil
}

// closeAll closes every open socket and refuses further dials
func (t *connTracker) closeAll() {
	t.cancel()

	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[*trackedConn]struct{})
	t.mu.Unlock()

	for c := range conns {
		c.Conn.Close()
	}
}

type trackedConn struct {
	net.Conn
	t    *connTracker
	once sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() {
		c.t.mu.Lock()
		delete(c.t.conns, c)
		c.t.mu.Unlock()
	})
	return c.Conn.Close()
}

// liveness tracks whether a connection is still usable and aborts it when a
// context ends in the middle of an operation.
type liveness struct {
	dead  atomic.Bool
	once  sync.Once
	abort func()
}

func newLiveness(abort func()) *liveness {
	return &liveness{abort: abort}
}

func (l *liveness) alive() bool {
	return !l.dead.Load()
}

// kill marks the connection dead and runs abort once
func (l *liveness) kill() {
	l.dead.Store(true)
	l.once.Do(func() {
		if l.abort != nil {
			l.abort()
		}
	})
}

// markDead records that the peer went away without aborting anything
func (l *liveness) markDead() {
	l.dead.Store(true)
}

// guard runs fn and tears the connection down if ctx ends before fn returns.
// In that case the returned error wraps ctx.Err().
func (l *liveness) guard(ctx context.Context, fn func() error) error {
	if !l.alive() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, l.kill)
	err := fn()
	if !stop() {
		if err == nil {
			err = ErrClosed
		}
		return fmt.Errorf("aborted (%v): %w", err, ctx.Err())
	}
	return err
}
