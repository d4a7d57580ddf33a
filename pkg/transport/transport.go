// Package transport opens FTP and SFTP connections behind a single Conn interface.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/quocson95/ideaftp/pkg/profile"
)

// DefaultConnectTimeout bounds how long Open waits for a usable connection
const DefaultConnectTimeout = 10 * time.Second

// ErrClosed is returned by operations on a connection that was closed or aborted
var ErrClosed = errors.New("connection closed")

// Entry is a single raw directory entry as reported by the server
type Entry struct {
	Name  string
	IsDir bool
}

// Conn is an open connection to a remote server. Implementations are not
// safe for concurrent use; callers serialize operations.
type Conn interface {
	Protocol() profile.Protocol
	ReadDir(ctx context.Context, dir string) ([]Entry, error)
	// MakeDir creates dir if it does not exist yet. It reports whether a
	// directory was actually created.
	MakeDir(ctx context.Context, dir string) (bool, error)
	Put(ctx context.Context, path string, r io.Reader) (int64, error)
	Get(ctx context.Context, path string, w io.Writer) (int64, error)
	// Alive is false once the connection was closed, aborted by a context,
	// or dropped by the server.
	Alive() bool
	Close() error
}

// Options tune how Open establishes a connection
type Options struct {
	ConnectTimeout  time.Duration
	HostKeyCallback ssh.HostKeyCallback
	Logger          *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Open connects to the server described by p. If the connection is not ready
// within the connect timeout every socket opened so far is closed and a
// *ConnectError wrapping context.DeadlineExceeded is returned.
func Open(ctx context.Context, p profile.Profile, opts Options) (Conn, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("profile", p.Name), zap.String("protocol", string(p.Protocol)))

	factory := getConnFactory(&p)
	if factory == nil {
		return nil, &ConnectError{Profile: p.Name, Addr: p.Addr(), Err: fmt.Errorf("unsupported protocol %q", p.Protocol)}
	}

	cctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	tracker := newConnTracker(opts.ConnectTimeout)
	live := newLiveness(tracker.closeAll)

	log.Debug("connecting", zap.String("addr", p.Addr()), zap.Duration("timeout", opts.ConnectTimeout))
	start := time.Now()

	var conn Conn
	err := live.guard(cctx, func() error {
		var err error
		conn, err = factory.Open(cctx, &p, opts, tracker)
		return err
	})
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		tracker.closeAll()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no response within %s: %w", opts.ConnectTimeout, err)
		}
		log.Warn("connect failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, &ConnectError{Profile: p.Name, Addr: p.Addr(), Err: err}
	}

	log.Info("connected", zap.Duration("elapsed", time.Since(start)))
	return conn, nil
}
