package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/quocson95/ideaftp/pkg/profile"
)

type ftpFactory struct{}

func (f *ftpFactory) Accept(p *profile.Profile) bool {
	return p.Protocol == profile.ProtocolFTP
}

func (f *ftpFactory) Open(ctx context.Context, p *profile.Profile, opts Options, t *connTracker) (Conn, error) {
	// Every control and data socket goes through the tracker so a timeout
	// can close all of them.
	c, err := ftp.Dial(p.Addr(), ftp.DialWithDialFunc(t.dial))
	if err != nil {
		return nil, err
	}

	if err := c.Login(p.Username, p.Password); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("login: %w", err)
	}

	conn := newFTPConn(serverConn{c}, p.Name, newLiveness(t.closeAll))
	conn.log = opts.Logger.With(zap.String("profile", p.Name))
	return conn, nil
}

func (f *ftpFactory) Name() string {
	return "ftp"
}

// FTPClient is the subset of *ftp.ServerConn the FTP connection relies on
type FTPClient interface {
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	MakeDir(path string) error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	Quit() error
}

// serverConn adapts *ftp.ServerConn to FTPClient
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// FTPConn is a Conn over an FTP control connection
type FTPConn struct {
	client FTPClient
	name   string
	live   *liveness
	log    *zap.Logger
}

// NewFTPConn wraps an already logged-in FTP client
func NewFTPConn(c FTPClient, name string) *FTPConn {
	return newFTPConn(c, name, nil)
}

func newFTPConn(c FTPClient, name string, live *liveness) *FTPConn {
	if live == nil {
		live = newLiveness(func() { _ = c.Quit() })
	}
	return &FTPConn{client: c, name: name, live: live, log: zap.NewNop()}
}

func (c *FTPConn) Protocol() profile.Protocol {
	return profile.ProtocolFTP
}

func (c *FTPConn) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	var entries []Entry
	err := c.do(ctx, func() error {
		list, err := c.client.List(dir)
		if err != nil {
			return err
		}
		entries = make([]Entry, 0, len(list))
		for _, e := range list {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			entries = append(entries, Entry{Name: e.Name, IsDir: e.Type == ftp.EntryTypeFolder})
		}
		return nil
	})
	return entries, err
}

// MakeDir probes dir with CWD, restoring the working directory afterwards, and
// only issues MKD when the probe fails. A rejected MKD is re-probed since
// another client may have created the directory in between.
func (c *FTPConn) MakeDir(ctx context.Context, dir string) (bool, error) {
	var created bool
	err := c.do(ctx, func() error {
		exists, err := c.dirExists(dir)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		if err := c.client.MakeDir(dir); err != nil {
			if replyCode(err) == ftp.StatusFileUnavailable || replyCode(err) == 521 {
				if ok, perr := c.dirExists(dir); perr == nil && ok {
					return nil
				}
			}
			return err
		}
		c.log.Debug("created directory", zap.String("path", dir))
		created = true
		return nil
	})
	return created, err
}

func (c *FTPConn) dirExists(dir string) (bool, error) {
	cwd, err := c.client.CurrentDir()
	if err != nil {
		return false, err
	}
	if err := c.client.ChangeDir(dir); err != nil {
		if replyCode(err) >= 500 {
			return false, nil
		}
		return false, err
	}
	if err := c.client.ChangeDir(cwd); err != nil {
		return true, fmt.Errorf("restore working directory %s: %w", cwd, err)
	}
	return true, nil
}

func (c *FTPConn) Put(ctx context.Context, path string, r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	err := c.do(ctx, func() error {
		return c.client.Stor(path, cr)
	})
	return cr.n, err
}

func (c *FTPConn) Get(ctx context.Context, path string, w io.Writer) (int64, error) {
	var n int64
	err := c.do(ctx, func() error {
		r, err := c.client.Retr(path)
		if err != nil {
			return err
		}
		n, err = io.Copy(localWriter{w}, r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		return err
	})
	return n, err
}

// Name returns the profile name the connection was opened for
func (c *FTPConn) Name() string {
	return c.name
}

func (c *FTPConn) Alive() bool {
	return c.live.alive()
}

func (c *FTPConn) Close() error {
	if !c.live.alive() {
		c.live.kill()
		return nil
	}
	c.live.markDead()
	err := c.client.Quit()
	c.live.kill()
	return err
}

// do runs fn under ctx. Errors that are not FTP replies mean the control
// connection is broken, so the connection is marked dead.
func (c *FTPConn) do(ctx context.Context, fn func() error) error {
	err := c.live.guard(ctx, fn)
	if err != nil && replyCode(err) == 0 && !errors.Is(err, errLocal) {
		c.live.markDead()
	}
	return err
}

func replyCode(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	return 0
}
