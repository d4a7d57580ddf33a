package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/quocson95/ideaftp/pkg/profile"
)

type sftpFactory struct{}

func (f *sftpFactory) Accept(p *profile.Profile) bool {
	return p.Protocol == profile.ProtocolSFTP
}

func (f *sftpFactory) Open(ctx context.Context, p *profile.Profile, opts Options, t *connTracker) (Conn, error) {
	auth, err := authMethods(p)
	if err != nil {
		return nil, err
	}

	hostKey := opts.HostKeyCallback
	if hostKey == nil {
		hostKey, err = HostKeyCallback("", false, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	config := &ssh.ClientConfig{
		User:            p.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
	}

	addr := p.Addr()
	raw, err := t.dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	cc, chans, reqs, err := ssh.NewClientConn(raw, addr, config)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(cc, chans, reqs)

	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}

	conn := newSFTPConn(sc, p.Name, newLiveness(t.closeAll), client)
	conn.log = opts.Logger.With(zap.String("profile", p.Name))
	go conn.waitForExit(client)
	return conn, nil
}

func (f *sftpFactory) Name() string {
	return "sftp"
}

func authMethods(p *profile.Profile) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	key, err := p.LoadPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) && p.Passphrase != "" {
				signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(p.Passphrase))
			}
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if p.Password != "" {
		methods = append(methods, ssh.Password(p.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no password or private key configured")
	}
	return methods, nil
}

// SFTPConn is a Conn over an SFTP subsystem
type SFTPConn struct {
	client  *sftp.Client
	name    string
	closers []io.Closer
	live    *liveness
	log     *zap.Logger
}

// NewSFTPConn wraps an open SFTP client. The closers are closed after the
// client, typically the underlying *ssh.Client.
func NewSFTPConn(client *sftp.Client, name string, closers ...io.Closer) *SFTPConn {
	return newSFTPConn(client, name, nil, closers...)
}

func newSFTPConn(client *sftp.Client, name string, live *liveness, closers ...io.Closer) *SFTPConn {
	c := &SFTPConn{client: client, name: name, closers: closers, log: zap.NewNop()}
	if live == nil {
		live = newLiveness(func() { _ = c.closeAll() })
	}
	c.live = live
	return c
}

// waitForExit marks the connection dead once the server hangs up
func (c *SFTPConn) waitForExit(client *ssh.Client) {
	err := client.Wait()
	if c.live.alive() {
		c.log.Warn("connection lost", zap.Error(err))
	}
	c.live.markDead()
}

func (c *SFTPConn) Protocol() profile.Protocol {
	return profile.ProtocolSFTP
}

func (c *SFTPConn) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	var entries []Entry
	err := c.live.guard(ctx, func() error {
		infos, err := c.client.ReadDir(dir)
		if err != nil {
			return err
		}
		entries = make([]Entry, 0, len(infos))
		for _, fi := range infos {
			if fi.Name() == "." || fi.Name() == ".." {
				continue
			}
			entries = append(entries, Entry{Name: fi.Name(), IsDir: fi.IsDir()})
		}
		return nil
	})
	return entries, err
}

// MakeDir stats dir and creates it only when it is missing. A failed mkdir is
// re-checked since another client may have created the directory in between.
func (c *SFTPConn) MakeDir(ctx context.Context, dir string) (bool, error) {
	var created bool
	err := c.live.guard(ctx, func() error {
		exists, err := c.isDir(dir)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		if err := c.client.Mkdir(dir); err != nil {
			if ok, serr := c.isDir(dir); serr == nil && ok {
				return nil
			}
			return err
		}
		c.log.Debug("created directory", zap.String("path", dir))
		created = true
		return nil
	})
	return created, err
}

func (c *SFTPConn) isDir(dir string) (bool, error) {
	fi, err := c.client.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !fi.IsDir() {
		return false, fmt.Errorf("%s exists and is not a directory", dir)
	}
	return true, nil
}

func (c *SFTPConn) Put(ctx context.Context, path string, r io.Reader) (int64, error) {
	var n int64
	err := c.live.guard(ctx, func() error {
		f, err := c.client.Create(path)
		if err != nil {
			return err
		}
		n, err = io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	})
	return n, err
}

func (c *SFTPConn) Get(ctx context.Context, path string, w io.Writer) (int64, error) {
	var n int64
	err := c.live.guard(ctx, func() error {
		f, err := c.client.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err = io.Copy(w, f)
		return err
	})
	return n, err
}

// Name returns the profile name the connection was opened for
func (c *SFTPConn) Name() string {
	return c.name
}

func (c *SFTPConn) Alive() bool {
	return c.live.alive()
}

func (c *SFTPConn) Close() error {
	c.live.markDead()
	err := c.closeAll()
	c.live.kill()
	return err
}

func (c *SFTPConn) closeAll() error {
	err := c.client.Close()
	for _, cl := range c.closers {
		if cerr := cl.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
