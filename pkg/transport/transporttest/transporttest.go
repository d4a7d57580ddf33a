// Package transporttest provides in-memory FTP and SFTP servers for tests.
package transporttest

import (
	"bytes"
	"io"
	"net/textproto"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/sftp"

	"github.com/quocson95/ideaftp/pkg/transport"
)

// NewSFTPConn returns a connection to a fresh in-memory SFTP server. Both
// ends are torn down when the test finishes.
func NewSFTPConn(t testing.TB, name string) *transport.SFTPConn {
	t.Helper()

	cr, sw := io.Pipe()
	sr, cw := io.Pipe()

	server := sftp.NewRequestServer(struct {
		io.Reader
		io.WriteCloser
	}{sr, sw}, sftp.InMemHandler())
	go func() {
		server.Serve()
		sw.Close()
	}()

	client, err := sftp.NewClientPipe(cr, cw)
	if err != nil {
		t.Fatalf("failed to start sftp client: %v", err)
	}

	conn := transport.NewSFTPConn(client, name)
	t.Cleanup(func() {
		conn.Close()
		server.Close()
	})
	return conn
}

// FakeFTP is an in-memory FTPClient. Directories and files are keyed by
// absolute path; "/" always exists.
type FakeFTP struct {
	mu sync.Mutex

	// Listings overrides List for the given directories
	Listings map[string][]*ftp.Entry
	Dirs     map[string]bool
	Files    map[string][]byte
	Cwd      string
	Closed   bool

	// Commands records every command in order, e.g. "CWD /a" or "MKD /a"
	Commands []string
}

var _ transport.FTPClient = (*FakeFTP)(nil)

// NewFakeFTP returns an empty server with the working directory at "/"
func NewFakeFTP() *FakeFTP {
	return &FakeFTP{
		Listings: make(map[string][]*ftp.Entry),
		Dirs:     map[string]bool{"/": true},
		Files:    make(map[string][]byte),
		Cwd:      "/",
	}
}

func reply(code int, msg string) error {
	return &textproto.Error{Code: code, Msg: msg}
}

func (f *FakeFTP) abs(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(f.Cwd, p)
	}
	return path.Clean(p)
}

func (f *FakeFTP) record(cmd, arg string) {
	f.Commands = append(f.Commands, cmd+" "+arg)
}

// Count returns how many times cmd was issued
func (f *FakeFTP) Count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Commands {
		if len(c) > len(cmd) && c[:len(cmd)+1] == cmd+" " {
			n++
		}
	}
	return n
}

func (f *FakeFTP) List(p string) ([]*ftp.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("LIST", p)

	dir := f.abs(p)
	if entries, ok := f.Listings[dir]; ok {
		return entries, nil
	}
	if !f.Dirs[dir] {
		return nil, reply(ftp.StatusFileUnavailable, "No such file or directory")
	}

	var entries []*ftp.Entry
	for d := range f.Dirs {
		if d != "/" && path.Dir(d) == dir {
			entries = append(entries, &ftp.Entry{Name: path.Base(d), Type: ftp.EntryTypeFolder, Time: time.Unix(0, 0)})
		}
	}
	for name, data := range f.Files {
		if path.Dir(name) == dir {
			entries = append(entries, &ftp.Entry{Name: path.Base(name), Type: ftp.EntryTypeFile, Size: uint64(len(data))})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (f *FakeFTP) Retr(p string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RETR", p)

	data, ok := f.Files[f.abs(p)]
	if !ok {
		return nil, reply(ftp.StatusFileUnavailable, "No such file")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *FakeFTP) Stor(p string, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("STOR", p)

	name := f.abs(p)
	if !f.Dirs[path.Dir(name)] {
		return reply(ftp.StatusBadFileName, "Could not create file")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.Files[name] = data
	return nil
}

func (f *FakeFTP) MakeDir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MKD", p)

	dir := f.abs(p)
	if f.Dirs[dir] {
		return reply(ftp.StatusFileUnavailable, "Directory already exists")
	}
	if !f.Dirs[path.Dir(dir)] {
		return reply(ftp.StatusFileUnavailable, "No such file or directory")
	}
	f.Dirs[dir] = true
	return nil
}

func (f *FakeFTP) ChangeDir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CWD", p)

	dir := f.abs(p)
	if !f.Dirs[dir] {
		return reply(ftp.StatusFileUnavailable, "No such directory")
	}
	f.Cwd = dir
	return nil
}

func (f *FakeFTP) CurrentDir() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PWD", "")
	return f.Cwd, nil
}

func (f *FakeFTP) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
