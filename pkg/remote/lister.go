package remote

import (
	"context"
	"strings"

	"github.com/quocson95/ideaftp/pkg/transport"
)

// Named is implemented by connections that know which profile they belong to
type Named interface {
	Name() string
}

func profileOf(conn transport.Conn) string {
	if n, ok := conn.(Named); ok {
		return n.Name()
	}
	return string(conn.Protocol())
}

// List returns the entries of dir in server order
func List(ctx context.Context, conn transport.Conn, dir string) ([]Entry, error) {
	raw, err := conn.ReadDir(ctx, dir)
	if err != nil {
		return nil, &transport.ListError{Profile: profileOf(conn), Path: dir, Err: err}
	}

	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		kind := KindFile
		if e.IsDir {
			kind = KindDirectory
		}
		entries = append(entries, Entry{Name: e.Name, Path: Join(dir, e.Name), Kind: kind})
	}
	return entries, nil
}

// ListDirs returns only the directories of dir
func ListDirs(ctx context.Context, conn transport.Conn, dir string) ([]Entry, error) {
	entries, err := List(ctx, conn, dir)
	if err != nil {
		return nil, err
	}

	dirs := entries[:0]
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		}
	}
	return dirs, nil
}

// Join appends name to dir with exactly one separator between them
func Join(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
