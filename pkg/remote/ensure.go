package remote

import (
	"context"
	"strings"

	"github.com/quocson95/ideaftp/pkg/transport"
)

// Ensure makes sure every directory of the absolute path dir exists, walking
// from the root. It returns how many directories were created. The first
// failure aborts the walk with a *transport.MkdirError naming that prefix;
// directories created before it are left in place.
func Ensure(ctx context.Context, conn transport.Conn, dir string) (int, error) {
	created := 0
	prefix := ""
	for _, part := range strings.Split(dir, "/") {
		if part == "" {
			continue
		}
		prefix += "/" + part

		ok, err := conn.MakeDir(ctx, prefix)
		if err != nil {
			return created, &transport.MkdirError{Profile: profileOf(conn), Path: prefix, Err: err}
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// Parent returns the directory part of a remote path, "/" for top level entries
func Parent(p string) string {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}
