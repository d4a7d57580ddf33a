package remote_test

import (
	"context"
	"errors"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/ideaftp/pkg/remote"
	"github.com/quocson95/ideaftp/pkg/transport"
	"github.com/quocson95/ideaftp/pkg/transport/transporttest"
)

// conns returns one connection per protocol so behavior can be checked on both
func conns(t *testing.T) map[string]transport.Conn {
	return map[string]transport.Conn{
		"ftp":  transport.NewFTPConn(transporttest.NewFakeFTP(), "prod-ftp"),
		"sftp": transporttest.NewSFTPConn(t, "prod-sftp"),
	}
}

func TestListFTPOrderAndPaths(t *testing.T) {
	fake := transporttest.NewFakeFTP()
	fake.Listings["/var/www"] = []*ftp.Entry{
		{Name: "zeta.txt", Type: ftp.EntryTypeFile},
		{Name: ".", Type: ftp.EntryTypeFolder},
		{Name: "assets", Type: ftp.EntryTypeFolder},
		{Name: "..", Type: ftp.EntryTypeFolder},
		{Name: "alpha.txt", Type: ftp.EntryTypeFile},
	}
	fake.Listings["/"] = []*ftp.Entry{{Name: "var", Type: ftp.EntryTypeFolder}}
	conn := transport.NewFTPConn(fake, "prod")

	entries, err := remote.List(context.Background(), conn, "/var/www")
	require.NoError(t, err)
	assert.Equal(t, []remote.Entry{
		{Name: "zeta.txt", Path: "/var/www/zeta.txt", Kind: remote.KindFile},
		{Name: "assets", Path: "/var/www/assets", Kind: remote.KindDirectory},
		{Name: "alpha.txt", Path: "/var/www/alpha.txt", Kind: remote.KindFile},
	}, entries)

	entries, err = remote.List(context.Background(), conn, "/")
	require.NoError(t, err)
	assert.Equal(t, "/var", entries[0].Path)

	dirs, err := remote.ListDirs(context.Background(), conn, "/var/www")
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "assets", dirs[0].Name)
}

func TestListTrailingSlash(t *testing.T) {
	conn := transporttest.NewSFTPConn(t, "prod")
	ctx := context.Background()
	_, err := remote.Ensure(ctx, conn, "/srv/app")
	require.NoError(t, err)

	entries, err := remote.List(ctx, conn, "/srv/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/srv/app", entries[0].Path)
	assert.True(t, entries[0].IsDir())
}

func TestListError(t *testing.T) {
	for proto, conn := range conns(t) {
		t.Run(proto, func(t *testing.T) {
			_, err := remote.List(context.Background(), conn, "/does/not/exist")
			var listErr *transport.ListError
			require.True(t, errors.As(err, &listErr))
			assert.Equal(t, "/does/not/exist", listErr.Path)
			assert.Contains(t, listErr.Profile, "prod")
		})
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	for proto, conn := range conns(t) {
		t.Run(proto, func(t *testing.T) {
			ctx := context.Background()

			created, err := remote.Ensure(ctx, conn, "/var/www/site/assets")
			require.NoError(t, err)
			assert.Equal(t, 4, created)

			created, err = remote.Ensure(ctx, conn, "/var/www/site/assets")
			require.NoError(t, err)
			assert.Equal(t, 0, created)

			created, err = remote.Ensure(ctx, conn, "//var//www/site/assets/img/")
			require.NoError(t, err)
			assert.Equal(t, 1, created)
		})
	}
}

func TestEnsureRootIsNoop(t *testing.T) {
	fake := transporttest.NewFakeFTP()
	conn := transport.NewFTPConn(fake, "prod")

	created, err := remote.Ensure(context.Background(), conn, "/")
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, fake.Commands)
}

func TestEnsureDoesNotRecreateOnFTP(t *testing.T) {
	fake := transporttest.NewFakeFTP()
	conn := transport.NewFTPConn(fake, "prod")
	ctx := context.Background()

	_, err := remote.Ensure(ctx, conn, "/a/b/c")
	require.NoError(t, err)
	require.Equal(t, 3, fake.Count("MKD"))

	_, err = remote.Ensure(ctx, conn, "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.Count("MKD"), "second ensure must not issue MKD")
}

// lockedFTP refuses to create one directory
type lockedFTP struct {
	*transporttest.FakeFTP
	locked string
}

func (l lockedFTP) MakeDir(p string) error {
	if p == l.locked {
		return &textproto.Error{Code: 550, Msg: "Permission denied"}
	}
	return l.FakeFTP.MakeDir(p)
}

func TestEnsureStopsAtFirstFailure(t *testing.T) {
	fake := transporttest.NewFakeFTP()
	conn := transport.NewFTPConn(lockedFTP{FakeFTP: fake, locked: "/var/www"}, "prod")

	created, err := remote.Ensure(context.Background(), conn, "/var/www/site")
	require.Error(t, err)
	assert.Equal(t, 1, created)

	var mkErr *transport.MkdirError
	require.True(t, errors.As(err, &mkErr))
	assert.Equal(t, "/var/www", mkErr.Path)
	assert.Equal(t, "prod", mkErr.Profile)

	assert.True(t, fake.Dirs["/var"], "directories created before the failure stay")
	assert.False(t, fake.Dirs["/var/www/site"])
}

func TestUploadNeedsEnsure(t *testing.T) {
	local := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(local, []byte("<h1>hello</h1>"), 0644))

	for proto, conn := range conns(t) {
		t.Run(proto, func(t *testing.T) {
			ctx := context.Background()
			dest := "/var/www/site/index.html"

			_, err := remote.Upload(ctx, conn, local, dest)
			var trErr *transport.TransferError
			require.True(t, errors.As(err, &trErr), "upload into a missing directory must fail")
			assert.Equal(t, "upload", trErr.Op)
			assert.Equal(t, dest, trErr.Path)

			_, err = remote.Ensure(ctx, conn, remote.Parent(dest))
			require.NoError(t, err)

			n, err := remote.Upload(ctx, conn, local, dest)
			require.NoError(t, err)
			assert.EqualValues(t, 14, n)

			data, err := remote.Download(ctx, conn, dest)
			require.NoError(t, err)
			assert.Equal(t, "<h1>hello</h1>", string(data))
		})
	}
}

func TestUploadRejectsDirectoriesAndMissingFiles(t *testing.T) {
	conn := transport.NewFTPConn(transporttest.NewFakeFTP(), "prod")
	ctx := context.Background()

	_, err := remote.Upload(ctx, conn, t.TempDir(), "/x")
	assert.Error(t, err)

	_, err = remote.Upload(ctx, conn, filepath.Join(t.TempDir(), "missing"), "/x")
	var trErr *transport.TransferError
	assert.True(t, errors.As(err, &trErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDownloadFailureReturnsNoData(t *testing.T) {
	for proto, conn := range conns(t) {
		t.Run(proto, func(t *testing.T) {
			data, err := remote.Download(context.Background(), conn, "/missing.txt")
			assert.Nil(t, data)

			var trErr *transport.TransferError
			require.True(t, errors.As(err, &trErr))
			assert.Equal(t, "download", trErr.Op)
		})
	}
}

func TestParent(t *testing.T) {
	assert.Equal(t, "/", remote.Parent("/index.html"))
	assert.Equal(t, "/var/www", remote.Parent("/var/www/index.html"))
	assert.Equal(t, "/", remote.Parent("index.html"))
}

func TestScanLocal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("12345"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("123"), 0644))

	files, size, err := remote.ScanLocal(context.Background(), root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "index.html"),
		filepath.Join(root, "css", "site.css"),
	}, files)
	assert.EqualValues(t, 8, size)

	files, size, err = remote.ScanLocal(context.Background(), filepath.Join(root, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "index.html")}, files)
	assert.EqualValues(t, 5, size)
}
