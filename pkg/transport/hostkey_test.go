package transport_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/quocson95/ideaftp/pkg/transport"
)

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestHostKeyCallback(t *testing.T) {
	known := newHostKey(t)
	other := newHostKey(t)
	remote := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}

	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{"example.com"}, known)
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0600))

	t.Run("known host", func(t *testing.T) {
		cb, err := transport.HostKeyCallback(path, true, nil)
		require.NoError(t, err)
		assert.NoError(t, cb("example.com:22", remote, known))
	})

	t.Run("changed key is always rejected", func(t *testing.T) {
		for _, strict := range []bool{true, false} {
			cb, err := transport.HostKeyCallback(path, strict, nil)
			require.NoError(t, err)
			assert.Error(t, cb("example.com:22", remote, other))
		}
	})

	t.Run("unknown host", func(t *testing.T) {
		strict, err := transport.HostKeyCallback(path, true, nil)
		require.NoError(t, err)
		assert.Error(t, strict("new.example.com:22", remote, other))

		lenient, err := transport.HostKeyCallback(path, false, nil)
		require.NoError(t, err)
		assert.NoError(t, lenient("new.example.com:22", remote, other))
	})

	t.Run("missing file", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "absent")

		_, err := transport.HostKeyCallback(missing, true, nil)
		assert.Error(t, err)

		cb, err := transport.HostKeyCallback(missing, false, nil)
		require.NoError(t, err)
		assert.NoError(t, cb("anything:22", remote, other))
	})
}
