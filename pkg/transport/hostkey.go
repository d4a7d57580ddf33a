package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyCallback verifies SSH host keys against a known_hosts file.
// An empty path means ~/.ssh/known_hosts. Unless strict is set, hosts that
// are not listed yet are accepted with a warning and a missing or unreadable
// file falls back to accepting any key; a key that contradicts the file is
// always rejected.
func HostKeyCallback(path string, strict bool, log *zap.Logger) (ssh.HostKeyCallback, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			if strict {
				return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
			}
			log.Warn("host key verification disabled", zap.Error(err))
			return ssh.InsecureIgnoreHostKey(), nil
		}
		path = filepath.Join(homeDir, ".ssh", "known_hosts")
	}

	verify, err := knownhosts.New(path)
	if err != nil {
		if strict {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
		}
		log.Warn("host key verification disabled", zap.String("known_hosts", path), zap.Error(err))
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if strict {
		return verify, nil
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			log.Warn("accepting unknown host key",
				zap.String("host", hostname),
				zap.String("fingerprint", ssh.FingerprintSHA256(key)))
			return nil
		}
		return err
	}, nil
}
