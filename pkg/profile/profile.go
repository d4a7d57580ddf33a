package profile

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Protocol identifies the wire protocol of a profile
type Protocol string

const (
	ProtocolFTP  Protocol = "ftp"
	ProtocolSFTP Protocol = "sftp"
)

// DefaultPort returns the conventional port for the protocol
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolSFTP:
		return 22
	default:
		return 21
	}
}

// Profile is a named connection with a local-root to remote-root mapping
type Profile struct {
	Name           string   `json:"name"`
	Protocol       Protocol `json:"type"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Username       string   `json:"username"`
	Password       string   `json:"password,omitempty"`
	PrivateKeyPath string   `json:"privateKeyPath,omitempty"`
	Passphrase     string   `json:"passphrase,omitempty"`
	LocalRoot      string   `json:"localPath,omitempty"`
	RemoteRoot     string   `json:"deployPath,omitempty"`
}

// Validate checks if the profile is usable
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	switch p.Protocol {
	case ProtocolFTP, ProtocolSFTP:
	default:
		return fmt.Errorf("unsupported protocol %q", p.Protocol)
	}
	if p.Host == "" {
		return errors.New("host is required")
	}
	if p.Port < 0 || p.Port > 65535 {
		return errors.New("invalid port number")
	}
	if p.Username == "" {
		return errors.New("username is required")
	}
	if p.PrivateKeyPath != "" && p.Protocol != ProtocolSFTP {
		return errors.New("private key is only supported for sftp")
	}
	if p.LocalRoot != "" && p.RemoteRoot != "" {
		if !filepath.IsAbs(p.LocalRoot) {
			return fmt.Errorf("local root %q must be absolute", p.LocalRoot)
		}
		if !path.IsAbs(p.RemoteRoot) {
			return fmt.Errorf("remote root %q must be absolute", p.RemoteRoot)
		}
	}
	return nil
}

// HasMapping reports whether both roots are configured
func (p *Profile) HasMapping() bool {
	return p.LocalRoot != "" && p.RemoteRoot != ""
}

// Addr returns host:port, using the protocol default when no port is set
func (p *Profile) Addr() string {
	port := p.Port
	if port == 0 {
		port = p.Protocol.DefaultPort()
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// LoadPrivateKey returns the key material referenced by PrivateKeyPath.
// PEM content pasted directly into the field is returned as is.
func (p *Profile) LoadPrivateKey() ([]byte, error) {
	if p.PrivateKeyPath == "" {
		return nil, nil
	}
	if strings.HasPrefix(p.PrivateKeyPath, "-----") {
		return []byte(p.PrivateKeyPath), nil
	}
	return os.ReadFile(p.PrivateKeyPath)
}

// ValidateSet validates every profile and enforces unique names
func ValidateSet(profiles []Profile) error {
	seen := make(map[string]int, len(profiles))
	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return fmt.Errorf("profile %d (%s): %w", i, profiles[i].Name, err)
		}
		if j, dup := seen[profiles[i].Name]; dup {
			return fmt.Errorf("profile %d: name %q already used by profile %d", i, profiles[i].Name, j)
		}
		seen[profiles[i].Name] = i
	}
	return nil
}

// Find returns the profile with the given name
func Find(profiles []Profile, name string) (Profile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
