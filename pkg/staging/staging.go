// Package staging keeps local copies of downloaded remote files.
package staging

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const prefix = "ideaftp-"

// Stager writes downloaded files into a directory and tracks what it wrote
type Stager struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	staged map[string]struct{}
}

// NewStager creates a stager writing into dir. An empty dir uses the system
// temp directory.
func NewStager(dir string) (*Stager, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Stager{dir: dir, now: time.Now, staged: make(map[string]struct{})}, nil
}

// Dir returns the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// Stage writes data to a new file named after the remote file and returns
// its path.
func (s *Stager) Stage(remotePath string, data []byte) (string, error) {
	base := path.Base(remotePath)
	if base == "/" || base == "." || base == "" {
		base = "file"
	}
	base = strings.ReplaceAll(base, string(filepath.Separator), "_")

	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("%s%d-%s", prefix, s.now().UnixMilli(), base)
	local := filepath.Join(s.dir, name)
	for i := 1; ; i++ {
		if _, taken := s.staged[local]; !taken {
			break
		}
		local = filepath.Join(s.dir, fmt.Sprintf("%s%d-%d-%s", prefix, s.now().UnixMilli(), i, base))
	}

	if err := os.WriteFile(local, data, 0600); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", remotePath, err)
	}
	s.staged[local] = struct{}{}
	return local, nil
}

// Remove deletes a staged file. Paths this stager did not write are left alone.
func (s *Stager) Remove(local string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.staged[local]; !ok {
		return nil
	}
	delete(s.staged, local)
	if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Staged returns the files currently staged
func (s *Stager) Staged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]string, 0, len(s.staged))
	for f := range s.staged {
		files = append(files, f)
	}
	return files
}

// Cleanup removes every staged file
func (s *Stager) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for f := range s.staged {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
		delete(s.staged, f)
	}
	return firstErr
}
