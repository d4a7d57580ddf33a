package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const profilesFile = "profiles.json"

// ErrCorrupted is returned by NewStore when the profiles file could not be parsed
// and was moved aside.
var ErrCorrupted = errors.New("corrupted profiles file")

// Store persists the profile list as a whole. There is no per-field patch API:
// every write replaces the complete list.
type Store struct {
	filePath string
	mu       sync.Mutex
}

// NewStore creates a profile store in dataDir
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Store{filePath: filepath.Join(dataDir, profilesFile)}, nil
}

// Path returns the file backing the store
func (s *Store) Path() string {
	return s.filePath
}

// LoadProfiles reads the current list from disk. A missing or empty file is
// an empty list. A corrupted file is backed up next to the original, reset,
// and reported with ErrCorrupted alongside the (empty) list.
func (s *Store) LoadProfiles() ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]Profile, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Profile{}, nil
		}
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	if len(data) == 0 {
		return []Profile{}, nil
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		backupPath := s.filePath + ".corrupted"
		if backupErr := os.WriteFile(backupPath, data, 0600); backupErr != nil {
			return nil, fmt.Errorf("failed to parse profiles file: %w", err)
		}
		if saveErr := s.save([]Profile{}); saveErr != nil {
			return nil, fmt.Errorf("failed to reset profiles file (backup saved to %s): %w", backupPath, saveErr)
		}
		return []Profile{}, fmt.Errorf("%w: backed up to %s and reset", ErrCorrupted, backupPath)
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// SaveProfiles validates and replaces the whole list
func (s *Store) SaveProfiles(profiles []Profile) error {
	if err := ValidateSet(profiles); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(profiles)
}

func (s *Store) save(profiles []Profile) error {
	if profiles == nil {
		profiles = []Profile{}
	}
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return os.Rename(tmp, s.filePath)
}

// Upsert replaces the profile at index, or appends it when index is out of range.
// It returns the list as written.
func (s *Store) Upsert(index int, p Profile) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load()
	if err != nil && !errors.Is(err, ErrCorrupted) {
		return nil, err
	}

	next := make([]Profile, len(profiles))
	copy(next, profiles)
	if index >= 0 && index < len(next) {
		next[index] = p
	} else {
		next = append(next, p)
	}

	if err := ValidateSet(next); err != nil {
		return nil, err
	}
	if err := s.save(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Delete removes the profile at index. An out-of-range index leaves the list untouched.
func (s *Store) Delete(index int) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load()
	if err != nil && !errors.Is(err, ErrCorrupted) {
		return nil, err
	}
	if index < 0 || index >= len(profiles) {
		return profiles, nil
	}

	next := make([]Profile, 0, len(profiles)-1)
	next = append(next, profiles[:index]...)
	next = append(next, profiles[index+1:]...)
	if err := s.save(next); err != nil {
		return nil, err
	}
	return next, nil
}
