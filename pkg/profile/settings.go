package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Settings represents application settings
type Settings struct {
	ConnectTimeoutMs   int    `json:"connectTimeoutMs"`
	OperationTimeoutMs int    `json:"operationTimeoutMs"` // 0 disables the per-operation deadline
	KnownHostsPath     string `json:"knownHostsPath,omitempty"`
	StrictHostKeys     bool   `json:"strictHostKeys"`
	Concurrency        int    `json:"concurrency"`
	LogLevel           string `json:"logLevel"`
	LogFormat          string `json:"logFormat"`
	S3Host             string `json:"s3Host,omitempty"`
	S3AccessKey        string `json:"s3AccessKey,omitempty"`
	S3SecretKey        string `json:"s3SecretKey,omitempty"`
	S3Bucket           string `json:"s3Bucket,omitempty"`
}

// ConnectTimeout returns the connect deadline as a duration
func (s Settings) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}

// OperationTimeout returns the per-operation deadline, zero when disabled
func (s Settings) OperationTimeout() time.Duration {
	return time.Duration(s.OperationTimeoutMs) * time.Millisecond
}

// SettingsStore manages application settings
type SettingsStore struct {
	settings Settings
	filePath string
	mu       sync.RWMutex
}

// NewSettingsStore creates a new settings store
func NewSettingsStore(dataDir string) (*SettingsStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &SettingsStore{
		settings: DefaultSettings(),
		filePath: filepath.Join(dataDir, "settings.json"),
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := store.save(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// DefaultSettings returns default settings
func DefaultSettings() Settings {
	return Settings{
		ConnectTimeoutMs:   10000,
		OperationTimeoutMs: 0,
		Concurrency:        2,
		LogLevel:           "info",
		LogFormat:          "console",
		S3Bucket:           "ideaftp-backups",
	}
}

func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.settings); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	return nil
}

func (s *SettingsStore) save() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return os.WriteFile(s.filePath, data, 0600)
}

// Get returns the persisted settings with environment overrides applied.
// Overrides are never written back.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return applyEnv(s.settings)
}

// Update replaces the persisted settings
func (s *SettingsStore) Update(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	return s.save()
}

// SetS3 stores the backup bucket credentials
func (s *SettingsStore) SetS3(host, accessKey, secretKey, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.S3Host = host
	s.settings.S3AccessKey = accessKey
	s.settings.S3SecretKey = secretKey
	if bucket != "" {
		s.settings.S3Bucket = bucket
	}
	return s.save()
}

// Reset resets settings to defaults
func (s *SettingsStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = DefaultSettings()
	return s.save()
}

// GetDataDir returns the directory where settings are stored
func (s *SettingsStore) GetDataDir() string {
	return filepath.Dir(s.filePath)
}

// DataDir resolves the data directory: IDEAFTP_HOME, then ~/.ideaftp
func DataDir() (string, error) {
	if dir := os.Getenv("IDEAFTP_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ideaftp"), nil
}

func applyEnv(s Settings) Settings {
	s.LogLevel = getEnv("IDEAFTP_LOG_LEVEL", s.LogLevel)
	s.LogFormat = getEnv("IDEAFTP_LOG_FORMAT", s.LogFormat)
	s.ConnectTimeoutMs = getEnvInt("IDEAFTP_CONNECT_TIMEOUT_MS", s.ConnectTimeoutMs)
	s.OperationTimeoutMs = getEnvInt("IDEAFTP_OP_TIMEOUT_MS", s.OperationTimeoutMs)
	s.S3Host = getEnv("IDEAFTP_S3_ENDPOINT", s.S3Host)
	s.S3AccessKey = getEnv("IDEAFTP_S3_ACCESS_KEY", s.S3AccessKey)
	s.S3SecretKey = getEnv("IDEAFTP_S3_SECRET_KEY", s.S3SecretKey)
	s.S3Bucket = getEnv("IDEAFTP_S3_BUCKET", s.S3Bucket)
	return s
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i >= 0 {
			return i
		}
	}
	return defaultVal
}
