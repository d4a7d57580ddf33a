// Package backup seals the profile list in a password protected envelope
// that can be written to disk or pushed to object storage.
package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/quocson95/ideaftp/pkg/profile"
)

// Version of the envelope format written by Encrypt
const Version = "1.0"

// ErrWrongPassword is returned when the envelope cannot be opened
var ErrWrongPassword = errors.New("decryption failed: wrong password or corrupted data")

// Envelope is the encrypted backup file format
type Envelope struct {
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	Salt          string `json:"salt"`           // base64
	Nonce         string `json:"nonce"`          // base64
	EncryptedData string `json:"encrypted_data"` // base64
}

// Argon2id parameters
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 32
	nonceLen      = 12
)

// DeriveKey derives a 256-bit key from password using Argon2id
func DeriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals data with AES-256-GCM under a key derived from password
func Encrypt(data []byte, password string) (*Envelope, error) {
	if password == "" {
		return nil, errors.New("password is required")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Version:       Version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Salt:          base64.StdEncoding.EncodeToString(salt),
		Nonce:         base64.StdEncoding.EncodeToString(nonce),
		EncryptedData: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, data, nil)),
	}, nil
}

// Decrypt opens an envelope produced by Encrypt
func Decrypt(env *Envelope, password string) ([]byte, error) {
	if env.Version != Version {
		return nil, fmt.Errorf("unsupported backup version %q", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("invalid encrypted data: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// CreateBackup marshals v to JSON and returns the sealed envelope
func CreateBackup(v interface{}, password string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	env, err := Encrypt(data, password)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return json.MarshalIndent(env, "", "  ")
}

// RestoreBackup opens an envelope and unmarshals its content into target
func RestoreBackup(envelope []byte, password string, target interface{}) error {
	var env Envelope
	if err := json.Unmarshal(envelope, &env); err != nil {
		return fmt.Errorf("invalid backup format: %w", err)
	}

	plaintext, err := Decrypt(&env, password)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("failed to parse backup data: %w", err)
	}
	return nil
}

// ExportProfiles seals a profile list
func ExportProfiles(profiles []profile.Profile, password string) ([]byte, error) {
	if profiles == nil {
		profiles = []profile.Profile{}
	}
	return CreateBackup(profiles, password)
}

// ImportProfiles opens a sealed profile list and validates it before
// returning, so a restored set can be saved as is.
func ImportProfiles(envelope []byte, password string) ([]profile.Profile, error) {
	var profiles []profile.Profile
	if err := RestoreBackup(envelope, password, &profiles); err != nil {
		return nil, err
	}
	if err := profile.ValidateSet(profiles); err != nil {
		return nil, fmt.Errorf("backup holds invalid profiles: %w", err)
	}
	return profiles, nil
}
