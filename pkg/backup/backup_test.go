package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/quocson95/ideaftp/pkg/profile"
)

func TestEncryptDecrypt(t *testing.T) {
	password := "test-password-123"
	testData := []byte("This is secret test data")

	env, err := Encrypt(testData, password)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if env.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, env.Version)
	}
	if env.Salt == "" || env.Nonce == "" || env.EncryptedData == "" {
		t.Error("Envelope missing required fields")
	}

	decrypted, err := Decrypt(env, password)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, testData) {
		t.Errorf("Decrypted data doesn't match. Got %s, want %s", decrypted, testData)
	}
}

func TestEncryptRequiresPassword(t *testing.T) {
	if _, err := Encrypt([]byte("x"), ""); err == nil {
		t.Error("Expected an error for an empty password")
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	env, err := Encrypt([]byte("Secret data"), "correct-password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = Decrypt(env, "wrong-password")
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
}

func TestDecryptUnknownVersion(t *testing.T) {
	env, err := Encrypt([]byte("data"), "pw")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	env.Version = "9.9"

	if _, err := Decrypt(env, "pw"); err == nil {
		t.Error("Expected an error for an unknown version")
	}
}

func TestTamperedData(t *testing.T) {
	env, err := Encrypt([]byte("Original data"), "password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	runes := []rune(env.EncryptedData)
	if runes[10] == 'A' {
		runes[10] = 'B'
	} else {
		runes[10] = 'A'
	}
	env.EncryptedData = string(runes)

	if _, err := Decrypt(env, "password"); err == nil {
		t.Error("Expected decryption to fail with tampered data, but it succeeded")
	}
}

func TestCreateRestoreBackup(t *testing.T) {
	type TestData struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	original := TestData{Name: "test", Value: 42}

	sealed, err := CreateBackup(original, "test-password")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		t.Fatalf("Backup is not valid JSON: %v", err)
	}

	var restored TestData
	if err := RestoreBackup(sealed, "test-password", &restored); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}
	if restored != original {
		t.Errorf("Restored data doesn't match. Got %+v, want %+v", restored, original)
	}

	if err := RestoreBackup([]byte("not json"), "test-password", &restored); err == nil {
		t.Error("Expected an error for a malformed envelope")
	}
}

func TestProfilesRoundTrip(t *testing.T) {
	profiles := []profile.Profile{
		{Name: "prod", Protocol: profile.ProtocolSFTP, Host: "prod.example.com", Username: "deploy",
			Password: "s3cret", LocalRoot: "/home/u/site", RemoteRoot: "/var/www"},
		{Name: "legacy", Protocol: profile.ProtocolFTP, Host: "ftp.example.com", Port: 2121, Username: "web"},
	}

	sealed, err := ExportProfiles(profiles, "pw")
	if err != nil {
		t.Fatalf("ExportProfiles failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("s3cret")) {
		t.Error("Envelope leaks a plaintext password")
	}

	restored, err := ImportProfiles(sealed, "pw")
	if err != nil {
		t.Fatalf("ImportProfiles failed: %v", err)
	}
	if len(restored) != 2 || restored[0] != profiles[0] || restored[1] != profiles[1] {
		t.Errorf("Restored profiles don't match: %+v", restored)
	}

	if _, err := ImportProfiles(sealed, "other"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
}

func TestImportRejectsInvalidProfiles(t *testing.T) {
	dup := []profile.Profile{
		{Name: "a", Protocol: profile.ProtocolFTP, Host: "h", Username: "u"},
		{Name: "a", Protocol: profile.ProtocolFTP, Host: "h2", Username: "u"},
	}
	sealed, err := CreateBackup(dup, "pw")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	if _, err := ImportProfiles(sealed, "pw"); err == nil {
		t.Error("Expected duplicate names to be rejected")
	}
}

func TestExportEmpty(t *testing.T) {
	sealed, err := ExportProfiles(nil, "pw")
	if err != nil {
		t.Fatalf("ExportProfiles failed: %v", err)
	}
	restored, err := ImportProfiles(sealed, "pw")
	if err != nil {
		t.Fatalf("ImportProfiles failed: %v", err)
	}
	if len(restored) != 0 {
		t.Errorf("Expected no profiles, got %d", len(restored))
	}
}
