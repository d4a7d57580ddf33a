package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testProfile(name string) Profile {
	return Profile{
		Name:       name,
		Protocol:   ProtocolSFTP,
		Host:       "localhost",
		Port:       22,
		Username:   "user",
		LocalRoot:  "/home/u/site",
		RemoteRoot: "/var/www",
	}
}

func TestStoreCRUD(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	// 1. Empty
	profiles, err := store.LoadProfiles()
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("Expected empty list, got %d", len(profiles))
	}

	// 2. Append
	if _, err := store.Upsert(-1, testProfile("prod")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := store.Upsert(-1, testProfile("staging")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	profiles, err = store.LoadProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("Expected 2 profiles, got %d", len(profiles))
	}

	// 3. Replace at index
	updated := testProfile("prod-eu")
	if _, err := store.Upsert(0, updated); err != nil {
		t.Fatalf("Upsert at index failed: %v", err)
	}
	profiles, _ = store.LoadProfiles()
	if profiles[0].Name != "prod-eu" {
		t.Errorf("Expected name 'prod-eu', got '%s'", profiles[0].Name)
	}

	// 4. Delete
	if _, err := store.Delete(0); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	profiles, _ = store.LoadProfiles()
	if len(profiles) != 1 || profiles[0].Name != "staging" {
		t.Errorf("Expected only 'staging' after delete, got %+v", profiles)
	}

	// 5. Out of range delete is a no-op
	if _, err := store.Delete(5); err != nil {
		t.Fatalf("Delete out of range failed: %v", err)
	}
	profiles, _ = store.LoadProfiles()
	if len(profiles) != 1 {
		t.Errorf("Expected 1 profile, got %d", len(profiles))
	}
}

func TestStoreRejectsDuplicateNames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Upsert(-1, testProfile("prod")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upsert(-1, testProfile("prod")); err == nil {
		t.Error("Expected duplicate name to be rejected")
	}

	profiles, _ := store.LoadProfiles()
	if len(profiles) != 1 {
		t.Errorf("Rejected write must not change the file, got %d profiles", len(profiles))
	}
}

func TestStorePersistence(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveProfiles([]Profile{testProfile("persist")}); err != nil {
		t.Fatal(err)
	}

	newStore, err := NewStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	profiles, err := newStore.LoadProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].Name != "persist" {
		t.Error("Failed to load persisted profile")
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestCorruptedFileHandling(t *testing.T) {
	tempDir := t.TempDir()

	filePath := filepath.Join(tempDir, "profiles.json")
	if err := os.WriteFile(filePath, []byte("{invalid-json"), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	profiles, err := store.LoadProfiles()
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Expected ErrCorrupted, got %v", err)
	}
	if len(profiles) != 0 {
		t.Error("Expected empty list after corruption reset")
	}

	if _, err := os.Stat(filePath + ".corrupted"); os.IsNotExist(err) {
		t.Error("Backup file wasn't created")
	}

	// Second load sees the reset file
	if _, err := store.LoadProfiles(); err != nil {
		t.Errorf("Expected clean load after reset, got %v", err)
	}
}
