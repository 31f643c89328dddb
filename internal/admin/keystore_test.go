package admin

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadKeyStoreEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")

	store, err := LoadKeyStore(path)
	if err != nil {
		t.Fatalf("LoadKeyStore error: %v", err)
	}
	if store == nil {
		t.Fatal("store is nil")
	}
	if store.path != path {
		t.Errorf("path = %q", store.path)
	}
}

func TestLoadKeyStoreExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	content := `{
		"version": 1,
		"keys": [
			{"id": "key_123", "label": "test-key", "hash": "sha256:abc123",
			 "created_at": "2024-01-01T00:00:00Z", "rate": "60/m", "burst": 10}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := LoadKeyStore(path)
	if err != nil {
		t.Fatalf("LoadKeyStore error: %v", err)
	}
	keys := store.List()
	if len(keys) != 1 || keys[0].ID != "key_123" {
		t.Errorf("keys = %+v", keys)
	}
}

func TestLoadKeyStoreInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKeyStore(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestKeyStoreAdd(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, secret, err := store.Add("test-key", "30/m", 5, 500, "", 0)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if info.ID == "" {
		t.Error("ID is empty")
	}
	if len(secret) < 4 || secret[:4] != "cfk_" {
		t.Errorf("secret prefix wrong: %q", secret)
	}
}

func TestKeyStoreAddWithProvidedKey(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	provided := "cfk_custom_key_12345"
	info, secret, err := store.Add("custom", "60/m", 10, 0, provided, 0)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if secret != provided {
		t.Errorf("secret = %q, want provided key", secret)
	}
	if info.ID == "" {
		t.Error("ID is empty")
	}
}

func TestKeyStoreAddWithTTL(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, _, err := store.Add("expiring", "60/m", 10, 0, "", 24*time.Hour)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	found, ok := store.find(info.ID)
	if !ok {
		t.Fatal("key not found")
	}
	if found.ExpiresAt == nil {
		t.Error("expected ExpiresAt to be set")
	}
}

func TestKeyStoreValidate(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, secret, _ := store.Add("test", "60/m", 10, 0, "", 0)

	rec, ok := store.Validate(secret)
	if !ok || rec.ID != info.ID {
		t.Errorf("Validate = %+v, %v", rec, ok)
	}
	if _, ok := store.Validate("wrong-secret"); ok {
		t.Error("validation should fail for wrong secret")
	}
}

func TestKeyStoreValidateRevokedKey(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, secret, _ := store.Add("test", "60/m", 10, 0, "", 0)
	store.Revoke(info.ID)

	if _, ok := store.Validate(secret); ok {
		t.Error("validation should fail for revoked key")
	}
}

func TestKeyStoreRevoke(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, _, _ := store.Add("test", "60/m", 10, 0, "", 0)

	if _, ok := store.Revoke(info.ID); !ok {
		t.Error("revoke should return true")
	}
	if _, ok := store.Revoke(info.ID); !ok {
		t.Error("revoke of already-revoked key should still find it")
	}
	if _, ok := store.Revoke("nonexistent"); ok {
		t.Error("revoke of nonexistent key should return false")
	}
}

func TestKeyStoreRotate(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, oldSecret, _ := store.Add("test", "60/m", 10, 500, "", 0)

	rotated, newSecret, err := store.Rotate(info.ID)
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if newSecret == oldSecret {
		t.Error("expected a new secret after rotation")
	}
	if rotated.Label != "test" || rotated.QuotaTokens != 500 {
		t.Errorf("rotated record lost policy: %+v", rotated)
	}
	if _, ok := store.Validate(oldSecret); ok {
		t.Error("old secret should no longer validate")
	}
	if _, ok := store.Validate(newSecret); !ok {
		t.Error("new secret should validate")
	}
}

func TestKeyStoreList(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	store.Add("key1", "60/m", 10, 0, "", 0)
	store.Add("key2", "30/m", 5, 0, "", 0)
	store.Add("key3", "120/m", 20, 0, "", 0)

	if keys := store.List(); len(keys) != 3 {
		t.Errorf("expected 3 keys, got %d", len(keys))
	}
}

func TestKeyStorePruneExpired(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	store.Add("expired", "60/m", 10, 0, "", time.Hour)
	store.Add("fresh", "60/m", 10, 0, "", time.Hour)
	// Add only sets ExpiresAt for a positive ttl, so backdate the first key.
	past := time.Now().UTC().Add(-time.Hour)
	store.file.Keys[0].ExpiresAt = &past

	store.PruneExpired()

	keys := store.List()
	if len(keys) != 1 || keys[0].Label != "fresh" {
		t.Errorf("PruneExpired left %+v", keys)
	}
}

func TestKeyStoreSetTokenPolicy(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, _, _ := store.Add("test", "60/m", 10, 0, "", 0)

	updated, err := store.SetTokenPolicy(info.ID, 1000, 500, 24*time.Hour)
	if err != nil {
		t.Fatalf("SetTokenPolicy error: %v", err)
	}
	if updated.TokenBalance != 1000 || updated.TokenAllowance != 500 {
		t.Errorf("updated = %+v", updated)
	}
}

func TestKeyStoreSetTokenPolicyNotFound(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	if _, err := store.SetTokenPolicy("nonexistent", 100, 100, time.Hour); err == nil {
		t.Error("expected error for nonexistent key")
	}
}

func TestKeyStoreAddTokens(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, _, _ := store.Add("test", "60/m", 10, 0, "", 0)

	updated, err := store.AddTokens(info.ID, 100)
	if err != nil {
		t.Fatalf("AddTokens error: %v", err)
	}
	if updated.TokenBalance != 100 {
		t.Errorf("TokenBalance = %d, want 100", updated.TokenBalance)
	}
	updated, err = store.AddTokens(info.ID, 50)
	if err != nil {
		t.Fatalf("AddTokens error: %v", err)
	}
	if updated.TokenBalance != 150 {
		t.Errorf("TokenBalance = %d, want 150", updated.TokenBalance)
	}
}

func TestKeyStoreAddTokensNotFound(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	if _, err := store.AddTokens("nonexistent", 100); err == nil {
		t.Error("expected error for nonexistent key")
	}
}

func TestKeyStoreUpdateAllowanceWindow(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	info, _, _ := store.Add("test", "60/m", 10, 0, "", 0)
	store.SetTokenPolicy(info.ID, 10, 1000, time.Hour)

	rec, _ := store.find(info.ID)
	start := rec.AllowanceWindowStart

	_, reset, err := store.UpdateAllowanceWindow(info.ID, 1000, time.Hour, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("UpdateAllowanceWindow error: %v", err)
	}
	if reset {
		t.Error("expected no reset before the window elapses")
	}

	updated, reset, err := store.UpdateAllowanceWindow(info.ID, 1000, time.Hour, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("UpdateAllowanceWindow error: %v", err)
	}
	if !reset || updated.TokenBalance != 1000 {
		t.Errorf("expected reset to allowance, got reset=%v balance=%d", reset, updated.TokenBalance)
	}
}

func TestKeyStoreUpdateAllowanceWindowNotFound(t *testing.T) {
	store, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))

	if _, _, err := store.UpdateAllowanceWindow("nonexistent", 100, time.Hour, time.Now()); err == nil {
		t.Error("expected error for nonexistent key")
	}
}
