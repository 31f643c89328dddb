package credstore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "auth.json"))

	rec := Record{Type: TypeAPIKey, Key: "sk-test"}
	if err := s.Set("anthropic", rec); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := s.Get("anthropic")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be present")
	}
	if got.Key != "sk-test" {
		t.Errorf("Key = %q, want %q", got.Key, "sk-test")
	}
}

func TestLastWriterWins(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "auth.json"))

	if err := s.Set("p", Record{Type: TypeAPIKey, Key: "first"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("p", Record{Type: TypeAPIKey, Key: "second"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _, err := s.Get("p")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Key != "second" {
		t.Errorf("Key = %q, want %q", got.Key, "second")
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	apiKey := Record{Type: TypeAPIKey}
	if apiKey.IsExpired(now) {
		t.Error("api_key record should never be expired")
	}

	custom := Record{Type: TypeCustom}
	if custom.IsExpired(now) {
		t.Error("custom record should never be expired")
	}

	past := now.Unix() - 1
	expiredOAuth := Record{Type: TypeOAuth, ExpiresAt: &past}
	if !expiredOAuth.IsExpired(now) {
		t.Error("oauth record with expires_at in the past should be expired")
	}

	exact := now.Unix()
	exactOAuth := Record{Type: TypeOAuth, ExpiresAt: &exact}
	if !exactOAuth.IsExpired(now) {
		t.Error("oauth record with expires_at == now should be expired")
	}

	future := now.Unix() + 1
	liveOAuth := Record{Type: TypeOAuth, ExpiresAt: &future}
	if liveOAuth.IsExpired(now) {
		t.Error("oauth record with expires_at in the future should be live")
	}
}

func TestRemoveAndList(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "auth.json"))

	_ = s.Set("a", Record{Type: TypeAPIKey, Key: "a"})
	_ = s.Set("b", Record{Type: TypeAPIKey, Key: "b"})

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("List returned %d ids, want 2", len(ids))
	}

	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get("a"); ok {
		t.Error("expected record a to be removed")
	}
	if _, ok, _ := s.Get("b"); !ok {
		t.Error("expected record b to remain")
	}
}

func TestReadNonexistentFile(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "does-not-exist", "auth.json"))
	_, ok, err := s.Get("anything")
	if err != nil {
		t.Fatalf("Get on missing file should not error: %v", err)
	}
	if ok {
		t.Error("expected no record for missing file")
	}
}
