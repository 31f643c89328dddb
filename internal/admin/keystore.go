// Package admin implements the Unix-socket key-store administration API
// kept from the teacher's pkg/admin + pkg/proxy/keys.go: a file-backed
// store of rate-limited, optionally token-metered API keys, managed over
// a local HTTP API bound to a Unix socket rather than a public port.
// Generalized from the teacher's Codex-proxy-specific key store (split
// across pkg/proxy.KeyStore and a pkg/admin.KeyStore adapter) into one
// package whose KeyStore serves both the proxy's request-time key
// validation and the admin server's provisioning API directly, since
// codeforge's proxy is no longer Codex-specific and has no reason to
// keep that split.
package admin

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// KeyRecord is one provisioned API key, its rate/quota policy, and its
// token-metering balance.
type KeyRecord struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Hash        string     `json:"hash"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Rate        string     `json:"rate,omitempty"`
	Burst       int        `json:"burst,omitempty"`
	QuotaTokens int64      `json:"quota_tokens,omitempty"`

	TokenBalance         int64     `json:"token_balance,omitempty"`
	TokenAllowance       int64     `json:"token_allowance,omitempty"`
	AllowanceDurationSec int64     `json:"allowance_duration_sec,omitempty"`
	AllowanceWindowStart time.Time `json:"allowance_window_start,omitempty"`
}

// KeyInfo is the trimmed projection of a KeyRecord the admin HTTP API
// returns to callers — it never leaks the Hash.
type KeyInfo struct {
	ID                   string
	TokenBalance         int64
	TokenAllowance       int64
	AllowanceDurationSec int64
}

func toKeyInfo(rec KeyRecord) KeyInfo {
	return KeyInfo{ID: rec.ID, TokenBalance: rec.TokenBalance, TokenAllowance: rec.TokenAllowance, AllowanceDurationSec: rec.AllowanceDurationSec}
}

// KeyFile is the on-disk JSON shape, versioned for future migrations.
type KeyFile struct {
	Version int         `json:"version"`
	Keys    []KeyRecord `json:"keys"`
}

// KeyStore is a file-backed, mutex-serialized store of KeyRecord values.
type KeyStore struct {
	path string
	mu   sync.Mutex
	file KeyFile
}

// LoadKeyStore reads path into a KeyStore, starting empty if the file
// does not yet exist, and prunes already-expired keys on load.
func LoadKeyStore(path string) (*KeyStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("keys path required")
	}
	ks := &KeyStore{path: path, file: KeyFile{Version: 1, Keys: []KeyRecord{}}}
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ks, nil
		}
		return nil, err
	}
	if len(buf) == 0 {
		return ks, nil
	}
	if err := json.Unmarshal(buf, &ks.file); err != nil {
		return nil, err
	}
	if ks.file.Version == 0 {
		ks.file.Version = 1
	}
	ks.PruneExpired()
	return ks, nil
}

func (s *KeyStore) saveLocked() error {
	buf, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, buf, 0o600)
}

// List returns a copy of every key record, revoked or not.
func (s *KeyStore) List() []KeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KeyRecord, len(s.file.Keys))
	copy(out, s.file.Keys)
	return out
}

// Add provisions a new key under label, matching the admin.KeyStore
// surface the HTTP API expects: it returns the trimmed KeyInfo and the
// plaintext secret (shown to the caller exactly once).
func (s *KeyStore) Add(label, rate string, burst int, quota int64, providedKey string, ttl time.Duration) (KeyInfo, string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return KeyInfo{}, "", errors.New("label is required")
	}
	id, err := newKeyID()
	if err != nil {
		return KeyInfo{}, "", err
	}
	secret := strings.TrimSpace(providedKey)
	if secret == "" {
		secret, err = newAPIKey()
		if err != nil {
			return KeyInfo{}, "", err
		}
	}
	rec := KeyRecord{
		ID:          id,
		Label:       label,
		Hash:        hashToken(secret),
		CreatedAt:   time.Now().UTC(),
		Rate:        rate,
		Burst:       burst,
		QuotaTokens: quota,
	}
	if ttl > 0 {
		expires := time.Now().UTC().Add(ttl)
		rec.ExpiresAt = &expires
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Keys = append(s.file.Keys, rec)
	if err := s.saveLocked(); err != nil {
		return KeyInfo{}, "", err
	}
	return toKeyInfo(rec), secret, nil
}

// Update mutates label/rate/burst/quota policy for id in place, leaving
// any zero-value argument untouched.
func (s *KeyStore) Update(id, label, rate string, burst int, quota int64, ttl time.Duration) (KeyRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return KeyRecord{}, errors.New("id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.file.Keys {
		if rec.ID != id {
			continue
		}
		if strings.TrimSpace(label) != "" {
			rec.Label = strings.TrimSpace(label)
		}
		if strings.TrimSpace(rate) != "" {
			rec.Rate = strings.TrimSpace(rate)
		}
		if burst != 0 {
			rec.Burst = burst
		}
		if quota != 0 {
			rec.QuotaTokens = quota
		}
		if ttl > 0 {
			expires := time.Now().UTC().Add(ttl)
			rec.ExpiresAt = &expires
		}
		s.file.Keys[i] = rec
		if err := s.saveLocked(); err != nil {
			return KeyRecord{}, err
		}
		return rec, nil
	}
	return KeyRecord{}, errors.New("key not found")
}

// Revoke marks the key identified by id or its bearer token as revoked.
func (s *KeyStore) Revoke(idOrToken string) (KeyRecord, bool) {
	idOrToken = strings.TrimSpace(idOrToken)
	if idOrToken == "" {
		return KeyRecord{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.file.Keys {
		if rec.ID == idOrToken || rec.Hash == hashToken(idOrToken) {
			now := time.Now().UTC()
			rec.RevokedAt = &now
			s.file.Keys[i] = rec
			_ = s.saveLocked()
			return rec, true
		}
	}
	return KeyRecord{}, false
}

// Rotate revokes idOrToken and issues a replacement key under the same
// label and policy.
func (s *KeyStore) Rotate(idOrToken string) (KeyRecord, string, error) {
	rec, ok := s.Revoke(idOrToken)
	if !ok {
		return KeyRecord{}, "", errors.New("key not found")
	}
	info, secret, err := s.Add(rec.Label, rec.Rate, rec.Burst, rec.QuotaTokens, "", 0)
	if err != nil {
		return KeyRecord{}, "", err
	}
	updated, _ := s.find(info.ID)
	return updated, secret, nil
}

// Validate reports whether token is an active (non-revoked,
// non-expired) key, returning its record.
func (s *KeyStore) Validate(token string) (KeyRecord, bool) {
	hash := hashToken(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, rec := range s.file.Keys {
		if rec.Hash == hash {
			if rec.RevokedAt != nil || (rec.ExpiresAt != nil && rec.ExpiresAt.Before(now)) {
				return KeyRecord{}, false
			}
			return rec, true
		}
	}
	return KeyRecord{}, false
}

// PruneExpired drops keys past their ExpiresAt.
func (s *KeyStore) PruneExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	filtered := s.file.Keys[:0]
	for _, rec := range s.file.Keys {
		if rec.ExpiresAt != nil && rec.ExpiresAt.Before(now) {
			continue
		}
		filtered = append(filtered, rec)
	}
	s.file.Keys = filtered
	_ = s.saveLocked()
}

// SetTokenPolicy sets balance/allowance/allowance-window for id, the
// token-metering counterpart to rate-limit policy, implementing the
// admin HTTP API's /policy endpoint.
func (s *KeyStore) SetTokenPolicy(id string, balance, allowance int64, duration time.Duration) (KeyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.file.Keys {
		if rec.ID != id {
			continue
		}
		rec.TokenBalance = balance
		rec.TokenAllowance = allowance
		rec.AllowanceDurationSec = int64(duration.Seconds())
		rec.AllowanceWindowStart = time.Now().UTC()
		s.file.Keys[i] = rec
		if err := s.saveLocked(); err != nil {
			return KeyInfo{}, err
		}
		return toKeyInfo(rec), nil
	}
	return KeyInfo{}, errors.New("key not found")
}

// AddTokens adjusts id's token balance by delta (negative to debit after
// a metered request), implementing the admin HTTP API's /add-tokens
// endpoint and the proxy's per-request debit path.
func (s *KeyStore) AddTokens(id string, delta int64) (KeyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.file.Keys {
		if rec.ID != id {
			continue
		}
		rec.TokenBalance += delta
		s.file.Keys[i] = rec
		if err := s.saveLocked(); err != nil {
			return KeyInfo{}, err
		}
		return toKeyInfo(rec), nil
	}
	return KeyInfo{}, errors.New("key not found")
}

// UpdateAllowanceWindow resets id's token balance to allowance once
// duration has elapsed since its last reset, the periodic top-up the
// proxy's quota enforcement calls before checking a key's balance.
func (s *KeyStore) UpdateAllowanceWindow(id string, allowance int64, duration time.Duration, now time.Time) (KeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.file.Keys {
		if rec.ID != id {
			continue
		}
		if duration <= 0 || now.Sub(rec.AllowanceWindowStart) < duration {
			return rec, false, nil
		}
		rec.TokenBalance = allowance
		rec.AllowanceWindowStart = now
		s.file.Keys[i] = rec
		if err := s.saveLocked(); err != nil {
			return KeyRecord{}, false, err
		}
		return rec, true, nil
	}
	return KeyRecord{}, false, errors.New("key not found")
}

func (s *KeyStore) find(id string) (KeyRecord, bool) {
	for _, rec := range s.file.Keys {
		if rec.ID == id {
			return rec, true
		}
	}
	return KeyRecord{}, false
}

func hashToken(token string) string {
	if strings.HasPrefix(token, "sha256:") {
		return token
	}
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "cfk_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

func newKeyID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("key_%s", hex.EncodeToString(buf)), nil
}
