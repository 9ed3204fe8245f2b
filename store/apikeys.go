package store

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/asdine/storm"
	"github.com/google/uuid"

	"github.com/convictiond/oracled/types"
)

// hashKey is the one-way hash stored at rest. Keys are high-entropy random
// secrets (32 bytes from crypto/rand), so a fast, unsalted sha256 digest is
// sufficient for equality lookup without the brute-force exposure a
// user-chosen password would have — see DESIGN.md for why this does not
// need a slow KDF like bcrypt/argon2.
func hashKey(plainKey string) string {
	sum := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(sum[:])
}

func generatePlainKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ok_" + hex.EncodeToString(buf), nil
}

// CreateApiKey returns the plaintext key exactly once; only its hash is
// persisted, per spec.md §3.
func (s *StormStore) CreateApiKey(name string, tier types.Tier, perMinute, perDay int, expiresAt *time.Time) (string, types.ApiKey, error) {
	plain, err := generatePlainKey()
	if err != nil {
		return "", types.ApiKey{}, wrapErr("CreateApiKey", KindFatal, err)
	}
	rec := types.ApiKey{
		ID:             uuid.NewString(),
		KeyHash:        hashKey(plain),
		Name:           name,
		Tier:           tier,
		PerMinuteLimit: perMinute,
		PerDayLimit:    perDay,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
		ExpiresAt:      expiresAt,
	}
	if err := s.apiKeys().Save(&rec); err != nil {
		return "", types.ApiKey{}, wrapErr("CreateApiKey", KindTransient, err)
	}
	return plain, rec, nil
}

// ValidateApiKey resolves a presented plaintext key via hash lookup. It does
// not itself apply the Gateway's negative-cache (that lives in the cache
// package); this method's contract is "record, found" or "zero, false".
func (s *StormStore) ValidateApiKey(plainKey string) (types.ApiKey, bool, error) {
	hash := hashKey(plainKey)
	var rec types.ApiKey
	err := s.apiKeys().One("KeyHash", hash, &rec)
	if err == storm.ErrNotFound {
		return types.ApiKey{}, false, nil
	}
	if err != nil {
		return types.ApiKey{}, false, wrapErr("ValidateApiKey", KindTransient, err)
	}
	if !rec.IsActive {
		return types.ApiKey{}, false, nil
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now().UTC()) {
		return types.ApiKey{}, false, nil
	}
	now := time.Now().UTC()
	rec.LastUsedAt = &now
	_ = s.apiKeys().Update(&rec) // best-effort; a failed stamp never blocks auth
	return rec, true, nil
}

func (s *StormStore) ListApiKeys() ([]types.ApiKey, error) {
	var all []types.ApiKey
	if err := s.apiKeys().All(&all); err != nil && err != storm.ErrNotFound {
		return nil, wrapErr("ListApiKeys", KindTransient, err)
	}
	return all, nil
}

func (s *StormStore) DeactivateApiKey(id string) error {
	var rec types.ApiKey
	if err := s.apiKeys().One("ID", id, &rec); err != nil {
		return wrapErr("DeactivateApiKey", KindTransient, err)
	}
	rec.IsActive = false
	return wrapErr("DeactivateApiKey", KindTransient, s.apiKeys().Update(&rec))
}

// ConstantTimeEqual compares two secrets (admin key, webhook HMAC) without
// leaking timing information, per spec.md §7/§9's "constant-time compared"
// requirement.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *StormStore) IncrementUsage(keyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := at.UTC().Format("20060102")
	id := fmtUsageID(keyID, date)
	var u types.UsageDaily
	err := s.usage().One("ID", id, &u)
	switch {
	case err == storm.ErrNotFound:
		return wrapErr("IncrementUsage", KindTransient, s.usage().Save(&types.UsageDaily{ID: id, KeyID: keyID, Date: date, Requests: 1}))
	case err != nil:
		return wrapErr("IncrementUsage", KindTransient, err)
	}
	u.Requests++
	return wrapErr("IncrementUsage", KindTransient, s.usage().Update(&u))
}

func (s *StormStore) GetUsage(keyID string, date string) (int, error) {
	var u types.UsageDaily
	err := s.usage().One("ID", fmtUsageID(keyID, date), &u)
	if err == storm.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("GetUsage", KindTransient, err)
	}
	return u.Requests, nil
}
