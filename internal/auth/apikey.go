// Package auth maps API keys to the owners whose plans they may access.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	apiKeyBytes  = 32 // 256-bit keys
	apiKeyPrefix = "tp_"
)

// ErrKeyNotFound is returned when deleting a key the owner does not have.
var ErrKeyNotFound = errors.New("key not found")

// APIKey is the stored representation of an API key (no raw key).
type APIKey struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	OwnerID    string     `json:"owner_id"`
	KeyPrefix  string     `json:"key_prefix"` // first 8 chars for identification
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyStore manages API keys in SQLite.
type APIKeyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewAPIKeyStore creates an API key store.
func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db, now: time.Now}
}

// Create generates a new API key for owner.
// Returns the raw key (shown once to user) and the stored record.
func (s *APIKeyStore) Create(name, ownerID string) (string, *APIKey, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", nil, errors.New("owner is required")
	}
	raw, err := generateAPIKey()
	if err != nil {
		return "", nil, fmt.Errorf("generating key: %w", err)
	}

	key := &APIKey{
		Name:      name,
		OwnerID:   ownerID,
		KeyPrefix: raw[:8],
		CreatedAt: s.now().UTC(),
	}
	result, err := s.db.Exec(
		"INSERT INTO api_keys (name, owner_id, key_prefix, key_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		key.Name, key.OwnerID, key.KeyPrefix, hashAPIKey(raw), key.CreatedAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("storing key: %w", err)
	}

	key.ID, err = result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("getting key id: %w", err)
	}
	return raw, key, nil
}

// List returns the owner's API keys (without the raw key).
func (s *APIKeyStore) List(ownerID string) (keys []APIKey, err error) {
	rows, err := s.db.Query(
		`SELECT id, name, owner_id, key_prefix, created_at, last_used_at
		FROM api_keys WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.OwnerID, &k.KeyPrefix, &k.CreatedAt, &k.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes one of the owner's API keys.
func (s *APIKeyStore) Delete(ownerID string, id int64) error {
	result, err := s.db.Exec("DELETE FROM api_keys WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Validate checks a raw API key against stored hashes and returns the owner
// it belongs to, or "" if no key matches. A match updates last_used_at.
func (s *APIKeyStore) Validate(rawKey string) (string, error) {
	if !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return "", nil
	}

	var ownerID string
	err := s.db.QueryRow(
		"UPDATE api_keys SET last_used_at = ? WHERE key_hash = ? RETURNING owner_id",
		s.now().UTC(), hashAPIKey(rawKey),
	).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("validating key: %w", err)
	}
	return ownerID, nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
