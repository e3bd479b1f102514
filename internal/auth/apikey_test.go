package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/trip-planner/internal/db"
)

func testAPIKeyStore(t *testing.T) *APIKeyStore {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })
	return NewAPIKeyStore(d)
}

func TestAPIKeyCreateAndValidate(t *testing.T) {
	store := testAPIKeyStore(t)

	rawKey, key, err := store.Create("laptop", "owner-1")
	require.NoError(t, err)
	assert.True(t, len(rawKey) > 8)
	assert.Equal(t, "tp_", rawKey[:3])
	assert.Equal(t, rawKey[:8], key.KeyPrefix)
	assert.Equal(t, "owner-1", key.OwnerID)

	owner, err := store.Validate(rawKey)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", owner)

	keys, err := store.List("owner-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt, "validation stamps last_used_at")
}

func TestAPIKeyValidateInvalid(t *testing.T) {
	store := testAPIKeyStore(t)

	for _, raw := range []string{"tp_boguskey12345678", "xx_something", ""} {
		owner, err := store.Validate(raw)
		require.NoError(t, err, raw)
		assert.Empty(t, owner, raw)
	}
}

func TestAPIKeyCreateRequiresOwner(t *testing.T) {
	_, _, err := testAPIKeyStore(t).Create("laptop", " ")
	assert.Error(t, err)
}

func TestAPIKeyListScopedToOwner(t *testing.T) {
	store := testAPIKeyStore(t)

	_, _, err := store.Create("Key 1", "owner-1")
	require.NoError(t, err)
	_, _, err = store.Create("Key 2", "owner-1")
	require.NoError(t, err)

	keys, err := store.List("owner-1")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	other, err := store.List("owner-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAPIKeyDelete(t *testing.T) {
	store := testAPIKeyStore(t)

	rawKey, key, err := store.Create("laptop", "owner-1")
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete("owner-2", key.ID), ErrKeyNotFound)
	require.NoError(t, store.Delete("owner-1", key.ID))

	owner, err := store.Validate(rawKey)
	require.NoError(t, err)
	assert.Empty(t, owner, "deleted key still validates")
}
