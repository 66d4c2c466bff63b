package credentials

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := OpenSQLite(fmt.Sprintf("file:test-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store, err := NewGormStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestGormStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p := &core.Principal{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, store.Create(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, core.RoleUser, p.Role)

	found, err := store.FindByIdentity(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.ID, found.ID)
	assert.Equal(t, "hash", found.PasswordHash)
	assert.Nil(t, found.LastLoginAt)
}

func TestGormStoreUnknownIdentity(t *testing.T) {
	found, err := newTestStore(t).FindByIdentity(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestGormStoreDuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Create(ctx, &core.Principal{Username: "bob", PasswordHash: "h"}))
	err := store.Create(ctx, &core.Principal{Username: "bob", PasswordHash: "h2"})
	assert.ErrorIs(t, err, core.ErrIdentityTaken)
}

func TestGormStoreTouchLastAuthenticated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	p := &core.Principal{Username: "carol", PasswordHash: "h"}
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, store.TouchLastAuthenticated(ctx, p.ID))

	found, err := store.FindByIdentity(ctx, "carol")
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	assert.True(t, fixed.Equal(found.LastLoginAt.UTC()))

	assert.ErrorIs(t, store.TouchLastAuthenticated(ctx, "999"), core.ErrNotFound)
	assert.ErrorIs(t, store.TouchLastAuthenticated(ctx, "abc"), core.ErrValidation)
}

func TestEnsurePrincipal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	hasher := NewBcryptHasher(bcrypt.MinCost)

	created, err := EnsurePrincipal(ctx, store, hasher, core.Principal{Username: "admin", Role: core.RoleAdmin}, "s3cret!")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsurePrincipal(ctx, store, hasher, core.Principal{Username: "admin", Role: core.RoleAdmin}, "other")
	require.NoError(t, err)
	assert.False(t, created)

	found, err := store.FindByIdentity(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, found.Role)
	assert.True(t, hasher.Compare(found.PasswordHash, "s3cret!"))
}

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)
	assert.True(t, hasher.Compare(hash, "password123"))
	assert.False(t, hasher.Compare(hash, "password124"))
	assert.False(t, hasher.Compare("not-a-hash", "password123"))

	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(100).cost)
}
