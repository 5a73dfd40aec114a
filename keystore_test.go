package embedcore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AndrewDonelson/embedcore"
	"github.com/AndrewDonelson/embedcore/internal/store/sqlitestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "embedcore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestKeyStore(t *testing.T) *embedcore.KeyStore {
	t.Helper()
	cipher, err := embedcore.NewAES256GCM(testMasterSecret())
	require.NoError(t, err)
	ks, err := embedcore.NewKeyStore(embedcore.KeyStoreOptions{
		Backend: newTestBackend(t),
		Cipher:  cipher,
	})
	require.NoError(t, err)
	return ks
}

func TestKeyStore_GenerateAndGet(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	key, err := ks.GenerateKey(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	got, err := ks.GetKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestKeyStore_GenerateExisting(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	_, err := ks.GenerateKey(ctx, "u1")
	require.NoError(t, err)

	_, err = ks.GenerateKey(ctx, "u1")
	assert.ErrorIs(t, err, embedcore.ErrKeyExists)
}

func TestKeyStore_GetMissing(t *testing.T) {
	ks := newTestKeyStore(t)

	_, err := ks.GetKey(context.Background(), "nobody")
	assert.ErrorIs(t, err, embedcore.ErrKeyNotFound)
}

func TestKeyStore_EmptyUserID(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	_, err := ks.GenerateKey(ctx, "")
	assert.ErrorIs(t, err, embedcore.ErrInvalidInput)
	_, err = ks.GetKey(ctx, "")
	assert.ErrorIs(t, err, embedcore.ErrInvalidInput)
	_, err = ks.RotateKey(ctx, "")
	assert.ErrorIs(t, err, embedcore.ErrInvalidInput)
}

func TestKeyStore_EnsureKey(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	k1, err := ks.EnsureKey(ctx, "u1")
	require.NoError(t, err)
	k2, err := ks.EnsureKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "EnsureKey must be stable for the same user")
}

func TestKeyStore_EnsureKeyConcurrent(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	const n = 16
	keys := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := ks.EnsureKey(ctx, "u-race")
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, keys[0], keys[i], "all concurrent callers must agree on one key")
	}
}

func TestKeyStore_RotateKey(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	old, err := ks.GenerateKey(ctx, "u1")
	require.NoError(t, err)

	rotated, err := ks.RotateKey(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, old, rotated)

	got, err := ks.GetKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, rotated, got)
}

func TestKeyStore_RotateProvisionsMissingUser(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	key, err := ks.RotateKey(ctx, "brand-new")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	got, err := ks.GetKey(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestKeyStore_WrongMasterSecret(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	c1, err := embedcore.NewAES256GCM(testMasterSecret())
	require.NoError(t, err)
	ks1, err := embedcore.NewKeyStore(embedcore.KeyStoreOptions{Backend: backend, Cipher: c1})
	require.NoError(t, err)
	_, err = ks1.GenerateKey(ctx, "u1")
	require.NoError(t, err)

	// Same records, different master secret: authentication must fail
	// rather than yield a wrong-but-plausible key.
	other := testMasterSecret()
	other[31] ^= 0xFF
	c2, err := embedcore.NewAES256GCM(other)
	require.NoError(t, err)
	ks2, err := embedcore.NewKeyStore(embedcore.KeyStoreOptions{Backend: backend, Cipher: c2})
	require.NoError(t, err)

	_, err = ks2.GetKey(ctx, "u1")
	assert.ErrorIs(t, err, embedcore.ErrKeyCipher)
}
