package secretstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuncanbit/paylink/internal/application/credential"
)

func exerciseStore(t *testing.T, store credential.SecretStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, credential.ErrSecretNotFound)

	require.NoError(t, store.Set(ctx, "first secret"))
	require.NoError(t, store.Set(ctx, "second secret"))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second secret", got)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	_, err = store.Get(ctx)
	assert.ErrorIs(t, err, credential.ErrSecretNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wallet.secret")
	store := NewFileStore(path)

	exerciseStore(t, store)

	require.NoError(t, store.Set(context.Background(), "kept"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PAYLINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYLINK_TEST_REDIS_ADDR not set")
	}

	client, err := NewRedisClient(context.Background(), addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, "paylink:test:"+t.Name()))
}
