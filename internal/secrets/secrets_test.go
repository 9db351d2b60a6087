package secrets

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()

	testKey := "test-secret"
	testValue := []byte("supersecret")

	require.NoError(t, store.Set(ctx, testKey, testValue))
	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	require.Equal(t, testValue, got)
}

func TestGetNotFound(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()
	_, err := store.Get(ctx, "not-a-real-key")
	require.Error(t, err)
}

func TestSecretOverwrite(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()
	key := "overwrite"
	val1 := []byte("v1")
	val2 := []byte("v2")
	require.NoError(t, store.Set(ctx, key, val1))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, val1, got)

	require.NoError(t, store.Set(ctx, key, val2))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, val2, got)
}

func TestSecretDelete(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()
	key := "del"
	val := []byte("gone")
	require.NoError(t, store.Set(ctx, key, val))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, val, got)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.Error(t, err)
}

func TestSecretList(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()
	keys := []string{"a", "b", "c/d", "d"}
	for _, k := range keys {
		require.NoError(t, store.Set(ctx, k, []byte(k+"-val")))
	}
	listed, err := store.List(ctx, "")
	require.NoError(t, err)
	for _, k := range keys {
		require.Contains(t, listed, k)
	}
}

func TestSecretConcurrency(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()
	n := 20
	keys := make([]string, n)
	for i := range keys {
		keys[i] = base64.StdEncoding.EncodeToString([]byte{byte(i)})
	}
	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(k string, i int) {
			defer wg.Done()
			data := []byte{byte(i), 42}
			for j := 0; j < 3; j++ {
				require.NoError(t, store.Set(ctx, k, data))
				got, err := store.Get(ctx, k)
				require.NoError(t, err)
				require.Equal(t, data, got)
			}
		}(k, i)
	}
	wg.Wait()
}

func TestSecretEmptyValue(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()
	key := "empty"
	require.NoError(t, store.Set(ctx, key, []byte{}))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 0, len(got))
}

func TestHasClusterKey(t *testing.T) {
	store := SetupTestStore(t)
	require.True(t, store.HasClusterKey())

	empty := NewStore(NewMemKV(), "/rewardcore/secrets/store/", [32]byte{})
	require.False(t, empty.HasClusterKey())
}
