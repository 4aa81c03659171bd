package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Total int `json:"total"`
}

func TestLocalCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(LocalConfig{MaxSize: 10})

	require.NoError(t, c.Set(ctx, "a", sample{Total: 3}, time.Minute))
	assert.True(t, c.Exists(ctx, "a"))

	var out sample
	assert.True(t, GetInto(ctx, c, "a", &out))
	assert.Equal(t, 3, out.Total)

	require.NoError(t, c.Delete(ctx, "a"))
	assert.False(t, c.Exists(ctx, "a"))
}

func TestLocalCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(LocalConfig{})
	require.NoError(t, c.Set(ctx, "short", 1, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
}

func TestLocalCache_MaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(LocalConfig{MaxSize: 2})
	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))
	assert.True(t, c.Exists(ctx, "c"))
	assert.LessOrEqual(t, c.store.ItemCount(), 2)
}

func TestGetInto_RawJSON(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(LocalConfig{})
	require.NoError(t, c.Set(ctx, "raw", json.RawMessage(`{"total":7}`), time.Minute))

	var out sample
	assert.True(t, GetInto(ctx, c, "raw", &out))
	assert.Equal(t, 7, out.Total)

	var miss sample
	assert.False(t, GetInto(ctx, c, "missing", &miss))
}

func TestNewCache_UnknownType(t *testing.T) {
	_, err := NewCache(Config{Type: "memcached"})
	assert.Error(t, err)
}

func TestGlobalCache_Default(t *testing.T) {
	SetGlobalCache(nil)
	c := GetGlobalCache()
	require.NotNil(t, c)
	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	require.NoError(t, CloseGlobalCache())
}
