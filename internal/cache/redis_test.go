package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func TestCache_SetGet(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "repricer:test", snapshot{Name: "a", Count: 2}, time.Minute))

	var got snapshot
	require.NoError(t, c.Get(ctx, "repricer:test", &got))
	assert.Equal(t, snapshot{Name: "a", Count: 2}, got)
	assert.Equal(t, time.Minute, mr.TTL("repricer:test"))

	ok, err := c.Exists(ctx, "repricer:test")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "repricer:test"))
	err = c.Get(ctx, "repricer:test", &got)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCache_GetCorruptValue(t *testing.T) {
	c, mr := setupCache(t)
	require.NoError(t, mr.Set("repricer:bad", "{not json"))

	var got snapshot
	err := c.Get(context.Background(), "repricer:bad", &got)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func TestCache_ClientIsShared(t *testing.T) {
	c, _ := setupCache(t)
	assert.IsType(t, &redis.Client{}, c.Client())
}
