package storage

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisWithClient(client, "test:prefs"), mr
}

func TestOpenRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	r, err := OpenRedis(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestOpenRedis_ConnectionError(t *testing.T) {
	_, err := OpenRedis(RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedis_SaveAndLoad(t *testing.T) {
	r, mr := setupTestRedis(t)

	require.NoError(t, r.Save(sampleSnapshot()))
	assert.True(t, mr.Exists("test:prefs"))

	got, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, got, len(sampleSnapshot()))
	for key, want := range sampleSnapshot() {
		assert.Truef(t, want.Equal(got[key]), "key %s: want %v got %v", key, want, got[key])
	}

	require.NoError(t, r.Save(Snapshot{}))
	got, err = r.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedis_KeyWriter(t *testing.T) {
	r, mr := setupTestRedis(t)

	b, err := NewImmediate(r)
	require.NoError(t, err)

	b.PutInt("count", 5)
	b.PutString("name", "Ada")
	b.Remove("name")
	require.NoError(t, b.Commit())

	keys, err := mr.HKeys("test:prefs")
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, keys)

	b.Clear()
	assert.False(t, mr.Exists("test:prefs"))
}

func TestRedis_LoadRejectsGarbage(t *testing.T) {
	r, mr := setupTestRedis(t)
	mr.HSet("test:prefs", "k", "not json")

	_, err := r.Load()
	assert.Error(t, err)
}
