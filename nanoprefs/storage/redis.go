package storage

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

// Redis is a Driver keeping the whole store in one Redis hash. Each field
// holds the JSON encoding of a Value. It implements KeyWriter.
type Redis struct {
	client *redis.Client
	hash   string
	owned  bool
}

var (
	_ Driver    = (*Redis)(nil)
	_ KeyWriter = (*Redis)(nil)
)

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Hash is the key of the hash holding the preferences
	Hash string
}

// OpenRedis connects to the server in config and checks it answers.
func OpenRedis(config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r := NewRedisWithClient(client, config.Hash)
	r.owned = true
	return r, nil
}

// NewRedisWithClient uses an existing client. The client is not closed by
// Close.
func NewRedisWithClient(client *redis.Client, hash string) *Redis {
	if hash == "" {
		hash = defaultTable
	}
	return &Redis{client: client, hash: hash}
}

// Load implements Driver
func (r *Redis) Load() (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}

	out := make(Snapshot, len(fields))
	for key, raw := range fields {
		var v Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		if !v.Kind.Valid() {
			return nil, fmt.Errorf("key %q: invalid kind %d", key, v.Kind)
		}
		out[key] = v
	}
	return out, nil
}

// Save implements Driver. The hash is replaced atomically in a MULTI block.
func (r *Redis) Save(data Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	values := make([]any, 0, 2*len(data))
	for _, key := range data.Keys() {
		raw, err := json.Marshal(data[key])
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		values = append(values, key, string(raw))
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.hash)
		if len(values) > 0 {
			pipe.HSet(ctx, r.hash, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

// Put implements KeyWriter
func (r *Redis) Put(key string, v Value) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}
	return r.client.HSet(ctx, r.hash, key, string(raw)).Err()
}

// Delete implements KeyWriter
func (r *Redis) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return r.client.HDel(ctx, r.hash, key).Err()
}

// Truncate implements KeyWriter
func (r *Redis) Truncate() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return r.client.Del(ctx, r.hash).Err()
}

// Close implements Driver
func (r *Redis) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
