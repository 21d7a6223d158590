package sink

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/jobsnap/models"
)

// RedisSink stores each snapshot as a string key and indexes keys in a
// sorted set scored by capture time.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink connects to addr and verifies the connection.
func NewRedisSink(ctx context.Context, addr, prefix string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisSink{client: client, prefix: prefix}, nil
}

func (s *RedisSink) indexKey() string {
	return s.prefix + ":index"
}

func (s *RedisSink) Persist(ctx context.Context, batch []models.JobRecord, capturedAt time.Time) (string, error) {
	key := Key(s.prefix, capturedAt)

	body, err := Encode(batch)
	if err != nil {
		return "", persistError(key, err)
	}

	ok, err := s.client.SetNX(ctx, key, body, 0).Result()
	if err != nil {
		return "", persistError(key, err)
	}
	if !ok {
		return "", persistError(key, ErrExists)
	}

	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(capturedAt.UnixMilli()),
		Member: key,
	}).Err(); err != nil {
		return "", persistError(key, err)
	}
	return key, nil
}

func (s *RedisSink) Latest(ctx context.Context) (string, []byte, error) {
	keys, err := s.client.ZRevRange(ctx, s.indexKey(), 0, 0).Result()
	if err != nil {
		return "", nil, fmt.Errorf("read snapshot index: %w", err)
	}
	if len(keys) == 0 {
		return "", nil, ErrNotFound
	}
	body, err := s.get(ctx, keys[0])
	if err != nil {
		return "", nil, err
	}
	return keys[0], body, nil
}

func (s *RedisSink) Get(ctx context.Context, name string) ([]byte, error) {
	if _, ok := ParseName(name); !ok {
		return nil, ErrNotFound
	}
	return s.get(ctx, path.Join(s.prefix, name))
}

func (s *RedisSink) get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return body, nil
}

func (s *RedisSink) Close() error { return s.client.Close() }
