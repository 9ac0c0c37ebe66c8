package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisMaxTxRetries = 8

// Redis implements Store on go-redis. Update uses WATCH/MULTI so two tabs
// touching the same list never lose each other's writes.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if prefix == "" {
		prefix = "lecturepad"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) key(namespace, key string) string {
	return r.prefix + ":" + namespace + ":" + key
}

func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, r.key(namespace, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := r.rdb.Set(ctx, r.key(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Update(ctx context.Context, namespace, key string, fn Mutator) error {
	full := r.key(namespace, key)
	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, full).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if errors.Is(err, goredis.Nil) {
			current = nil
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, full)
				return nil
			}
			pipe.Set(ctx, full, next, 0)
			return nil
		})
		return err
	}
	for i := 0; i < redisMaxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, full)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis update %s: too much contention", key)
}

func (r *Redis) Delete(ctx context.Context, namespace, key string) error {
	return r.rdb.Del(ctx, r.key(namespace, key)).Err()
}

func (r *Redis) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	base := r.key(namespace, "")
	var keys []string
	iter := r.rdb.Scan(ctx, 0, globEscaper.Replace(base+prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if k := iter.Val(); strings.HasPrefix(k, base+prefix) {
			keys = append(keys, strings.TrimPrefix(k, base))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

// globEscaper quotes characters that SCAN MATCH treats as pattern syntax.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
