// Package redisstore is an optional ArtifactStore cache for run artifacts
// (reports, counterexample prefixes) in front of a durable ArtifactStore,
// grounded on orchestration/redis_execution_store.go's key-prefix-plus-TTL
// shape, using go-redis directly rather than a message-broker client since
// this is a pure key/value cache, not a pub/sub concern.
package redisstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix            = "trt:artifact:"
	defaultTTL                  = 24 * time.Hour
	compressionThreshold    int = 64 * 1024
)

// Options configures the Redis-backed artifact cache.
type Options struct {
	Client    *redis.Client
	KeyPrefix string
	TTL       time.Duration
}

// Store implements a subset of store.ArtifactStore (PutBytes/GetBytes) as a
// TTL-bounded cache. It never implements List: cache contents expire and
// are not an authoritative artifact index (spec.md §4.10 treats the cache as
// an optimization in front of a durable store, not a replacement for one).
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New returns a Redis-backed artifact cache.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redisstore: client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: opts.Client, keyPrefix: prefix, ttl: ttl}, nil
}

func (s *Store) key(artifactKey string) string {
	return s.keyPrefix + artifactKey
}

// PutBytes caches data under key with the store's TTL, compressing payloads
// over the threshold the same way the debug stores in the pack do.
func (s *Store) PutBytes(ctx context.Context, key string, data []byte) error {
	encoded, err := encode(data)
	if err != nil {
		return fmt.Errorf("redisstore: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

// PutFile is unsupported: it never reads path and always returns an error.
func (s *Store) PutFile(ctx context.Context, key string, path string) error {
	return errors.New("redisstore: PutFile unsupported, use a durable ArtifactStore for file artifacts")
}

// GetBytes returns the cached payload for key, or an error wrapping
// redis.Nil if it isn't cached (expired or never written).
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return decode(raw)
}

// List is unsupported: the cache is not an authoritative index of artifacts.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, errors.New("redisstore: List unsupported, use a durable ArtifactStore for enumeration")
}

func encode(data []byte) ([]byte, error) {
	if len(data) <= compressionThreshold {
		return append([]byte{0}, data...), nil
	}
	var buf bytes.Buffer
	buf.WriteByte(1)
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("redisstore: empty payload")
	}
	if raw[0] == 0 {
		return raw[1:], nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw[1:]))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gz); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
