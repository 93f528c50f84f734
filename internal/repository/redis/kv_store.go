package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"whozere-relay/internal/client"
	"whozere-relay/internal/repository"
	"whozere-relay/internal/util"
)

const (
	scanCount = 200
	mgetBatch = 100
)

// KVStore is a repository.KVStore backed by plain Redis string keys.
type KVStore struct {
	client *client.RedisClient
}

func NewKVStore(client *client.RedisClient) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	val, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get key", zap.Error(err), util.String("key", key))
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return []byte(val), nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Set(ctx, key, value, 0); err != nil {
		util.Error("Failed to set key", zap.Error(err), util.String("key", key))
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// List scans keys matching prefix* and fetches their values with MGET.
// Redis has no insertion order, so keys are returned sorted lexically.
func (s *KVStore) List(ctx context.Context, prefix string) ([]repository.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	keys, err := s.client.ScanAll(ctx, escapeGlob(prefix)+"*", scanCount)
	if err != nil {
		util.Error("Failed to scan keys", zap.Error(err), util.String("prefix", prefix))
		return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}
	sort.Strings(keys)

	entries := make([]repository.Entry, 0, len(keys))
	for start := 0; start < len(keys); start += mgetBatch {
		end := min(start+mgetBatch, len(keys))
		batch := keys[start:end]

		values, err := s.client.MGet(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch values under %s: %w", prefix, err)
		}
		for i, v := range values {
			// nil means the key was deleted between SCAN and MGET
			str, ok := v.(string)
			if !ok {
				continue
			}
			entries = append(entries, repository.Entry{Key: batch[i], Value: []byte(str)})
		}
	}
	return entries, nil
}

func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to delete keys", zap.Error(err), util.Int("count", len(keys)))
		return fmt.Errorf("failed to delete %d keys: %w", len(keys), err)
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
