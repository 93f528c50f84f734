package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whozere-relay/internal/client"
)

// SettingsKey is the Redis hash holding skill overrides, one field per config key.
const SettingsKey = "whozere:config"

// SettingsSource reads skill overrides from a Redis hash. It satisfies config.Source.
type SettingsSource struct {
	client *client.RedisClient
	key    string
}

func NewSettingsSource(client *client.RedisClient) *SettingsSource {
	return &SettingsSource{client: client, key: SettingsKey}
}

func (s *SettingsSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	val, err := s.client.HGet(ctx, s.key, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return val, true, nil
}
