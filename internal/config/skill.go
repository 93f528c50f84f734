package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"whozere-relay/internal/quiethours"
)

// Skill config keys, as stored by the host configuration store.
const (
	KeyEnabled      = "whozere.enabled"
	KeyAnnounce     = "whozere.announce"
	KeyChannel      = "whozere.channel"
	KeyRiskAnalysis = "whozere.riskAnalysis"
	KeyQuietHours   = "whozere.quietHours"
)

// Channels lists the accepted values for whozere.channel.
var Channels = []string{"main", "telegram", "slack", "discord", "whatsapp", "signal"}

// SkillConfig is the effective per-invocation configuration.
type SkillConfig struct {
	Enabled      bool
	Announce     bool
	Channel      string
	RiskAnalysis bool
	QuietHours   *quiethours.Window
}

func DefaultSkillConfig() SkillConfig {
	return SkillConfig{
		Enabled:  true,
		Announce: true,
		Channel:  "main",
	}
}

// Source looks up a single skill config key. ok is false when the key is unset.
type Source interface {
	Lookup(ctx context.Context, key string) (value string, ok bool, err error)
}

// MapSource serves overrides from a fixed map.
type MapSource map[string]string

func (m MapSource) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

var envKeys = map[string]string{
	KeyEnabled:      "WHOZERE_ENABLED",
	KeyAnnounce:     "WHOZERE_ANNOUNCE",
	KeyChannel:      "WHOZERE_CHANNEL",
	KeyRiskAnalysis: "WHOZERE_RISK_ANALYSIS",
	KeyQuietHours:   "WHOZERE_QUIET_HOURS",
}

// EnvSource reads overrides from WHOZERE_* environment variables.
type EnvSource struct{}

func (EnvSource) Lookup(_ context.Context, key string) (string, bool, error) {
	name, ok := envKeys[key]
	if !ok {
		return "", false, nil
	}
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// ChainSource returns the first source that has the key set.
type ChainSource []Source

func (c ChainSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		v, ok, err := src.Lookup(ctx, key)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// ResolveSkill merges overrides from src onto the defaults field by field.
// Lookup errors and invalid values are logged and leave the default in place.
func ResolveSkill(ctx context.Context, src Source, logger *zap.Logger) SkillConfig {
	cfg := DefaultSkillConfig()
	if src == nil {
		return cfg
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lookup := func(key string) (string, bool) {
		v, ok, err := src.Lookup(ctx, key)
		if err != nil {
			logger.Warn("Failed to read skill setting, using default",
				zap.String("key", key), zap.Error(err))
			return "", false
		}
		return strings.TrimSpace(v), ok
	}
	invalid := func(key, value string, err error) {
		logger.Warn("Ignoring invalid skill setting",
			zap.String("key", key), zap.String("value", value), zap.Error(err))
	}

	for key, dst := range map[string]*bool{
		KeyEnabled:      &cfg.Enabled,
		KeyAnnounce:     &cfg.Announce,
		KeyRiskAnalysis: &cfg.RiskAnalysis,
	} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid(key, v, err)
			continue
		}
		*dst = b
	}

	if v, ok := lookup(KeyChannel); ok {
		if err := validateChannel(v); err != nil {
			invalid(KeyChannel, v, err)
		} else {
			cfg.Channel = v
		}
	}

	if v, ok := lookup(KeyQuietHours); ok {
		w, err := parseQuietHours(v)
		if err != nil {
			invalid(KeyQuietHours, v, err)
		} else {
			cfg.QuietHours = w
		}
	}

	return cfg
}

func validateChannel(v string) error {
	for _, c := range Channels {
		if v == c {
			return nil
		}
	}
	return fmt.Errorf("unknown channel %q", v)
}

// parseQuietHours accepts a JSON window object or the literal null.
func parseQuietHours(v string) (*quiethours.Window, error) {
	if v == "null" {
		return nil, nil
	}
	var w quiethours.Window
	if err := json.Unmarshal([]byte(v), &w); err != nil {
		return nil, fmt.Errorf("quiet hours must be a JSON object: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}
