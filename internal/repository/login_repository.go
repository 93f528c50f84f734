package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"whozere-relay/internal/models"
	"whozere-relay/internal/util"
)

const (
	loginKeyPrefix = "whozere:logins:"

	// MaxRecordsPerHost is the retention cap; older records are deleted on write.
	MaxRecordsPerHost = 100
)

// LoginRepository persists login records keyed by host and record id.
type LoginRepository struct {
	store  KVStore
	logger *zap.Logger
}

func NewLoginRepository(store KVStore, logger *zap.Logger) *LoginRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginRepository{store: store, logger: logger}
}

// hostPrefix escapes hostname so that ':' in one host's name can never make
// its prefix match another host's keys.
func hostPrefix(hostname string) string {
	return loginKeyPrefix + url.QueryEscape(hostname) + ":"
}

func recordKey(hostname, id string) string {
	return hostPrefix(hostname) + id
}

// Put stores record and then evicts the oldest records of its host beyond
// MaxRecordsPerHost. Once the record is written Put succeeds; a failed
// eviction is logged and retried by the next Put for that host.
func (r *LoginRepository) Put(ctx context.Context, record *models.LoginRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode login record: %w", err)
	}

	key := recordKey(record.Hostname, record.ID)
	if err := r.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to store login record %s: %w", key, err)
	}
	r.logger.Debug("Stored login record", util.String("key", key))

	if err := r.enforceRetention(ctx, record.Hostname); err != nil {
		r.logger.Warn("Failed to enforce login record retention",
			util.String("hostname", record.Hostname),
			util.ErrorField(err),
		)
	}
	return nil
}

func (r *LoginRepository) enforceRetention(ctx context.Context, hostname string) error {
	stored, err := r.listHost(ctx, hostname)
	if err != nil {
		return err
	}
	if len(stored) <= MaxRecordsPerHost {
		return nil
	}

	surplus := stored[MaxRecordsPerHost:]
	keys := make([]string, len(surplus))
	for i, s := range surplus {
		keys[i] = s.key
	}

	if err := r.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to evict old records for %s: %w", hostname, err)
	}
	r.logger.Debug("Evicted old login records",
		util.String("hostname", hostname),
		util.Int("evicted", len(keys)),
	)
	return nil
}

// ListByHost returns the newest records for hostname. limit <= 0 returns all.
func (r *LoginRepository) ListByHost(ctx context.Context, hostname string, limit int) ([]models.LoginRecord, error) {
	stored, err := r.listHost(ctx, hostname)
	if err != nil {
		return nil, err
	}
	return truncate(stored, limit), nil
}

// listHost lists the records under hostname's prefix, dropping any whose body
// names another host.
func (r *LoginRepository) listHost(ctx context.Context, hostname string) ([]storedRecord, error) {
	stored, err := r.list(ctx, hostPrefix(hostname))
	if err != nil {
		return nil, err
	}
	own := stored[:0]
	for _, s := range stored {
		if s.record.Hostname == hostname {
			own = append(own, s)
		}
	}
	return own, nil
}

// ListAll returns the newest records across every host. limit <= 0 returns all.
func (r *LoginRepository) ListAll(ctx context.Context, limit int) ([]models.LoginRecord, error) {
	stored, err := r.list(ctx, loginKeyPrefix)
	if err != nil {
		return nil, err
	}
	return truncate(stored, limit), nil
}

// ListByUser returns every stored record of username on hostname, newest first.
func (r *LoginRepository) ListByUser(ctx context.Context, hostname, username string) ([]models.LoginRecord, error) {
	records, err := r.ListByHost(ctx, hostname, 0)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, rec := range records {
		if rec.Username == username {
			out = append(out, rec)
		}
	}
	return out, nil
}

type storedRecord struct {
	key    string
	at     time.Time
	valid  bool
	record models.LoginRecord
}

// list decodes every record under prefix, sorted by timestamp descending.
// Ties keep listing order; records with unparsable timestamps sort last.
func (r *LoginRepository) list(ctx context.Context, prefix string) ([]storedRecord, error) {
	entries, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list login records under %s: %w", prefix, err)
	}

	stored := make([]storedRecord, 0, len(entries))
	for _, e := range entries {
		var rec models.LoginRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			r.logger.Warn("Skipping undecodable login record", util.String("key", e.Key), util.ErrorField(err))
			continue
		}
		s := storedRecord{key: e.Key, record: rec}
		if t, err := rec.Time(); err == nil {
			s.at, s.valid = t, true
		}
		stored = append(stored, s)
	}

	sort.SliceStable(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if a.valid != b.valid {
			return a.valid
		}
		return a.at.After(b.at)
	})
	return stored, nil
}

func truncate(stored []storedRecord, limit int) []models.LoginRecord {
	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}
	out := make([]models.LoginRecord, len(stored))
	for i, s := range stored {
		out[i] = s.record
	}
	return out
}
