package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whozere-relay/internal/config"
	"whozere-relay/internal/models"
	"whozere-relay/internal/notify"
	"whozere-relay/internal/repository"
	"whozere-relay/internal/risk"
)

const rootPayload = `{"event":"login","username":"root","hostname":"h1","ip":"10.0.0.9","terminal":"ssh","timestamp":"2026-02-07T02:30:00Z","os":"linux","message":"x"}`

var fixedNow = time.Date(2026, 2, 7, 2, 30, 5, 0, time.UTC)

type delivery struct {
	message  string
	announce bool
	opts     notify.AnnounceOptions
}

type fakeNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	err        error
}

func (f *fakeNotifier) Send(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deliveries = append(f.deliveries, delivery{message: message})
	return nil
}

func (f *fakeNotifier) Announce(_ context.Context, message string, opts notify.AnnounceOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deliveries = append(f.deliveries, delivery{message: message, announce: true, opts: opts})
	return nil
}

type staticCompleter struct{ response string }

func (c staticCompleter) Complete(context.Context, string) (string, error) {
	return c.response, nil
}

type failingStore struct{ *repository.MemoryStore }

func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

type fakeMirror struct {
	mu      sync.Mutex
	records []*models.LoginRecord
	err     error
}

func (m *fakeMirror) Name() string { return "fake" }

func (m *fakeMirror) Mirror(_ context.Context, r *models.LoginRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return m.err
}

type harness struct {
	svc      *WebhookService
	repo     *repository.LoginRepository
	store    *repository.MemoryStore
	notifier *fakeNotifier
}

func newHarness(t *testing.T, settings config.MapSource, completer risk.Completer, opts ...WebhookOption) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	repo := repository.NewLoginRepository(store, zap.NewNop())
	notifier := &fakeNotifier{}
	analyzer := risk.NewAnalyzer(completer, zap.NewNop(), risk.WithLocation(time.UTC))

	opts = append([]WebhookOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc := NewWebhookService(repo, analyzer, notifier, settings, time.UTC, zap.NewNop(), opts...)
	return &harness{svc: svc, repo: repo, store: store, notifier: notifier}
}

func TestHandleRootLoginAtNightWithRiskAnalysis(t *testing.T) {
	h := newHarness(t, config.MapSource{config.KeyRiskAnalysis: "true"}, nil)

	res, err := h.svc.Handle(context.Background(), []byte(rootPayload))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, MsgAlertSent, res.Message)

	records, err := h.repo.ListByHost(context.Background(), "h1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.GreaterOrEqual(t, records[0].RiskLevel.Rank(), models.RiskMedium.Rank())
	assert.NotEmpty(t, records[0].RiskSummary)
	assert.Equal(t, res.RecordID, records[0].ID)
	assert.Equal(t, "2026-02-07T02:30:05Z", records[0].ReceivedAt)

	require.Len(t, h.notifier.deliveries, 1)
	d := h.notifier.deliveries[0]
	assert.True(t, d.announce)
	assert.Equal(t, notify.AnnounceOptions{Session: "main"}, d.opts)
	assert.Contains(t, d.message, "User: root")
	assert.Contains(t, d.message, "⚠️ Risk Analysis: MEDIUM")
	assert.Contains(t, d.message, "- Privileged user login (root/Administrator)")
	assert.Contains(t, d.message, "- Unusual login time (2:00 local time)")
}

func TestHandleDisabledSkill(t *testing.T) {
	h := newHarness(t, config.MapSource{config.KeyEnabled: "false", config.KeyRiskAnalysis: "true"}, nil)

	res, err := h.svc.Handle(context.Background(), []byte(rootPayload))
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, Message: MsgSkillDisabled}, res)
	assert.Zero(t, h.store.Len())
	assert.Empty(t, h.notifier.deliveries)
}

func TestHandleInvalidPayload(t *testing.T) {
	payloads := map[string]string{
		"not json":         `{`,
		"array":            `[1,2]`,
		"null":             `null`,
		"wrong event":      `{"event":"logout","username":"a","hostname":"h","timestamp":"t"}`,
		"missing username": `{"event":"login","hostname":"h","timestamp":"t"}`,
		"numeric hostname": `{"event":"login","username":"a","hostname":5,"timestamp":"t"}`,
		"null timestamp":   `{"event":"login","username":"a","hostname":"h","timestamp":null}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, config.MapSource{}, nil)

			res, err := h.svc.Handle(context.Background(), []byte(payload))
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.False(t, res.Success)
			assert.Equal(t, MsgInvalidPayload, res.Message)
			assert.Zero(t, h.store.Len())
			assert.Empty(t, h.notifier.deliveries)
		})
	}
}

func TestHandleOptionalFieldsDefaultToEmpty(t *testing.T) {
	h := newHarness(t, config.MapSource{}, nil)

	payload := `{"event":"login","username":"alice","hostname":"h1","timestamp":"2026-02-07T14:00:00Z","ip":null,"terminal":7}`
	res, err := h.svc.Handle(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, MsgAlertSent, res.Message)
	assert.Empty(t, res.RiskLevel, "risk analysis is off by default")

	require.Len(t, h.notifier.deliveries, 1)
	msg := h.notifier.deliveries[0].message
	assert.NotContains(t, msg, "IP:")
	assert.NotContains(t, msg, "Terminal:")
	assert.NotContains(t, msg, "Risk Analysis")
}

func TestHandleQuietHours(t *testing.T) {
	quiet := `{"start":"00:00","end":"06:00"}`

	t.Run("suppresses low risk but still stores", func(t *testing.T) {
		h := newHarness(t, config.MapSource{config.KeyQuietHours: quiet}, nil)

		res, err := h.svc.Handle(context.Background(), []byte(rootPayload))
		require.NoError(t, err)
		assert.Equal(t, MsgSuppressed, res.Message)
		assert.True(t, res.Success)
		assert.Equal(t, 1, h.store.Len())
		assert.Empty(t, h.notifier.deliveries)
	})

	t.Run("suppresses medium risk", func(t *testing.T) {
		h := newHarness(t, config.MapSource{config.KeyQuietHours: quiet, config.KeyRiskAnalysis: "true"}, nil)

		res, err := h.svc.Handle(context.Background(), []byte(rootPayload))
		require.NoError(t, err)
		assert.Equal(t, MsgSuppressed, res.Message)
		assert.Equal(t, models.RiskMedium, res.RiskLevel)
		assert.Empty(t, h.notifier.deliveries)
	})

	t.Run("high risk bypasses quiet hours", func(t *testing.T) {
		ai := staticCompleter{`{"level":"high","summary":"Verify this login","additionalFactors":["Root over SSH at night"]}`}
		h := newHarness(t, config.MapSource{config.KeyQuietHours: quiet, config.KeyRiskAnalysis: "true"}, ai)

		res, err := h.svc.Handle(context.Background(), []byte(rootPayload))
		require.NoError(t, err)
		assert.Equal(t, MsgAlertSent, res.Message)
		assert.Equal(t, models.RiskHigh, res.RiskLevel)

		require.Len(t, h.notifier.deliveries, 1)
		msg := h.notifier.deliveries[0].message
		assert.Contains(t, msg, "⚠️ Risk Analysis: HIGH")
		assert.Contains(t, msg, "- Root over SSH at night")
		assert.Contains(t, msg, "Verify this login")
	})

	t.Run("outside the window delivers", func(t *testing.T) {
		h := newHarness(t, config.MapSource{config.KeyQuietHours: `{"start":"22:00","end":"01:00"}`}, nil)

		res, err := h.svc.Handle(context.Background(), []byte(rootPayload))
		require.NoError(t, err)
		assert.Equal(t, MsgAlertSent, res.Message)
	})
}

func TestHandleDeliveryRouting(t *testing.T) {
	tests := []struct {
		name     string
		settings config.MapSource
		want     delivery
	}{
		{
			name:     "named channel",
			settings: config.MapSource{config.KeyChannel: "telegram"},
			want:     delivery{announce: true, opts: notify.AnnounceOptions{Channel: "telegram"}},
		},
		{
			name:     "direct send",
			settings: config.MapSource{config.KeyAnnounce: "false", config.KeyChannel: "telegram"},
			want:     delivery{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.settings, nil)

			_, err := h.svc.Handle(context.Background(), []byte(rootPayload))
			require.NoError(t, err)
			require.Len(t, h.notifier.deliveries, 1)

			got := h.notifier.deliveries[0]
			assert.Equal(t, tt.want.announce, got.announce)
			assert.Equal(t, tt.want.opts, got.opts)
		})
	}
}

func TestHandleUsesStoredHistoryForNewIP(t *testing.T) {
	h := newHarness(t, config.MapSource{config.KeyRiskAnalysis: "true"}, nil)
	ctx := context.Background()

	first := `{"event":"login","username":"alice","hostname":"h1","ip":"10.0.0.1","timestamp":"2026-02-07T14:00:00Z","os":"linux"}`
	second := `{"event":"login","username":"alice","hostname":"h1","ip":"10.0.0.2","timestamp":"2026-02-07T15:00:00Z","os":"linux"}`

	res, err := h.svc.Handle(ctx, []byte(first))
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, res.RiskLevel, "first login has no history to compare against")

	res, err = h.svc.Handle(ctx, []byte(second))
	require.NoError(t, err)
	assert.Equal(t, models.RiskMedium, res.RiskLevel)
	assert.Contains(t, h.notifier.deliveries[1].message, "- New IP address for this user (10.0.0.2)")
}

func TestHandleStorageFailure(t *testing.T) {
	repo := repository.NewLoginRepository(failingStore{repository.NewMemoryStore()}, zap.NewNop())
	notifier := &fakeNotifier{}
	svc := NewWebhookService(repo, nil, notifier, config.MapSource{}, time.UTC, zap.NewNop())

	_, err := svc.Handle(context.Background(), []byte(rootPayload))
	assert.ErrorIs(t, err, ErrStorage)
	assert.Empty(t, notifier.deliveries)
}

type scanFailingStore struct{ *repository.MemoryStore }

func (scanFailingStore) List(context.Context, string) ([]repository.Entry, error) {
	return nil, errors.New("scan timeout")
}

func TestHandleDeliversWhenRetentionFails(t *testing.T) {
	store := scanFailingStore{repository.NewMemoryStore()}
	repo := repository.NewLoginRepository(store, zap.NewNop())
	notifier := &fakeNotifier{}
	analyzer := risk.NewAnalyzer(nil, zap.NewNop(), risk.WithLocation(time.UTC))
	svc := NewWebhookService(repo, analyzer, notifier, config.MapSource{}, time.UTC, zap.NewNop())

	res, err := svc.Handle(context.Background(), []byte(rootPayload))
	require.NoError(t, err)
	assert.Equal(t, MsgAlertSent, res.Message)
	assert.Len(t, notifier.deliveries, 1)
	assert.Equal(t, 1, store.Len())
}

func TestHandleDeliveryFailure(t *testing.T) {
	h := newHarness(t, config.MapSource{}, nil)
	boom := errors.New("gateway down")
	h.notifier.err = boom

	_, err := h.svc.Handle(context.Background(), []byte(rootPayload))
	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, h.store.Len(), "record is persisted before delivery")
}

func TestHandleMirrorsRecords(t *testing.T) {
	ok := &fakeMirror{}
	broken := &fakeMirror{err: errors.New("index closed")}
	h := newHarness(t, config.MapSource{}, nil, WithMirrors(ok, broken))

	res, err := h.svc.Handle(context.Background(), []byte(rootPayload))
	require.NoError(t, err)
	assert.Equal(t, MsgAlertSent, res.Message)

	require.Len(t, ok.records, 1)
	assert.Equal(t, res.RecordID, ok.records[0].ID)
	assert.Len(t, broken.records, 1)
}
