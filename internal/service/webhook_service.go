package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whozere-relay/internal/alert"
	"whozere-relay/internal/archive"
	"whozere-relay/internal/config"
	"whozere-relay/internal/models"
	"whozere-relay/internal/notify"
	"whozere-relay/internal/quiethours"
	"whozere-relay/internal/repository"
	"whozere-relay/internal/util"
)

const (
	MsgSkillDisabled  = "Skill disabled"
	MsgInvalidPayload = "Invalid payload"
	MsgSuppressed     = "Quiet hours - alert suppressed"
	MsgAlertSent      = "Alert sent"

	mirrorTimeout = 5 * time.Second
)

// Result is the terminal outcome of one webhook invocation.
type Result struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	RecordID  string           `json:"recordId,omitempty"`
	RiskLevel models.RiskLevel `json:"riskLevel,omitempty"`
}

// RiskAnalyzer scores an event against prior logins of the same user and host.
type RiskAnalyzer interface {
	Analyze(ctx context.Context, event models.LoginEvent, history []models.LoginRecord) models.RiskAnalysis
}

// WebhookService turns an inbound login webhook into a stored record and,
// unless suppressed, a delivered alert.
type WebhookService struct {
	repo     *repository.LoginRepository
	analyzer RiskAnalyzer
	notifier notify.Notifier
	settings config.Source
	location *time.Location
	mirrors  []archive.RecordMirror
	logger   *zap.Logger
	now      func() time.Time
}

type WebhookOption func(*WebhookService)

func WithMirrors(mirrors ...archive.RecordMirror) WebhookOption {
	return func(s *WebhookService) { s.mirrors = append(s.mirrors, mirrors...) }
}

func WithClock(now func() time.Time) WebhookOption {
	return func(s *WebhookService) { s.now = now }
}

func NewWebhookService(
	repo *repository.LoginRepository,
	analyzer RiskAnalyzer,
	notifier notify.Notifier,
	settings config.Source,
	location *time.Location,
	logger *zap.Logger,
	opts ...WebhookOption,
) *WebhookService {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &WebhookService{
		repo:     repo,
		analyzer: analyzer,
		notifier: notifier,
		settings: settings,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one raw webhook body. A disabled skill and quiet-hours
// suppression are successful outcomes; an invalid payload returns a failed
// Result together with ErrInvalidPayload. Storage and delivery failures are
// returned wrapped in ErrStorage and ErrDelivery and are never retried here.
func (s *WebhookService) Handle(ctx context.Context, payload []byte) (Result, error) {
	cfg := config.ResolveSkill(ctx, s.settings, s.logger)

	if !cfg.Enabled {
		s.logger.Debug("whozere skill is disabled, ignoring event")
		return Result{Success: true, Message: MsgSkillDisabled}, nil
	}

	event, err := parseEvent(payload)
	if err != nil {
		s.logger.Warn("Invalid whozere payload received", util.ErrorField(err))
		return Result{Success: false, Message: MsgInvalidPayload}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	s.logger.Info("Login event received",
		util.String("username", event.Username),
		util.String("hostname", event.Hostname),
	)
	if _, err := event.TimeIn(s.location); err != nil {
		s.logger.Debug("Login timestamp not parseable, time-based checks skipped",
			util.String("timestamp", event.Timestamp),
			util.ErrorField(err),
		)
	}

	now := s.now()
	record := &models.LoginRecord{
		LoginEvent: event,
		ID:         uuid.NewString(),
		ReceivedAt: now.UTC().Format(time.RFC3339Nano),
	}

	var analysis *models.RiskAnalysis
	if cfg.RiskAnalysis && s.analyzer != nil {
		history, err := s.repo.ListByUser(ctx, event.Hostname, event.Username)
		if err != nil {
			s.logger.Warn("Failed to load login history for risk analysis", util.ErrorField(err))
			history = nil
		}
		result := s.analyzer.Analyze(ctx, event, history)
		analysis = &result
		record.RiskLevel = result.Level
		record.RiskSummary = result.Summary
	}

	if err := s.repo.Put(ctx, record); err != nil {
		s.logger.Error("Failed to store login record", util.String("id", record.ID), util.ErrorField(err))
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.mirror(ctx, record)

	if cfg.QuietHours != nil && quiethours.IsQuiet(*cfg.QuietHours, now.In(s.location)) && !record.RiskLevel.Elevated() {
		s.logger.Info("Quiet hours active, suppressing non-critical alert",
			util.String("id", record.ID),
			util.String("risk_level", string(record.RiskLevel)),
		)
		return Result{Success: true, Message: MsgSuppressed, RecordID: record.ID, RiskLevel: record.RiskLevel}, nil
	}

	text := alert.FormatAlert(event, s.location)
	if analysis != nil && analysis.Level.Rank() > models.RiskLow.Rank() {
		text += alert.RiskBlock(*analysis)
	}

	if err := s.deliver(ctx, cfg, text); err != nil {
		s.logger.Error("Failed to deliver login alert", util.String("channel", cfg.Channel), util.ErrorField(err))
		return Result{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	s.logger.Info("Alert sent",
		util.String("channel", cfg.Channel),
		util.Bool("announce", cfg.Announce),
		util.String("id", record.ID),
	)
	return Result{Success: true, Message: MsgAlertSent, RecordID: record.ID, RiskLevel: record.RiskLevel}, nil
}

func (s *WebhookService) deliver(ctx context.Context, cfg config.SkillConfig, text string) error {
	if !cfg.Announce {
		return s.notifier.Send(ctx, text)
	}
	opts := notify.AnnounceOptions{Channel: cfg.Channel}
	if cfg.Channel == "main" {
		opts = notify.AnnounceOptions{Session: "main"}
	}
	return s.notifier.Announce(ctx, text, opts)
}

// mirror fans the record out to every mirror. Failures are logged only.
func (s *WebhookService) mirror(ctx context.Context, record *models.LoginRecord) {
	if len(s.mirrors) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	var g errgroup.Group
	for _, m := range s.mirrors {
		g.Go(func() error {
			if err := m.Mirror(ctx, record); err != nil {
				s.logger.Warn("Failed to mirror login record",
					util.String("mirror", m.Name()),
					util.String("id", record.ID),
					util.ErrorField(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// parseEvent requires a JSON object with event "login" and string username,
// hostname and timestamp. Optional fields that are absent or not strings are
// left empty.
func parseEvent(payload []byte) (models.LoginEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.LoginEvent{}, fmt.Errorf("body is not a JSON object: %w", err)
	}
	if raw == nil {
		return models.LoginEvent{}, fmt.Errorf("body is not a JSON object")
	}

	field := func(key string) (string, bool) {
		v, ok := raw[key]
		if !ok {
			return "", false
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] != '"' {
			return "", false
		}
		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			return "", false
		}
		return str, true
	}

	var event models.LoginEvent
	var ok bool
	if event.Event, ok = field("event"); !ok || event.Event != "login" {
		return models.LoginEvent{}, fmt.Errorf("event must be \"login\"")
	}
	for key, dst := range map[string]*string{
		"username":  &event.Username,
		"hostname":  &event.Hostname,
		"timestamp": &event.Timestamp,
	} {
		if *dst, ok = field(key); !ok {
			return models.LoginEvent{}, fmt.Errorf("%s must be a string", key)
		}
	}

	event.IP, _ = field("ip")
	event.Terminal, _ = field("terminal")
	event.OS, _ = field("os")
	event.Message, _ = field("message")
	return event, nil
}
