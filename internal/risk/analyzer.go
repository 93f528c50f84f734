// Package risk scores login events with static heuristics and, when any
// heuristic fires, an AI second opinion.
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"whozere-relay/internal/models"
	"whozere-relay/internal/util"
)

const (
	DefaultAITimeout = 30 * time.Second

	normalSummary = "Normal login activity"
	noAISummary   = "Unable to determine risk"
)

var privilegedUsers = map[string]bool{
	"root":          true,
	"Administrator": true,
}

// errAnalysis marks an AI call or response that could not be used.
var errAnalysis = errors.New("ai analysis failed")

// Completer is the AI text-completion collaborator.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	completer Completer
	logger    *zap.Logger
	location  *time.Location
	aiTimeout time.Duration
}

type Option func(*Analyzer)

// WithLocation sets the zone used to decide whether a login happened at night.
func WithLocation(loc *time.Location) Option {
	return func(a *Analyzer) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithAITimeout bounds each AI call. Zero or negative disables the bound.
func WithAITimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.aiTimeout = d }
}

// NewAnalyzer builds an analyzer. A nil completer runs heuristics only.
func NewAnalyzer(completer Completer, logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		completer: completer,
		logger:    logger,
		location:  time.Local,
		aiTimeout: DefaultAITimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze scores event against history, the prior records of the same user on
// the same host. It never fails: AI problems degrade to the heuristic result.
func (a *Analyzer) Analyze(ctx context.Context, event models.LoginEvent, history []models.LoginRecord) models.RiskAnalysis {
	level, factors := a.heuristics(event, history)

	if len(factors) == 0 {
		return models.RiskAnalysis{
			Level:   models.RiskLow,
			Summary: normalSummary,
			Factors: []string{},
		}
	}

	verdict, err := a.consult(ctx, event, factors)
	if err != nil {
		a.logger.Warn("AI risk analysis unavailable, using heuristic result",
			util.String("username", event.Username),
			util.String("hostname", event.Hostname),
			util.String("level", string(level)),
			util.ErrorField(err),
		)
		return models.RiskAnalysis{
			Level:   level,
			Summary: fallbackSummary(level, len(factors)),
			Factors: factors,
		}
	}

	combined := make([]string, 0, len(factors)+len(verdict.additionalFactors))
	combined = append(combined, factors...)
	combined = append(combined, verdict.additionalFactors...)

	return models.RiskAnalysis{
		Level:   verdict.level,
		Summary: verdict.summary,
		Factors: combined,
	}
}

// heuristics returns the base level and factors in detection order.
func (a *Analyzer) heuristics(event models.LoginEvent, history []models.LoginRecord) (models.RiskLevel, []string) {
	level := models.RiskLow
	var factors []string

	if privilegedUsers[event.Username] {
		factors = append(factors, "Privileged user login (root/Administrator)")
		level = level.AtLeast(models.RiskMedium)
	}

	if t, err := event.TimeIn(a.location); err == nil {
		hour := t.In(a.location).Hour()
		if hour < 6 {
			factors = append(factors, fmt.Sprintf("Unusual login time (%d:00 local time)", hour))
			level = level.AtLeast(models.RiskMedium)
		}
	}

	if !event.HasIP() {
		factors = append(factors, "No source IP recorded")
	}

	if event.HasIP() && len(history) > 0 && !seenIP(history, event.IP) {
		factors = append(factors, fmt.Sprintf("New IP address for this user (%s)", event.IP))
		level = level.AtLeast(models.RiskMedium)
	}

	return level, factors
}

func seenIP(history []models.LoginRecord, ip string) bool {
	for _, rec := range history {
		if rec.IP == ip {
			return true
		}
	}
	return false
}

type verdict struct {
	level             models.RiskLevel
	summary           string
	additionalFactors []string
}

func (a *Analyzer) consult(ctx context.Context, event models.LoginEvent, factors []string) (*verdict, error) {
	if a.completer == nil {
		return nil, fmt.Errorf("%w: no completer configured", errAnalysis)
	}

	if a.aiTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.aiTimeout)
		defer cancel()
	}

	start := time.Now()
	response, err := a.completer.Complete(ctx, buildPrompt(event, factors))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errAnalysis, err)
	}

	v, err := parseVerdict(response)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("AI risk analysis completed",
		util.String("level", string(v.level)),
		util.Int("additional_factors", len(v.additionalFactors)),
		util.Duration("duration", time.Since(start)),
	)
	return v, nil
}

// aiResponse mirrors the JSON object the prompt asks for. Every field is optional.
type aiResponse struct {
	Level             *string  `json:"level"`
	Summary           *string  `json:"summary"`
	AdditionalFactors []string `json:"additionalFactors"`
}

func parseVerdict(raw string) (*verdict, error) {
	body := stripCodeFence(strings.TrimSpace(raw))

	var resp aiResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: response is not JSON: %v", errAnalysis, err)
	}
	if resp.Level == nil {
		return nil, fmt.Errorf("%w: response has no level", errAnalysis)
	}
	level, err := models.ParseRiskLevel(*resp.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errAnalysis, err)
	}

	v := &verdict{level: level, summary: noAISummary}
	if resp.Summary != nil && strings.TrimSpace(*resp.Summary) != "" {
		v.summary = strings.TrimSpace(*resp.Summary)
	}
	for _, f := range resp.AdditionalFactors {
		if f = strings.TrimSpace(f); f != "" {
			v.additionalFactors = append(v.additionalFactors, f)
		}
	}
	return v, nil
}

// stripCodeFence unwraps ```json ... ``` blocks that chat models like to emit.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func fallbackSummary(level models.RiskLevel, factorCount int) string {
	switch level {
	case models.RiskCritical:
		return "Critical security concern detected. Immediate investigation recommended."
	case models.RiskHigh:
		return "Multiple risk factors detected. Please verify this login."
	case models.RiskMedium:
		return fmt.Sprintf("%d potential concern(s) detected. Review when possible.", factorCount)
	default:
		return "Normal login activity."
	}
}
