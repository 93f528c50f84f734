package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"whozere-relay/internal/alert"
	"whozere-relay/internal/models"
	"whozere-relay/internal/repository"
	"whozere-relay/internal/stats"
)

const (
	ToolHistory = "whozere.history"
	ToolStats   = "whozere.stats"

	DefaultHistoryLimit = 10
	DefaultPeriod       = "7d"
	topEntries          = 5
	noRecordsMessage    = "No login records found."
)

// Periods maps every accepted stats period token to its window. "all" has none.
var Periods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"all": 0,
}

type HistoryParams struct {
	Hostname string `json:"hostname,omitempty"`
	Username string `json:"username,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type StatsParams struct {
	Hostname string `json:"hostname,omitempty"`
	Period   string `json:"period,omitempty"`
}

// ToolDefinition declares a callable query with a JSON-schema parameter object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// QueryService renders read-only text reports over stored login history.
type QueryService struct {
	repo     *repository.LoginRepository
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewQueryService(repo *repository.LoginRepository, location *time.Location, logger *zap.Logger) *QueryService {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{repo: repo, location: location, logger: logger, now: time.Now}
}

// History lists the newest records, optionally scoped to a host and user.
func (q *QueryService) History(ctx context.Context, params HistoryParams) (string, error) {
	if params.Limit < 0 {
		return "", fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}
	limit := params.Limit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	var (
		records []models.LoginRecord
		err     error
	)
	if params.Hostname != "" {
		records, err = q.repo.ListByHost(ctx, params.Hostname, limit*2)
	} else {
		records, err = q.repo.ListAll(ctx, limit*2)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if params.Username != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.Username == params.Username {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	if len(records) > limit {
		records = records[:limit]
	}

	if len(records) == 0 {
		return noRecordsMessage, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d login record(s):\n\n", len(records))
	for _, r := range records {
		b.WriteString("---\n")
		b.WriteString(alert.FormatAlert(r.LoginEvent, q.location))
		if r.RiskLevel.Rank() > models.RiskLow.Rank() {
			fmt.Fprintf(&b, "\nRisk: %s", r.RiskLevel.Upper())
		}
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// Stats reports aggregate counts for a period. Unknown period tokens are
// treated as the default period.
func (q *QueryService) Stats(ctx context.Context, params StatsParams) (string, error) {
	period := params.Period
	if period == "" {
		period = DefaultPeriod
	}
	window, ok := Periods[period]
	if !ok {
		q.logger.Debug("Unknown stats period, using default", zap.String("period", period))
		window = Periods[DefaultPeriod]
	}

	filter := stats.Filter{Hostname: params.Hostname, Location: q.location}
	if window > 0 {
		since := q.now().Add(-window)
		filter.Since = &since
	}

	records, err := q.repo.ListAll(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s := stats.Compute(records, filter)

	var b strings.Builder
	b.WriteString("📊 Login Statistics")
	if params.Hostname != "" {
		fmt.Fprintf(&b, " for %s", params.Hostname)
	}
	fmt.Fprintf(&b, " (%s)\n\n", period)

	fmt.Fprintf(&b, "Total logins: %d\n", s.TotalLogins)
	fmt.Fprintf(&b, "Unique users: %d\n", s.UniqueUsers)
	fmt.Fprintf(&b, "Unique IPs: %d\n", s.UniqueIPs)
	fmt.Fprintf(&b, "Unique hosts: %d\n\n", s.UniqueHosts)

	if top := stats.TopN(s.ByUser, topEntries); len(top) > 0 {
		b.WriteString("Top users:\n")
		for _, c := range top {
			fmt.Fprintf(&b, "  - %s: %d login(s)\n", c.Key, c.Count)
		}
		b.WriteString("\n")
	}

	if top := stats.TopN(s.ByTerminal, topEntries); len(top) > 0 {
		b.WriteString("By terminal type:\n")
		for _, c := range top {
			fmt.Fprintf(&b, "  - %s: %d\n", c.Key, c.Count)
		}
		b.WriteString("\n")
	}

	if s.HasRisk() {
		b.WriteString("Risk breakdown:\n")
		for _, level := range models.RiskLevels {
			name := string(level)
			fmt.Fprintf(&b, "  - %s%s: %d\n", strings.ToUpper(name[:1]), name[1:], s.RiskBreakdown[level])
		}
	}

	return b.String(), nil
}

// Tools declares the query operations exposed to callers.
func (q *QueryService) Tools() []ToolDefinition {
	periods := []string{"1h", "24h", "7d", "30d", "all"}
	return []ToolDefinition{
		{
			Name:        ToolHistory,
			Description: "Query recent login history from whozere alerts",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"hostname": map[string]interface{}{"type": "string", "description": "Filter by specific hostname (optional)"},
					"username": map[string]interface{}{"type": "string", "description": "Filter by specific username (optional)"},
					"limit":    map[string]interface{}{"type": "number", "description": "Maximum number of records to return (default: 10)"},
				},
			},
		},
		{
			Name:        ToolStats,
			Description: "Get login statistics from whozere alerts",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"hostname": map[string]interface{}{"type": "string", "description": "Filter by specific hostname (optional)"},
					"period":   map[string]interface{}{"type": "string", "enum": periods, "description": "Time period for statistics (default: 7d)"},
				},
			},
		},
	}
}

// Invoke runs the named tool with JSON-encoded parameters. Empty params are allowed.
func (q *QueryService) Invoke(ctx context.Context, name string, rawParams []byte) (string, error) {
	switch name {
	case ToolHistory:
		var p HistoryParams
		if err := decodeParams(rawParams, &p); err != nil {
			return "", err
		}
		return q.History(ctx, p)
	case ToolStats:
		var p StatsParams
		if err := decodeParams(rawParams, &p); err != nil {
			return "", err
		}
		return q.Stats(ctx, p)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func decodeParams(raw []byte, dst interface{}) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
