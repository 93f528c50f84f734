package archive

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"whozere-relay/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Execer is the subset of client.ClickHouseClient used by ClickHouseMirror.
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

// ClickHouseMirror appends each record as a row of an analytics table.
type ClickHouseMirror struct {
	conn  Execer
	table string
}

func NewClickHouseMirror(conn Execer, table string) (*ClickHouseMirror, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}
	return &ClickHouseMirror{conn: conn, table: table}, nil
}

func (m *ClickHouseMirror) Name() string { return "clickhouse" }

// EnsureTable creates the table if it is missing.
func (m *ClickHouseMirror) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	username String,
	hostname LowCardinality(String),
	ip String,
	terminal LowCardinality(String),
	os LowCardinality(String),
	message String,
	login_at Nullable(DateTime64(3, 'UTC')),
	received_at DateTime64(3, 'UTC'),
	risk_level LowCardinality(String),
	risk_summary String
) ENGINE = MergeTree
ORDER BY (hostname, received_at, id)`, m.table)

	if err := m.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", m.table, err)
	}
	return nil
}

func (m *ClickHouseMirror) Mirror(ctx context.Context, record *models.LoginRecord) error {
	var loginAt *time.Time
	if t, err := record.Time(); err == nil {
		utc := t.UTC()
		loginAt = &utc
	}
	receivedAt, err := time.Parse(time.RFC3339Nano, record.ReceivedAt)
	if err != nil {
		return fmt.Errorf("invalid receivedAt %q: %w", record.ReceivedAt, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s
	(id, username, hostname, ip, terminal, os, message, login_at, received_at, risk_level, risk_summary)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, m.table)

	return m.conn.Exec(ctx, query,
		record.ID,
		record.Username,
		record.Hostname,
		record.IP,
		record.Terminal,
		record.OS,
		record.Message,
		loginAt,
		receivedAt.UTC(),
		string(record.RiskLevel),
		record.RiskSummary,
	)
}
