package models

import (
	"fmt"
	"strings"
	"time"
)

// LoginEvent is the payload whozere posts when a session starts on a host.
type LoginEvent struct {
	Event     string `json:"event"`
	Username  string `json:"username"`
	Hostname  string `json:"hostname"`
	IP        string `json:"ip"`
	Terminal  string `json:"terminal"`
	Timestamp string `json:"timestamp"` // ISO 8601
	OS        string `json:"os"`
	Message   string `json:"message"`
}

// localLayouts are ISO 8601 forms without a UTC offset.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Time parses Timestamp, reading a timestamp without an offset as UTC.
func (e LoginEvent) Time() (time.Time, error) {
	return e.TimeIn(time.UTC)
}

// TimeIn parses Timestamp as RFC 3339 (fractional seconds allowed). A
// timestamp without an offset is read as wall-clock time in loc.
func (e LoginEvent) TimeIn(loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, e.Timestamp, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected ISO 8601", e.Timestamp)
}

// HasIP is false for an empty or literal "unknown" source address.
func (e LoginEvent) HasIP() bool {
	ip := strings.TrimSpace(e.IP)
	return ip != "" && ip != "unknown"
}

// LoginRecord is a stored LoginEvent. Records are written once and never updated.
type LoginRecord struct {
	LoginEvent
	ID          string    `json:"id"`
	ReceivedAt  string    `json:"receivedAt"`
	RiskLevel   RiskLevel `json:"riskLevel,omitempty"`
	RiskSummary string    `json:"riskSummary,omitempty"`
}
