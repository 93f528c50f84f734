package models

import (
	"fmt"
	"strings"
)

// RiskLevel is the ordinal severity attached to a login.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists every level in ascending order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank orders levels low < medium < high < critical. Unknown levels rank -1.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

func (l RiskLevel) Valid() bool {
	return l.Rank() >= 0
}

// AtLeast returns the higher of l and floor.
func (l RiskLevel) AtLeast(floor RiskLevel) RiskLevel {
	if floor.Rank() > l.Rank() {
		return floor
	}
	return l
}

// Elevated is true for high and critical, the levels that bypass quiet hours.
func (l RiskLevel) Elevated() bool {
	return l.Rank() >= RiskHigh.Rank()
}

func (l RiskLevel) Upper() string {
	return strings.ToUpper(string(l))
}

// ParseRiskLevel accepts any casing of the four level names.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return l, nil
}

// RiskAnalysis is computed per event. Only Level and Summary are persisted.
type RiskAnalysis struct {
	Level   RiskLevel `json:"level"`
	Summary string    `json:"summary"`
	Factors []string  `json:"factors"`
}
