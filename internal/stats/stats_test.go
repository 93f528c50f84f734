package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"whozere-relay/internal/models"
)

var now = time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

func rec(host, user, ip, terminal string, at time.Time, level models.RiskLevel) models.LoginRecord {
	return models.LoginRecord{
		LoginEvent: models.LoginEvent{
			Event:     "login",
			Username:  user,
			Hostname:  host,
			IP:        ip,
			Terminal:  terminal,
			Timestamp: at.Format(time.RFC3339),
		},
		RiskLevel: level,
	}
}

func TestComputeCountsUsers(t *testing.T) {
	records := []models.LoginRecord{
		rec("h1", "alice", "10.0.0.1", "ssh", now, ""),
		rec("h1", "alice", "10.0.0.1", "ssh", now, ""),
		rec("h1", "bob", "10.0.0.2", "", now, ""),
	}

	s := Compute(records, Filter{})

	assert.Equal(t, 3, s.TotalLogins)
	assert.Equal(t, 2, s.UniqueUsers)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, s.ByUser)
	assert.Equal(t, 2, s.UniqueIPs)
	assert.Equal(t, 1, s.UniqueHosts)
	assert.Equal(t, map[string]int{"ssh": 2}, s.ByTerminal)
}

func TestComputeRiskBreakdownHasAllLevels(t *testing.T) {
	s := Compute(nil, Filter{})

	assert.Equal(t, 0, s.TotalLogins)
	assert.Len(t, s.RiskBreakdown, 4)
	for _, level := range models.RiskLevels {
		v, ok := s.RiskBreakdown[level]
		assert.True(t, ok, "level %s missing", level)
		assert.Zero(t, v)
	}
	assert.False(t, s.HasRisk())

	s = Compute([]models.LoginRecord{
		rec("h1", "root", "", "", now, models.RiskHigh),
		rec("h1", "root", "", "", now, models.RiskHigh),
		rec("h1", "bob", "", "", now, ""),
	}, Filter{})
	assert.Equal(t, 2, s.RiskBreakdown[models.RiskHigh])
	assert.Equal(t, 0, s.RiskBreakdown[models.RiskLow])
	assert.True(t, s.HasRisk())
	assert.Equal(t, 0, s.UniqueIPs, "empty IPs are not counted")
}

func TestComputeFilters(t *testing.T) {
	since := now.Add(-time.Hour)
	bad := rec("h1", "carol", "", "", now, "")
	bad.Timestamp = "garbage"

	records := []models.LoginRecord{
		rec("h1", "alice", "", "", since, ""),
		rec("h1", "bob", "", "", now.Add(-2*time.Hour), ""),
		rec("h2", "alice", "", "", now, ""),
		bad,
	}

	s := Compute(records, Filter{Since: &since})
	assert.Equal(t, 2, s.TotalLogins, "since is inclusive, unparsable timestamps drop out")
	assert.Equal(t, 2, s.UniqueHosts)

	s = Compute(records, Filter{Hostname: "h1"})
	assert.Equal(t, 3, s.TotalLogins)

	s = Compute(records, Filter{Hostname: "h1", Since: &since})
	assert.Equal(t, 1, s.TotalLogins)
	assert.Equal(t, map[string]int{"alice": 1}, s.ByUser)
}

func TestComputeSinceWithZonelessTimestamps(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	since := now.Add(-time.Hour) // 11:00 UTC, 20:00 JST

	recent := rec("h1", "alice", "", "", now, "")
	recent.Timestamp = "2026-02-07T20:30:00"
	old := rec("h1", "bob", "", "", now, "")
	old.Timestamp = "2026-02-07T19:30:00"

	s := Compute([]models.LoginRecord{recent, old}, Filter{Since: &since, Location: tokyo})
	assert.Equal(t, 1, s.TotalLogins)
	assert.Equal(t, map[string]int{"alice": 1}, s.ByUser)
}

func TestTopN(t *testing.T) {
	counts := map[string]int{"alice": 3, "bob": 5, "carol": 3, "dave": 1}

	assert.Equal(t, []Count{{"bob", 5}, {"alice", 3}, {"carol", 3}}, TopN(counts, 3))
	assert.Len(t, TopN(counts, 10), 4)
	assert.Empty(t, TopN(map[string]int{}, 5))
}
