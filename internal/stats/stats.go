// Package stats aggregates counts over a set of stored login records.
package stats

import (
	"sort"
	"time"

	"whozere-relay/internal/models"
)

// Filter narrows the record set. A zero Hostname or nil Since disables that filter.
// Location reads timestamps without an offset; nil means UTC.
type Filter struct {
	Hostname string
	Since    *time.Time
	Location *time.Location
}

type Stats struct {
	TotalLogins   int                      `json:"totalLogins"`
	UniqueUsers   int                      `json:"uniqueUsers"`
	UniqueIPs     int                      `json:"uniqueIPs"`
	UniqueHosts   int                      `json:"uniqueHosts"`
	ByUser        map[string]int           `json:"byUser"`
	ByHost        map[string]int           `json:"byHost"`
	ByTerminal    map[string]int           `json:"byTerminal"`
	RiskBreakdown map[models.RiskLevel]int `json:"riskBreakdown"`
}

// Compute counts every record passing filter exactly once. Records whose
// timestamp does not parse are excluded whenever Since is set.
func Compute(records []models.LoginRecord, filter Filter) Stats {
	s := Stats{
		ByUser:        make(map[string]int),
		ByHost:        make(map[string]int),
		ByTerminal:    make(map[string]int),
		RiskBreakdown: make(map[models.RiskLevel]int, len(models.RiskLevels)),
	}
	for _, level := range models.RiskLevels {
		s.RiskBreakdown[level] = 0
	}

	ips := make(map[string]struct{})
	for _, r := range records {
		if !filter.matches(r) {
			continue
		}

		s.TotalLogins++
		s.ByUser[r.Username]++
		s.ByHost[r.Hostname]++
		if r.IP != "" {
			ips[r.IP] = struct{}{}
		}
		if r.Terminal != "" {
			s.ByTerminal[r.Terminal]++
		}
		if r.RiskLevel.Valid() {
			s.RiskBreakdown[r.RiskLevel]++
		}
	}

	s.UniqueUsers = len(s.ByUser)
	s.UniqueHosts = len(s.ByHost)
	s.UniqueIPs = len(ips)
	return s
}

func (f Filter) matches(r models.LoginRecord) bool {
	if f.Hostname != "" && r.Hostname != f.Hostname {
		return false
	}
	if f.Since != nil {
		t, err := r.TimeIn(f.Location)
		if err != nil || t.Before(*f.Since) {
			return false
		}
	}
	return true
}

// HasRisk reports whether any risk level has a nonzero count.
func (s Stats) HasRisk() bool {
	for _, n := range s.RiskBreakdown {
		if n > 0 {
			return true
		}
	}
	return false
}

type Count struct {
	Key   string
	Count int
}

// TopN returns the n largest entries of counts, by count descending then key ascending.
func TopN(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
