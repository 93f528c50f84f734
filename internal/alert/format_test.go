package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"whozere-relay/internal/models"
)

func sampleEvent() models.LoginEvent {
	return models.LoginEvent{
		Event:     "login",
		Username:  "alice",
		Hostname:  "my-server",
		IP:        "192.168.1.100",
		Terminal:  "ssh",
		Timestamp: "2026-02-07T20:45:30+08:00",
		OS:        "linux",
		Message:   "test",
	}
}

func TestFormatAlert(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)

	got := FormatAlert(sampleEvent(), shanghai)

	want := "🔔 Login Alert\n\n" +
		"User: alice\n" +
		"Host: my-server\n" +
		"Time: 2026-02-07 20:45:30\n" +
		"Zone: CST (UTC+8)\n" +
		"OS: linux\n" +
		"IP: 192.168.1.100\n" +
		"Terminal: ssh"
	assert.Equal(t, want, got)
}

func TestFormatAlertConvertsToLocation(t *testing.T) {
	got := FormatAlert(sampleEvent(), time.UTC)

	assert.Contains(t, got, "Time: 2026-02-07 12:45:30")
	assert.Contains(t, got, "Zone: UTC (UTC+0)")
}

func TestFormatAlertOmitsMissingFields(t *testing.T) {
	for _, ip := range []string{"", "unknown"} {
		event := sampleEvent()
		event.IP = ip
		event.Terminal = ""

		got := FormatAlert(event, time.UTC)

		assert.Contains(t, got, "User: alice")
		assert.NotContains(t, got, "IP:")
		assert.NotContains(t, got, "Terminal:")
	}
}

func TestFormatAlertZonelessTimestampIsLocal(t *testing.T) {
	event := sampleEvent()
	event.Timestamp = "2026-02-07T02:30:00"

	got := FormatAlert(event, time.FixedZone("CST", 8*3600))

	assert.Contains(t, got, "Time: 2026-02-07 02:30:00")
	assert.Contains(t, got, "Zone: CST (UTC+8)")
}

func TestFormatAlertUnparsableTimestamp(t *testing.T) {
	event := sampleEvent()
	event.Timestamp = "yesterday"

	got := FormatAlert(event, time.UTC)

	assert.Contains(t, got, "Time: yesterday")
	assert.Contains(t, got, "Zone: UTC (UTC+0)")
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "UTC+0"},
		{8 * 3600, "UTC+8"},
		{-5 * 3600, "UTC-5"},
		{-(3*3600 + 30*60), "UTC-3:30"},
		{5*3600 + 45*60, "UTC+5:45"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatOffset(tt.seconds))
	}
}

func TestRiskBlock(t *testing.T) {
	got := RiskBlock(models.RiskAnalysis{
		Level:   models.RiskMedium,
		Summary: "2 potential concern(s) detected. Review when possible.",
		Factors: []string{"Privileged user login (root/Administrator)", "Unusual login time (2:00 local time)"},
	})

	want := "\n\n⚠️ Risk Analysis: MEDIUM\n" +
		"- Privileged user login (root/Administrator)\n" +
		"- Unusual login time (2:00 local time)\n\n" +
		"2 potential concern(s) detected. Review when possible."
	assert.Equal(t, want, got)
}

func TestClassifyTerminal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ssh", "SSH"},
		{"SSHD", "SSH"},
		{"pts/0", "SSH"},
		{"tty1", "Console"},
		{"console", "Console"},
		{"Console", "Console"},
		{"rdp-tcp#0", "RDP"},
		{"vnc", "VNC/Screen Sharing"},
		{"Screen Sharing", "VNC/Screen Sharing"},
		{"x11", "x11"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTerminal(tt.in))
		})
	}
}
