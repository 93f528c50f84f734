// Package alert renders login events as human-readable alert text.
package alert

import (
	"fmt"
	"strings"
	"time"

	"whozere-relay/internal/models"
)

const (
	header         = "🔔 Login Alert"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// FormatAlert renders event in loc. IP and Terminal lines are omitted when empty.
func FormatAlert(event models.LoginEvent, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString(header + "\n\n")
	fmt.Fprintf(&b, "User: %s\n", event.Username)
	fmt.Fprintf(&b, "Host: %s\n", event.Hostname)

	if t, err := event.TimeIn(loc); err == nil {
		local := t.In(loc)
		fmt.Fprintf(&b, "Time: %s\n", local.Format(dateTimeLayout))
		fmt.Fprintf(&b, "Zone: %s\n", zoneLabel(local))
	} else {
		fmt.Fprintf(&b, "Time: %s\n", event.Timestamp)
		fmt.Fprintf(&b, "Zone: %s\n", zoneLabel(time.Now().In(loc)))
	}

	fmt.Fprintf(&b, "OS: %s", event.OS)

	if event.HasIP() {
		fmt.Fprintf(&b, "\nIP: %s", event.IP)
	}
	if event.Terminal != "" {
		fmt.Fprintf(&b, "\nTerminal: %s", event.Terminal)
	}

	return b.String()
}

// zoneLabel renders "CST (UTC+8)", "NST (UTC-3:30)" or "UTC (UTC+0)".
func zoneLabel(t time.Time) string {
	name, offset := t.Zone()
	if name == "" {
		name = "UTC"
	}
	return fmt.Sprintf("%s (%s)", name, formatOffset(offset))
}

func formatOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if minutes == 0 {
		return fmt.Sprintf("UTC%s%d", sign, hours)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
}

// RiskBlock is appended to an alert when the login scored above low.
func RiskBlock(analysis models.RiskAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n⚠️ Risk Analysis: %s\n", analysis.Level.Upper())
	for i, factor := range analysis.Factors {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s", factor)
	}
	fmt.Fprintf(&b, "\n\n%s", analysis.Summary)
	return b.String()
}

// ClassifyTerminal maps a raw terminal name to a session type label.
// Unrecognised names are returned unchanged.
func ClassifyTerminal(terminal string) string {
	lower := strings.ToLower(terminal)

	switch {
	case strings.Contains(lower, "ssh") || strings.HasPrefix(lower, "pts/"):
		return "SSH"
	case strings.HasPrefix(lower, "tty") || lower == "console":
		return "Console"
	case strings.Contains(lower, "rdp"):
		return "RDP"
	case strings.Contains(lower, "vnc") || strings.Contains(lower, "screen"):
		return "VNC/Screen Sharing"
	default:
		return terminal
	}
}
