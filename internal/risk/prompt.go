package risk

import (
	"fmt"
	"strings"

	"whozere-relay/internal/models"
)

func buildPrompt(event models.LoginEvent, factors []string) string {
	ip := event.IP
	if !event.HasIP() {
		ip = "unknown"
	}

	var detected strings.Builder
	for i, f := range factors {
		if i > 0 {
			detected.WriteString("\n")
		}
		detected.WriteString("- " + f)
	}

	return fmt.Sprintf(`Analyze this login event for security risks:

User: %s
Host: %s
IP: %s
Terminal: %s
Time: %s
OS: %s

Initial risk factors detected:
%s

Provide a brief risk assessment in this exact JSON format:
{
  "level": "low" | "medium" | "high" | "critical",
  "summary": "One sentence summary",
  "additionalFactors": ["factor1", "factor2"]
}

Only respond with valid JSON, no other text.`,
		event.Username, event.Hostname, ip, event.Terminal, event.Timestamp, event.OS, detected.String())
}
