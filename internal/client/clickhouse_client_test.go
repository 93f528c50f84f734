package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHostPort(t *testing.T) {
	tests := []struct {
		url      string
		hostPort string
		host     string
	}{
		{"localhost:9000", "localhost:9000", "localhost"},
		{"http://ch.internal", "ch.internal:9000", "ch.internal"},
		{"https://ch.internal", "ch.internal:9440", "ch.internal"},
		{"clickhouse://ch.internal:9001/", "ch.internal:9001", "ch.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.hostPort, extractHostPort(tt.url))
			assert.Equal(t, tt.host, extractHostname(tt.url))
		})
	}
}
