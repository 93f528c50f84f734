package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		apiKey    string
		model     string
		wantError bool
		wantModel string
	}{
		{name: "valid configuration", apiKey: "sk-test", model: "gpt-4o", wantModel: "gpt-4o"},
		{name: "empty API key", apiKey: "", model: "gpt-4o", wantError: true},
		{name: "default model", apiKey: "sk-test", model: "", wantModel: DefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.apiKey, "", tt.model, 0)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, client.model)
			assert.Equal(t, DefaultBaseURL, client.baseURL)
		})
	}
}

func TestCompleteSendsPromptAndReturnsContent(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"level\":\"high\"}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewClient("sk-test", server.URL+"/v1/", "test-model", time.Second)
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "analyze this")
	require.NoError(t, err)

	assert.Equal(t, `{"level":"high"}`, out)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "analyze this", got.Messages[1].Content)
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{"error":"upstream"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"malformed body", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient("sk-test", server.URL, "", time.Second)
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), "prompt")
			assert.Error(t, err)
		})
	}
}
