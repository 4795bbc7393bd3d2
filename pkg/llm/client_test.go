package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsPromptAndReturnsContent(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"structured"}}]}`))
	}))
	defer srv.Close()

	logPath := filepath.Join(t.TempDir(), "llm_events.jsonl")
	c := NewClient(config.LLMConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "qwen", Timeout: time.Second, EventLogPath: logPath})

	out, err := c.Complete(context.Background(), "classify this", 0)
	require.NoError(t, err)
	assert.Equal(t, "structured", out)

	assert.Equal(t, "qwen", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "classify this", got.Messages[0].Content)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var start map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &start))
	assert.Equal(t, "llm_start", start["event"])
	assert.Equal(t, "classify this", start["text"])
	assert.NotEmpty(t, start["timestamp"])
	assert.Contains(t, lines[1], `"llm_end"`)
}

func TestCompleteMapsTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{BaseURL: srv.URL, Model: "qwen", Timeout: time.Second})
	_, err := c.Complete(context.Background(), "hi", 0.1)

	var unavailable *model.ModelUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Contains(t, err.Error(), "model not loaded")

	srv.Close()
	_, err = c.Complete(context.Background(), "hi", 0.1)
	assert.True(t, errors.As(err, &unavailable))
}
