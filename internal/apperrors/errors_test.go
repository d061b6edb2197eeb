package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "Configured secret",
			input:    "request with my-secret-value failed",
			secrets:  []string{"my-secret-value"},
			expected: "request with [REDACTED] failed",
		},
		{
			name:     "Bearer token",
			input:    "Authorization: Bearer abc.def-123",
			expected: "Authorization: Bearer [REDACTED]",
		},
		{
			name:     "Query parameter",
			input:    "Get https://serpapi.com/search?api_key=12345&q=test: timeout",
			expected: "Get https://serpapi.com/search?api_key=[REDACTED]&q=test: timeout",
		},
		{
			name:     "OpenAI shaped key",
			input:    "Incorrect API key provided: sk-proj-abcdefghijkl",
			expected: "Incorrect API key provided: [REDACTED]",
		},
		{
			name:     "Nothing to redact",
			input:    "model overloaded",
			expected: "model overloaded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input, tt.secrets...))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	upstream := &UpstreamError{Provider: "openai", StatusCode: 401, Message: "invalid key sk-live-1234567890"}
	assert.Equal(t, "openai request failed with HTTP 401: invalid key [REDACTED]", PublicMessage(upstream))

	wrapped := fmt.Errorf("check failed: %w", &NoResultsError{Provider: "tavily", Query: "best crm"})
	assert.Equal(t, `tavily returned no search results for "best crm"`, PublicMessage(wrapped))

	cfg := NewConfigurationError("claude", "API key is not configured")
	assert.Equal(t, "configuration error for claude: API key is not configured", PublicMessage(cfg))

	assert.Equal(t, "", PublicMessage(nil))
}

func TestPublicMessage_TruncatesByRune(t *testing.T) {
	long := errors.New(strings.Repeat("é", 600))
	msg := PublicMessage(long)

	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, 503, utf8.RuneCountInString(msg))
	assert.True(t, strings.HasSuffix(msg, "é..."))

	short := errors.New("réponse vide")
	assert.Equal(t, "réponse vide", PublicMessage(short))
}

func TestClassification(t *testing.T) {
	upstream := fmt.Errorf("wrapped: %w", &UpstreamError{Provider: "gemini", StatusCode: 503})
	assert.True(t, IsUpstream(upstream))
	assert.Equal(t, 503, StatusCode(upstream))

	assert.True(t, IsUpstream(&NoResultsError{Provider: "tavily"}))
	assert.False(t, IsUpstream(errors.New("boom")))

	assert.True(t, IsConfiguration(NewConfigurationError("openai", "missing key")))
	assert.False(t, IsConfiguration(upstream))
}
