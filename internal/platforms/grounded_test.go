package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerplexityAdapter_Check(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-secret-key", r.Header.Get("Authorization"))

		var body perplexityRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "best project management tools", body.Messages[1].Content)
		}

		w.Write([]byte(`{
			"model": "sonar",
			"choices": [{"message": {"content": "Popular picks include Example Co [1] and others [2]."}}],
			"citations": ["https://www.example-co.com/features", "https://reviews.other.com/pm"],
			"search_results": [{"title": "Example Co Features", "url": "https://www.example-co.com/features"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 30, "total_tokens": 42}
		}`))
	}))
	defer server.Close()

	adapter := NewPerplexityAdapter(testCredentials(server.URL), analyzer.New(0.25))
	result, err := adapter.Check(context.Background(), testQuery(), testCheck(models.PlatformPerplexity))

	require.NoError(t, err)
	assert.True(t, result.IsCited)
	require.NotEmpty(t, result.Citations)
	assert.Equal(t, "https://www.example-co.com/features", result.Citations[0].URL)
	assert.Equal(t, "Example Co Features", result.Citations[0].Title)
	assert.Equal(t, 1, result.Citations[0].Position)
	assert.Equal(t, models.CitationTypeSource, result.Citations[0].Type)
	assert.Equal(t, "sonar", result.Metadata["model"])
	assert.Equal(t, 42, result.Metadata["usage"].(map[string]int)["total_tokens"])
}

func TestPerplexityAdapter_NotCited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"message": {"content": "Try Other Tool [1]."}}],
			"citations": ["https://reviews.other.com/pm"]
		}`))
	}))
	defer server.Close()

	adapter := NewPerplexityAdapter(testCredentials(server.URL), analyzer.New(0.25))
	result, err := adapter.Check(context.Background(), testQuery(), testCheck(models.PlatformPerplexity))

	require.NoError(t, err)
	assert.False(t, result.IsCited)
	assert.Empty(t, result.Citations)
	assert.Equal(t, []string{"https://reviews.other.com/pm"}, result.Metadata["source_urls"])
}

func TestPerplexityAdapter_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer server.Close()

	adapter := NewPerplexityAdapter(testCredentials(server.URL), analyzer.New(0.25))
	_, err := adapter.Check(context.Background(), testQuery(), testCheck(models.PlatformPerplexity))
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Equal(t, http.StatusTooManyRequests, apperrors.StatusCode(err))

	disabled := NewPerplexityAdapter(config.Credentials{}, analyzer.New(0.25))
	assert.False(t, disabled.IsEnabled())
	_, err = disabled.Check(context.Background(), testQuery(), testCheck(models.PlatformPerplexity))
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestGeminiAdapter_Check(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-secret-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))

		var body geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Tools, 1) {
			assert.Contains(t, body.Tools[0], "google_search")
		}

		w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "Many teams use Example Co for planning."}]},
				"groundingMetadata": {
					"webSearchQueries": ["best project management tools"],
					"groundingChunks": [
						{"web": {"uri": "https://vertexaisearch.cloud.google.com/grounding-api-redirect/abc", "title": "example-co.com"}},
						{"web": {"uri": "https://vertexaisearch.cloud.google.com/grounding-api-redirect/def", "title": "Other Review Site"}}
					]
				}
			}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 20, "totalTokenCount": 28},
			"modelVersion": "gemini-2.0-flash"
		}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(testCredentials(server.URL), analyzer.New(0.25))
	result, err := adapter.Check(context.Background(), testQuery(), testCheck(models.PlatformGemini))

	require.NoError(t, err)
	assert.True(t, result.IsCited)
	require.NotEmpty(t, result.Citations)
	assert.Equal(t, "https://example-co.com", result.Citations[0].URL)
	assert.Equal(t, models.CitationTypeSource, result.Citations[0].Type)
	assert.Equal(t, "gemini-2.0-flash", result.Metadata["model"])
}

func TestGeminiAdapter_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(testCredentials(server.URL), analyzer.New(0.25))
	_, err := adapter.Check(context.Background(), testQuery(), testCheck(models.PlatformGemini))

	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGroundingSite(t *testing.T) {
	assert.Equal(t, "https://example-co.com", groundingSite("Example-Co.com"))
	assert.Equal(t, "", groundingSite("Other Review Site"))
	assert.Equal(t, "", groundingSite("localhost"))
	assert.Equal(t, "", groundingSite(""))
}

func TestGroundedAdapters_EmptyAnswer(t *testing.T) {
	tests := []struct {
		name        string
		platform    models.Platform
		body        string
		newAdapter  func(baseURL string) Adapter
		expectedMsg string
	}{
		{
			name:     "Gemini candidate without text",
			platform: models.PlatformGemini,
			body:     `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`,
			newAdapter: func(baseURL string) Adapter {
				return NewGeminiAdapter(testCredentials(baseURL), analyzer.New(0.25))
			},
			expectedMsg: "finishReason SAFETY",
		},
		{
			name:     "Perplexity empty content",
			platform: models.PlatformPerplexity,
			body:     `{"choices":[{"message":{"content":"  "}}],"citations":["https://example-co.com"]}`,
			newAdapter: func(baseURL string) Adapter {
				return NewPerplexityAdapter(testCredentials(baseURL), analyzer.New(0.25))
			},
			expectedMsg: "empty answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result, err := tt.newAdapter(server.URL).Check(context.Background(), testQuery(), testCheck(tt.platform))

			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, apperrors.IsUpstream(err))
			assert.Equal(t, http.StatusOK, apperrors.StatusCode(err))
			assert.Contains(t, err.Error(), tt.expectedMsg)
		})
	}
}
