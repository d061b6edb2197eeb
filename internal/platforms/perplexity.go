package platforms

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/httpclient"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/sirupsen/logrus"
)

// PerplexityAdapter queries a search-grounded chat model that returns its
// source URLs alongside the answer.
type PerplexityAdapter struct {
	creds    config.Credentials
	analyzer *analyzer.Analyzer
	http     *httpclient.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type perplexityResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations     []string `json:"citations"`
	SearchResults []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Date  string `json:"date"`
	} `json:"search_results"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewPerplexityAdapter creates a new Perplexity adapter
func NewPerplexityAdapter(creds config.Credentials, a *analyzer.Analyzer) *PerplexityAdapter {
	return &PerplexityAdapter{
		creds:    creds,
		analyzer: a,
		http:     httpclient.New("perplexity", creds.Timeout, map[string]string{"Content-Type": "application/json"}),
	}
}

func (p *PerplexityAdapter) Platform() models.Platform {
	return models.PlatformPerplexity
}

func (p *PerplexityAdapter) IsEnabled() bool {
	return p.creds.APIKey != ""
}

func (p *PerplexityAdapter) Timeout() time.Duration {
	return p.creds.Timeout + timeoutMargin
}

func (p *PerplexityAdapter) Secrets() []string {
	return []string{p.creds.APIKey}
}

func (p *PerplexityAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	if !p.IsEnabled() {
		return nil, apperrors.NewConfigurationError(string(p.Platform()), "API key is not configured")
	}

	var resp perplexityResponse
	err := p.http.SendJSON(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     p.creds.BaseURL + "/chat/completions",
		Headers: map[string]string{"Authorization": "Bearer " + p.creds.APIKey},
		Body: perplexityRequest{
			Model: p.creds.Model,
			Messages: []chatMessage{
				{Role: "system", Content: groundedSystemPrompt(query)},
				{Role: "user", Content: query.Query},
			},
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &apperrors.UpstreamError{Provider: "perplexity", StatusCode: http.StatusOK, Message: "response contained no choices"}
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return nil, &apperrors.UpstreamError{Provider: "perplexity", StatusCode: http.StatusOK, Message: "response contained an empty answer"}
	}

	sources := make(map[string]sourceInfo)
	var structured []string
	structured = append(structured, resp.Citations...)
	for _, r := range resp.SearchResults {
		structured = append(structured, r.URL)
		sources[r.URL] = sourceInfo{title: r.Title}
	}
	urls := candidateURLs(answer, structured)

	logrus.WithFields(logrus.Fields{
		"check_id": check.ID,
		"platform": p.Platform(),
		"sources":  len(urls),
	}).Debug("Perplexity answered")

	model := resp.Model
	if model == "" {
		model = p.creds.Model
	}
	return analyzedResult(p.analyzer, query, answer, urls, sources, map[string]interface{}{
		"model": model,
		"usage": map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}), nil
}
