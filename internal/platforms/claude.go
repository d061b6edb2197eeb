package platforms

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/httpclient"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/search"
	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sirupsen/logrus"
)

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// ClaudeAdapter runs a search-then-ask check against the Anthropic Messages API
type ClaudeAdapter struct {
	creds      config.Credentials
	searcher   search.Provider
	maxResults int
	analyzer   *analyzer.Analyzer
	client     *anthropic.Client
}

// NewClaudeAdapter creates a new Claude adapter
func NewClaudeAdapter(creds config.Credentials, searcher search.Provider, maxResults int, a *analyzer.Analyzer) *ClaudeAdapter {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(httpclient.New("claude", creds.Timeout, nil).HTTPClient()),
	}
	if creds.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(creds.BaseURL))
	}

	return &ClaudeAdapter{
		creds:      creds,
		searcher:   searcher,
		maxResults: maxResults,
		analyzer:   a,
		client:     anthropic.NewClient(creds.APIKey, opts...),
	}
}

func (c *ClaudeAdapter) Platform() models.Platform {
	return models.PlatformClaude
}

func (c *ClaudeAdapter) IsEnabled() bool {
	return c.creds.APIKey != "" && c.searcher.IsEnabled()
}

// Timeout covers the search call and the model call in sequence
func (c *ClaudeAdapter) Timeout() time.Duration {
	return c.searcher.Timeout() + c.creds.Timeout + timeoutMargin
}

func (c *ClaudeAdapter) Secrets() []string {
	return []string{c.creds.APIKey}
}

func (c *ClaudeAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	if c.creds.APIKey == "" {
		return nil, apperrors.NewConfigurationError(string(c.Platform()), "API key is not configured")
	}
	if !c.searcher.IsEnabled() {
		return nil, apperrors.NewConfigurationError(string(c.Platform()), "search provider %s is not configured", c.searcher.Name())
	}

	results, err := c.searcher.Search(ctx, query.Query, c.maxResults)
	if err != nil {
		return nil, err
	}

	prompt := searchThenAskUserPrompt(query, results)
	temperature := float32(defaultTemperature)
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.creds.Model),
		System:      searchThenAskSystemPrompt(query),
		MaxTokens:   defaultMaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &prompt}},
			},
		},
	})
	if err != nil {
		return nil, anthropicError(err)
	}

	var parts []string
	for _, content := range resp.Content {
		if content.Type == "text" && content.Text != nil {
			parts = append(parts, *content.Text)
		}
	}
	if len(parts) == 0 {
		return nil, &apperrors.UpstreamError{Provider: "claude", StatusCode: 200, Message: "response contained no text content"}
	}

	answer := strings.TrimSpace(strings.Join(parts, "\n"))
	urls := candidateURLs(answer, citedResults(answer, results))

	logrus.WithFields(logrus.Fields{
		"check_id":       check.ID,
		"platform":       c.Platform(),
		"search_results": len(results),
		"sources":        len(urls),
	}).Debug("Claude answered")

	model := string(resp.Model)
	if model == "" {
		model = c.creds.Model
	}
	return analyzedResult(c.analyzer, query, answer, urls, searchSources(results), map[string]interface{}{
		"model":           model,
		"search_provider": c.searcher.Name(),
		"search_results":  len(results),
		"stop_reason":     string(resp.StopReason),
		"usage": map[string]int{
			"prompt_tokens":     resp.Usage.InputTokens,
			"completion_tokens": resp.Usage.OutputTokens,
			"total_tokens":      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}), nil
}

// anthropicError maps SDK errors onto UpstreamError
func anthropicError(err error) error {
	upstream := &apperrors.UpstreamError{Provider: "claude", Message: "request failed"}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		upstream.StatusCode = reqErr.StatusCode
		upstream.Cause = reqErr.Err
		var apiErr *anthropic.APIError
		if reqErr.Err != nil && errors.As(reqErr.Err, &apiErr) {
			upstream.Message = apiErr.Message
			upstream.Cause = nil
		}
		return upstream
	}

	// API errors arrive wrapped with the status code in the message text
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		upstream.Message = apiErr.Message
		if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
			upstream.StatusCode, _ = strconv.Atoi(m[1])
		}
		return upstream
	}

	upstream.Cause = err
	return upstream
}
