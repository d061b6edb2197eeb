package platforms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/httpclient"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/search"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIAdapter runs a search-then-ask check against an OpenAI-compatible
// chat completions API. DeepSeek reuses it with its own base URL.
type OpenAIAdapter struct {
	platform   models.Platform
	creds      config.Credentials
	searcher   search.Provider
	maxResults int
	analyzer   *analyzer.Analyzer
	client     *openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(creds config.Credentials, searcher search.Provider, maxResults int, a *analyzer.Analyzer) *OpenAIAdapter {
	return newChatCompletionAdapter(models.PlatformOpenAI, creds, searcher, maxResults, a)
}

func newChatCompletionAdapter(platform models.Platform, creds config.Credentials, searcher search.Provider, maxResults int, a *analyzer.Analyzer) *OpenAIAdapter {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	clientConfig := openai.DefaultConfig(creds.APIKey)
	clientConfig.BaseURL = creds.BaseURL
	clientConfig.HTTPClient = httpclient.New(string(platform), creds.Timeout, nil).HTTPClient()

	return &OpenAIAdapter{
		platform:   platform,
		creds:      creds,
		searcher:   searcher,
		maxResults: maxResults,
		analyzer:   a,
		client:     openai.NewClientWithConfig(clientConfig),
	}
}

func (o *OpenAIAdapter) Platform() models.Platform {
	return o.platform
}

func (o *OpenAIAdapter) IsEnabled() bool {
	return o.creds.APIKey != "" && o.searcher.IsEnabled()
}

// Timeout covers the search call and the model call in sequence
func (o *OpenAIAdapter) Timeout() time.Duration {
	return o.searcher.Timeout() + o.creds.Timeout + timeoutMargin
}

func (o *OpenAIAdapter) Secrets() []string {
	return []string{o.creds.APIKey}
}

func (o *OpenAIAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	if o.creds.APIKey == "" {
		return nil, apperrors.NewConfigurationError(string(o.platform), "API key is not configured")
	}
	if !o.searcher.IsEnabled() {
		return nil, apperrors.NewConfigurationError(string(o.platform), "search provider %s is not configured", o.searcher.Name())
	}

	results, err := o.searcher.Search(ctx, query.Query, o.maxResults)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.creds.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: searchThenAskSystemPrompt(query)},
			{Role: openai.ChatMessageRoleUser, Content: searchThenAskUserPrompt(query, results)},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, openAIError(string(o.platform), err)
	}
	if len(resp.Choices) == 0 {
		return nil, &apperrors.UpstreamError{Provider: string(o.platform), StatusCode: 200, Message: "response contained no choices"}
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return nil, &apperrors.UpstreamError{
			Provider:   string(o.platform),
			StatusCode: 200,
			Message:    fmt.Sprintf("empty answer (finish_reason %s)", resp.Choices[0].FinishReason),
		}
	}
	urls := candidateURLs(answer, citedResults(answer, results))

	logrus.WithFields(logrus.Fields{
		"check_id":       check.ID,
		"platform":       o.platform,
		"search_results": len(results),
		"sources":        len(urls),
	}).Debug("Chat completion answered")

	model := resp.Model
	if model == "" {
		model = o.creds.Model
	}
	return analyzedResult(o.analyzer, query, answer, urls, searchSources(results), map[string]interface{}{
		"model":           model,
		"search_provider": o.searcher.Name(),
		"search_results":  len(results),
		"usage": map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}), nil
}

// openAIError maps SDK errors onto UpstreamError
func openAIError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperrors.UpstreamError{
			Provider:   provider,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperrors.UpstreamError{
			Provider:   provider,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    "request failed",
			Cause:      reqErr.Err,
		}
	}

	return &apperrors.UpstreamError{Provider: provider, Message: "request failed", Cause: err}
}
