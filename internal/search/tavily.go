package search

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/httpclient"
	"github.com/sirupsen/logrus"
)

// Result is a single ranked web search hit
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Provider performs third-party web search for models without native browsing
type Provider interface {
	Name() string
	IsEnabled() bool
	Timeout() time.Duration
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// TavilyProvider implements Provider against the Tavily search API
type TavilyProvider struct {
	apiKey  string
	baseURL string
	depth   string
	http    *httpclient.Client
}

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Ensure TavilyProvider implements Provider
var _ Provider = (*TavilyProvider)(nil)

// NewTavilyProvider creates a new Tavily search provider
func NewTavilyProvider(apiKey, baseURL, depth string, timeout time.Duration) *TavilyProvider {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	if depth == "" {
		depth = "basic"
	}
	return &TavilyProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		depth:   depth,
		http:    httpclient.New("tavily", timeout, nil),
	}
}

func (t *TavilyProvider) Name() string {
	return "tavily"
}

func (t *TavilyProvider) IsEnabled() bool {
	return t.apiKey != ""
}

func (t *TavilyProvider) Timeout() time.Duration {
	return t.http.Timeout()
}

// Search returns up to maxResults results. An empty result set is a NoResultsError.
func (t *TavilyProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if !t.IsEnabled() {
		return nil, apperrors.NewConfigurationError("tavily", "search API key is not configured")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	var resp tavilyResponse
	err := t.http.SendJSON(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     t.baseURL + "/search",
		Headers: map[string]string{"Authorization": "Bearer " + t.apiKey},
		Body: tavilyRequest{
			Query:       query,
			SearchDepth: t.depth,
			MaxResults:  maxResults,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
		if len(results) == maxResults {
			break
		}
	}

	if len(results) == 0 {
		return nil, &apperrors.NoResultsError{Provider: t.Name(), Query: query}
	}

	logrus.Debugf("Tavily returned %d results for %q", len(results), query)
	return results, nil
}
