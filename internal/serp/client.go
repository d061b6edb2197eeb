package serp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/httpclient"
)

// Client calls a SerpAPI-style search results endpoint
type Client struct {
	apiKey  string
	baseURL string
	http    *httpclient.Client
}

// OrganicResult is a regular web result
type OrganicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Source   string `json:"source"`
}

// AIOverview is Google's generated answer block
type AIOverview struct {
	TextBlocks []struct {
		Type    string `json:"type"`
		Snippet string `json:"snippet"`
		List    []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"list"`
	} `json:"text_blocks"`
	References []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Source  string `json:"source"`
		Index   int    `json:"index"`
	} `json:"references"`
}

// Text flattens the overview text blocks
func (a *AIOverview) Text() string {
	if a == nil {
		return ""
	}
	var parts []string
	for _, block := range a.TextBlocks {
		if block.Snippet != "" {
			parts = append(parts, block.Snippet)
		}
		for _, item := range block.List {
			parts = append(parts, strings.TrimSpace(item.Title+" "+item.Snippet))
		}
	}
	return strings.Join(parts, " ")
}

// KnowledgeGraph is the entity panel shown beside results
type KnowledgeGraph struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Source      struct {
		Name string `json:"name"`
		Link string `json:"link"`
	} `json:"source"`
}

// VideoResult is a YouTube search hit
type VideoResult struct {
	PositionOnPage int    `json:"position_on_page"`
	Title          string `json:"title"`
	Link           string `json:"link"`
	Description    string `json:"description"`
	Channel        struct {
		Name string `json:"name"`
		Link string `json:"link"`
	} `json:"channel"`
	PublishedDate string `json:"published_date"`
	Views         int64  `json:"views"`
}

// Response is the subset of the SERP payload the adapters use
type Response struct {
	SearchMetadata struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"search_metadata"`
	OrganicResults []OrganicResult `json:"organic_results"`
	AIOverview     *AIOverview     `json:"ai_overview,omitempty"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph,omitempty"`
	VideoResults   []VideoResult   `json:"video_results"`
	Error          string          `json:"error,omitempty"`
}

// NewClient creates a new SERP client
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpclient.New("serpapi", timeout, nil),
	}
}

// IsEnabled reports whether an API key is configured
func (c *Client) IsEnabled() bool {
	return c.apiKey != ""
}

// APIKey is exposed so callers can redact it from messages
func (c *Client) APIKey() string {
	return c.apiKey
}

// Timeout returns the per-call timeout
func (c *Client) Timeout() time.Duration {
	return c.http.Timeout()
}

// Search runs engine with params. The api_key and engine parameters are added here.
func (c *Client) Search(ctx context.Context, engine string, params map[string]string) (*Response, error) {
	if !c.IsEnabled() {
		return nil, apperrors.NewConfigurationError("serpapi", "SERP API key is not configured")
	}

	query := map[string]string{
		"engine":  engine,
		"api_key": c.apiKey,
	}
	for k, v := range params {
		query[k] = v
	}

	var resp Response
	if err := c.http.SendJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + "/search.json",
		Query:  query,
	}, &resp); err != nil {
		return nil, err
	}

	// SerpAPI reports some failures, such as an exhausted plan, with a 200 status
	if resp.Error != "" && !strings.Contains(strings.ToLower(resp.Error), "hasn't returned any results") {
		return nil, &apperrors.UpstreamError{
			Provider:   "serpapi",
			StatusCode: http.StatusOK,
			Message:    resp.Error,
		}
	}

	return &resp, nil
}
