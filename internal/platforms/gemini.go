package platforms

import (
	"context"
	"fmt"
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

// GeminiAdapter calls generateContent with the google_search grounding tool
type GeminiAdapter struct {
	creds    config.Credentials
	analyzer *analyzer.Analyzer
	http     *httpclient.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction geminiContent            `json:"systemInstruction"`
	Tools             []map[string]interface{} `json:"tools"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		FinishReason      string        `json:"finishReason"`
		GroundingMetadata struct {
			WebSearchQueries []string `json:"webSearchQueries"`
			GroundingChunks  []struct {
				Web struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(creds config.Credentials, a *analyzer.Analyzer) *GeminiAdapter {
	return &GeminiAdapter{
		creds:    creds,
		analyzer: a,
		http:     httpclient.New("gemini", creds.Timeout, map[string]string{"Content-Type": "application/json"}),
	}
}

func (g *GeminiAdapter) Platform() models.Platform {
	return models.PlatformGemini
}

func (g *GeminiAdapter) IsEnabled() bool {
	return g.creds.APIKey != ""
}

func (g *GeminiAdapter) Timeout() time.Duration {
	return g.creds.Timeout + timeoutMargin
}

func (g *GeminiAdapter) Secrets() []string {
	return []string{g.creds.APIKey}
}

func (g *GeminiAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	if !g.IsEnabled() {
		return nil, apperrors.NewConfigurationError(string(g.Platform()), "API key is not configured")
	}

	req := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: query.Query}}}},
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: groundedSystemPrompt(query)}}},
		Tools:             []map[string]interface{}{{"google_search": map[string]interface{}{}}},
	}
	req.GenerationConfig.Temperature = defaultTemperature
	req.GenerationConfig.MaxOutputTokens = defaultMaxTokens

	// The key travels in a header so it never appears in a logged URL
	var resp geminiResponse
	err := g.http.SendJSON(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     g.creds.BaseURL + "/models/" + g.creds.Model + ":generateContent",
		Headers: map[string]string{"x-goog-api-key": g.creds.APIKey},
		Body:    req,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		msg := "response contained no candidates"
		if resp.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return nil, &apperrors.UpstreamError{Provider: "gemini", StatusCode: http.StatusOK, Message: msg}
	}

	candidate := resp.Candidates[0]
	var parts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	answer := strings.TrimSpace(strings.Join(parts, "\n"))
	if answer == "" {
		return nil, &apperrors.UpstreamError{
			Provider:   "gemini",
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("empty answer (finishReason %s)", candidate.FinishReason),
		}
	}

	// Grounding URIs are usually redirect links; the chunk title carries the
	// source site, so it is kept as an extra candidate.
	sources := make(map[string]sourceInfo)
	var structured []string
	for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
		if chunk.Web.URI == "" {
			continue
		}
		structured = append(structured, chunk.Web.URI)
		sources[chunk.Web.URI] = sourceInfo{title: chunk.Web.Title}
		if site := groundingSite(chunk.Web.Title); site != "" {
			structured = append(structured, site)
			sources[site] = sourceInfo{title: chunk.Web.Title}
		}
	}
	urls := candidateURLs(answer, structured)

	logrus.WithFields(logrus.Fields{
		"check_id": check.ID,
		"platform": g.Platform(),
		"sources":  len(urls),
	}).Debug("Gemini answered")

	model := resp.ModelVersion
	if model == "" {
		model = g.creds.Model
	}
	return analyzedResult(g.analyzer, query, answer, urls, sources, map[string]interface{}{
		"model":              model,
		"web_search_queries": candidate.GroundingMetadata.WebSearchQueries,
		"usage": map[string]int{
			"prompt_tokens":     resp.UsageMetadata.PromptTokenCount,
			"completion_tokens": resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens":      resp.UsageMetadata.TotalTokenCount,
		},
	}), nil
}

// groundingSite turns a chunk title such as "example.com" into a URL
func groundingSite(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" || strings.ContainsAny(title, " /") || !strings.Contains(title, ".") {
		return ""
	}
	return "https://" + title
}
