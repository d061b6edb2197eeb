package platforms

import (
	"context"
	"time"

	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/serp"
	"github.com/sirupsen/logrus"
)

// GoogleAdapter checks Google web results, the AI overview and the knowledge graph
type GoogleAdapter struct {
	serp *serp.Client
}

// NewGoogleAdapter creates a new Google adapter
func NewGoogleAdapter(client *serp.Client) *GoogleAdapter {
	return &GoogleAdapter{serp: client}
}

func (g *GoogleAdapter) Platform() models.Platform {
	return models.PlatformGoogle
}

func (g *GoogleAdapter) IsEnabled() bool {
	return g.serp.IsEnabled()
}

func (g *GoogleAdapter) Timeout() time.Duration {
	return g.serp.Timeout() + timeoutMargin
}

func (g *GoogleAdapter) Secrets() []string {
	return []string{g.serp.APIKey()}
}

func (g *GoogleAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	if !g.IsEnabled() {
		return nil, apperrors.NewConfigurationError(string(g.Platform()), "SERP API key is not configured")
	}

	resp, err := g.serp.Search(ctx, "google", map[string]string{
		"q":   query.Query,
		"num": "10",
		"hl":  "en",
		"gl":  "us",
	})
	if err != nil {
		return nil, err
	}

	m := newTargetMatcher(query)
	var citations []models.Citation

	// The AI overview and knowledge graph sit above the organic results
	if overview := resp.AIOverview; overview != nil {
		text := overview.Text()
		matched := false
		for _, ref := range overview.References {
			if m.match(ref.Link, ref.Title, ref.Snippet, ref.Source) {
				citations = append(citations, models.Citation{
					URL:      ref.Link,
					Title:    ref.Title,
					Snippet:  truncate(ref.Snippet, 300),
					Position: ref.Index,
					Type:     models.CitationTypeAIOverview,
				})
				matched = true
			}
		}
		if !matched && m.match("", text) {
			citations = append(citations, models.Citation{
				Title:   "Google AI Overview",
				Snippet: truncate(text, 300),
				Type:    models.CitationTypeAIOverview,
			})
		}
	}

	if kg := resp.KnowledgeGraph; kg != nil {
		link := kg.Website
		if link == "" {
			link = kg.Source.Link
		}
		if m.match(link, kg.Title, kg.Description, kg.Source.Name) {
			citations = append(citations, models.Citation{
				URL:     link,
				Title:   kg.Title,
				Snippet: truncate(kg.Description, 300),
				Type:    models.CitationTypeKnowledgeGraph,
			})
		}
	}

	var top []resultLine
	for i, r := range resp.OrganicResults {
		position := r.Position
		if position == 0 {
			position = i + 1
		}
		top = append(top, resultLine{position: position, title: r.Title, link: r.Link})
		if m.match(r.Link, r.Title, r.Snippet, r.Source) {
			citations = append(citations, models.Citation{
				URL:      r.Link,
				Title:    r.Title,
				Snippet:  truncate(r.Snippet, 300),
				Position: position,
				Type:     models.CitationTypeOrganic,
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"check_id": check.ID,
		"platform": g.Platform(),
		"results":  len(resp.OrganicResults),
		"matches":  len(citations),
	}).Debug("Google results matched")

	result := serpResult("google", query.Query, "Google Search", m, citations, top)
	result.Metadata["has_ai_overview"] = resp.AIOverview != nil
	result.Metadata["has_knowledge_graph"] = resp.KnowledgeGraph != nil
	return result, nil
}
