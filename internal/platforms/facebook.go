package platforms

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/serp"
	"github.com/sirupsen/logrus"
)

// FacebookAdapter checks Google results restricted to facebook.com
type FacebookAdapter struct {
	serp *serp.Client
}

// NewFacebookAdapter creates a new Facebook adapter
func NewFacebookAdapter(client *serp.Client) *FacebookAdapter {
	return &FacebookAdapter{serp: client}
}

func (f *FacebookAdapter) Platform() models.Platform {
	return models.PlatformFacebook
}

func (f *FacebookAdapter) IsEnabled() bool {
	return f.serp.IsEnabled()
}

func (f *FacebookAdapter) Timeout() time.Duration {
	return f.serp.Timeout() + timeoutMargin
}

func (f *FacebookAdapter) Secrets() []string {
	return []string{f.serp.APIKey()}
}

func (f *FacebookAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	if !f.IsEnabled() {
		return nil, apperrors.NewConfigurationError(string(f.Platform()), "SERP API key is not configured")
	}

	terms := []string{"site:facebook.com", query.Query}
	if brand := query.BrandName(); brand != "" {
		terms = append(terms, brand)
	}
	terms = append(terms, analyzer.NormalizeDomain(query.Domain))
	searchQuery := strings.Join(terms, " ")

	resp, err := f.serp.Search(ctx, "google", map[string]string{
		"q":   searchQuery,
		"num": "10",
	})
	if err != nil {
		return nil, err
	}

	m := newTargetMatcher(query)
	var citations []models.Citation
	var top []resultLine
	for i, r := range resp.OrganicResults {
		position := r.Position
		if position == 0 {
			position = i + 1
		}
		top = append(top, resultLine{position: position, title: r.Title, link: r.Link})
		// The link host is facebook.com, so only the text can name the target
		if m.match("", r.Title, r.Snippet) {
			citations = append(citations, models.Citation{
				URL:      r.Link,
				Title:    r.Title,
				Snippet:  truncate(r.Snippet, 300),
				Position: position,
				Type:     facebookCitationType(r.Link),
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"check_id": check.ID,
		"platform": f.Platform(),
		"results":  len(resp.OrganicResults),
		"matches":  len(citations),
	}).Debug("Facebook results matched")

	return serpResult("google", searchQuery, "Facebook", m, citations, top), nil
}

// facebookCitationType infers the kind of Facebook page from its URL path
func facebookCitationType(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return models.CitationTypeFacebookPage
	}
	path := strings.ToLower(u.Path)
	switch {
	case strings.Contains(path, "/posts/") || strings.Contains(path, "/permalink"):
		return models.CitationTypeFacebookPost
	case strings.Contains(path, "/videos/") || strings.HasPrefix(path, "/watch") || strings.Contains(path, "/reel/"):
		return models.CitationTypeFacebookVideo
	case strings.HasPrefix(path, "/groups/"):
		return models.CitationTypeFacebookGroup
	case strings.HasPrefix(path, "/events/"):
		return models.CitationTypeFacebookEvent
	}
	return models.CitationTypeFacebookPage
}
