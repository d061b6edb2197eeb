package platforms

import (
	"context"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/serp"
	"github.com/sirupsen/logrus"
)

// YouTubeAdapter checks YouTube search results for videos about the target
type YouTubeAdapter struct {
	serp *serp.Client
}

// NewYouTubeAdapter creates a new YouTube adapter
func NewYouTubeAdapter(client *serp.Client) *YouTubeAdapter {
	return &YouTubeAdapter{serp: client}
}

func (y *YouTubeAdapter) Platform() models.Platform {
	return models.PlatformYouTube
}

func (y *YouTubeAdapter) IsEnabled() bool {
	return y.serp.IsEnabled()
}

func (y *YouTubeAdapter) Timeout() time.Duration {
	return y.serp.Timeout() + timeoutMargin
}

func (y *YouTubeAdapter) Secrets() []string {
	return []string{y.serp.APIKey()}
}

func (y *YouTubeAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	if !y.IsEnabled() {
		return nil, apperrors.NewConfigurationError(string(y.Platform()), "SERP API key is not configured")
	}

	searchQuery := strings.TrimSpace(query.Query + " " + query.BrandName())
	resp, err := y.serp.Search(ctx, "youtube", map[string]string{
		"search_query": searchQuery,
	})
	if err != nil {
		return nil, err
	}

	m := newTargetMatcher(query)
	var citations []models.Citation
	var top []resultLine
	for i, v := range resp.VideoResults {
		position := v.PositionOnPage
		if position == 0 {
			position = i + 1
		}
		top = append(top, resultLine{position: position, title: v.Title, link: v.Link})
		if m.match(v.Channel.Link, v.Title, v.Description, v.Channel.Name) {
			citations = append(citations, models.Citation{
				URL:      v.Link,
				Title:    v.Title,
				Snippet:  truncate(v.Description, 300),
				Position: position,
				Type:     models.CitationTypeYouTubeVideo,
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"check_id": check.ID,
		"platform": y.Platform(),
		"results":  len(resp.VideoResults),
		"matches":  len(citations),
	}).Debug("YouTube results matched")

	return serpResult("youtube", searchQuery, "YouTube", m, citations, top), nil
}
