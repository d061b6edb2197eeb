package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lasko44/geosource-sub001/internal/models"
)

// TeamsChannel posts digests to a Microsoft Teams incoming webhook
type TeamsChannel struct {
	webhookURL string
	client     *resty.Client
}

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewTeamsChannel creates a new Teams channel
func NewTeamsChannel(webhookURL string) *TeamsChannel {
	return &TeamsChannel{
		webhookURL: webhookURL,
		client:     resty.New().SetTimeout(30 * time.Second),
	}
}

func (t *TeamsChannel) Name() string {
	return "teams"
}

func (t *TeamsChannel) Send(ctx context.Context, digest *Digest) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildTeamsMessage(digest)).
		Post(t.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func buildTeamsMessage(digest *Digest) *TeamsMessage {
	gained, lost := digest.Counts()

	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: "0078D4",
		Title:      fmt.Sprintf("Citation changes - %d new, %d lost", gained, lost),
		Text:       fmt.Sprintf("Generated %s", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC")),
	}

	for _, item := range digest.Items {
		status := "Now cited"
		if item.Alert.Type == models.AlertLostCitation {
			status = "No longer cited"
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle:    fmt.Sprintf("**%s** on %s", status, item.Alert.Platform),
			ActivitySubtitle: item.Alert.CreatedAt.Format("Jan 2, 15:04 UTC"),
			ActivityText:     item.Alert.Message,
			Facts: []TeamsFact{
				{Name: "Query", Value: item.Query},
				{Name: "Domain", Value: item.Domain},
			},
			Markdown: true,
		})
	}

	return message
}
