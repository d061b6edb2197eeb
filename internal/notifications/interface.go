package notifications

import (
	"context"
	"time"

	"github.com/lasko44/geosource-sub001/internal/models"
)

// Channel delivers an alert digest to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, digest *Digest) error
}

// AlertStore is the persistence the notifier reads from and updates
type AlertStore interface {
	ListUndeliveredAlerts(ctx context.Context) ([]models.CitationAlert, error)
	MarkAlertNotified(ctx context.Context, queryID, id string, now time.Time) error
	LoadQuery(ctx context.Context, id string) (*models.CitationQuery, error)
}

// Digest groups the alerts sent in one delivery run
type Digest struct {
	GeneratedAt time.Time
	Items       []DigestItem
}

// DigestItem is an alert with the query it belongs to
type DigestItem struct {
	Alert  models.CitationAlert
	Query  string
	Domain string
}

// Counts returns the number of new and lost citations in the digest
func (d *Digest) Counts() (gained, lost int) {
	for _, item := range d.Items {
		switch item.Alert.Type {
		case models.AlertNewCitation:
			gained++
		case models.AlertLostCitation:
			lost++
		}
	}
	return gained, lost
}
