package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Service delivers undelivered alerts to the configured channels. Delivery
// sets NotifiedAt and never touches the read flag.
type Service struct {
	store    AlertStore
	channels []Channel
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewService creates a notification service with the channels enabled in cfg
func NewService(cfg *config.Config, store AlertStore, recorder metrics.Recorder) *Service {
	return NewServiceWithChannels(store, recorder, ConfiguredChannels(cfg)...)
}

// ConfiguredChannels builds the Teams and email channels that cfg enables
func ConfiguredChannels(cfg *config.Config) []Channel {
	var channels []Channel
	if cfg.TeamsWebhookURL != "" {
		channels = append(channels, NewTeamsChannel(cfg.TeamsWebhookURL))
	}
	if cfg.NotificationEmail != "" {
		channels = append(channels, NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.NotificationEmail))
	}
	return channels
}

// NewServiceWithChannels creates a notification service with explicit channels
func NewServiceWithChannels(store AlertStore, recorder metrics.Recorder, channels ...Channel) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		store:    store,
		channels: channels,
		metrics:  recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Channels returns the configured channel names
func (s *Service) Channels() []string {
	names := make([]string, 0, len(s.channels))
	for _, c := range s.channels {
		names = append(names, c.Name())
	}
	return names
}

// Deliver sends one digest of all undelivered alerts. Alerts are marked as
// notified when at least one channel accepted the digest.
func (s *Service) Deliver(ctx context.Context) error {
	if len(s.channels) == 0 {
		logrus.Debug("No notification channels configured, skipping delivery")
		return nil
	}

	alerts, err := s.store.ListUndeliveredAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list undelivered alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	digest := &Digest{GeneratedAt: s.now()}
	queries := make(map[string][2]string)
	for _, alert := range alerts {
		info, ok := queries[alert.QueryID]
		if !ok {
			if q, err := s.store.LoadQuery(ctx, alert.QueryID); err == nil {
				info = [2]string{q.Query, q.Domain}
			} else {
				logrus.Warnf("Failed to load query %s for alert %s: %v", alert.QueryID, alert.ID, err)
			}
			queries[alert.QueryID] = info
		}
		digest.Items = append(digest.Items, DigestItem{Alert: alert, Query: info[0], Domain: info[1]})
	}

	var errs []string
	delivered := 0
	for _, channel := range s.channels {
		if err := channel.Send(ctx, digest); err != nil {
			logrus.Errorf("Failed to send %s notification: %v", channel.Name(), err)
			errs = append(errs, fmt.Sprintf("%s: %v", channel.Name(), err))
			s.metrics.RecordNotification(channel.Name(), false)
			continue
		}
		delivered++
		s.metrics.RecordNotification(channel.Name(), true)
		logrus.Infof("Sent %d alerts via %s", len(alerts), channel.Name())
	}

	if delivered > 0 {
		now := s.now()
		for _, alert := range alerts {
			if err := s.store.MarkAlertNotified(ctx, alert.QueryID, alert.ID, now); err != nil {
				logrus.Errorf("Failed to mark alert %s as notified: %v", alert.ID, err)
				errs = append(errs, fmt.Sprintf("mark %s: %v", alert.ID, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
