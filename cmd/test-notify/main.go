package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/metrics"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/notifications"
	"github.com/lasko44/geosource-sub001/internal/storage"
)

// consoleChannel prints the digest to the terminal
type consoleChannel struct{}

func (consoleChannel) Name() string { return "console" }

func (consoleChannel) Send(ctx context.Context, digest *notifications.Digest) error {
	gained, lost := digest.Counts()
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📊 CITATION CHANGES")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("🕒 Generated: %s\n", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("📈 New citations: %d   📉 Lost citations: %d\n\n", gained, lost)
	for i, item := range digest.Items {
		emoji := "📉"
		if item.Alert.Type == models.AlertNewCitation {
			emoji = "📈"
		}
		fmt.Printf("   %d. %s [%s] %s\n", i+1, emoji, item.Alert.Platform, item.Alert.Message)
	}
	return nil
}

func main() {
	send := flag.Bool("send", false, "also deliver the sample digest through the configured Teams and email channels")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	repo := storage.NewRepository(storage.NewMemoryStorage())
	if err := seedSampleAlerts(ctx, repo); err != nil {
		log.Fatalf("Failed to seed sample alerts: %v", err)
	}

	channels := []notifications.Channel{consoleChannel{}}
	if *send {
		configured := notifications.ConfiguredChannels(cfg)
		if len(configured) == 0 {
			fmt.Println("⚠️  No Teams webhook or notification email configured")
		}
		channels = append(channels, configured...)
	}

	service := notifications.NewServiceWithChannels(repo, metrics.Nop{}, channels...)
	if err := service.Deliver(ctx); err != nil {
		log.Fatalf("❌ Delivery failed: %v", err)
	}

	pending, err := repo.ListUndeliveredAlerts(ctx)
	if err != nil {
		log.Fatalf("Failed to list alerts: %v", err)
	}
	fmt.Printf("\n✅ Delivery completed, %d alerts still pending\n", len(pending))
}

func seedSampleAlerts(ctx context.Context, repo *storage.Repository) error {
	now := time.Now().UTC()
	brand := "Example Co"
	query := &models.CitationQuery{
		ID:        uuid.NewString(),
		Query:     "best project management tools",
		Domain:    "example.com",
		Brand:     &brand,
		Active:    true,
		Frequency: models.FrequencyDaily,
		CreatedAt: now,
	}
	if err := repo.SaveQuery(ctx, query); err != nil {
		return err
	}

	samples := []struct {
		alertType models.AlertType
		platform  models.Platform
		message   string
	}{
		{models.AlertNewCitation, models.PlatformPerplexity, "Example Co (example.com) is now cited by perplexity for \"best project management tools\""},
		{models.AlertNewCitation, models.PlatformGoogle, "Example Co (example.com) is now cited by google for \"best project management tools\""},
		{models.AlertLostCitation, models.PlatformClaude, "Example Co (example.com) is no longer cited by claude for \"best project management tools\""},
	}
	for i, s := range samples {
		alert := &models.CitationAlert{
			ID:        uuid.NewString(),
			QueryID:   query.ID,
			CheckID:   uuid.NewString(),
			Type:      s.alertType,
			Platform:  s.platform,
			Message:   s.message,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveAlert(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}
