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
	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/platforms"
)

func main() {
	queryText := flag.String("query", "best project management tools", "query to ask each platform")
	domain := flag.String("domain", "example.com", "domain to look for")
	brand := flag.String("brand", "", "optional brand name to look for")
	only := flag.String("platform", "", "check a single platform")
	flag.Parse()

	fmt.Println("🔍 Citation Checker - Platform Connectivity Test")
	fmt.Println("================================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	query := models.CitationQuery{
		ID:        uuid.NewString(),
		Query:     *queryText,
		Domain:    *domain,
		Active:    true,
		Frequency: models.FrequencyManual,
		CreatedAt: time.Now().UTC(),
	}
	if *brand != "" {
		query.Brand = brand
	}

	registry := platforms.BuildRegistry(cfg, analyzer.New(cfg.TextMentionThreshold))
	targets := registry.Platforms()
	if *only != "" {
		p, err := models.ParsePlatform(*only)
		if err != nil {
			log.Fatalf("Invalid -platform: %v", err)
		}
		targets = []models.Platform{p}
	}

	fmt.Printf("\n📡 Checking %q for %s...\n", query.Query, query.Domain)
	fmt.Println(strings.Repeat("-", 48))

	for _, p := range targets {
		adapter, ok := registry.Get(p)
		if !ok {
			fmt.Printf("🔸 %s... ⚠️  NOT ENABLED\n", p)
			continue
		}
		testPlatform(adapter, query, cfg.Secrets())
	}

	fmt.Println("\n✅ Platform test completed!")
}

func testPlatform(adapter platforms.Adapter, query models.CitationQuery, secrets []string) {
	fmt.Printf("🔸 %s... ", adapter.Platform())

	if !adapter.IsEnabled() {
		fmt.Printf("⚠️  DISABLED (missing API key)\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), adapter.Timeout())
	defer cancel()

	check := *models.NewCheck(uuid.NewString(), query.ID, adapter.Platform(), time.Now().UTC())
	start := time.Now()
	result, err := adapter.Check(ctx, query, check)
	elapsed := time.Since(start).Round(time.Millisecond)

	// A failure is not a "not cited" verdict
	if err != nil {
		fmt.Printf("❌ FAILED after %s: %s\n", elapsed, apperrors.PublicMessage(err, append(secrets, adapter.Secrets()...)...))
		return
	}

	verdict := "➖ NOT CITED"
	if result.IsCited {
		verdict = "✅ CITED"
	}
	fmt.Printf("%s (confidence %v, %d citations, %s)\n", verdict, result.Metadata["confidence"], len(result.Citations), elapsed)

	for i, c := range result.Citations {
		if i == 3 {
			fmt.Printf("   ... %d more\n", len(result.Citations)-i)
			break
		}
		target := c.URL
		if target == "" {
			target = c.Snippet
		}
		fmt.Printf("   📝 [%s] %s\n", c.Type, target)
	}
}
