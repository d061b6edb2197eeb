package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/models"
)

// Credentials holds what a single upstream adapter needs
type Credentials struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Config holds all configuration for the application. It is loaded once at
// startup and passed by pointer into constructors; nothing mutates it afterwards.
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration (cron expressions with seconds)
	DispatchSchedule string
	NotifySchedule   string

	// Azure Storage configuration
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Generative platforms
	Perplexity Credentials
	OpenAI     Credentials
	Claude     Credentials
	Gemini     Credentials
	DeepSeek   Credentials

	// Search providers
	Tavily           Credentials
	SerpAPI          Credentials
	SearchDepth      string
	SearchMaxResults int

	// Execution limits
	WorkerPoolSize        int
	PlatformConcurrency   int
	PlatformRatePerMinute float64

	// Analysis
	TextMentionThreshold float64

	EnabledPlatforms []models.Platform
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DispatchSchedule: getEnv("DISPATCH_SCHEDULE", "0 */15 * * * *"),
		NotifySchedule:   getEnv("NOTIFY_SCHEDULE", "0 */5 * * * *"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "citations"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		Perplexity: getCredentials("PERPLEXITY", "PERPLEXITY_API_KEY", "sonar", "https://api.perplexity.ai", 60),
		OpenAI:     getCredentials("OPENAI", "OPENAI_API_KEY", "gpt-4o-mini", "https://api.openai.com/v1", 60),
		Claude:     getCredentials("ANTHROPIC", "ANTHROPIC_API_KEY", "claude-3-5-haiku-latest", "https://api.anthropic.com/v1", 90),
		Gemini:     getCredentials("GEMINI", "GEMINI_API_KEY", "gemini-2.0-flash", "https://generativelanguage.googleapis.com/v1beta", 60),
		DeepSeek:   getCredentials("DEEPSEEK", "DEEPSEEK_API_KEY", "deepseek-chat", "https://api.deepseek.com/v1", 90),

		Tavily:           getCredentials("TAVILY", "TAVILY_API_KEY", "", "https://api.tavily.com", 30),
		SerpAPI:          getCredentials("SERPAPI", "SERPAPI_API_KEY", "", "https://serpapi.com", 30),
		SearchDepth:      getEnv("SEARCH_DEPTH", "basic"),
		SearchMaxResults: getIntEnv("SEARCH_MAX_RESULTS", 10),

		WorkerPoolSize:        getIntEnv("WORKER_POOL_SIZE", 4),
		PlatformConcurrency:   getIntEnv("PLATFORM_MAX_CONCURRENCY", 2),
		PlatformRatePerMinute: getFloatEnv("PLATFORM_RATE_PER_MINUTE", 30),

		TextMentionThreshold: getFloatEnv("TEXT_MENTION_THRESHOLD", 0.25),
	}

	platforms, err := parsePlatforms(getSliceEnv("ENABLED_PLATFORMS", nil))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg.EnabledPlatforms = platforms

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be at least 1")
	}

	if c.PlatformConcurrency < 1 {
		return fmt.Errorf("PLATFORM_MAX_CONCURRENCY must be at least 1")
	}

	if c.PlatformRatePerMinute <= 0 {
		return fmt.Errorf("PLATFORM_RATE_PER_MINUTE must be positive")
	}

	if c.SearchDepth != "basic" && c.SearchDepth != "advanced" {
		return fmt.Errorf("SEARCH_DEPTH must be 'basic' or 'advanced'")
	}

	if c.SearchMaxResults < 1 || c.SearchMaxResults > 20 {
		return fmt.Errorf("SEARCH_MAX_RESULTS must be between 1 and 20")
	}

	for name, creds := range map[string]Credentials{
		"PERPLEXITY": c.Perplexity,
		"OPENAI":     c.OpenAI,
		"ANTHROPIC":  c.Claude,
		"GEMINI":     c.Gemini,
		"DEEPSEEK":   c.DeepSeek,
		"TAVILY":     c.Tavily,
		"SERPAPI":    c.SerpAPI,
	} {
		if creds.Timeout <= 0 {
			return fmt.Errorf("%s_TIMEOUT must be a positive number of seconds", name)
		}
	}

	if c.TextMentionThreshold <= 0 || c.TextMentionThreshold > 1 {
		return fmt.Errorf("TEXT_MENTION_THRESHOLD must be in (0, 1]")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// PlatformCredentials returns the upstream credentials an adapter is built with.
// Google, YouTube and Facebook share the SERP API credentials.
func (c *Config) PlatformCredentials(p models.Platform) Credentials {
	switch p {
	case models.PlatformPerplexity:
		return c.Perplexity
	case models.PlatformOpenAI:
		return c.OpenAI
	case models.PlatformClaude:
		return c.Claude
	case models.PlatformGemini:
		return c.Gemini
	case models.PlatformDeepSeek:
		return c.DeepSeek
	case models.PlatformGoogle, models.PlatformYouTube, models.PlatformFacebook:
		return c.SerpAPI
	}
	return Credentials{}
}

// IsPlatformEnabled reports whether p is in ENABLED_PLATFORMS
func (c *Config) IsPlatformEnabled(p models.Platform) bool {
	for _, enabled := range c.EnabledPlatforms {
		if enabled == p {
			return true
		}
	}
	return false
}

// Secrets lists every configured credential so error messages can be redacted
func (c *Config) Secrets() []string {
	var secrets []string
	for _, s := range []string{
		c.Perplexity.APIKey, c.OpenAI.APIKey, c.Claude.APIKey, c.Gemini.APIKey,
		c.DeepSeek.APIKey, c.Tavily.APIKey, c.SerpAPI.APIKey, c.SMTPPassword,
	} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

func parsePlatforms(names []string) ([]models.Platform, error) {
	if len(names) == 0 {
		return append([]models.Platform{}, models.AllPlatforms...), nil
	}
	var platforms []models.Platform
	for _, name := range names {
		p, err := models.ParsePlatform(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, fmt.Errorf("ENABLED_PLATFORMS: %w", err)
		}
		platforms = append(platforms, p)
	}
	return platforms, nil
}

func getCredentials(prefix, keyEnv, defaultModel, defaultBaseURL string, defaultTimeoutSeconds int) Credentials {
	return Credentials{
		APIKey:  getEnv(keyEnv, ""),
		Model:   getEnv(prefix+"_MODEL", defaultModel),
		BaseURL: strings.TrimSuffix(getEnv(prefix+"_BASE_URL", defaultBaseURL), "/"),
		Timeout: time.Duration(getIntEnv(prefix+"_TIMEOUT", defaultTimeoutSeconds)) * time.Second,
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
