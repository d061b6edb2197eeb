package platforms

import (
	"context"
	"time"

	"github.com/lasko44/geosource-sub001/internal/models"
)

// Adapter defines the contract every citation-check platform implements
type Adapter interface {
	Platform() models.Platform
	IsEnabled() bool
	// Timeout is the total wall-clock budget for one check, covering every
	// sequential upstream call the adapter makes.
	Timeout() time.Duration
	// Secrets returns the credentials to redact from error messages
	Secrets() []string
	Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error)
}

const (
	// timeoutMargin is added on top of the upstream call timeouts
	timeoutMargin = 10 * time.Second

	defaultTemperature = 0.2
	defaultMaxTokens   = 1500
	defaultMaxResults  = 10
	summaryTopResults  = 5
)
