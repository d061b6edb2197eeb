package apperrors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ConfigurationError reports missing or invalid credentials. It is never retried.
type ConfigurationError struct {
	Platform string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Platform, e.Message)
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(platform, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Platform: platform, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError reports a non-2xx or malformed response from a third-party API
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Body       string
	Cause      error
}

func (e *UpstreamError) Error() string {
	var parts []string
	parts = append(parts, e.Provider, "upstream error")
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("(HTTP %d)", e.StatusCode))
	}
	msg := strings.Join(parts, " ")
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// NoResultsError reports an empty search step for a search-then-ask adapter.
// It is terminal for the check, like an UpstreamError.
type NoResultsError struct {
	Provider string
	Query    string
}

func (e *NoResultsError) Error() string {
	return fmt.Sprintf("%s returned no search results for %q", e.Provider, e.Query)
}

// IsConfiguration reports whether err is a ConfigurationError
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsUpstream reports whether err is an UpstreamError or a NoResultsError
func IsUpstream(err error) bool {
	var upErr *UpstreamError
	var noRes *NoResultsError
	return errors.As(err, &upErr) || errors.As(err, &noRes)
}

// StatusCode extracts the upstream HTTP status, 0 when unknown
func StatusCode(err error) int {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}

const redacted = "[REDACTED]"

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`),
	regexp.MustCompile(`(?i)((?:api_key|apikey|key|token|access_token)=)[^&\s"']+`),
	regexp.MustCompile(`(?i)("(?:api_key|apikey|x-api-key|authorization)"\s*:\s*")[^"]+`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`),
	regexp.MustCompile(`\btvly-[A-Za-z0-9_\-]{8,}`),
	regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{20,}`),
}

// Sanitize strips credentials from a message: the given secrets verbatim plus
// anything shaped like a bearer token, key query parameter or provider key.
func Sanitize(msg string, secrets ...string) string {
	for _, secret := range secrets {
		if len(secret) < 4 {
			continue
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}
	for _, re := range secretPatterns {
		if re.NumSubexp() > 0 {
			msg = re.ReplaceAllString(msg, "${1}"+redacted)
		} else {
			msg = re.ReplaceAllString(msg, redacted)
		}
	}
	return msg
}

// PublicMessage renders err as the human-readable message stored on a failed check
func PublicMessage(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	var cfgErr *ConfigurationError
	var upErr *UpstreamError
	var noRes *NoResultsError

	var msg string
	switch {
	case errors.As(err, &cfgErr):
		msg = cfgErr.Error()
	case errors.As(err, &noRes):
		msg = noRes.Error()
	case errors.As(err, &upErr):
		msg = fmt.Sprintf("%s request failed", upErr.Provider)
		if upErr.StatusCode > 0 {
			msg += fmt.Sprintf(" with HTTP %d", upErr.StatusCode)
		}
		if upErr.Message != "" {
			msg += ": " + upErr.Message
		} else if upErr.Cause != nil {
			msg += ": " + upErr.Cause.Error()
		}
	default:
		msg = err.Error()
	}

	return truncate(Sanitize(msg, secrets...), maxMessageLength)
}

const maxMessageLength = 500

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
