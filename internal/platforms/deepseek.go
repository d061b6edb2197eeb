package platforms

import (
	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/search"
)

// NewDeepSeekAdapter creates a search-then-ask adapter for DeepSeek, which
// serves an OpenAI-compatible chat completions API.
func NewDeepSeekAdapter(creds config.Credentials, searcher search.Provider, maxResults int, a *analyzer.Analyzer) *OpenAIAdapter {
	return newChatCompletionAdapter(models.PlatformDeepSeek, creds, searcher, maxResults, a)
}
