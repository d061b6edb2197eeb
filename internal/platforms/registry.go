package platforms

import (
	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/search"
	"github.com/lasko44/geosource-sub001/internal/serp"
)

// Registry maps each platform to its adapter. The set of platforms is closed.
type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a registry from prebuilt adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// BuildRegistry constructs the adapters for every platform enabled in cfg.
// Credentials are injected here once; adapters never read configuration later.
func BuildRegistry(cfg *config.Config, a *analyzer.Analyzer) *Registry {
	searcher := search.NewTavilyProvider(cfg.Tavily.APIKey, cfg.Tavily.BaseURL, cfg.SearchDepth, cfg.Tavily.Timeout)
	serpClient := serp.NewClient(cfg.SerpAPI.APIKey, cfg.SerpAPI.BaseURL, cfg.SerpAPI.Timeout)
	maxResults := cfg.SearchMaxResults

	all := []Adapter{
		NewPerplexityAdapter(cfg.Perplexity, a),
		NewOpenAIAdapter(cfg.OpenAI, searcher, maxResults, a),
		NewClaudeAdapter(cfg.Claude, searcher, maxResults, a),
		NewGeminiAdapter(cfg.Gemini, a),
		NewDeepSeekAdapter(cfg.DeepSeek, searcher, maxResults, a),
		NewGoogleAdapter(serpClient),
		NewYouTubeAdapter(serpClient),
		NewFacebookAdapter(serpClient),
	}

	var enabled []Adapter
	for _, adapter := range all {
		if cfg.IsPlatformEnabled(adapter.Platform()) {
			enabled = append(enabled, adapter)
		}
	}
	return NewRegistry(enabled...)
}

// Get returns the adapter for p
func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// Platforms returns the registered platforms in display order
func (r *Registry) Platforms() []models.Platform {
	var platforms []models.Platform
	for _, p := range models.AllPlatforms {
		if _, ok := r.adapters[p]; ok {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

// Enabled returns the registered platforms whose credentials are configured
func (r *Registry) Enabled() []models.Platform {
	var platforms []models.Platform
	for _, p := range r.Platforms() {
		if r.adapters[p].IsEnabled() {
			platforms = append(platforms, p)
		}
	}
	return platforms
}
