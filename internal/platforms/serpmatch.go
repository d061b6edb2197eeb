package platforms

import (
	"fmt"
	"strings"

	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/models"
)

// targetMatcher does the pattern matching for search-result platforms, which
// have no free-form answer to analyze.
type targetMatcher struct {
	domain string
	brand  string

	linkHits int
	textHits int
}

func newTargetMatcher(query models.CitationQuery) *targetMatcher {
	return &targetMatcher{
		domain: analyzer.NormalizeDomain(query.Domain),
		brand:  strings.TrimSpace(query.BrandName()),
	}
}

// match reports whether link points at the domain or any text mentions the
// bare domain or brand, case-insensitively.
func (m *targetMatcher) match(link string, texts ...string) bool {
	if m.domain != "" && link != "" && analyzer.URLMatches(link, m.domain) {
		m.linkHits++
		return true
	}
	for _, text := range texts {
		if m.domain != "" && analyzer.ContainsFold(text, m.domain) {
			m.textHits++
			return true
		}
		if m.brand != "" && analyzer.ContainsFold(text, m.brand) {
			m.textHits++
			return true
		}
	}
	return false
}

// confidence is 1 when a result links to the domain and lower when only the
// text mentions it.
func (m *targetMatcher) confidence() float64 {
	switch {
	case m.linkHits > 0:
		return 1.0
	case m.textHits > 0:
		return 0.7
	}
	return 0
}

func (m *targetMatcher) target() string {
	if m.brand != "" {
		return fmt.Sprintf("%s (%s)", m.domain, m.brand)
	}
	return m.domain
}

type resultLine struct {
	position int
	title    string
	link     string
}

// serpSummary synthesizes the human-readable AIResponse for a search-result check
func serpSummary(label, searchQuery string, m *targetMatcher, citations []models.Citation, top []resultLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s results for %q\n", label, searchQuery)
	if len(citations) > 0 {
		fmt.Fprintf(&b, "%s was found in %d result(s):\n", m.target(), len(citations))
		for _, c := range citations {
			fmt.Fprintf(&b, "- [%s] #%d %s %s\n", c.Type, c.Position, c.Title, c.URL)
		}
	} else {
		fmt.Fprintf(&b, "%s was not found in the results.\n", m.target())
	}

	if len(top) > 0 {
		b.WriteString("Top results:\n")
		for i, r := range top {
			if i == summaryTopResults {
				break
			}
			fmt.Fprintf(&b, "%d. %s %s\n", r.position, r.title, r.link)
		}
	}
	return strings.TrimSpace(b.String())
}

func serpResult(engine, searchQuery, label string, m *targetMatcher, citations []models.Citation, top []resultLine) *models.CheckResult {
	if citations == nil {
		citations = []models.Citation{}
	}
	return &models.CheckResult{
		IsCited:    len(citations) > 0,
		AIResponse: serpSummary(label, searchQuery, m, citations, top),
		Citations:  citations,
		Metadata: map[string]interface{}{
			"engine":        engine,
			"search_query":  searchQuery,
			"results_count": len(top),
			"match_count":   len(citations),
			"confidence":    m.confidence(),
		},
	}
}
