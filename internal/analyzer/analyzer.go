package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/lasko44/geosource-sub001/internal/models"
)

// Signal weights. A URL match is unambiguous and weighs the most.
const (
	urlWeight        = 0.6
	domainWeight     = 0.25
	brandWeight      = 0.2
	repeatBonus      = 0.05
	maxRepeatBonus   = 0.1
	maxSnippetLength = 300
	DefaultThreshold = 0.25
)

var (
	markerPattern  = regexp.MustCompile(`\[\d+\]`)
	sentenceBreak  = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)
	negationTokens = map[string]bool{
		"not": true, "no": true, "never": true, "none": true, "neither": true,
		"nor": true, "without": true, "cannot": true, "lacks": true, "absent": true,
	}
)

// Signals counts the independent evidence found during analysis
type Signals struct {
	URLMatches      int `json:"url_matches"`
	DomainMentions  int `json:"domain_mentions"`
	BrandMentions   int `json:"brand_mentions"`
	NegatedMentions int `json:"negated_mentions"`
}

// Result is the analyzer's verdict
type Result struct {
	IsCited    bool              `json:"is_cited"`
	Citations  []models.Citation `json:"citations"`
	Confidence float64           `json:"confidence"`
	Signals    Signals           `json:"signals"`
}

// Analyzer decides whether a domain or brand is cited by an AI response
type Analyzer struct {
	threshold float64
}

// New creates an analyzer. threshold is the minimum text-only score needed
// to report a citation when no candidate URL matched.
func New(threshold float64) *Analyzer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Analyzer{threshold: threshold}
}

// Threshold returns the text-only citation threshold
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Analyze is a pure function of its inputs. URLs embedded in responseText are
// considered alongside candidateURLs.
func (a *Analyzer) Analyze(responseText string, candidateURLs []string, domain string, brand *string) Result {
	domain = NormalizeDomain(domain)
	brandName := ""
	if brand != nil {
		brandName = strings.TrimSpace(*brand)
	}

	var signals Signals
	var urlCitations []models.Citation

	seen := make(map[string]bool)
	candidates := append(append([]string{}, candidateURLs...), ExtractURLs(responseText)...)
	for i, raw := range candidates {
		raw = strings.TrimSpace(raw)
		key := strings.TrimSuffix(strings.ToLower(raw), "/")
		if raw == "" || seen[key] {
			continue
		}
		seen[key] = true

		if domain == "" || !URLMatches(raw, domain) {
			continue
		}
		signals.URLMatches++
		position := i + 1
		if i >= len(candidateURLs) {
			position = len(urlCitations) + 1
		}
		urlCitations = append(urlCitations, models.Citation{
			URL:      raw,
			Title:    titleFromURL(raw),
			Position: position,
			Type:     models.CitationTypeSource,
		})
	}

	mentionCitations, mentionSignals := a.scanText(responseText, domain, brandName)
	signals.DomainMentions = mentionSignals.DomainMentions
	signals.BrandMentions = mentionSignals.BrandMentions
	signals.NegatedMentions = mentionSignals.NegatedMentions

	textScore := textScore(signals)
	confidence := textScore
	if signals.URLMatches > 0 {
		confidence += urlWeight
	}
	confidence = round2(math.Min(confidence, 1))

	isCited := signals.URLMatches > 0 || round2(textScore) >= a.threshold

	result := Result{
		IsCited:    isCited,
		Confidence: confidence,
		Signals:    signals,
		Citations:  []models.Citation{},
	}
	if isCited {
		result.Citations = append(result.Citations, urlCitations...)
		result.Citations = append(result.Citations, mentionCitations...)
	}
	return result
}

func (a *Analyzer) scanText(text, domain, brand string) ([]models.Citation, Signals) {
	var signals Signals
	var citations []models.Citation

	clean := urlPattern.ReplaceAllString(text, " ")
	clean = markerPattern.ReplaceAllString(clean, " ")

	for i, sentence := range sentenceBreak.Split(clean, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		hasDomain := ContainsDomain(sentence, domain)
		hasBrand := brand != "" && ContainsFold(sentence, brand)
		if !hasDomain && !hasBrand {
			continue
		}

		if isNegated(sentence) {
			signals.NegatedMentions++
			continue
		}

		title := ""
		if hasDomain {
			signals.DomainMentions++
			title = fmt.Sprintf("Mention of %s", domain)
		}
		if hasBrand {
			signals.BrandMentions++
			if title == "" {
				title = fmt.Sprintf("Mention of %s", brand)
			}
		}

		citations = append(citations, models.Citation{
			Title:    title,
			Snippet:  truncate(sentence, maxSnippetLength),
			Position: i + 1,
			Type:     models.CitationTypeMention,
		})
	}

	return citations, signals
}

func textScore(s Signals) float64 {
	score := 0.0
	if s.DomainMentions > 0 {
		score += domainWeight
	}
	if s.BrandMentions > 0 {
		score += brandWeight
	}
	if extra := s.DomainMentions + s.BrandMentions - 1; extra > 0 {
		score += math.Min(float64(extra)*repeatBonus, maxRepeatBonus)
	}
	return score
}

// isNegated reports whether a sentence is phrased as a denial, e.g.
// "The answer does not mention example.com".
func isNegated(sentence string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '\'' && r != '’'
	})
	for _, tok := range tokens {
		if negationTokens[tok] || strings.HasSuffix(tok, "n't") || strings.HasSuffix(tok, "n’t") {
			return true
		}
	}
	return false
}

func titleFromURL(raw string) string {
	host := URLHost(raw)
	path := raw
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = strings.Trim(path[i:], "/")
	} else {
		path = ""
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return host
	}
	return host + " - " + path
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
