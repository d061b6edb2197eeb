package platforms

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/search"
)

var citationMarker = regexp.MustCompile(`\[(\d{1,2})\]`)

func targetDescription(query models.CitationQuery) string {
	target := analyzer.NormalizeDomain(query.Domain)
	if brand := query.BrandName(); brand != "" {
		target = fmt.Sprintf("%s (%s)", target, brand)
	}
	return target
}

func searchThenAskSystemPrompt(query models.CitationQuery) string {
	return fmt.Sprintf(`You are a research assistant that answers questions using only the numbered sources supplied by the user.
Rules:
- Use only the supplied sources. Do not rely on prior knowledge.
- Cite every claim with the number of its source in square brackets, for example [1] or [2].
- Whenever you reference %s, include the full URL of the source you took it from.
- If the sources do not answer the question, say so plainly.`, targetDescription(query))
}

func searchThenAskUserPrompt(query models.CitationQuery, results []search.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSources:\n", query.Query)
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\n%s\n\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Snippet))
	}
	b.WriteString("Answer the question with numbered citations.")
	return b.String()
}

func groundedSystemPrompt(query models.CitationQuery) string {
	return fmt.Sprintf(`You are a research assistant with web search. Search the web and answer the user's question with up-to-date information.
Rules:
- Cite every source with a numbered marker in square brackets, for example [1] or [2].
- Whenever you reference %s, include the full URL of the page you used.
- List the full URLs of your sources at the end of the answer.`, targetDescription(query))
}

// citedResults returns the URLs of search results referenced by [n] markers in answer
func citedResults(answer string, results []search.Result) []string {
	var urls []string
	seen := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(results) || seen[n] {
			continue
		}
		seen[n] = true
		urls = append(urls, results[n-1].URL)
	}
	return urls
}

// candidateURLs merges structured source URLs with URLs found in the answer,
// keeping first-seen order.
func candidateURLs(answer string, structured ...[]string) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}
	for _, list := range structured {
		for _, u := range list {
			add(u)
		}
	}
	for _, u := range analyzer.ExtractURLs(answer) {
		add(u)
	}
	return urls
}

type sourceInfo struct {
	title   string
	snippet string
}

// analyzedResult runs the analyzer and wraps its verdict into a CheckResult.
// Known source titles replace the analyzer's URL-derived placeholders.
func analyzedResult(a *analyzer.Analyzer, query models.CitationQuery, answer string, urls []string, sources map[string]sourceInfo, metadata map[string]interface{}) *models.CheckResult {
	verdict := a.Analyze(answer, urls, query.Domain, query.Brand)

	for i, c := range verdict.Citations {
		if info, ok := sources[c.URL]; ok {
			if info.title != "" {
				verdict.Citations[i].Title = info.title
			}
			if info.snippet != "" && c.Snippet == "" {
				verdict.Citations[i].Snippet = info.snippet
			}
		}
	}

	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["confidence"] = verdict.Confidence
	metadata["signals"] = verdict.Signals
	metadata["source_urls"] = urls

	return &models.CheckResult{
		IsCited:    verdict.IsCited,
		AIResponse: answer,
		Citations:  verdict.Citations,
		Metadata:   metadata,
	}
}

func searchSources(results []search.Result) map[string]sourceInfo {
	sources := make(map[string]sourceInfo, len(results))
	for _, r := range results {
		sources[r.URL] = sourceInfo{title: r.Title, snippet: truncate(r.Snippet, 300)}
	}
	return sources
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
