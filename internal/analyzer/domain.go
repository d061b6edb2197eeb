package analyzer

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]{}]+`)

// NormalizeDomain lowercases a domain and strips scheme, path, port and a leading "www."
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// HostMatches reports whether host equals domain or is one of its subdomains
func HostMatches(host, domain string) bool {
	host = NormalizeDomain(host)
	domain = NormalizeDomain(domain)
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// URLHost returns the normalized host of a URL, tolerating a missing scheme
func URLHost(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return NormalizeDomain(parsed.Hostname())
}

// URLMatches reports whether rawURL points at domain or a subdomain of it
func URLMatches(rawURL, domain string) bool {
	return HostMatches(URLHost(rawURL), domain)
}

// ExtractURLs returns the http(s) URLs found in text, in order, without trailing punctuation
func ExtractURLs(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, match := range urlPattern.FindAllString(text, -1) {
		u := strings.TrimRight(match, ".,;:!?*_`")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// ContainsDomain reports whether text mentions domain as a bare word, allowing
// subdomains ("blog.example.com") but not lookalikes ("myexample.com", "example.community").
func ContainsDomain(text, domain string) bool {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return false
	}
	lower := strings.ToLower(text)

	offset := 0
	for {
		idx := strings.Index(lower[offset:], domain)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(domain)
		if boundaryBefore(lower, start) && boundaryAfter(lower, end) {
			return true
		}
		offset = start + 1
	}
}

// ContainsFold is a plain case-insensitive substring test
func ContainsFold(text, substr string) bool {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(substr))
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	c := s[i-1]
	return c == '.' || !isHostChar(c)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	c := s[i]
	if c == '.' {
		return i+1 >= len(s) || !isAlnum(s[i+1])
	}
	return !isHostChar(c)
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func isHostChar(c byte) bool {
	return isAlnum(c) || c == '-'
}
