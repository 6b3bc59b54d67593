package extract

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns keep the deep crawl off pages that never carry
// company profile data.
var defaultExcludePatterns = []string{
	"/contact/*", "/contact", "/inquiry/*", "/inquiry", "/toiawase/*", "/form/*",
	"/recruit/*", "/recruit", "/career/*", "/careers/*", "/saiyo/*", "/jobs/*",
	"/blog/*", "/news/*", "/topics/*", "/press/*", "/information/*",
	"/en/*", "/english/*",
	"/*.pdf", "/*.jpg", "/*.jpeg", "/*.png", "/*.gif", "/*.svg", "/*.zip",
	"/*.doc", "/*.docx", "/*.xls", "/*.xlsx", "/*.css", "/*.js",
}

// PathMatcher filters URLs based on glob-style path patterns.
// Uses path.Match from stdlib for proper glob matching, plus a segmented
// match so "/blog/*" matches multi-level paths like "/blog/deep/path".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/blog/*", "/*.pdf").
// Falls back to default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// IsExcluded checks whether a URL matches any exclude pattern.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), p) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/blog/*"
// matches both "/blog/post" and "/blog/deep/nested/path", and "/*.pdf"
// matches a .pdf file at any depth.
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasPrefix(pattern, "/*.") {
		return strings.HasSuffix(urlPath, pattern[2:])
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
