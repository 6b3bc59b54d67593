package model

import (
	"strings"
	"time"
)

// PageType represents a classified page category.
type PageType string

const (
	PageTypeHomepage PageType = "homepage"
	PageTypeProfile  PageType = "profile"
	PageTypeAccess   PageType = "access"
	PageTypeContact  PageType = "contact"
	PageTypeRecruit  PageType = "recruit"
	PageTypeNews     PageType = "news"
	PageTypeOther    PageType = "other"
)

var pageTypeMarkers = []struct {
	pt      PageType
	markers []string
}{
	{PageTypeProfile, []string{"/company", "/about", "/profile", "/overview", "/corporate", "/gaiyou", "/gaiyo", "/outline"}},
	{PageTypeAccess, []string{"/access", "/map", "/location"}},
	{PageTypeContact, []string{"/contact", "/inquiry", "/toiawase", "/form"}},
	{PageTypeRecruit, []string{"/recruit", "/career", "/saiyo", "/jobs"}},
	{PageTypeNews, []string{"/news", "/blog", "/topics", "/information", "/press"}},
}

// ClassifyPath tags a URL path with a PageType by its segments.
func ClassifyPath(path string) PageType {
	p := strings.ToLower(path)
	if p == "" || p == "/" || strings.HasPrefix(p, "/index.") {
		return PageTypeHomepage
	}
	for _, m := range pageTypeMarkers {
		for _, marker := range m.markers {
			if strings.Contains(p, marker) {
				return m.pt
			}
		}
	}
	return PageTypeOther
}

// Page is the result of one fetch.
type Page struct {
	URL        string        `json:"url"`
	FinalURL   string        `json:"final_url"`
	StatusCode int           `json:"status_code"`
	Title      string        `json:"title"`
	HTML       string        `json:"html,omitempty"`
	Text       string        `json:"text"`
	Via        string        `json:"via"`
	Elapsed    time.Duration `json:"elapsed"`
	FetchedAt  time.Time     `json:"fetched_at"`

	Screenshot     []byte `json:"-"`
	// ScreenshotMIME is the media type of Screenshot, e.g. image/jpeg.
	ScreenshotMIME string `json:"-"`
}

// HasScreenshot reports whether a screenshot was captured.
func (p *Page) HasScreenshot() bool {
	return p != nil && len(p.Screenshot) > 0
}
