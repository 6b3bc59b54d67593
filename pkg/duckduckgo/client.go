// Package duckduckgo scrapes the DuckDuckGo HTML results page.
package duckduckgo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/enrich-cli/internal/resilience"
)

const defaultBaseURL = "https://html.duckduckgo.com/html/"

// ErrRateLimited is returned when DuckDuckGo serves its anomaly page instead
// of results.
var ErrRateLimited = errors.New("duckduckgo: rate limited")

// Result is one organic search result.
type Result struct {
	Title string
	URL   string
}

// Client performs web searches.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the results page URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	retry     resilience.RetryConfig
}

// NewClient creates a DuckDuckGo HTML client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "Mozilla/5.0 (compatible; EnrichBot/1.0)",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("kl", "jp-jp")
	reqURL := c.baseURL + "?" + q.Encode()

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("duckduckgo", "search")
	results, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]Result, error) {
		return c.search(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (c *httpClient) search(ctx context.Context, reqURL string) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Language", "ja,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: read response")
	}
	if err := resilience.StatusError(resp.StatusCode, "duckduckgo: search"); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusAccepted || bytes.Contains(body, []byte("anomaly-modal")) {
		return nil, resilience.NewTransientError(ErrRateLimited, resp.StatusCode)
	}
	return ParseResults(body)
}

// ParseResults extracts organic results from a results page. Ad links and
// duplicate URLs are skipped.
func ParseResults(body []byte) ([]Result, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: parse html")
	}

	var out []Result
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if u := UnwrapURL(attr(n, "href")); u != "" && !seen[u] {
				seen[u] = true
				out = append(out, Result{Title: strings.TrimSpace(text(n)), URL: u})
			}
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return out, nil
}

// UnwrapURL resolves a result href to the target URL. Redirect links carry
// the target in the uddg parameter; ad redirects return "".
func UnwrapURL(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		href = "https:" + href
	case strings.HasPrefix(href, "/"):
		href = "https://duckduckgo.com" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		if u.Path == "/y.js" {
			return ""
		}
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return b.String()
}
