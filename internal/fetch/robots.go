package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker answers robots.txt questions with a per-host cache.
type RobotsChecker struct {
	mu        sync.RWMutex
	cache     map[string]*robotstxt.RobotsData
	client    *http.Client
	userAgent string
	agent     string
}

// NewRobotsChecker creates a checker. The robots agent token is the product
// name of userAgent.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		cache:     make(map[string]*robotstxt.RobotsData),
		client:    client,
		userAgent: userAgent,
		agent:     agentToken(userAgent),
	}
}

// Allowed reports whether u may be fetched and the host's crawl delay.
// Unreachable or unparsable robots.txt allows everything.
func (r *RobotsChecker) Allowed(ctx context.Context, u *url.URL) (bool, time.Duration) {
	data := r.data(ctx, u)
	if data == nil {
		return true, 0
	}
	var delay time.Duration
	if g := data.FindGroup(r.agent); g != nil {
		delay = g.CrawlDelay
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	return data.TestAgent(p, r.agent), delay
}

func (r *RobotsChecker) data(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host
	r.mu.RLock()
	data, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return data
	}

	data = r.load(ctx, key+"/robots.txt")
	r.mu.Lock()
	r.cache[key] = data
	r.mu.Unlock()
	return data
}

func (r *RobotsChecker) load(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		data, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
		return data
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}

func agentToken(ua string) string {
	for _, f := range strings.Fields(ua) {
		f = strings.Trim(f, "();")
		if f == "" || strings.EqualFold(f, "Mozilla/5.0") || strings.EqualFold(f, "compatible") {
			continue
		}
		return strings.Split(f, "/")[0]
	}
	return ua
}
