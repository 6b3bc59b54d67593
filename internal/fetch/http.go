package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent     string
	Timeout       time.Duration
	MaxBodyBytes  int64
	HostRPS       float64
	HostBurst     int
	RespectRobots bool
	Retry         resilience.RetryConfig
	// Client overrides the default client (tests).
	Client *http.Client
}

// HTTPFetcher implements Fetcher with net/http, per-host rate limiting,
// robots.txt checks and retry of transient failures.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *HostLimiter
	robots  *RobotsChecker
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; EnrichBot/1.0)"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	f := &HTTPFetcher{
		client:  client,
		opts:    opts,
		limiter: NewHostLimiter(opts.HostRPS, opts.HostBurst),
	}
	if opts.RespectRobots {
		f.robots = NewRobotsChecker(client, opts.UserAgent)
	}
	return f
}

// Fetch downloads rawURL and returns the decoded page. Screenshots are not
// supported over plain HTTP; opts is ignored.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, _ Options) (*model.Page, error) {
	u, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	host := NormalizeHost(u.Host)

	if f.robots != nil {
		allowed, delay := f.robots.Allowed(ctx, u)
		if !allowed {
			return nil, newError(ErrDisallowed, rawURL, 0, nil)
		}
		f.limiter.SlowDown(host, delay)
	}

	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger("fetch", host)
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.Page, error) {
		return f.get(ctx, u, host)
	})
}

func (f *HTTPFetcher) get(ctx context.Context, u *url.URL, host string) (*model.Page, error) {
	rawURL := u.String()
	if err := f.limiter.Wait(ctx, host); err != nil {
		return nil, classify(rawURL, err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(ErrInvalidURL, rawURL, 0, err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, classify(rawURL, err)
	}

	if block := DetectBlock(resp.StatusCode, resp.Header, body); block != BlockNone {
		return nil, newError(ErrBlocked, rawURL, resp.StatusCode, errors.New(string(block)))
	}
	if err := resilience.StatusError(resp.StatusCode, "fetch"); err != nil {
		return nil, newError(ErrNetwork, rawURL, resp.StatusCode, err)
	}

	doc := DecodeBody(body, resp.Header.Get("Content-Type"))
	title, text := ExtractText(doc)
	return &model.Page{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Title:      title,
		HTML:       doc,
		Text:       text,
		Via:        "http",
		Elapsed:    time.Since(start),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func classify(rawURL string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return newError(ErrTimeout, rawURL, 0, err)
	}
	return newError(ErrNetwork, rawURL, 0, err)
}

var metaCharset = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?\s*([a-zA-Z0-9_\-]+)`)

// DecodeBody converts body to UTF-8 using the Content-Type charset, a
// <meta> declaration, or Shift_JIS as the fallback for invalid UTF-8.
func DecodeBody(body []byte, contentType string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		name = params["charset"]
	}
	if name == "" {
		head := body
		if len(head) > 4096 {
			head = head[:4096]
		}
		if m := metaCharset.FindSubmatch(head); m != nil {
			name = string(m[1])
		}
	}
	if name == "" && !utf8.Valid(body) {
		name = "shift_jis"
	}
	if name == "" || isUTF8(name) {
		return string(bytes.ToValidUTF8(body, []byte("�")))
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(bytes.ToValidUTF8(body, []byte("�")))
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(bytes.ToValidUTF8(body, []byte("�")))
	}
	return string(out)
}

func isUTF8(name string) bool {
	n := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	return n == "utf-8" || n == "utf8"
}
