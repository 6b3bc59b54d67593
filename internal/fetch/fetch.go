// Package fetch retrieves candidate pages over HTTP or a headless browser and
// scopes caching, deduplication and concurrency to one record.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Error kinds. Compare with errors.Is.
var (
	ErrNetwork    = errors.New("fetch: network error")
	ErrTimeout    = errors.New("fetch: timeout")
	ErrSlowHost   = errors.New("fetch: host on slow list")
	ErrDisallowed = errors.New("fetch: disallowed by robots.txt")
	ErrBlocked    = errors.New("fetch: blocked page")
	ErrInvalidURL = errors.New("fetch: invalid url")
)

// Options tunes a single fetch.
type Options struct {
	WantScreenshot bool
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts Options) (*model.Page, error)
}

// Error carries the kind, URL and cause of a failed fetch.
type Error struct {
	Kind   error
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.URL)
	if e.Status > 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind so callers can test errors.Is(err, ErrTimeout).
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, rawURL string, status int, cause error) *Error {
	return &Error{Kind: kind, URL: rawURL, Status: status, Err: cause}
}

var indexFile = regexp.MustCompile(`(?i)^index\.(html?|php|aspx?|jsp|cgi|shtml)$`)

// NormalizeHost lowercases a host, drops the port and a leading "www.".
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(h, ":"); i >= 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}

// Parse parses an absolute http(s) URL.
func Parse(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, newError(ErrInvalidURL, rawURL, 0, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, newError(ErrInvalidURL, rawURL, 0, nil)
	}
	return u, nil
}

// HostKey returns the normalized host of rawURL, or "" when it does not parse.
func HostKey(rawURL string) string {
	u, err := Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Host)
}

// URLKey is the dedup key for a URL: normalized host plus path (and query),
// scheme-less, with index.* folded to "/" and no trailing slash.
func URLKey(rawURL string) (string, error) {
	u, err := Parse(rawURL)
	if err != nil {
		return "", err
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if indexFile.MatchString(path.Base(p)) {
		p = path.Dir(p)
	}
	p = strings.TrimRight(p, "/")
	key := NormalizeHost(u.Host) + p
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key, nil
}

// SameSite reports whether two URLs share a normalized host.
func SameSite(a, b string) bool {
	ha, hb := HostKey(a), HostKey(b)
	return ha != "" && ha == hb
}
