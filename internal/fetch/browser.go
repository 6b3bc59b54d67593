package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// BrowserOptions configures the headless browser fetcher.
type BrowserOptions struct {
	UserAgent string
	Timeout   time.Duration
	// ExecPath overrides chrome discovery.
	ExecPath string
}

// BrowserFetcher renders pages in headless Chrome. It is used for
// screenshots and for pages that only render with JavaScript.
type BrowserFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	opts        BrowserOptions
}

// NewBrowserFetcher starts a Chrome allocator that lives until Close.
func NewBrowserFetcher(opts BrowserOptions) *BrowserFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1280, 1024),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &BrowserFetcher{allocCtx: allocCtx, allocCancel: cancel, opts: opts}
}

// Fetch navigates to rawURL in a fresh tab and captures the rendered HTML,
// plus a full-page JPEG when a screenshot is requested.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*model.Page, error) {
	if _, err := Parse(rawURL); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancelTimeout()

	// The allocator outlives the caller; propagate the caller's cancellation.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	start := time.Now()
	var (
		doc, title, location string
		shot                 []byte
	)
	actions := []chromedp.Action{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
	}
	if opts.WantScreenshot {
		actions = append(actions, chromedp.FullScreenshot(&shot, 80))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			return nil, newError(ErrTimeout, rawURL, 0, err)
		}
		return nil, newError(ErrNetwork, rawURL, 0, eris.Wrap(err, "browser: run"))
	}

	docTitle, text := ExtractText(doc)
	if title == "" {
		title = docTitle
	}
	page := &model.Page{
		URL:        rawURL,
		FinalURL:   location,
		StatusCode: 200,
		Title:      title,
		HTML:       doc,
		Text:       text,
		Via:        "browser",
		Elapsed:    time.Since(start),
		FetchedAt:  time.Now().UTC(),
	}
	if len(shot) > 0 {
		page.Screenshot = shot
		page.ScreenshotMIME = "image/jpeg"
	}
	return page, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.allocCancel()
}

// Chain fetches over HTTP and falls back to the browser for screenshots and
// blocked or script-only pages.
type Chain struct {
	HTTP    Fetcher
	Browser Fetcher // optional
}

// Fetch implements Fetcher.
func (c *Chain) Fetch(ctx context.Context, rawURL string, opts Options) (*model.Page, error) {
	if opts.WantScreenshot && c.Browser != nil {
		return c.Browser.Fetch(ctx, rawURL, opts)
	}
	page, err := c.HTTP.Fetch(ctx, rawURL, opts)
	if err == nil || c.Browser == nil {
		return page, err
	}
	if isBlocked(err) {
		return c.Browser.Fetch(ctx, rawURL, opts)
	}
	return nil, err
}

func isBlocked(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == ErrBlocked
}
