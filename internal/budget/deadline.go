// Package budget holds the per-record soft deadline. The deadline is a value
// passed through the pipeline and checked at named points; it never cancels
// in-flight work.
package budget

import (
	"fmt"
	"time"

	"github.com/sells-group/enrich-cli/internal/config"
)

// Named check points.
const (
	PointBeforeDiscovery = "before_discovery"
	PointBeforeFetch     = "before_fetch"
	PointBeforeScoring   = "before_scoring"
	PointBeforeExtract   = "before_extract"
	PointBeforeDeepCrawl = "before_deep_crawl"
	PointBeforeSecondAI  = "before_second_ai"
	PointBeforeVerify    = "before_verify"
)

// ExceededError reports the check point at which the budget ran out.
type ExceededError struct {
	Point   string
	Phase   string
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget: %s budget exceeded at %s (%s > %s)", e.Phase, e.Point, e.Elapsed.Round(time.Millisecond), e.Limit)
}

// Deadline tracks a pre-homepage and a post-homepage limit. The clock starts
// at claim time and restarts when the homepage is confirmed. The zero value
// (and a Deadline built with mode "off") never expires.
type Deadline struct {
	enabled bool
	pre     time.Duration
	post    time.Duration
	now     func() time.Time
	started time.Time
	rebased bool
}

// Option configures a Deadline.
type Option func(*Deadline)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Deadline) { d.now = now }
}

// Start creates a Deadline that begins now.
func Start(cfg config.BudgetConfig, opts ...Option) *Deadline {
	d := &Deadline{
		enabled: cfg.Mode == "split",
		pre:     cfg.PreHomepage,
		post:    cfg.PostHomepage,
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.started = d.now()
	return d
}

// Rebase switches to the post-homepage limit and restarts the clock.
func (d *Deadline) Rebase() {
	if d == nil {
		return
	}
	d.rebased = true
	d.started = d.now()
}

// Phase names the active limit.
func (d *Deadline) Phase() string {
	if d != nil && d.rebased {
		return "post_homepage"
	}
	return "pre_homepage"
}

func (d *Deadline) limit() time.Duration {
	if d.rebased {
		return d.post
	}
	return d.pre
}

// Remaining returns the time left in the active phase. It is negative once
// exceeded and a large value when the budget is disabled.
func (d *Deadline) Remaining() time.Duration {
	if d == nil || !d.enabled || d.limit() <= 0 {
		return time.Duration(1<<63 - 1)
	}
	return d.limit() - d.now().Sub(d.started)
}

// Exceeded reports whether the active limit has passed.
func (d *Deadline) Exceeded() bool {
	return d.Remaining() <= 0
}

// Check returns an *ExceededError when the active limit has passed.
func (d *Deadline) Check(point string) error {
	if !d.Exceeded() {
		return nil
	}
	return &ExceededError{
		Point:   point,
		Phase:   d.Phase(),
		Elapsed: d.now().Sub(d.started),
		Limit:   d.limit(),
	}
}
