// Package discovery finds candidate homepage URLs for a company through web
// search.
package discovery

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/fetch"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
	"github.com/sells-group/enrich-cli/internal/store"
)

// Searcher returns result URLs for a query, best first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// FlagReader reads cached official/not-official verdicts.
type FlagReader interface {
	GetURLFlags(ctx context.Context, values []string) (map[string]store.URLFlag, error)
}

// PriorFunc scores a URL against a company name before any page is fetched.
type PriorFunc func(name, rawURL string) int

// Discoverer builds queries, runs them and merges the results into an
// ordered candidate list.
type Discoverer struct {
	searcher  Searcher
	prior     PriorFunc
	flags     FlagReader
	cfg       config.SearchConfig
	blocklist []string
	ambiguous map[string]bool
}

// New creates a Discoverer. flags may be nil to skip the URL-flag filter.
func New(searcher Searcher, prior PriorFunc, flags FlagReader, cfg config.SearchConfig, policy *config.Policy) *Discoverer {
	if cfg.LimitPerQuery <= 0 {
		cfg.LimitPerQuery = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShortNameRunes <= 0 {
		cfg.ShortNameRunes = 2
	}
	if cfg.ProfileKeyword == "" {
		cfg.ProfileKeyword = "会社概要"
	}
	d := &Discoverer{
		searcher:  searcher,
		prior:     prior,
		flags:     flags,
		cfg:       cfg,
		blocklist: config.DefaultBlocklist,
		ambiguous: map[string]bool{},
	}
	if policy != nil {
		if len(policy.Blocklist) > 0 {
			d.blocklist = policy.Blocklist
		}
		for _, n := range policy.AmbiguousNames {
			d.ambiguous[normalize.CompanyCore(n)] = true
		}
	}
	return d
}

// Ambiguous reports whether name needs a location token to search well:
// its core is very short or it is on the ambiguous-name list.
func (d *Discoverer) Ambiguous(name string) bool {
	core := normalize.CompanyCore(name)
	return len([]rune(core)) <= d.cfg.ShortNameRunes || d.ambiguous[core]
}

// Queries returns the search queries for a record, in order.
func (d *Discoverer) Queries(name, address string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	qs := []string{`"` + name + `"`}
	if d.Ambiguous(name) {
		pref, city := normalize.Region(address)
		token := city
		if token == "" {
			token = pref
		}
		if token != "" {
			qs = append(qs, name+" "+token)
		}
	}
	return append(qs, name+" "+d.cfg.ProfileKeyword)
}

type hit struct {
	url        string
	query      string
	queryIndex int
	rank       int
}

// Discover runs the queries for rec and returns deduplicated, filtered
// candidates ordered by prior, query index and rank. No results is not an
// error; an error is returned only when every query failed.
func (d *Discoverer) Discover(ctx context.Context, rec *model.CompanyRecord) ([]*model.Candidate, error) {
	log := zap.L().With(zap.Int64("record_id", rec.ID))
	queries := d.Queries(rec.CompanyName, rec.InputAddress)
	if len(queries) == 0 {
		return nil, nil
	}

	perQuery := make([][]string, len(queries))
	errs := make([]error, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			qctx := gctx
			if d.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				qctx, cancel = context.WithTimeout(gctx, d.cfg.Timeout)
				defer cancel()
			}
			urls, err := d.searcher.Search(qctx, q, d.cfg.LimitPerQuery)
			if err != nil {
				log.Debug("discovery: query failed", zap.String("query", q), zap.Error(err))
				errs[i] = err
				return nil
			}
			perQuery[i] = urls
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(queries) {
		return nil, eris.Wrap(errs[0], "discovery: all queries failed")
	}

	var hits []hit
	for qi, urls := range perQuery {
		for rank, u := range urls {
			hits = append(hits, hit{url: u, query: queries[qi], queryIndex: qi, rank: rank})
		}
	}

	cands := d.merge(hits)
	cands = d.dropFlagged(ctx, cands)
	for _, c := range cands {
		if d.prior != nil {
			c.Prior = d.prior(rec.CompanyName, c.URL)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Prior != b.Prior {
			return a.Prior > b.Prior
		}
		if a.QueryIndex != b.QueryIndex {
			return a.QueryIndex < b.QueryIndex
		}
		return a.Rank < b.Rank
	})
	if d.cfg.MaxCandidates > 0 && len(cands) > d.cfg.MaxCandidates {
		cands = cands[:d.cfg.MaxCandidates]
	}

	log.Debug("discovery: candidates",
		zap.Int("queries", len(queries)),
		zap.Int("failed_queries", failed),
		zap.Int("hits", len(hits)),
		zap.Int("candidates", len(cands)),
	)
	return cands, nil
}

// merge deduplicates hits by normalized URL and drops invalid and
// block-listed ones. The first occurrence wins.
func (d *Discoverer) merge(hits []hit) []*model.Candidate {
	seen := make(map[string]bool, len(hits))
	out := make([]*model.Candidate, 0, len(hits))
	for _, h := range hits {
		key, err := fetch.URLKey(h.url)
		if err != nil || seen[key] {
			continue
		}
		seen[key] = true
		u, _ := url.Parse(h.url)
		host := fetch.NormalizeHost(u.Host)
		if d.Blocked(host) {
			continue
		}
		out = append(out, &model.Candidate{
			URL:        h.url,
			Host:       host,
			Query:      h.query,
			QueryIndex: h.queryIndex,
			Rank:       h.rank,
			Tags:       []model.PageType{model.ClassifyPath(u.Path)},
		})
	}
	return out
}

// Blocked reports whether host or one of its parent domains is block-listed.
func (d *Discoverer) Blocked(host string) bool {
	host = fetch.NormalizeHost(host)
	for _, b := range d.blocklist {
		b = strings.ToLower(b)
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

// dropFlagged removes candidates whose host or URL is flagged not official.
// A failed lookup keeps every candidate.
func (d *Discoverer) dropFlagged(ctx context.Context, cands []*model.Candidate) []*model.Candidate {
	if d.flags == nil || !d.cfg.ExcludeFlagHost || len(cands) == 0 {
		return cands
	}
	keys := make([]string, 0, 2*len(cands))
	for _, c := range cands {
		keys = append(keys, c.Host)
		if k, err := fetch.URLKey(c.URL); err == nil {
			keys = append(keys, k)
		}
	}
	flags, err := d.flags.GetURLFlags(ctx, keys)
	if err != nil {
		zap.L().Warn("discovery: url flag lookup failed", zap.Error(err))
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if negative(flags, c.Host) {
			continue
		}
		if k, err := fetch.URLKey(c.URL); err == nil && negative(flags, k) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func negative(flags map[string]store.URLFlag, key string) bool {
	f, ok := flags[key]
	return ok && !f.IsOfficial
}
