package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/ai"
	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/discovery"
	"github.com/sells-group/enrich-cli/internal/fetch"
	"github.com/sells-group/enrich-cli/internal/normalize"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/scorer"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/pkg/duckduckgo"
	"github.com/sells-group/enrich-cli/pkg/google"
	"github.com/sells-group/enrich-cli/pkg/jina"
)

// workerEnv holds the store and the record processor built from cfg.
type workerEnv struct {
	Store     store.Store
	Processor *pipeline.Processor
	closers   []func()
}

// Close releases the browser (if any) and the store.
func (e *workerEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// openStore validates cfg and opens the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath, cfg.Claim.BusyTimeoutMS)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initWorker opens and migrates the store and wires every pipeline stage.
// Callers should defer env.Close().
func initWorker(ctx context.Context) (*workerEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &workerEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	policy, err := config.LoadPolicy(cfg.Policy.Path)
	if err != nil {
		env.Close()
		return nil, err
	}

	searcher, err := newSearcher()
	if err != nil {
		env.Close()
		return nil, err
	}

	sc := scorer.New(cfg.Scorer, policy)
	prior := func(name, rawURL string) int {
		s, _ := sc.Domain(name, rawURL)
		return s
	}
	disc := discovery.New(searcher, prior, st, cfg.Search, policy)

	chain := &fetch.Chain{HTTP: fetch.NewHTTPFetcher(fetch.HTTPOptions{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.Fetch.Timeout,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		HostRPS:       cfg.Fetch.HostRPS,
		HostBurst:     cfg.Fetch.HostBurst,
		RespectRobots: cfg.Fetch.RespectRobots,
		Retry:         resilience.Attempts(cfg.Fetch.MaxRetries, 0),
	})}
	if cfg.Fetch.Browser {
		b := fetch.NewBrowserFetcher(fetch.BrowserOptions{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.Fetch.BrowserTimeout,
		})
		chain.Browser = b
		env.closers = append(env.closers, b.Close)
	}
	client := fetch.NewClient(chain, fetch.ClientConfig{
		Concurrency:       cfg.Fetch.Concurrency,
		SlowHostSkip:      cfg.Fetch.SlowHostSkip,
		SlowHostThreshold: cfg.Fetch.SlowHostThreshold,
		FailureThreshold:  cfg.Fetch.FailureThreshold,
	})

	provider, err := ai.New(ctx, cfg.AI)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Processor = pipeline.NewProcessor(cfg, pipeline.Deps{
		Discoverer: disc,
		Sessions:   func() pipeline.Session { return client.NewSession() },
		Scorer:     sc,
		Judge:      provider,
		Extractor:  provider,
		Normalizer: normalize.New(policy.InvalidMarkers),
		Flags:      st,
	}, pipeline.WithRegenerate(cfg.Worker.Regenerate))

	zap.L().Info("worker environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("search", cfg.Search.Provider),
		zap.String("ai", cfg.AI.Provider),
		zap.Bool("browser", cfg.Fetch.Browser),
	)
	return env, nil
}

// newSearcher builds the search provider named by search.provider.
func newSearcher() (discovery.Searcher, error) {
	retry := resilience.Attempts(cfg.Search.RetryAttempts, cfg.Search.RetryBackoff)
	switch cfg.Search.Provider {
	case "duckduckgo":
		return discovery.DuckDuckGo{Client: duckduckgo.NewClient(
			duckduckgo.WithBaseURL(cfg.Search.DuckDuckGoURL),
			duckduckgo.WithUserAgent(cfg.Fetch.UserAgent),
			duckduckgo.WithRetry(retry),
		)}, nil
	case "jina":
		return discovery.Jina{Client: jina.NewClient(cfg.Jina.Key,
			jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
			jina.WithRetry(retry),
		)}, nil
	case "google_places":
		return discovery.Places{Client: google.NewClient(cfg.Google.Key,
			google.WithBaseURL(cfg.Google.BaseURL),
			google.WithMaxResults(cfg.Search.LimitPerQuery),
			google.WithRetry(retry),
		)}, nil
	default:
		return nil, eris.Errorf("unknown search provider: %s", cfg.Search.Provider)
	}
}
