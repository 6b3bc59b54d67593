package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Worker  WorkerConfig  `yaml:"worker" mapstructure:"worker"`
	Claim   ClaimConfig   `yaml:"claim" mapstructure:"claim"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Jina    JinaConfig    `yaml:"jina" mapstructure:"jina"`
	Google  GoogleConfig  `yaml:"google" mapstructure:"google"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Scorer  ScorerConfig  `yaml:"scorer" mapstructure:"scorer"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Budget  BudgetConfig  `yaml:"budget" mapstructure:"budget"`
	AI      AIConfig      `yaml:"ai" mapstructure:"ai"`
	Policy  PolicyConfig  `yaml:"policy" mapstructure:"policy"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// WorkerConfig identifies this process and its shard.
type WorkerConfig struct {
	ID         string `yaml:"id" mapstructure:"id"`
	IDMin      int64  `yaml:"id_min" mapstructure:"id_min"`
	IDMax      int64  `yaml:"id_max" mapstructure:"id_max"`
	MaxRecords int    `yaml:"max_records" mapstructure:"max_records"`
	Regenerate bool   `yaml:"regenerate" mapstructure:"regenerate"`
}

// ClaimConfig configures leasing.
type ClaimConfig struct {
	Order          string        `yaml:"order" mapstructure:"order"`
	RetryStatuses  []string      `yaml:"retry_statuses" mapstructure:"retry_statuses"`
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
	ReclaimEvery   time.Duration `yaml:"reclaim_interval" mapstructure:"reclaim_interval"`
	IdleSleep      time.Duration `yaml:"idle_sleep" mapstructure:"idle_sleep"`
	ExitWhenIdle   bool          `yaml:"exit_when_idle" mapstructure:"exit_when_idle"`
	BusyTimeoutMS  int           `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	ClaimRetryWait time.Duration `yaml:"claim_retry_wait" mapstructure:"claim_retry_wait"`
}

// SearchConfig configures candidate discovery.
type SearchConfig struct {
	Provider        string        `yaml:"provider" mapstructure:"provider"`
	LimitPerQuery   int           `yaml:"limit_per_query" mapstructure:"limit_per_query"`
	MaxCandidates   int           `yaml:"max_candidates" mapstructure:"max_candidates"`
	Concurrency     int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	DuckDuckGoURL   string        `yaml:"duckduckgo_url" mapstructure:"duckduckgo_url"`
	ProfileKeyword  string        `yaml:"profile_keyword" mapstructure:"profile_keyword"`
	ShortNameRunes  int           `yaml:"short_name_runes" mapstructure:"short_name_runes"`
	RetryAttempts   int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	ExcludeFlagHost bool          `yaml:"exclude_flagged_hosts" mapstructure:"exclude_flagged_hosts"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// GoogleConfig holds Google Places settings for the google_places search
// provider.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures the fetch layer.
type FetchConfig struct {
	Concurrency       int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HostRPS           float64       `yaml:"host_rps" mapstructure:"host_rps"`
	HostBurst         int           `yaml:"host_burst" mapstructure:"host_burst"`
	SlowHostSkip      bool          `yaml:"slow_host_skip" mapstructure:"slow_host_skip"`
	SlowHostThreshold time.Duration `yaml:"slow_host_threshold" mapstructure:"slow_host_threshold"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	Browser           bool          `yaml:"browser" mapstructure:"browser"`
	BrowserTimeout    time.Duration `yaml:"browser_timeout" mapstructure:"browser_timeout"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
	FailureThreshold  int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

// ScorerConfig configures the official-site decision.
type ScorerConfig struct {
	RejectThreshold int  `yaml:"reject_threshold" mapstructure:"reject_threshold"`
	AcceptThreshold int  `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	StrictHomepage  bool `yaml:"strict_homepage" mapstructure:"strict_homepage"`
	JudgeAmbiguous  bool `yaml:"judge_ambiguous" mapstructure:"judge_ambiguous"`
	MaxJudged       int  `yaml:"max_judged" mapstructure:"max_judged"`
}

// ExtractConfig configures the extraction engine.
type ExtractConfig struct {
	RequiredFields []string `yaml:"required_fields" mapstructure:"required_fields"`
	MaxHops        int      `yaml:"max_hops" mapstructure:"max_hops"`
	MaxPages       int      `yaml:"max_pages" mapstructure:"max_pages"`
	MinConfidence  float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// BudgetConfig configures per-record time budgets. Mode is "off" or "split".
type BudgetConfig struct {
	Mode         string        `yaml:"mode" mapstructure:"mode"`
	PreHomepage  time.Duration `yaml:"pre_homepage" mapstructure:"pre_homepage"`
	PostHomepage time.Duration `yaml:"post_homepage" mapstructure:"post_homepage"`
}

// AIConfig configures the judge/extract capabilities.
type AIConfig struct {
	Provider        string           `yaml:"provider" mapstructure:"provider"`
	Model           string           `yaml:"model" mapstructure:"model"`
	Concurrency     int              `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout         time.Duration    `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens       int64            `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxContextChars int              `yaml:"max_context_chars" mapstructure:"max_context_chars"`
	AnthropicKey    string           `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	GeminiKey       string           `yaml:"gemini_key" mapstructure:"gemini_key"`
	OpenAIKey       string           `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIBaseURL   string           `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	Screenshot      ScreenshotConfig `yaml:"screenshot" mapstructure:"screenshot"`
}

// ScreenshotConfig holds the screenshot policy per AI call site.
type ScreenshotConfig struct {
	Judge   string `yaml:"judge" mapstructure:"judge"`
	Extract string `yaml:"extract" mapstructure:"extract"`
}

// PolicyConfig points at the optional domain policy file.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the inspection server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Screenshot policies.
const (
	ScreenshotAuto   = "auto"
	ScreenshotAlways = "always"
	ScreenshotNever  = "never"
)

// Load reads configuration from file and environment. An empty path searches
// the working directory and $HOME/.enrich for config.yaml.
func Load(path ...string) (*Config, error) {
	v := viper.New()

	if len(path) > 0 && path[0] != "" {
		v.SetConfigFile(path[0])
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.enrich")
	}

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "data/companies.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.id_min", 0)
	v.SetDefault("worker.id_max", 0)
	v.SetDefault("claim.order", "id_asc")
	v.SetDefault("claim.retry_statuses", []string{"review", "no_homepage"})
	v.SetDefault("claim.ttl", 30*time.Minute)
	v.SetDefault("claim.reclaim_interval", 5*time.Minute)
	v.SetDefault("claim.idle_sleep", 10*time.Second)
	v.SetDefault("claim.exit_when_idle", false)
	v.SetDefault("claim.busy_timeout_ms", 5000)
	v.SetDefault("claim.claim_retry_wait", 2*time.Second)
	v.SetDefault("search.provider", "duckduckgo")
	v.SetDefault("search.limit_per_query", 5)
	v.SetDefault("search.max_candidates", 8)
	v.SetDefault("search.concurrency", 2)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.duckduckgo_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.profile_keyword", "会社概要")
	v.SetDefault("search.short_name_runes", 2)
	v.SetDefault("search.retry_attempts", 2)
	v.SetDefault("search.retry_backoff", 500*time.Millisecond)
	v.SetDefault("search.exclude_flagged_hosts", true)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("fetch.concurrency", 3)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; EnrichBot/1.0)")
	v.SetDefault("fetch.max_body_bytes", 4<<20)
	v.SetDefault("fetch.host_rps", 2.0)
	v.SetDefault("fetch.host_burst", 2)
	v.SetDefault("fetch.slow_host_skip", true)
	v.SetDefault("fetch.slow_host_threshold", 12*time.Second)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.browser", false)
	v.SetDefault("fetch.browser_timeout", 25*time.Second)
	v.SetDefault("fetch.max_retries", 1)
	v.SetDefault("fetch.failure_threshold", 3)
	v.SetDefault("scorer.reject_threshold", 4)
	v.SetDefault("scorer.accept_threshold", 7)
	v.SetDefault("scorer.strict_homepage", true)
	v.SetDefault("scorer.judge_ambiguous", true)
	v.SetDefault("scorer.max_judged", 2)
	v.SetDefault("extract.required_fields", []string{"phone", "address", "rep_name"})
	v.SetDefault("extract.max_hops", 2)
	v.SetDefault("extract.max_pages", 4)
	v.SetDefault("extract.min_confidence", 0.5)
	v.SetDefault("budget.mode", "split")
	v.SetDefault("budget.pre_homepage", 60*time.Second)
	v.SetDefault("budget.post_homepage", 90*time.Second)
	v.SetDefault("ai.provider", "none")
	v.SetDefault("ai.concurrency", 2)
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.max_context_chars", 12000)
	v.SetDefault("ai.screenshot.judge", ScreenshotNever)
	v.SetDefault("ai.screenshot.extract", ScreenshotAuto)
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for postgres")
	}
	if c.Worker.IDMax != 0 && c.Worker.IDMax < c.Worker.IDMin {
		return eris.Errorf("config: worker.id_max %d < worker.id_min %d", c.Worker.IDMax, c.Worker.IDMin)
	}
	switch c.Claim.Order {
	case "id_asc", "id_desc", "random":
	default:
		return eris.Errorf("config: unknown claim order %q", c.Claim.Order)
	}
	for _, s := range c.Claim.RetryStatuses {
		switch s {
		case "review", "no_homepage", "error":
		default:
			return eris.Errorf("config: status %q cannot be retried", s)
		}
	}
	if c.Claim.TTL <= 0 {
		return eris.New("config: claim.ttl must be positive")
	}
	if c.Scorer.AcceptThreshold < c.Scorer.RejectThreshold {
		return eris.Errorf("config: scorer.accept_threshold %d < reject_threshold %d",
			c.Scorer.AcceptThreshold, c.Scorer.RejectThreshold)
	}
	switch c.Budget.Mode {
	case "off", "split":
	default:
		return eris.Errorf("config: unknown budget mode %q", c.Budget.Mode)
	}
	for site, p := range map[string]string{"judge": c.AI.Screenshot.Judge, "extract": c.AI.Screenshot.Extract} {
		switch p {
		case ScreenshotAuto, ScreenshotAlways, ScreenshotNever:
		default:
			return eris.Errorf("config: ai.screenshot.%s: unknown policy %q", site, p)
		}
	}
	switch c.AI.Provider {
	case "none", "anthropic", "gemini", "openai":
	default:
		return eris.Errorf("config: unknown ai provider %q", c.AI.Provider)
	}
	switch c.Search.Provider {
	case "duckduckgo", "jina":
	case "google_places":
		if c.Google.Key == "" {
			return eris.New("config: google.key is required for google_places search")
		}
	default:
		return eris.Errorf("config: unknown search provider %q", c.Search.Provider)
	}
	if c.Fetch.Concurrency < 1 || c.AI.Concurrency < 1 {
		return eris.New("config: concurrency limits must be at least 1")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
