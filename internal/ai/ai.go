// Package ai provides the judge_official and extract_fields capabilities on
// top of a pluggable LLM provider.
package ai

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Judge decides whether an ambiguous candidate is the company's official site.
type Judge interface {
	JudgeOfficial(ctx context.Context, c CandidateContext) (Judgement, error)
}

// Extractor pulls requested fields out of page text (and optionally a
// screenshot). Fields the model could not find map to nil.
type Extractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (map[model.Field]*string, error)
}

// Provider is a Judge and an Extractor backed by the same model.
type Provider interface {
	Judge
	Extractor
}

// CandidateContext is what the judge sees for one candidate.
type CandidateContext struct {
	CompanyName  string
	InputAddress string
	URL          string
	Title        string
	Text         string
	DomainScore  int
	AddressMatch bool
	NamePresence bool
	Image        *Image
}

// Judgement is the judge's answer.
type Judgement struct {
	Official   bool    `json:"is_official"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ExtractRequest asks for a set of fields from aggregated page text.
type ExtractRequest struct {
	CompanyName  string
	InputAddress string
	URL          string
	Fields       []model.Field
	Text         string
	Image        *Image
}

// Image is an inline screenshot.
type Image struct {
	MIME string
	Data []byte
}

// ImageFromPage returns the page screenshot as an Image, or nil.
func ImageFromPage(p *model.Page) *Image {
	if p == nil || !p.HasScreenshot() {
		return nil
	}
	mime := p.ScreenshotMIME
	if mime == "" {
		mime = "image/png"
	}
	return &Image{MIME: mime, Data: p.Screenshot}
}

// Prompt is one provider call: a system instruction plus a user turn.
type Prompt struct {
	System string
	User   string
	Image  *Image
}

// Completer sends a prompt to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Service implements Provider over a Completer. Calls are bounded by a
// concurrency limit and a per-call timeout.
type Service struct {
	completer  Completer
	name       string
	timeout    time.Duration
	maxContext int
	sem        chan struct{}
}

// NewService wraps a Completer.
func NewService(name string, c Completer, cfg config.AIConfig) *Service {
	n := cfg.Concurrency
	if n <= 0 {
		n = 1
	}
	return &Service{
		completer:  c,
		name:       name,
		timeout:    cfg.Timeout,
		maxContext: cfg.MaxContextChars,
		sem:        make(chan struct{}, n),
	}
}

// New builds the Provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return Disabled{}, nil
	case "anthropic":
		return NewService("anthropic", NewAnthropic(cfg), cfg), nil
	case "gemini":
		c, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewService("gemini", c, cfg), nil
	case "openai":
		return NewService("openai", NewOpenAI(cfg), cfg), nil
	default:
		return nil, eris.Errorf("ai: unknown provider %q", cfg.Provider)
	}
}

func (s *Service) call(ctx context.Context, p Prompt) (string, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.sem }()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := s.completer.Complete(ctx, p)
	zap.L().Debug("ai: call",
		zap.String("provider", s.name),
		zap.Bool("image", p.Image != nil),
		zap.Int("prompt_chars", len([]rune(p.User))),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	return out, err
}

// JudgeOfficial implements Judge.
func (s *Service) JudgeOfficial(ctx context.Context, c CandidateContext) (Judgement, error) {
	c.Text = Truncate(c.Text, s.maxContext)
	raw, err := s.call(ctx, Prompt{System: judgeSystem, User: JudgePrompt(c), Image: c.Image})
	if err != nil {
		return Judgement{}, eris.Wrap(err, "ai: judge official")
	}
	return ParseJudgement(raw)
}

// ExtractFields implements Extractor.
func (s *Service) ExtractFields(ctx context.Context, req ExtractRequest) (map[model.Field]*string, error) {
	if len(req.Fields) == 0 {
		return map[model.Field]*string{}, nil
	}
	req.Text = Truncate(req.Text, s.maxContext)
	raw, err := s.call(ctx, Prompt{System: extractSystem, User: ExtractPrompt(req), Image: req.Image})
	if err != nil {
		return nil, eris.Wrap(err, "ai: extract fields")
	}
	return ParseFields(raw, req.Fields)
}

// Disabled is the "none" provider: nothing is ever official and nothing is
// extracted.
type Disabled struct{}

// JudgeOfficial implements Judge.
func (Disabled) JudgeOfficial(context.Context, CandidateContext) (Judgement, error) {
	return Judgement{Reason: "ai disabled"}, nil
}

// ExtractFields implements Extractor.
func (Disabled) ExtractFields(context.Context, ExtractRequest) (map[model.Field]*string, error) {
	return map[model.Field]*string{}, nil
}
