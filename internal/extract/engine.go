// Package extract pulls company attributes out of an official site: rules on
// the homepage first, a bounded crawl of profile pages when required fields
// are missing, then AI for whatever is still unresolved.
package extract

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/ai"
	"github.com/sells-group/enrich-cli/internal/budget"
	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/fetch"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
)

// ConfidenceAI is assigned to values returned by the AI extractor.
const ConfidenceAI = 0.7

// PageSource fetches pages for one record. fetch.Session satisfies it.
type PageSource interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*model.Page, error)
	FetchAll(ctx context.Context, urls []string, opts fetch.Options) []*model.Page
}

// Input is one extraction run.
type Input struct {
	Record   *model.CompanyRecord
	Homepage *model.Page
	// Want lists the fields to resolve. Empty means every field.
	Want     []model.Field
	Source   PageSource
	Deadline *budget.Deadline
}

// Outcome is the result of Run.
type Outcome struct {
	Fields map[model.Field]model.ExtractedField
	// Pages lists visited URLs, homepage first.
	Pages []string
	// Sources maps a SourceURL to the page it came from.
	Sources      map[string]*model.Page
	TimedOut     bool
	TimeoutStage string
	AICalls      int
}

// Missing returns the fields of want without a value.
func (o *Outcome) Missing(want []model.Field) []model.Field {
	var out []model.Field
	for _, f := range want {
		if _, ok := o.Fields[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func (o *Outcome) timeout(err error) {
	o.TimedOut = true
	var ex *budget.ExceededError
	if errors.As(err, &ex) {
		o.TimeoutStage = ex.Point
	}
}

// Engine runs the extraction phases for one confirmed homepage.
type Engine struct {
	rules    *Rules
	ai       ai.Extractor
	norm     *normalize.Normalizer
	cfg      config.ExtractConfig
	required []model.Field
	shot     string
	matcher  *PathMatcher
}

// NewEngine creates an Engine. shotPolicy is the screenshot policy for AI
// extraction (auto, always or never).
func NewEngine(ext ai.Extractor, n *normalize.Normalizer, cfg config.ExtractConfig, shotPolicy string) *Engine {
	var required []model.Field
	for _, name := range cfg.RequiredFields {
		if f, ok := model.ParseField(name); ok {
			required = append(required, f)
		}
	}
	if ext == nil {
		ext = ai.Disabled{}
	}
	return &Engine{
		rules:    NewRules(n),
		ai:       ext,
		norm:     n,
		cfg:      cfg,
		required: required,
		shot:     shotPolicy,
		matcher:  NewPathMatcher(nil),
	}
}

// Run extracts the wanted fields. It never fails: fetch and AI errors only
// leave fields unresolved.
func (e *Engine) Run(ctx context.Context, in Input) *Outcome {
	want := in.Want
	if len(want) == 0 {
		want = model.AllFields()
	}
	out := &Outcome{
		Fields:  map[model.Field]model.ExtractedField{},
		Sources: map[string]*model.Page{},
	}
	if in.Homepage == nil {
		return out
	}
	log := zap.L().With(zap.Int64("record_id", recordID(in.Record)))

	home := in.Homepage
	out.Pages = append(out.Pages, pageURL(home))
	out.Sources[pageURL(home)] = home
	e.absorb(out, e.rules.Extract(home), want)

	var deep []*model.Page
	if len(e.missingRequired(out, want)) > 0 {
		if err := in.Deadline.Check(budget.PointBeforeDeepCrawl); err != nil {
			log.Info("extract: deep crawl skipped", zap.Error(err))
			out.timeout(err)
		} else if in.Source != nil {
			deep = e.crawl(ctx, in, out, want)
		}
	}

	missing := out.Missing(want)
	if len(missing) == 0 {
		return out
	}

	home = e.withScreenshot(ctx, in, home, missing)
	e.askAI(ctx, in, out, home, missing, home.Text, ai.ImageFromPage(e.imageFor(home, missing)))

	missing = out.Missing(want)
	if len(missing) == 0 || len(deep) == 0 {
		return out
	}
	if err := in.Deadline.Check(budget.PointBeforeSecondAI); err != nil {
		log.Info("extract: second AI call skipped", zap.Error(err))
		out.timeout(err)
		return out
	}
	var b strings.Builder
	for _, p := range deep {
		b.WriteString("### ")
		b.WriteString(pageURL(p))
		b.WriteString("\n")
		b.WriteString(p.Text)
		b.WriteString("\n\n")
	}
	e.askAI(ctx, in, out, deep[0], missing, b.String(), nil)
	return out
}

// crawl walks ranked profile links breadth-first, one level per hop, until
// the required fields are complete or the hop/page limits are reached.
func (e *Engine) crawl(ctx context.Context, in Input, out *Outcome, want []model.Field) []*model.Page {
	seen := map[string]bool{}
	if k, err := fetch.URLKey(pageURL(in.Homepage)); err == nil {
		seen[k] = true
	}
	frontier := []*model.Page{in.Homepage}
	var deep []*model.Page

	for hop := 1; hop <= e.cfg.MaxHops && len(deep) < e.cfg.MaxPages; hop++ {
		var links []Link
		for _, p := range frontier {
			links = append(links, ParseLinks(p)...)
		}
		var batch []string
		for _, l := range RankLinks(links, e.matcher) {
			k, err := fetch.URLKey(l.URL)
			if err != nil || seen[k] {
				continue
			}
			seen[k] = true
			batch = append(batch, l.URL)
			if len(deep)+len(batch) >= e.cfg.MaxPages {
				break
			}
		}
		if len(batch) == 0 {
			break
		}

		frontier = frontier[:0]
		for _, p := range in.Source.FetchAll(ctx, batch, fetch.Options{}) {
			if p == nil {
				continue
			}
			deep = append(deep, p)
			frontier = append(frontier, p)
			out.Pages = append(out.Pages, pageURL(p))
			out.Sources[pageURL(p)] = p
			e.absorb(out, e.rules.Extract(p), want)
		}
		if len(e.missingRequired(out, want)) == 0 {
			break
		}
	}
	return deep
}

// askAI requests the missing fields and records the normalized answers.
func (e *Engine) askAI(ctx context.Context, in Input, out *Outcome, src *model.Page, fields []model.Field, text string, img *ai.Image) {
	req := ai.ExtractRequest{
		URL:    pageURL(src),
		Fields: fields,
		Text:   text,
		Image:  img,
	}
	if in.Record != nil {
		req.CompanyName = in.Record.CompanyName
		req.InputAddress = in.Record.InputAddress
	}
	out.AICalls++
	got, err := e.ai.ExtractFields(ctx, req)
	if err != nil {
		zap.L().Warn("extract: ai extraction failed",
			zap.Int64("record_id", recordID(in.Record)), zap.Error(err))
		return
	}
	found := map[model.Field]model.ExtractedField{}
	for _, f := range fields {
		v := got[f]
		if v == nil {
			continue
		}
		if n := e.norm.Field(f, *v); n != "" {
			found[f] = model.ExtractedField{
				Field:      f,
				Value:      n,
				SourceURL:  pageURL(src),
				Method:     model.MethodAI,
				Confidence: ConfidenceAI,
				Evidence:   "ai",
			}
		}
	}
	e.absorb(out, found, fields)
}

// withScreenshot refetches the homepage with a screenshot when the policy
// wants one attached and the cached page has none.
func (e *Engine) withScreenshot(ctx context.Context, in Input, home *model.Page, missing []model.Field) *model.Page {
	if !e.wantImage(missing) || home.HasScreenshot() || in.Source == nil {
		return home
	}
	p, err := in.Source.Fetch(ctx, pageURL(home), fetch.Options{WantScreenshot: true})
	if err != nil || !p.HasScreenshot() {
		zap.L().Debug("extract: screenshot unavailable", zap.String("url", pageURL(home)), zap.Error(err))
		return home
	}
	if p.Text == "" {
		p.Text = home.Text
	}
	return p
}

func (e *Engine) imageFor(home *model.Page, missing []model.Field) *model.Page {
	if !e.wantImage(missing) {
		return nil
	}
	return home
}

func (e *Engine) wantImage(missing []model.Field) bool {
	switch e.shot {
	case config.ScreenshotAlways:
		return true
	case config.ScreenshotAuto:
		for _, f := range missing {
			if f == model.FieldPhone || f == model.FieldAddress {
				return true
			}
		}
	}
	return false
}

// absorb keeps the higher-confidence value per wanted field; ties keep the
// earlier value.
func (e *Engine) absorb(out *Outcome, found map[model.Field]model.ExtractedField, want []model.Field) {
	for _, f := range want {
		v, ok := found[f]
		if !ok {
			continue
		}
		if cur, ok := out.Fields[f]; ok && cur.Confidence >= v.Confidence {
			continue
		}
		out.Fields[f] = v
	}
}

func (e *Engine) missingRequired(out *Outcome, want []model.Field) []model.Field {
	var req []model.Field
	for _, f := range e.required {
		for _, w := range want {
			if f == w {
				req = append(req, f)
				break
			}
		}
	}
	return out.Missing(req)
}

func pageURL(p *model.Page) string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

func recordID(r *model.CompanyRecord) int64 {
	if r == nil {
		return 0
	}
	return r.ID
}
