// Package pipeline runs one claimed record through discovery, scoring,
// extraction and verification, and drives the worker claim loop.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/ai"
	"github.com/sells-group/enrich-cli/internal/budget"
	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/extract"
	"github.com/sells-group/enrich-cli/internal/fetch"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
	"github.com/sells-group/enrich-cli/internal/scorer"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/internal/verify"
)

// thinPageRunes is the text length below which a candidate page is treated
// as a script shell and judged with a screenshot under the auto policy.
const thinPageRunes = 200

// Discoverer finds candidate URLs for a record.
type Discoverer interface {
	Discover(ctx context.Context, rec *model.CompanyRecord) ([]*model.Candidate, error)
}

// Session is the fetch scope of one record. fetch.Session satisfies it.
type Session interface {
	extract.PageSource
	Close()
}

// FlagWriter persists official/not-official verdicts.
type FlagWriter interface {
	UpsertURLFlag(ctx context.Context, flag store.URLFlag) error
}

// StageError carries the error_code a failed record is released with.
type StageError struct {
	Code string
	Err  error
}

func (e *StageError) Error() string { return e.Code + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// ErrorCode returns the error_code for err.
func ErrorCode(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return model.ErrorCodeInternal
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Discoverer Discoverer
	Sessions   func() Session
	Scorer     *scorer.Scorer
	Judge      ai.Judge
	Extractor  ai.Extractor
	Normalizer *normalize.Normalizer
	Flags      FlagWriter
}

// Option configures a Processor.
type Option func(*Processor)

// WithRegenerate lets extracted values overwrite existing ones.
func WithRegenerate(on bool) Option {
	return func(p *Processor) { p.regenerate = on }
}

// WithClock replaces time.Now for the record deadline.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.clock = now }
}

// Processor runs one claimed record to a terminal status.
type Processor struct {
	cfg        *config.Config
	discover   Discoverer
	sessions   func() Session
	scorer     *scorer.Scorer
	judge      ai.Judge
	engine     *extract.Engine
	verifier   *verify.Verifier
	norm       *normalize.Normalizer
	flags      FlagWriter
	required   []model.Field
	regenerate bool
	clock      func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(cfg *config.Config, deps Deps, opts ...Option) *Processor {
	norm := deps.Normalizer
	if norm == nil {
		norm = normalize.New(nil)
	}
	judge := deps.Judge
	if _, off := judge.(ai.Disabled); off {
		judge = nil
	}
	p := &Processor{
		cfg:      cfg,
		discover: deps.Discoverer,
		sessions: deps.Sessions,
		scorer:   deps.Scorer,
		judge:    judge,
		engine:   extract.NewEngine(deps.Extractor, norm, cfg.Extract, cfg.AI.Screenshot.Extract),
		verifier: verify.New(),
		norm:     norm,
		flags:    deps.Flags,
		clock:    time.Now,
	}
	for _, name := range cfg.Extract.RequiredFields {
		if f, ok := model.ParseField(name); ok {
			p.required = append(p.required, f)
		}
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs rec, which must be running, and returns the working copy
// with its terminal status set. A returned error is a *StageError; the
// caller releases the claim with its code.
func (p *Processor) Process(ctx context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error) {
	log := zap.L().With(zap.Int64("record_id", rec.ID), zap.String("company", rec.CompanyName))
	work := rec.Clone()
	work.ErrorCode = ""
	work.ReviewReason = ""
	p.scrubInvalid(work)

	dl := budget.Start(p.cfg.Budget, budget.WithClock(p.clock))
	if err := dl.Check(budget.PointBeforeDiscovery); err != nil {
		log.Info("pipeline: budget exhausted before discovery", zap.Error(err))
		return p.timedOut(work)
	}

	cands, err := p.discover.Discover(ctx, work)
	if err != nil {
		return nil, &StageError{Code: model.ErrorCodeFetch, Err: eris.Wrap(err, "pipeline: discover")}
	}
	if len(cands) == 0 {
		log.Info("pipeline: no candidates")
		clearHomepage(work)
		return p.finish(work, OutcomeNoOfficial)
	}
	if err := dl.Check(budget.PointBeforeFetch); err != nil {
		log.Info("pipeline: budget exhausted after discovery", zap.Error(err))
		return p.timedOut(work)
	}

	sess := p.sessions()
	defer sess.Close()

	cands = p.fetchCandidates(ctx, sess, cands)
	if ctx.Err() != nil {
		return nil, &StageError{Code: model.ErrorCodeShutdown, Err: ctx.Err()}
	}
	if err := dl.Check(budget.PointBeforeScoring); err != nil {
		log.Info("pipeline: budget exhausted after fetch", zap.Error(err))
		return p.timedOut(work)
	}
	target := scorer.Target{Name: work.CompanyName, Address: work.InputAddress}
	verdict := p.scorer.Decide(ctx, target, cands, p.judgeFunc(sess, work))
	if ctx.Err() != nil {
		return nil, &StageError{Code: model.ErrorCodeShutdown, Err: ctx.Err()}
	}
	p.flagRejected(ctx, verdict)

	if verdict.Official == nil {
		clearHomepage(work)
		return p.unresolved(work, verdict, log)
	}

	official := verdict.Official
	log.Info("pipeline: official homepage",
		zap.String("url", official.URL),
		zap.Int("domain_score", official.DomainScore),
		zap.Bool("address_match", official.AddressMatch),
	)
	work.Homepage = official.URL
	work.HomepageScore = official.DomainScore
	work.ProvisionalHomepage = ""
	if err := dl.Check(budget.PointBeforeExtract); err != nil {
		log.Info("pipeline: budget exhausted before extraction", zap.Error(err))
		return p.timedOut(work)
	}
	dl.Rebase()

	home := official.Candidate.Page
	out := p.engine.Run(ctx, extract.Input{
		Record:   work,
		Homepage: home,
		Want:     Wanted(work, p.regenerate),
		Source:   sess,
		Deadline: dl,
	})
	if ctx.Err() != nil {
		return nil, &StageError{Code: model.ErrorCodeShutdown, Err: ctx.Err()}
	}
	timedOut := out.TimedOut
	if err := dl.Check(budget.PointBeforeVerify); err != nil {
		log.Info("pipeline: verification skipped", zap.Error(err))
		timedOut = true
	}
	vr := p.verifier.Verify(verify.Input{
		Fields:   out.Fields,
		Homepage: home,
		Sources:  out.Sources,
		Deadline: dl,
	})

	fields := map[model.Field]model.ExtractedField{}
	lowConfidence := map[model.Field]bool{}
	for f, ef := range vr.Fields {
		if ef.Confidence < p.cfg.Extract.MinConfidence {
			lowConfidence[f] = true
			continue
		}
		fields[f] = ef
	}

	prefMismatch := false
	if addr, ok := fields[model.FieldAddress]; ok && RegionMismatch(work.InputAddress, addr.Value) && !hqEvidence(fields) {
		log.Info("pipeline: found address outside input prefecture",
			zap.String("input", work.InputAddress), zap.String("found", addr.Value))
		delete(fields, model.FieldAddress)
		prefMismatch = true
	}

	adopted := Merge(work, fields, p.regenerate)
	for _, f := range adopted {
		if vr.Verified[f] {
			prov := work.Provenance[f]
			prov.Verified = true
			work.Provenance[f] = prov
		}
	}
	p.norm.Record(work)

	log.Info("pipeline: extraction complete",
		zap.Int("pages", len(out.Pages)),
		zap.Int("ai_calls", out.AICalls),
		zap.Int("adopted", len(adopted)),
		zap.Bool("timed_out", timedOut),
	)

	missing := p.missingRequired(work)
	lowMissing := false
	for _, f := range missing {
		if lowConfidence[f] {
			lowMissing = true
		}
	}
	switch {
	case timedOut:
		return p.timedOut(work)
	case prefMismatch:
		work.ReviewReason = model.ReviewPrefMismatch
		return p.finish(work, OutcomeIncomplete)
	case lowMissing:
		work.ReviewReason = model.ReviewLowConfidence
		return p.finish(work, OutcomeIncomplete)
	case len(missing) > 0:
		work.ReviewReason = model.ReviewIncomplete
		return p.finish(work, OutcomeIncomplete)
	default:
		return p.finish(work, OutcomeComplete)
	}
}

// fetchCandidates attaches fetched pages. Candidates whose fetch failed are
// dropped.
func (p *Processor) fetchCandidates(ctx context.Context, sess Session, cands []*model.Candidate) []*model.Candidate {
	urls := make([]string, len(cands))
	for i, c := range cands {
		urls[i] = c.URL
	}
	opts := fetch.Options{WantScreenshot: p.cfg.AI.Screenshot.Judge == config.ScreenshotAlways}
	pages := sess.FetchAll(ctx, urls, opts)

	kept := cands[:0]
	for i, c := range cands {
		if pages[i] == nil {
			continue
		}
		c.Page = pages[i]
		kept = append(kept, c)
	}
	return kept
}

// judgeFunc adapts the AI judge for the scorer. A not-official answer is
// cached as a negative URL flag.
func (p *Processor) judgeFunc(sess Session, rec *model.CompanyRecord) scorer.JudgeFunc {
	if p.judge == nil {
		return nil
	}
	return func(ctx context.Context, r *model.ScoreResult) (bool, error) {
		page := r.Candidate.Page
		if p.cfg.AI.Screenshot.Judge == config.ScreenshotAuto && !page.HasScreenshot() &&
			utf8.RuneCountInString(page.Text) < thinPageRunes {
			if shot, err := sess.Fetch(ctx, r.URL, fetch.Options{WantScreenshot: true}); err == nil {
				page = shot
			}
		}
		var img *ai.Image
		if p.cfg.AI.Screenshot.Judge != config.ScreenshotNever {
			img = ai.ImageFromPage(page)
		}
		j, err := p.judge.JudgeOfficial(ctx, ai.CandidateContext{
			CompanyName:  rec.CompanyName,
			InputAddress: rec.InputAddress,
			URL:          r.URL,
			Title:        page.Title,
			Text:         page.Text,
			DomainScore:  r.DomainScore,
			AddressMatch: r.AddressMatch,
			NamePresence: r.NamePresence,
			Image:        img,
		})
		if err != nil {
			return false, err
		}
		if !j.Official {
			key, kerr := fetch.URLKey(r.URL)
			if kerr == nil {
				p.writeFlag(ctx, store.URLFlag{
					Value:       key,
					Scope:       store.ScopeURL,
					Host:        fetch.HostKey(r.URL),
					JudgeSource: store.SourceAI,
					Reason:      j.Reason,
					Confidence:  j.Confidence,
				})
			}
		}
		return j.Official, nil
	}
}

// flagRejected caches hosts the rules rejected outright.
func (p *Processor) flagRejected(ctx context.Context, v scorer.Verdict) {
	for _, r := range v.Results {
		if r.Decision != model.DecisionRejected || r.DomainScore > 0 {
			continue
		}
		host := fetch.HostKey(r.URL)
		if host == "" {
			continue
		}
		p.writeFlag(ctx, store.URLFlag{
			Value:       host,
			Scope:       store.ScopeHost,
			Host:        host,
			JudgeSource: store.SourceRule,
			Reason:      strings.Join(r.Rationale, "; "),
			Confidence:  1,
		})
	}
}

func (p *Processor) writeFlag(ctx context.Context, f store.URLFlag) {
	if p.flags == nil {
		return
	}
	if err := p.flags.UpsertURLFlag(ctx, f); err != nil {
		zap.L().Warn("pipeline: write url flag", zap.String("value", f.Value), zap.Error(err))
	}
}

// unresolved settles a record without an Official candidate.
func (p *Processor) unresolved(work *model.CompanyRecord, v scorer.Verdict, log *zap.Logger) (*model.CompanyRecord, error) {
	strict := p.cfg.Scorer.StrictHomepage
	if v.Endorsed != nil {
		log.Info("pipeline: ai endorsed candidate only", zap.String("url", v.Endorsed.URL))
		work.ReviewReason = model.ReviewAIEndorsed
		if !strict {
			work.ProvisionalHomepage = v.Endorsed.URL
		}
		return p.finish(work, OutcomeAIEndorsedOnly)
	}
	if !strict {
		if u := p.scorer.ProvisionalURL(v); u != "" {
			log.Info("pipeline: provisional homepage", zap.String("url", u))
			work.ProvisionalHomepage = u
			work.ReviewReason = model.ReviewProvisionalOnly
			return p.finish(work, OutcomeAIEndorsedOnly)
		}
	}
	log.Info("pipeline: no official homepage", zap.Int("candidates", len(v.Results)))
	return p.finish(work, OutcomeNoOfficial)
}

// clearHomepage drops homepage values left by an earlier run once scoring
// finds no Official candidate.
func clearHomepage(work *model.CompanyRecord) {
	work.Homepage = ""
	work.HomepageScore = 0
	work.ProvisionalHomepage = ""
}

func (p *Processor) timedOut(work *model.CompanyRecord) (*model.CompanyRecord, error) {
	work.ErrorCode = model.ErrorCodeTimeout
	work.ReviewReason = model.ReviewTimeout
	return p.finish(work, OutcomeTimedOut)
}

func (p *Processor) finish(work *model.CompanyRecord, o Outcome) (*model.CompanyRecord, error) {
	to, err := Transition(work.Status, o)
	if err != nil {
		return nil, &StageError{Code: model.ErrorCodeInternal, Err: err}
	}
	work.Status = to
	return work, nil
}

// scrubInvalid clears stored values that carry vendor boilerplate so they
// are extracted again.
func (p *Processor) scrubInvalid(rec *model.CompanyRecord) {
	for _, f := range model.AllFields() {
		if v := rec.Get(f); v != "" && p.norm.Invalid(v) {
			rec.Set(f, "")
			delete(rec.Provenance, f)
		}
	}
}

func (p *Processor) missingRequired(rec *model.CompanyRecord) []model.Field {
	var out []model.Field
	for _, f := range p.required {
		if rec.Get(f) == "" {
			out = append(out, f)
		}
	}
	return out
}

// RegionMismatch reports whether both addresses name a prefecture and the
// prefectures differ.
func RegionMismatch(input, found string) bool {
	pi, pf := normalize.Prefecture(input), normalize.Prefecture(found)
	return pi != "" && pf != "" && pi != pf
}

// hqEvidence reports whether the address was read from a 本社/本店 label by
// the rules, on the same page the rules also found the phone.
func hqEvidence(fields map[model.Field]model.ExtractedField) bool {
	addr, ok := fields[model.FieldAddress]
	if !ok || addr.Method != model.MethodRule {
		return false
	}
	if !strings.Contains(addr.Evidence, "本社") && !strings.Contains(addr.Evidence, "本店") {
		return false
	}
	phone, ok := fields[model.FieldPhone]
	return ok && phone.Method == model.MethodRule && phone.SourceURL == addr.SourceURL
}
