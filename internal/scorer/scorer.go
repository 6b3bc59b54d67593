package scorer

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Target is the record being matched.
type Target struct {
	Name    string
	Address string
}

// JudgeFunc asks an external capability whether an Ambiguous candidate is
// the official site. It is never consulted for Rejected candidates.
type JudgeFunc func(ctx context.Context, r *model.ScoreResult) (bool, error)

// Verdict is the outcome of Decide for one record.
type Verdict struct {
	// Official is the winning OfficialEligible candidate, or nil.
	Official *model.ScoreResult
	// Endorsed is the best AI-endorsed candidate when there is no Official.
	Endorsed *model.ScoreResult
	// Provisional is the best non-rejected candidate.
	Provisional *model.ScoreResult
	Results     []model.ScoreResult
}

// Scorer applies the rule-first official-site policy.
type Scorer struct {
	cfg     config.ScorerConfig
	tlds    []string
	aliases map[string][]string
}

// New creates a Scorer. A nil policy uses the built-in TLD list.
func New(cfg config.ScorerConfig, policy *config.Policy) *Scorer {
	tlds := config.DefaultOfficialTLDs
	var aliases map[string][]string
	if policy != nil {
		if len(policy.OfficialTLDs) > 0 {
			tlds = policy.OfficialTLDs
		}
		aliases = policy.NameAliases
	}
	return &Scorer{cfg: cfg, tlds: sortedByLength(tlds), aliases: aliases}
}

// Score computes features and the rule decision for each candidate. Order
// follows the input slice.
func (s *Scorer) Score(t Target, cands []*model.Candidate) []model.ScoreResult {
	out := make([]model.ScoreResult, 0, len(cands))
	for i, c := range cands {
		r := model.ScoreResult{Candidate: c, URL: c.URL, Order: i}
		r.DomainScore, r.Rationale = s.Domain(t.Name, c.URL)
		if c.Page != nil {
			r.NamePresence = NamePresent(t.Name, NameSignals(c.Page))
			r.AddressMatch = AddressMatch(t.Address, c.Page.Text)
		}
		if r.NamePresence {
			r.DomainScore++
			r.Rationale = append(r.Rationale, "+1 name on page")
		}
		if r.AddressMatch {
			r.Rationale = append(r.Rationale, "address matches")
		}
		r.Decision = s.rule(r)
		out = append(out, r)
	}
	return out
}

// rule is the deterministic part of the decision. The AI never changes a
// Rejected or OfficialEligible result.
func (s *Scorer) rule(r model.ScoreResult) model.Decision {
	switch {
	case r.DomainScore < s.cfg.RejectThreshold && !r.AddressMatch:
		return model.DecisionRejected
	case r.DomainScore >= s.cfg.AcceptThreshold,
		r.DomainScore >= s.cfg.RejectThreshold && r.AddressMatch:
		return model.DecisionOfficialEligible
	default:
		return model.DecisionAmbiguous
	}
}

// Decide scores the candidates and picks the official homepage. When no
// candidate is OfficialEligible, up to MaxJudged Ambiguous candidates are put
// to judge; an endorsement only marks the record for review.
func (s *Scorer) Decide(ctx context.Context, t Target, cands []*model.Candidate, judge JudgeFunc) Verdict {
	v := Verdict{Results: s.Score(t, cands)}
	ranked := rank(v.Results)

	for _, i := range ranked {
		if v.Results[i].Decision == model.DecisionOfficialEligible {
			v.Official = &v.Results[i]
			break
		}
	}

	if v.Official == nil && judge != nil && s.cfg.JudgeAmbiguous {
		judged := 0
		for _, i := range ranked {
			r := &v.Results[i]
			if r.Decision != model.DecisionAmbiguous {
				continue
			}
			if s.cfg.MaxJudged > 0 && judged >= s.cfg.MaxJudged {
				break
			}
			judged++
			ok, err := judge(ctx, r)
			if err != nil {
				zap.L().Debug("scorer: judge failed", zap.String("url", r.URL), zap.Error(err))
				continue
			}
			if ok {
				r.Decision = model.DecisionAIEndorsed
				r.Rationale = append(r.Rationale, "ai endorsed")
				if v.Endorsed == nil {
					v.Endorsed = r
				}
			}
		}
	}

	for _, i := range ranked {
		if v.Results[i].Decision != model.DecisionRejected {
			v.Provisional = &v.Results[i]
			break
		}
	}
	return v
}

// ProvisionalURL returns the provisional homepage hint, or "" when the best
// non-official candidate is too weak to record.
func (s *Scorer) ProvisionalURL(v Verdict) string {
	if v.Official != nil {
		return ""
	}
	if v.Endorsed != nil {
		return v.Endorsed.URL
	}
	p := v.Provisional
	if p == nil {
		return ""
	}
	if p.DomainScore >= 4 || (p.DomainScore >= 3 && (p.NamePresence || p.AddressMatch)) {
		return p.URL
	}
	return ""
}

// rank orders result indexes by domain score, then address match, then
// first-seen order.
func rank(results []model.ScoreResult) []int {
	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := results[idx[a]], results[idx[b]]
		if ra.DomainScore != rb.DomainScore {
			return ra.DomainScore > rb.DomainScore
		}
		if ra.AddressMatch != rb.AddressMatch {
			return ra.AddressMatch
		}
		return ra.Order < rb.Order
	})
	return idx
}
