package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

var acme = Target{Name: "Acme Robotics 株式会社", Address: "〒105-0011 東京都港区芝公園1-1-1"}

func newTestScorer() *Scorer {
	return New(DefaultScorerConfig(), nil)
}

func cand(u string, page *model.Page) *model.Candidate {
	return &model.Candidate{URL: u, Page: page}
}

// judgeCounter returns a JudgeFunc answering yes and counting calls.
func judgeCounter(answer bool, calls *int) JudgeFunc {
	return func(context.Context, *model.ScoreResult) (bool, error) {
		*calls++
		return answer, nil
	}
}

func TestDomain(t *testing.T) {
	s := newTestScorer()
	tests := []struct {
		url  string
		want int
	}{
		{"https://acme.co.jp/", 7},
		{"https://www.acmerobotics.jp/company/", 7},
		{"https://acmeinc.jp/", 5},
		{"https://acmeinc.com/", 3},
		{"https://acme.com/news/2024/05/01", 1},
		{"https://acme.co.jp/a/b/c/d", 3},
		{"https://acme-robotics.com/recruit/", 1},
		{"https://unrelated.co.jp/", 3},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, why := s.Domain(acme.Name, tt.url)
			assert.Equal(t, tt.want, got, why)
		})
	}
}

func TestDomain_Aliases(t *testing.T) {
	s := New(DefaultScorerConfig(), &config.Policy{
		OfficialTLDs: config.DefaultOfficialTLDs,
		NameAliases:  map[string][]string{"テスト工業": {"test kogyo"}},
	})
	got, _ := s.Domain("株式会社テスト工業", "https://testkogyo.co.jp/")
	assert.Equal(t, 7, got)

	got, _ = s.Domain("株式会社テスト工業", "https://example.co.jp/")
	assert.Equal(t, 3, got)
}

func TestDecide_LowScoreRejectedDespiteAI(t *testing.T) {
	s := newTestScorer()
	calls := 0
	v := s.Decide(context.Background(), acme,
		[]*model.Candidate{cand("https://acmeinc.com/", nil)},
		judgeCounter(true, &calls))

	require.Len(t, v.Results, 1)
	assert.Equal(t, 3, v.Results[0].DomainScore)
	assert.Equal(t, model.DecisionRejected, v.Results[0].Decision)
	assert.Nil(t, v.Official)
	assert.Nil(t, v.Endorsed)
	assert.Nil(t, v.Provisional)
	assert.Zero(t, calls, "rejected candidates are never judged")
}

func TestDecide_HighScoreOfficial(t *testing.T) {
	s := newTestScorer()
	calls := 0
	page := &model.Page{Title: "ACME Robotics株式会社 | トップ", Text: "産業用ロボット"}
	v := s.Decide(context.Background(), acme,
		[]*model.Candidate{cand("https://acme.co.jp/", page)},
		judgeCounter(false, &calls))

	require.NotNil(t, v.Official)
	assert.Equal(t, 8, v.Official.DomainScore)
	assert.Equal(t, model.DecisionOfficialEligible, v.Official.Decision)
	assert.True(t, v.Official.NamePresence)
	assert.Zero(t, calls, "no judging once a candidate is official")
}

func TestDecide_AmbiguousEndorsedNeverOfficial(t *testing.T) {
	s := newTestScorer()
	calls := 0
	v := s.Decide(context.Background(), acme,
		[]*model.Candidate{cand("https://acme.com/", nil)},
		judgeCounter(true, &calls))

	assert.Nil(t, v.Official)
	require.NotNil(t, v.Endorsed)
	assert.Equal(t, model.DecisionAIEndorsed, v.Endorsed.Decision)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "https://acme.com/", s.ProvisionalURL(v))
}

func TestDecide_AddressMatchPromotes(t *testing.T) {
	s := newTestScorer()
	page := &model.Page{Text: "本社 〒105-0011 東京都港区芝公園1-1-1"}
	v := s.Decide(context.Background(), acme,
		[]*model.Candidate{cand("https://acme.com/", page)}, nil)

	require.NotNil(t, v.Official)
	assert.True(t, v.Official.AddressMatch)
	assert.Equal(t, 5, v.Official.DomainScore)
}

func TestDecide_TieBreak(t *testing.T) {
	s := newTestScorer()
	addrPage := &model.Page{Text: "東京都港区芝公園"}
	cands := []*model.Candidate{
		cand("https://acme.co.jp/", nil),
		cand("https://acme.or.jp/", addrPage),
		cand("https://acme.ac.jp/", nil),
	}
	v := s.Decide(context.Background(), acme, cands, nil)

	want := []model.ScoreResult{
		{URL: "https://acme.co.jp/", DomainScore: 7, Decision: model.DecisionOfficialEligible, Order: 0},
		{URL: "https://acme.or.jp/", DomainScore: 7, AddressMatch: true, Decision: model.DecisionOfficialEligible, Order: 1},
		{URL: "https://acme.ac.jp/", DomainScore: 7, Decision: model.DecisionOfficialEligible, Order: 2},
	}
	if diff := cmp.Diff(want, v.Results, cmpopts.IgnoreFields(model.ScoreResult{}, "Candidate", "Rationale")); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, v.Official)
	assert.Equal(t, "https://acme.or.jp/", v.Official.URL, "address match breaks the score tie")

	v = s.Decide(context.Background(), acme, []*model.Candidate{cands[0], cands[2]}, nil)
	assert.Equal(t, "https://acme.co.jp/", v.Official.URL, "first seen wins a full tie")
}

func TestDecide_MaxJudgedAndErrors(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.MaxJudged = 2
	s := New(cfg, nil)

	var seen []string
	judge := func(_ context.Context, r *model.ScoreResult) (bool, error) {
		seen = append(seen, r.URL)
		return false, errors.New("model unavailable")
	}
	cands := []*model.Candidate{
		cand("https://acme.com/", nil),
		cand("https://acme.net/", nil),
		cand("https://acme.org/", nil),
	}
	v := s.Decide(context.Background(), acme, cands, judge)
	assert.Len(t, seen, 2)
	assert.Nil(t, v.Endorsed)
	for _, r := range v.Results {
		assert.Equal(t, model.DecisionAmbiguous, r.Decision)
	}

	cfg.JudgeAmbiguous = false
	seen = nil
	New(cfg, nil).Decide(context.Background(), acme, cands, judge)
	assert.Empty(t, seen)
}

func TestDecide_NoCandidates(t *testing.T) {
	v := newTestScorer().Decide(context.Background(), acme, nil, nil)
	assert.Nil(t, v.Official)
	assert.Nil(t, v.Provisional)
	assert.Empty(t, v.Results)
}

func TestProvisionalURL(t *testing.T) {
	s := newTestScorer()
	assert.Equal(t, "https://a.jp/", s.ProvisionalURL(Verdict{Provisional: &model.ScoreResult{URL: "https://a.jp/", DomainScore: 4}}))
	assert.Equal(t, "https://a.jp/", s.ProvisionalURL(Verdict{Provisional: &model.ScoreResult{URL: "https://a.jp/", DomainScore: 3, NamePresence: true}}))
	assert.Empty(t, s.ProvisionalURL(Verdict{Provisional: &model.ScoreResult{URL: "https://a.jp/", DomainScore: 3}}))
	assert.Empty(t, s.ProvisionalURL(Verdict{
		Official:    &model.ScoreResult{URL: "https://o.jp/"},
		Provisional: &model.ScoreResult{URL: "https://a.jp/", DomainScore: 9},
	}))
}

func TestNamePresent(t *testing.T) {
	page := &model.Page{
		HTML: `<html><head><title>トップページ</title>
<meta property="og:site_name" content="株式会社テスト工業">
<meta name="description" content="ignored"></head>
<body><h1>ようこそ</h1></body></html>`,
	}
	signals := NameSignals(page)
	assert.Contains(t, signals, "株式会社テスト工業")
	assert.True(t, NamePresent("テスト工業株式会社", signals))
	assert.False(t, NamePresent("別会社", signals))
	assert.False(t, NamePresent("株式会社", signals), "suffix-only names never match")

	assert.True(t, NamePresent("ACME", []string{"Home | ACME"}))
	assert.True(t, NamePresent("AB", []string{"About | AB"}))
	assert.False(t, NamePresent("A", []string{"Alpha"}))
}

func TestNameSignals_BodyHead(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "あ"
	}
	signals := NameSignals(&model.Page{Text: long + "株式会社テスト"})
	require.Len(t, signals, 1)
	assert.Len(t, []rune(signals[0]), 240)
	assert.Nil(t, NameSignals(nil))
}

func TestAddressMatch(t *testing.T) {
	assert.True(t, AddressMatch("〒105-0011 東京都港区芝公園1-1-1", "所在地 〒105-0011 東京都"))
	assert.True(t, AddressMatch("105-0011", "〒1050011 港区"))
	assert.True(t, AddressMatch("東京都港区芝公園1-1-1", "本社：東京都港区芝公園"))
	assert.False(t, AddressMatch("東京都港区芝公園1-1-1", "大阪府大阪市北区"))
	assert.False(t, AddressMatch("東京都港区", "東京都千代田区"))
	assert.False(t, AddressMatch("", "東京都港区"))
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultScorerConfig()))
	cfg := DefaultScorerConfig()
	cfg.AcceptThreshold = 2
	assert.Error(t, ValidateConfig(cfg))
}
