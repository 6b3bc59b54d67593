package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/ai"
	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/fetch"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
	"github.com/sells-group/enrich-cli/internal/scorer"
	"github.com/sells-group/enrich-cli/internal/store"
)

const (
	officialURL = "https://www.test.co.jp/"
	shopURL     = "https://testshop.jp/"
	newsURL     = "https://example.com/news/1"
	inputAddr   = "〒100-0005 東京都千代田区丸の内1-1-1"
)

type mockDiscoverer struct {
	mock.Mock
}

func (m *mockDiscoverer) Discover(ctx context.Context, rec *model.CompanyRecord) ([]*model.Candidate, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Candidate), args.Error(1)
}

type mockJudge struct {
	mock.Mock
}

func (m *mockJudge) JudgeOfficial(ctx context.Context, c ai.CandidateContext) (ai.Judgement, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(ai.Judgement), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractFields(ctx context.Context, req ai.ExtractRequest) (map[model.Field]*string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.Field]*string), args.Error(1)
}

type fakeSession struct {
	mu      sync.Mutex
	pages   map[string]*model.Page
	batches [][]string
	closed  bool
	onBatch func()
}

func (s *fakeSession) Fetch(_ context.Context, rawURL string, _ fetch.Options) (*model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[rawURL]
	if !ok {
		return nil, fetch.ErrNetwork
	}
	return p, nil
}

func (s *fakeSession) FetchAll(ctx context.Context, urls []string, opts fetch.Options) []*model.Page {
	s.mu.Lock()
	s.batches = append(s.batches, urls)
	s.mu.Unlock()
	if s.onBatch != nil {
		s.onBatch()
	}
	out := make([]*model.Page, len(urls))
	for i, u := range urls {
		out[i], _ = s.Fetch(ctx, u, opts)
	}
	return out
}

func (s *fakeSession) Close() { s.closed = true }

type flagRecorder struct {
	mu    sync.Mutex
	flags []store.URLFlag
}

func (r *flagRecorder) UpsertURLFlag(_ context.Context, f store.URLFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = append(r.flags, f)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scorer: scorer.DefaultScorerConfig(),
		Extract: config.ExtractConfig{
			RequiredFields: []string{"phone", "address", "rep_name"},
			MaxHops:        2,
			MaxPages:       4,
			MinConfidence:  0.5,
		},
		Budget: config.BudgetConfig{Mode: "off"},
		AI: config.AIConfig{Screenshot: config.ScreenshotConfig{
			Judge:   config.ScreenshotNever,
			Extract: config.ScreenshotNever,
		}},
	}
}

func profilePage(rows string) *model.Page {
	doc := `<html><head><title>株式会社テスト</title></head><body><table>` + rows + `</table><a href="/company/">会社概要</a></body></html>`
	title, text := fetch.ExtractText(doc)
	return &model.Page{
		URL:      officialURL,
		FinalURL: officialURL,
		Title:    title,
		HTML:     doc,
		Text:     text,
	}
}

const completeRows = `<tr><th>電話番号</th><td>03-1234-5678</td></tr>
<tr><th>本社所在地</th><td>〒100-0005 東京都千代田区丸の内1-1-1</td></tr>
<tr><th>代表者</th><td>代表取締役 山田太郎</td></tr>`

func shopPage() *model.Page {
	return &model.Page{
		URL:      shopURL,
		FinalURL: shopURL,
		Title:    "Test Shop",
		HTML:     "<html><head><title>Test Shop</title></head><body>雑貨の通販</body></html>",
		Text:     "雑貨の通販",
	}
}

func candidates(urls ...string) []*model.Candidate {
	out := make([]*model.Candidate, len(urls))
	for i, u := range urls {
		out[i] = &model.Candidate{URL: u, Host: fetch.HostKey(u), Rank: i + 1}
	}
	return out
}

func testRecord() *model.CompanyRecord {
	return &model.CompanyRecord{
		ID:           1,
		CompanyName:  "株式会社テスト",
		InputAddress: inputAddr,
		Status:       model.StatusRunning,
		ClaimedBy:    "w1",
	}
}

type fixture struct {
	disc     *mockDiscoverer
	judge    *mockJudge
	ext      *mockExtractor
	sess     *fakeSession
	flags    *flagRecorder
	sessions int
}

func newFixture(pages map[string]*model.Page) *fixture {
	return &fixture{
		disc:  &mockDiscoverer{},
		judge: &mockJudge{},
		ext:   &mockExtractor{},
		sess:  &fakeSession{pages: pages},
		flags: &flagRecorder{},
	}
}

func (f *fixture) processor(cfg *config.Config, opts ...Option) *Processor {
	return NewProcessor(cfg, f.deps(cfg), opts...)
}

func (f *fixture) deps(cfg *config.Config) Deps {
	policy := &config.Policy{
		OfficialTLDs: config.DefaultOfficialTLDs,
		NameAliases:  map[string][]string{"テスト": {"test"}},
	}
	return Deps{
		Discoverer: f.disc,
		Sessions: func() Session {
			f.sessions++
			return f.sess
		},
		Scorer:     scorer.New(cfg.Scorer, policy),
		Judge:      f.judge,
		Extractor:  f.ext,
		Normalizer: normalize.New(config.DefaultInvalidMarkers),
		Flags:      f.flags,
	}
}

func TestProcess_Complete(t *testing.T) {
	f := newFixture(map[string]*model.Page{
		officialURL: profilePage(completeRows),
		newsURL:     {URL: newsURL, FinalURL: newsURL, Title: "News", Text: "新製品のお知らせ"},
	})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL, newsURL), nil)
	f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

	rec := testRecord()
	got, err := f.processor(testConfig()).Process(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, model.StatusDone, got.Status)
	assert.Empty(t, got.ReviewReason)
	assert.Equal(t, officialURL, got.Homepage)
	assert.GreaterOrEqual(t, got.HomepageScore, 7)
	assert.Equal(t, "03-1234-5678", got.Phone)
	assert.Contains(t, got.FoundAddress, "千代田区丸の内")
	assert.Equal(t, "山田太郎", got.RepName)

	prov := got.Provenance[model.FieldPhone]
	assert.Equal(t, model.MethodRule, prov.Method)
	assert.Equal(t, officialURL, prov.SourceURL)
	assert.True(t, prov.Verified)

	// The input record is untouched.
	assert.Empty(t, rec.Phone)
	assert.Equal(t, model.StatusRunning, rec.Status)

	assert.True(t, f.sess.closed)
	f.judge.AssertNotCalled(t, "JudgeOfficial", mock.Anything, mock.Anything)

	require.Len(t, f.flags.flags, 1)
	flag := f.flags.flags[0]
	assert.Equal(t, "example.com", flag.Value)
	assert.Equal(t, store.ScopeHost, flag.Scope)
	assert.Equal(t, store.SourceRule, flag.JudgeSource)
	assert.False(t, flag.IsOfficial)
}

func TestProcess_NoCandidates(t *testing.T) {
	f := newFixture(nil)
	f.disc.On("Discover", mock.Anything, mock.Anything).Return([]*model.Candidate{}, nil)

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusNoHomepage, got.Status)
	assert.Empty(t, got.Homepage)
	assert.Zero(t, f.sessions, "no fetch session without candidates")
	f.ext.AssertNotCalled(t, "ExtractFields", mock.Anything, mock.Anything)
}

func TestProcess_UnfetchableCandidatesNoHomepage(t *testing.T) {
	f := newFixture(map[string]*model.Page{})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoHomepage, got.Status)
	assert.True(t, f.sess.closed)
}

func TestProcess_AIEndorsedGoesToReview(t *testing.T) {
	f := newFixture(map[string]*model.Page{shopURL: shopPage()})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(shopURL), nil)
	f.judge.On("JudgeOfficial", mock.Anything, mock.MatchedBy(func(c ai.CandidateContext) bool {
		return c.URL == shopURL && c.CompanyName == "株式会社テスト" && c.Image == nil
	})).Return(ai.Judgement{Official: true, Confidence: 0.8, Reason: "brand site"}, nil).Once()

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ReviewAIEndorsed, got.ReviewReason)
	assert.Empty(t, got.Homepage, "an endorsement never becomes the homepage")
	assert.Empty(t, got.ProvisionalHomepage, "strict mode records no hint")
	f.judge.AssertExpectations(t)
	f.ext.AssertNotCalled(t, "ExtractFields", mock.Anything, mock.Anything)
	assert.Empty(t, f.flags.flags)
}

func TestProcess_NegativeJudgementFlagsURL(t *testing.T) {
	f := newFixture(map[string]*model.Page{shopURL: shopPage()})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(shopURL), nil)
	f.judge.On("JudgeOfficial", mock.Anything, mock.Anything).
		Return(ai.Judgement{Official: false, Confidence: 0.9, Reason: "retailer"}, nil)

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoHomepage, got.Status)

	require.Len(t, f.flags.flags, 1)
	flag := f.flags.flags[0]
	assert.Equal(t, "testshop.jp", flag.Value)
	assert.Equal(t, store.ScopeURL, flag.Scope)
	assert.Equal(t, store.SourceAI, flag.JudgeSource)
	assert.Equal(t, "retailer", flag.Reason)
}

func TestProcess_ProvisionalHintWhenNotStrict(t *testing.T) {
	f := newFixture(map[string]*model.Page{shopURL: shopPage()})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(shopURL), nil)
	f.judge.On("JudgeOfficial", mock.Anything, mock.Anything).
		Return(ai.Judgement{Official: false}, nil)

	cfg := testConfig()
	cfg.Scorer.StrictHomepage = false
	got, err := f.processor(cfg).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ReviewProvisionalOnly, got.ReviewReason)
	assert.Equal(t, shopURL, got.ProvisionalHomepage)
	assert.Empty(t, got.Homepage)
}

func TestProcess_DeadlineTruncation(t *testing.T) {
	home := profilePage(`<tr><th>電話番号</th><td>03-1234-5678</td></tr>`)
	company := profilePage(completeRows)
	company.URL = officialURL + "company/"
	company.FinalURL = company.URL
	f := newFixture(map[string]*model.Page{officialURL: home, company.URL: company})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)
	f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return t0.Add(time.Duration(tick) * time.Second)
	}
	cfg := testConfig()
	cfg.Budget = config.BudgetConfig{Mode: "split", PreHomepage: time.Hour, PostHomepage: 500 * time.Millisecond}

	got, err := f.processor(cfg, WithClock(clock)).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ErrorCodeTimeout, got.ErrorCode)
	assert.Equal(t, model.ReviewTimeout, got.ReviewReason)
	assert.Equal(t, officialURL, got.Homepage)
	assert.Equal(t, "03-1234-5678", got.Phone, "values found before the deadline are kept")
	assert.False(t, got.Provenance[model.FieldPhone].Verified)

	require.Len(t, f.sess.batches, 1, "only the candidate fetch, no deep crawl")
	f.ext.AssertNumberOfCalls(t, "ExtractFields", 1)
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestProcess_PreHomepageBudgetAfterDiscovery(t *testing.T) {
	clock := newTestClock()
	f := newFixture(map[string]*model.Page{officialURL: profilePage(completeRows)})
	f.disc.On("Discover", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { clock.Advance(10 * time.Minute) }).
		Return(candidates(officialURL), nil)

	cfg := testConfig()
	cfg.Budget = config.BudgetConfig{Mode: "split", PreHomepage: time.Second, PostHomepage: time.Hour}

	got, err := f.processor(cfg, WithClock(clock.Now)).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ErrorCodeTimeout, got.ErrorCode)
	assert.Equal(t, model.ReviewTimeout, got.ReviewReason)
	assert.Empty(t, got.Homepage)
	assert.Zero(t, f.sessions, "no fetch once the budget is spent")
	f.ext.AssertNotCalled(t, "ExtractFields", mock.Anything, mock.Anything)
}

func TestProcess_PreHomepageBudgetAfterFetch(t *testing.T) {
	clock := newTestClock()
	f := newFixture(map[string]*model.Page{
		officialURL: profilePage(completeRows),
		newsURL:     {URL: newsURL, FinalURL: newsURL, Text: "ニュース"},
	})
	f.sess.onBatch = func() { clock.Advance(10 * time.Minute) }
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL, newsURL), nil)

	cfg := testConfig()
	cfg.Budget = config.BudgetConfig{Mode: "split", PreHomepage: time.Minute, PostHomepage: time.Hour}

	got, err := f.processor(cfg, WithClock(clock.Now)).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ErrorCodeTimeout, got.ErrorCode)
	assert.Empty(t, got.Phone)
	assert.Empty(t, f.flags.flags, "scoring never ran")
	assert.True(t, f.sess.closed)
	f.judge.AssertNotCalled(t, "JudgeOfficial", mock.Anything, mock.Anything)
	f.ext.AssertNotCalled(t, "ExtractFields", mock.Anything, mock.Anything)
}

func TestProcess_DisabledJudgeWritesNoFlags(t *testing.T) {
	f := newFixture(map[string]*model.Page{shopURL: shopPage()})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(shopURL), nil)

	cfg := testConfig()
	deps := f.deps(cfg)
	deps.Judge = ai.Disabled{}
	got, err := NewProcessor(cfg, deps).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusNoHomepage, got.Status)
	assert.Empty(t, f.flags.flags)
}

func TestProcess_HomepageFollowsVerdict(t *testing.T) {
	const oldURL = "https://old-test.co.jp/"
	tests := []struct {
		name      string
		cands     []*model.Candidate
		wantURL   string
		wantScore bool
	}{
		{"new official replaces old", candidates(officialURL), officialURL, true},
		{"no official clears old", []*model.Candidate{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(map[string]*model.Page{officialURL: profilePage(completeRows)})
			f.disc.On("Discover", mock.Anything, mock.Anything).Return(tt.cands, nil)
			f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

			rec := testRecord()
			rec.Homepage = oldURL
			rec.HomepageScore = 9
			rec.ProvisionalHomepage = "https://hint.example/"
			got, err := f.processor(testConfig()).Process(context.Background(), rec)
			require.NoError(t, err)

			assert.Equal(t, tt.wantURL, got.Homepage)
			assert.Empty(t, got.ProvisionalHomepage)
			if tt.wantScore {
				assert.GreaterOrEqual(t, got.HomepageScore, 7)
			} else {
				assert.Zero(t, got.HomepageScore)
			}
		})
	}
}

func TestProcess_PrefectureMismatch(t *testing.T) {
	rows := `<tr><th>電話番号</th><td>06-1234-5678</td></tr>
<tr><th>所在地</th><td>〒530-0001 大阪府大阪市北区梅田1-1-1</td></tr>
<tr><th>代表者</th><td>山田太郎</td></tr>`
	f := newFixture(map[string]*model.Page{officialURL: profilePage(rows)})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)
	f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ReviewPrefMismatch, got.ReviewReason)
	assert.Empty(t, got.FoundAddress)
	assert.Equal(t, "06-1234-5678", got.Phone)
}

func TestProcess_HeadOfficeOverridesPrefectureMismatch(t *testing.T) {
	rows := `<tr><th>電話番号</th><td>06-1234-5678</td></tr>
<tr><th>本社所在地</th><td>〒530-0001 大阪府大阪市北区梅田1-1-1</td></tr>
<tr><th>代表者</th><td>山田太郎</td></tr>`
	f := newFixture(map[string]*model.Page{officialURL: profilePage(rows)})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)
	f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, model.StatusDone, got.Status)
	assert.Contains(t, got.FoundAddress, "大阪府")
}

func TestProcess_IncompleteGoesToReview(t *testing.T) {
	f := newFixture(map[string]*model.Page{officialURL: profilePage(`<tr><th>電話番号</th><td>03-1234-5678</td></tr>`)})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)
	f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ReviewIncomplete, got.ReviewReason)
	assert.Empty(t, got.ErrorCode)
}

func TestProcess_ShutdownDuringExtraction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(map[string]*model.Page{officialURL: profilePage(`<tr><th>電話番号</th><td>03-1234-5678</td></tr>`)})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)
	f.ext.On("ExtractFields", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(map[model.Field]*string{}, nil)

	got, err := f.processor(testConfig()).Process(ctx, testRecord())
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, model.ErrorCodeShutdown, ErrorCode(err))
}

func TestProcess_DiscoveryError(t *testing.T) {
	f := newFixture(nil)
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(nil, errors.New("all searches failed"))

	got, err := f.processor(testConfig()).Process(context.Background(), testRecord())
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, model.ErrorCodeFetch, ErrorCode(err))
	assert.Zero(t, f.sessions)
}

func TestProcess_KeepsExistingValues(t *testing.T) {
	tests := []struct {
		name       string
		regenerate bool
		wantPhone  string
	}{
		{"additive", false, "03-9999-0000"},
		{"regenerate", true, "03-1234-5678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(map[string]*model.Page{officialURL: profilePage(completeRows)})
			f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)
			f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

			rec := testRecord()
			rec.Phone = "03-9999-0000"
			rec.Provenance = map[model.Field]model.FieldProvenance{
				model.FieldPhone: {SourceURL: "https://old.example/", Method: model.MethodAI, Confidence: 0.7},
			}
			got, err := f.processor(testConfig(), WithRegenerate(tt.regenerate)).Process(context.Background(), rec)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPhone, got.Phone)
			if tt.regenerate {
				assert.Equal(t, officialURL, got.Provenance[model.FieldPhone].SourceURL)
			} else {
				assert.Equal(t, "https://old.example/", got.Provenance[model.FieldPhone].SourceURL)
			}
		})
	}
}

func TestProcess_ScrubsInvalidMarkerValues(t *testing.T) {
	f := newFixture(map[string]*model.Page{officialURL: profilePage(completeRows)})
	f.disc.On("Discover", mock.Anything, mock.Anything).Return(candidates(officialURL), nil)
	f.ext.On("ExtractFields", mock.Anything, mock.Anything).Return(map[model.Field]*string{}, nil)

	rec := testRecord()
	rec.Description = "本法人データはリストスが提供しています"
	got, err := f.processor(testConfig()).Process(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, got.Description)
	assert.NotContains(t, got.Provenance, model.FieldDescription)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, model.ErrorCodeAI, ErrorCode(&StageError{Code: model.ErrorCodeAI, Err: errors.New("x")}))
	assert.Equal(t, model.ErrorCodeInternal, ErrorCode(errors.New("plain")))
	assert.Equal(t, "x", errors.Unwrap(&StageError{Code: "c", Err: errors.New("x")}).Error())
}

func TestRegionMismatch(t *testing.T) {
	assert.True(t, RegionMismatch("東京都千代田区", "大阪府大阪市"))
	assert.False(t, RegionMismatch("東京都千代田区", "東京都港区"))
	assert.False(t, RegionMismatch("", "大阪府大阪市"))
	assert.False(t, RegionMismatch("東京都千代田区", "千代田区丸の内"))
}
