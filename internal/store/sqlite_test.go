package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/shard"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seed(t *testing.T, st Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := st.Insert(context.Background(), &model.CompanyRecord{
			CompanyName:  fmt.Sprintf("株式会社テスト%d", i),
			InputAddress: "東京都千代田区丸の内1-1-1",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func claimReq(worker string) ClaimRequest {
	return ClaimRequest{WorkerID: worker, Statuses: ClaimStatuses([]string{"review", "no_homepage"}), Order: OrderIDAsc}
}

func TestSQLite_ClaimNext_SetsLease(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ids := seed(t, st, 2)

	rec, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ids[0], rec.ID)
	assert.Equal(t, model.StatusRunning, rec.Status)
	assert.Equal(t, "w1", rec.ClaimedBy)
	require.NotNil(t, rec.ClaimedAt)
	assert.Equal(t, 1, rec.Attempts)

	got, err := st.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.Equal(t, "w1", got.ClaimedBy)
}

func TestSQLite_ClaimNext_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	rec, err := st.ClaimNext(context.Background(), claimReq("w1"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLite_ClaimNext_RequiresWorker(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.ClaimNext(context.Background(), ClaimRequest{})
	require.Error(t, err)
}

func TestSQLite_ClaimNext_RetryStatusOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	noHP, err := st.Insert(ctx, &model.CompanyRecord{CompanyName: "A", Status: model.StatusNoHomepage})
	require.NoError(t, err)
	review, err := st.Insert(ctx, &model.CompanyRecord{CompanyName: "B", Status: model.StatusReview})
	require.NoError(t, err)
	done, err := st.Insert(ctx, &model.CompanyRecord{CompanyName: "C", Status: model.StatusDone})
	require.NoError(t, err)
	pending, err := st.Insert(ctx, &model.CompanyRecord{CompanyName: "D"})
	require.NoError(t, err)

	var order []int64
	for {
		rec, err := st.ClaimNext(ctx, claimReq("w1"))
		require.NoError(t, err)
		if rec == nil {
			break
		}
		order = append(order, rec.ID)
	}
	assert.Equal(t, []int64{pending, review, noHP}, order)

	got, err := st.Get(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.Status)
}

func TestSQLite_ClaimNext_RespectsRange(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ids := seed(t, st, 10)

	r := shard.Between(ids[4], ids[6])
	var claimed []int64
	for {
		req := claimReq("w2")
		req.Range = r
		rec, err := st.ClaimNext(ctx, req)
		require.NoError(t, err)
		if rec == nil {
			break
		}
		claimed = append(claimed, rec.ID)
	}
	assert.Equal(t, []int64{ids[4], ids[5], ids[6]}, claimed)
}

func TestSQLite_ClaimNext_OrderDesc(t *testing.T) {
	st := newTestSQLiteStore(t)
	ids := seed(t, st, 3)
	req := claimReq("w1")
	req.Order = OrderIDDesc
	rec, err := st.ClaimNext(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ids[2], rec.ID)
}

func TestSQLite_ClaimExclusivity_Concurrent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	// Independent handles model independent processes sharing one file.
	const workers = 4
	stores := make([]*SQLiteStore, workers)
	for i := range stores {
		st, err := NewSQLite(dbPath, 10000)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() }) //nolint:errcheck
		stores[i] = st
	}
	require.NoError(t, stores[0].Migrate(ctx))
	seed(t, stores[0], 40)

	var mu sync.Mutex
	owner := make(map[int64]string)
	var dup []int64

	var wg sync.WaitGroup
	for i, st := range stores {
		wg.Add(1)
		go func(worker string, st *SQLiteStore) {
			defer wg.Done()
			for {
				rec, err := st.ClaimNext(ctx, ClaimRequest{WorkerID: worker, Statuses: []model.Status{model.StatusPending}})
				if !assert.NoError(t, err) || rec == nil {
					return
				}
				mu.Lock()
				if prev, ok := owner[rec.ID]; ok {
					dup = append(dup, rec.ID)
					t.Logf("id %d claimed by %s and %s", rec.ID, prev, worker)
				}
				owner[rec.ID] = worker
				mu.Unlock()
			}
		}(fmt.Sprintf("w%d", i), st)
	}
	wg.Wait()

	assert.Empty(t, dup)
	assert.Len(t, owner, 40)

	counts, err := stores[0].CountByStatus(ctx, shard.Range{})
	require.NoError(t, err)
	assert.Equal(t, 40, counts[model.StatusRunning])
}

func TestSQLite_ReclaimStale(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ids := seed(t, st, 2)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	old, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)
	require.Equal(t, ids[0], old.ID)

	st.now = func() time.Time { return base.Add(25 * time.Minute) }
	fresh, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)
	require.Equal(t, ids[1], fresh.ID)

	st.now = func() time.Time { return base.Add(40 * time.Minute) }
	n, err := st.ReclaimStale(ctx, 30*time.Minute, shard.Range{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Empty(t, got.ClaimedBy)
	assert.Nil(t, got.ClaimedAt)

	got, err = st.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)

	// The reclaimed row is claimable again.
	again, err := st.ClaimNext(ctx, claimReq("w2"))
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, ids[0], again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestSQLite_ReclaimStale_OutsideRangeUntouched(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ids := seed(t, st, 1)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	_, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)

	st.now = func() time.Time { return base.Add(time.Hour) }
	n, err := st.ReclaimStale(ctx, time.Minute, shard.Between(ids[0]+1, ids[0]+100))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Commit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seed(t, st, 1)

	rec, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)

	rec.Homepage = "https://www.example.co.jp/"
	rec.Phone = "03-1234-5678"
	rec.HomepageScore = 8
	rec.Provenance = map[model.Field]model.FieldProvenance{
		model.FieldPhone: {SourceURL: "https://www.example.co.jp/company", Method: model.MethodRule, Confidence: 0.9, Verified: true},
	}
	rec.Status = model.StatusDone
	require.NoError(t, st.Commit(ctx, "w1", rec))

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.Status)
	assert.Equal(t, "03-1234-5678", got.Phone)
	assert.Equal(t, 8, got.HomepageScore)
	assert.Empty(t, got.ClaimedBy)
	assert.Nil(t, got.ClaimedAt)
	assert.NotNil(t, got.LastCheckedAt)
	assert.True(t, got.Provenance[model.FieldPhone].Verified)
}

func TestSQLite_Commit_RejectsNonTerminal(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.Commit(context.Background(), "w1", &model.CompanyRecord{ID: 1, Status: model.StatusRunning})
	require.Error(t, err)
}

func TestSQLite_Commit_LockMismatchRoutesToReview(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seed(t, st, 1)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	rec, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)

	// Reclaimed then finished as review by another worker.
	st.now = func() time.Time { return base.Add(time.Hour) }
	_, err = st.ReclaimStale(ctx, time.Minute, shard.Range{})
	require.NoError(t, err)
	other, err := st.ClaimNext(ctx, claimReq("w2"))
	require.NoError(t, err)
	other.Status = model.StatusNoHomepage
	require.NoError(t, st.Commit(ctx, "w2", other))

	rec.Status = model.StatusDone
	rec.Phone = "03-0000-0000"
	err = st.Commit(ctx, "w1", rec)
	require.ErrorIs(t, err, ErrLockLost)

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReview, got.Status)
	assert.Equal(t, model.ReviewLockMismatch, got.ReviewReason)
	assert.Equal(t, 1, got.LockMismatchCount)
	assert.Empty(t, got.Phone)
}

func TestSQLite_Commit_LockMismatchKeepsForeignLease(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seed(t, st, 1)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	rec, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)

	st.now = func() time.Time { return base.Add(time.Hour) }
	_, err = st.ReclaimStale(ctx, time.Minute, shard.Range{})
	require.NoError(t, err)
	_, err = st.ClaimNext(ctx, claimReq("w2"))
	require.NoError(t, err)

	rec.Status = model.StatusDone
	require.ErrorIs(t, st.Commit(ctx, "w1", rec), ErrLockLost)

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.Equal(t, "w2", got.ClaimedBy)
	assert.Equal(t, 1, got.LockMismatchCount)
}

func TestSQLite_Commit_AfterReclaimWhileUnclaimed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seed(t, st, 1)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	rec, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)

	st.now = func() time.Time { return base.Add(time.Hour) }
	_, err = st.ReclaimStale(ctx, time.Minute, shard.Range{})
	require.NoError(t, err)

	rec.Status = model.StatusReview
	require.NoError(t, st.Commit(ctx, "w1", rec))
	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReview, got.Status)
}

func TestSQLite_Release(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seed(t, st, 1)

	rec, err := st.ClaimNext(ctx, claimReq("w1"))
	require.NoError(t, err)
	require.NoError(t, st.Release(ctx, "w1", rec.ID, model.StatusError, model.ErrorCodePanic))

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, model.ErrorCodePanic, got.ErrorCode)
	assert.Empty(t, got.ClaimedBy)

	require.Error(t, st.Release(ctx, "w1", rec.ID, model.StatusRunning, ""))
}

func TestSQLite_Get_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.Get(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_IDBounds(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, _, err := st.IDBounds(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	ids := seed(t, st, 5)
	lo, hi, err := st.IDBounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], lo)
	assert.Equal(t, ids[4], hi)
}

func TestSQLite_Insert_RejectsRunning(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.Insert(context.Background(), &model.CompanyRecord{CompanyName: "X", Status: model.StatusRunning})
	require.Error(t, err)
}

func TestSQLite_URLFlags(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertURLFlag(ctx, URLFlag{Value: "jobs.example.jp", Scope: ScopeHost, Host: "jobs.example.jp", JudgeSource: SourceRule, Reason: "domain_score=0"}))
	require.NoError(t, st.UpsertURLFlag(ctx, URLFlag{Value: "other.jp", Scope: ScopeHost, Host: "other.jp", JudgeSource: SourceAI, Confidence: 0.8}))
	require.NoError(t, st.UpsertURLFlag(ctx, URLFlag{Value: "https://ok.co.jp/", Scope: ScopeURL, Host: "ok.co.jp", IsOfficial: true, JudgeSource: SourceAI}))

	flags, err := st.GetURLFlags(ctx, []string{"jobs.example.jp", "other.jp", "https://ok.co.jp/", "missing.jp"})
	require.NoError(t, err)
	require.Len(t, flags, 3)
	assert.False(t, flags["jobs.example.jp"].IsOfficial)
	assert.True(t, flags["https://ok.co.jp/"].IsOfficial)
	assert.InDelta(t, 0.8, flags["other.jp"].Confidence, 0.001)

	// Upsert overwrites.
	require.NoError(t, st.UpsertURLFlag(ctx, URLFlag{Value: "other.jp", Scope: ScopeHost, Host: "other.jp", JudgeSource: SourceRule}))

	n, err := st.ClearAIFlags(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, st.UpsertURLFlag(ctx, URLFlag{Value: "ai-neg.jp", Scope: ScopeHost, Host: "ai-neg.jp", JudgeSource: SourceAI}))
	n, err = st.ClearAIFlags(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	empty, err := st.GetURLFlags(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClaimStatuses(t *testing.T) {
	got := ClaimStatuses([]string{"review", "running", "pending", "bogus", "no_homepage"})
	assert.Equal(t, []model.Status{model.StatusPending, model.StatusReview, model.StatusNoHomepage}, got)
}
