package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/shard"
	"github.com/sells-group/enrich-cli/internal/store"
)

type procFunc func(ctx context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error)

func (f procFunc) Process(ctx context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error) {
	return f(ctx, rec)
}

func finishAs(status model.Status) procFunc {
	return func(_ context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error) {
		out := rec.Clone()
		out.Status = status
		out.Phone = "03-1234-5678"
		return out, nil
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "worker.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedRecords(t *testing.T, st store.Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := st.Insert(context.Background(), &model.CompanyRecord{
			CompanyName:  fmt.Sprintf("株式会社テスト%d", i),
			InputAddress: inputAddr,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func workerConfig() WorkerConfig {
	return WorkerConfig{
		ID: "w1",
		Claim: config.ClaimConfig{
			Order:         store.OrderIDAsc,
			RetryStatuses: []string{"review", "no_homepage"},
			TTL:           time.Hour,
			ExitWhenIdle:  true,
		},
	}
}

func TestWorker_DrainsShard(t *testing.T) {
	st := newTestStore(t)
	ids := seedRecords(t, st, 3)

	stats, err := NewWorker(st, finishAs(model.StatusDone), workerConfig()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 3, stats.ByStatus["done"])

	for _, id := range ids {
		rec, err := st.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDone, rec.Status)
		assert.Equal(t, "03-1234-5678", rec.Phone)
		assert.Empty(t, rec.ClaimedBy)
	}
}

func TestWorker_RespectsShard(t *testing.T) {
	st := newTestStore(t)
	ids := seedRecords(t, st, 4)

	cfg := workerConfig()
	cfg.Range = shard.Between(ids[1], ids[2])
	stats, err := NewWorker(st, finishAs(model.StatusDone), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)

	counts, err := st.CountByStatus(context.Background(), shard.Range{})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.StatusDone])
	assert.Equal(t, 2, counts[model.StatusPending])
}

func TestWorker_Once(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, 2)

	cfg := workerConfig()
	cfg.Once = true
	stats, err := NewWorker(st, finishAs(model.StatusReview), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
}

func TestWorker_MaxRecords(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, 5)

	cfg := workerConfig()
	cfg.MaxRecords = 2
	stats, err := NewWorker(st, finishAs(model.StatusNoHomepage), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
}

func TestWorker_FailureReleasesWithErrorCode(t *testing.T) {
	st := newTestStore(t)
	ids := seedRecords(t, st, 1)

	proc := procFunc(func(context.Context, *model.CompanyRecord) (*model.CompanyRecord, error) {
		return nil, &StageError{Code: model.ErrorCodeAI, Err: errors.New("quota")}
	})
	cfg := workerConfig()
	cfg.Once = true
	stats, err := NewWorker(st, proc, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Released)

	rec, err := st.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, rec.Status)
	assert.Equal(t, model.ErrorCodeAI, rec.ErrorCode)
	assert.Empty(t, rec.ClaimedBy)
}

func TestWorker_PanicBecomesError(t *testing.T) {
	st := newTestStore(t)
	ids := seedRecords(t, st, 1)

	proc := procFunc(func(context.Context, *model.CompanyRecord) (*model.CompanyRecord, error) {
		panic("boom")
	})
	cfg := workerConfig()
	cfg.Once = true
	_, err := NewWorker(st, proc, cfg).Run(context.Background())
	require.NoError(t, err)

	rec, err := st.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, rec.Status)
	assert.Equal(t, model.ErrorCodePanic, rec.ErrorCode)
}

func TestWorker_ShutdownReleasesToPending(t *testing.T) {
	st := newTestStore(t)
	ids := seedRecords(t, st, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := procFunc(func(ctx context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error) {
		cancel()
		return nil, ctx.Err()
	})
	stats, err := NewWorker(st, proc, workerConfig()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
	assert.Equal(t, 1, stats.Released)

	rec, err := st.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Empty(t, rec.ClaimedBy)
	assert.Empty(t, rec.ErrorCode)

	untouched, err := st.Get(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Zero(t, untouched.Attempts)
}

func TestWorker_CommitsFinishedRecordDuringShutdown(t *testing.T) {
	st := newTestStore(t)
	ids := seedRecords(t, st, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := procFunc(func(ctx context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error) {
		out, err := finishAs(model.StatusDone)(ctx, rec)
		cancel()
		return out, err
	})
	stats, err := NewWorker(st, proc, workerConfig()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Zero(t, stats.Released)

	rec, err := st.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, rec.Status)
	assert.Equal(t, "03-1234-5678", rec.Phone)
	assert.Empty(t, rec.ClaimedBy)

	untouched, err := st.Get(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, untouched.Status)
}

func TestWorker_LockLostIsCounted(t *testing.T) {
	st := newTestStore(t)
	ids := seedRecords(t, st, 1)
	ctx := context.Background()

	proc := procFunc(func(ctx context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error) {
		// Another worker reclaims the row and claims it before we commit.
		_, err := st.ReclaimStale(ctx, -time.Hour, shard.Range{})
		require.NoError(t, err)
		other, err := st.ClaimNext(ctx, store.ClaimRequest{
			WorkerID: "w2",
			Statuses: store.ClaimStatuses(nil),
			Order:    store.OrderIDAsc,
		})
		require.NoError(t, err)
		require.NotNil(t, other)
		return finishAs(model.StatusDone)(ctx, rec)
	})
	cfg := workerConfig()
	cfg.Once = true
	stats, err := NewWorker(st, proc, cfg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LockLost)
	assert.Zero(t, stats.Processed)

	rec, err := st.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, rec.Status)
	assert.Equal(t, "w2", rec.ClaimedBy)
	assert.Empty(t, rec.Phone)
}

func TestWorker_ReclaimsStaleClaimsAtStart(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, 1)
	ctx := context.Background()

	_, err := st.ClaimNext(ctx, store.ClaimRequest{WorkerID: "dead", Statuses: store.ClaimStatuses(nil), Order: store.OrderIDAsc})
	require.NoError(t, err)

	cfg := workerConfig()
	cfg.Claim.TTL = -time.Hour
	stats, err := NewWorker(st, finishAs(model.StatusDone), cfg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Reclaimed)
	assert.Equal(t, 1, stats.Processed)
}

type failingClaims struct {
	store.Store
	calls int
}

func (f *failingClaims) ClaimNext(context.Context, store.ClaimRequest) (*model.CompanyRecord, error) {
	f.calls++
	return nil, errors.New("database is locked")
}

func TestWorker_GivesUpAfterRepeatedClaimFailures(t *testing.T) {
	st := &failingClaims{Store: newTestStore(t)}

	_, err := NewWorker(st, finishAs(model.StatusDone), workerConfig()).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, maxClaimFailures, st.calls)
}

func TestWorker_StopsOnCancelWhileIdle(t *testing.T) {
	st := newTestStore(t)
	cfg := workerConfig()
	cfg.Claim.ExitWhenIdle = false
	cfg.Claim.IdleSleep = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := NewWorker(st, finishAs(model.StatusDone), cfg).Run(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
