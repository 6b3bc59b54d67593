package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/shard"
	"github.com/sells-group/enrich-cli/internal/store"
)

// maxClaimFailures is the number of consecutive claim errors after which the
// worker gives up.
const maxClaimFailures = 5

// RecordProcessor runs one claimed record. *Processor satisfies it.
type RecordProcessor interface {
	Process(ctx context.Context, rec *model.CompanyRecord) (*model.CompanyRecord, error)
}

// WorkerConfig configures one worker loop.
type WorkerConfig struct {
	ID    string
	Range shard.Range
	Claim config.ClaimConfig
	// Once processes at most one record and exits.
	Once bool
	// MaxRecords stops the loop after this many records. Zero is unlimited.
	MaxRecords int
}

// Stats counts what a worker did.
type Stats struct {
	Processed int            `json:"processed"`
	Released  int            `json:"released"`
	LockLost  int            `json:"lock_lost"`
	Reclaimed int64          `json:"reclaimed"`
	ByStatus  map[string]int `json:"by_status"`
}

func (s *Stats) count(st model.Status) {
	if s.ByStatus == nil {
		s.ByStatus = map[string]int{}
	}
	s.ByStatus[string(st)]++
}

// Worker claims records from its shard and processes them one at a time.
type Worker struct {
	store store.Store
	proc  RecordProcessor
	cfg   WorkerConfig
	now   func() time.Time
}

// NewWorker creates a Worker.
func NewWorker(st store.Store, proc RecordProcessor, cfg WorkerConfig) *Worker {
	return &Worker{store: st, proc: proc, cfg: cfg, now: time.Now}
}

// Run loops until ctx is cancelled, the shard is drained (when configured to
// exit when idle), or the record limit is hit. Cancellation is not an error.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	log := zap.L().With(zap.String("worker_id", w.cfg.ID), zap.String("shard", w.cfg.Range.String()))
	log.Info("worker: starting", zap.String("order", w.cfg.Claim.Order))

	var stats Stats
	statuses := store.ClaimStatuses(w.cfg.Claim.RetryStatuses)
	lastReclaim := time.Time{}
	failures := 0

	for ctx.Err() == nil {
		if lastReclaim.IsZero() || (w.cfg.Claim.ReclaimEvery > 0 && w.now().Sub(lastReclaim) >= w.cfg.Claim.ReclaimEvery) {
			n, err := w.store.ReclaimStale(ctx, w.cfg.Claim.TTL, w.cfg.Range)
			if err != nil {
				log.Warn("worker: reclaim failed", zap.Error(err))
			} else if n > 0 {
				log.Info("worker: reclaimed stale claims", zap.Int64("count", n))
				stats.Reclaimed += n
			}
			lastReclaim = w.now()
		}

		rec, err := w.store.ClaimNext(ctx, store.ClaimRequest{
			WorkerID: w.cfg.ID,
			Range:    w.cfg.Range,
			Statuses: statuses,
			Order:    w.cfg.Claim.Order,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			log.Warn("worker: claim failed", zap.Int("failures", failures), zap.Error(err))
			if failures >= maxClaimFailures {
				return stats, eris.Wrap(err, "worker: claim")
			}
			sleepCtx(ctx, w.cfg.Claim.ClaimRetryWait)
			continue
		}
		failures = 0

		if rec == nil {
			if w.cfg.Once || w.cfg.Claim.ExitWhenIdle {
				log.Info("worker: shard idle, exiting")
				break
			}
			sleepCtx(ctx, w.cfg.Claim.IdleSleep)
			continue
		}

		w.handle(ctx, rec, &stats)
		if w.cfg.Once || (w.cfg.MaxRecords > 0 && stats.Processed+stats.Released >= w.cfg.MaxRecords) {
			break
		}
	}

	log.Info("worker: stopped",
		zap.Int("processed", stats.Processed),
		zap.Int("released", stats.Released),
		zap.Int("lock_lost", stats.LockLost),
	)
	return stats, nil
}

// handle processes one claimed record and writes its outcome. A finished
// record is committed even when shutdown began meanwhile; a record cut short
// by shutdown goes back to pending. Writes use a context detached from
// cancellation.
func (w *Worker) handle(ctx context.Context, rec *model.CompanyRecord, stats *Stats) {
	log := zap.L().With(
		zap.String("worker_id", w.cfg.ID),
		zap.Int64("record_id", rec.ID),
		zap.String("company", rec.CompanyName),
	)
	start := w.now()
	out, err := w.process(ctx, rec)
	wctx := context.WithoutCancel(ctx)

	switch {
	case err == nil && out != nil:
		if cerr := w.store.Commit(wctx, w.cfg.ID, out); cerr != nil {
			if errors.Is(cerr, store.ErrLockLost) {
				stats.LockLost++
				log.Warn("worker: claim lost before commit")
				return
			}
			log.Error("worker: commit failed", zap.Error(cerr))
			w.release(wctx, rec.ID, model.StatusError, model.ErrorCodeStore, stats, log)
			return
		}
		stats.Processed++
		stats.count(out.Status)
		log.Info("worker: record committed",
			zap.String("status", string(out.Status)),
			zap.String("review_reason", out.ReviewReason),
			zap.String("homepage", out.Homepage),
			zap.Duration("elapsed", w.now().Sub(start)),
		)
	case ctx.Err() != nil:
		log.Info("worker: shutdown, releasing claim")
		w.release(wctx, rec.ID, model.StatusPending, "", stats, log)
	default:
		if err == nil {
			err = &StageError{Code: model.ErrorCodeInternal, Err: errors.New("processor returned no record")}
		}
		code := ErrorCode(err)
		log.Error("worker: record failed", zap.String("error_code", code), zap.Error(err))
		w.release(wctx, rec.ID, model.StatusError, code, stats, log)
	}
}

// process runs the processor and turns a panic into a failed record.
func (w *Worker) process(ctx context.Context, rec *model.CompanyRecord) (out *model.CompanyRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &StageError{Code: model.ErrorCodePanic, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return w.proc.Process(ctx, rec)
}

func (w *Worker) release(ctx context.Context, id int64, status model.Status, code string, stats *Stats, log *zap.Logger) {
	if err := w.store.Release(ctx, w.cfg.ID, id, status, code); err != nil {
		if errors.Is(err, store.ErrLockLost) {
			stats.LockLost++
			log.Warn("worker: claim lost before release")
			return
		}
		log.Error("worker: release failed", zap.Error(err))
		return
	}
	stats.Released++
	stats.count(status)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
