package main

import (
	"errors"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/shard"
	"github.com/sells-group/enrich-cli/internal/store"
)

var (
	workerID     string
	workerIDMin  int64
	workerIDMax  int64
	shardIndex   int
	shardCount   int
	workerOnce   bool
	workerMax    int
	workerRegen  bool
	workerIdleGo bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Claim and enrich records from a shard until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyWorkerFlags(cmd)

		env, err := initWorker(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := idRange(cfg.Worker.IDMin, cfg.Worker.IDMax)
		if shardCount > 0 {
			r, err = shardFromBounds(cmd, env.Store)
			if err != nil {
				return err
			}
		}

		w := pipeline.NewWorker(env.Store, env.Processor, pipeline.WorkerConfig{
			ID:         cfg.Worker.ID,
			Range:      r,
			Claim:      cfg.Claim,
			Once:       workerOnce,
			MaxRecords: cfg.Worker.MaxRecords,
		})
		stats, err := w.Run(ctx)
		zap.L().Info("worker finished",
			zap.String("worker_id", cfg.Worker.ID),
			zap.Int("processed", stats.Processed),
			zap.Int("released", stats.Released),
			zap.Int("lock_lost", stats.LockLost),
			zap.Int64("reclaimed", stats.Reclaimed),
			zap.Any("by_status", stats.ByStatus),
		)
		return err
	},
}

// applyWorkerFlags lets explicitly set flags override the loaded config.
func applyWorkerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("worker-id") {
		cfg.Worker.ID = workerID
	}
	if cfg.Worker.ID == "" {
		cfg.Worker.ID = defaultWorkerID()
	}
	if f.Changed("id-min") {
		cfg.Worker.IDMin = workerIDMin
	}
	if f.Changed("id-max") {
		cfg.Worker.IDMax = workerIDMax
	}
	if f.Changed("max-records") {
		cfg.Worker.MaxRecords = workerMax
	}
	if f.Changed("regenerate") {
		cfg.Worker.Regenerate = workerRegen
	}
	if f.Changed("exit-when-idle") {
		cfg.Claim.ExitWhenIdle = workerIdleGo
	}
}

func shardFromBounds(cmd *cobra.Command, st store.Store) (shard.Range, error) {
	lo, hi, err := st.IDBounds(cmd.Context())
	if errors.Is(err, store.ErrNotFound) {
		return shard.Range{}, eris.New("store has no records to shard")
	}
	if err != nil {
		return shard.Range{}, err
	}
	r, err := shard.For(lo, hi, shardCount, shardIndex)
	if err != nil {
		return shard.Range{}, err
	}
	zap.L().Info("shard assigned",
		zap.Int("index", shardIndex),
		zap.Int("count", shardCount),
		zap.String("range", r.String()),
	)
	return r, nil
}

// idRange bounds the worker to [min,max]. A zero max leaves the top open and
// 0/0 means every id.
func idRange(min, max int64) shard.Range {
	if min == 0 && max == 0 {
		return shard.Range{}
	}
	if max == 0 {
		max = math.MaxInt64
	}
	return shard.Between(min, max)
}

// defaultWorkerID is <hostname>-<first 8 hex of a uuid>.
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

func init() {
	f := workerCmd.Flags()
	f.StringVar(&workerID, "worker-id", "", "worker id recorded in claims (default <hostname>-<uuid8>)")
	f.Int64Var(&workerIDMin, "id-min", 0, "lowest record id of this worker's shard")
	f.Int64Var(&workerIDMax, "id-max", 0, "highest record id of this worker's shard (0 = no upper bound)")
	f.IntVar(&shardIndex, "shard-index", 0, "shard index when --shard-count is set")
	f.IntVar(&shardCount, "shard-count", 0, "split the store's id span into this many shards")
	f.BoolVar(&workerOnce, "once", false, "process at most one record and exit")
	f.IntVar(&workerMax, "max-records", 0, "stop after this many records (0 = unlimited)")
	f.BoolVar(&workerRegen, "regenerate", false, "overwrite existing field values")
	f.BoolVar(&workerIdleGo, "exit-when-idle", false, "exit once the shard has nothing to claim")
	rootCmd.AddCommand(workerCmd)
}
