package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/api"
)

var (
	shardsCount int
	reclaimTTL  time.Duration
	reclaimMin  int64
	reclaimMax  int64
)

var shardsCmd = &cobra.Command{
	Use:   "shards",
	Short: "Print the id partition for N workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		views, err := api.Shards(cmd.Context(), st, shardsCount)
		if err != nil {
			return eris.Wrap(err, "compute shards")
		}
		return printJSON(views)
	},
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Return stale running claims to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ttl := cfg.Claim.TTL
		if cmd.Flags().Changed("ttl") {
			ttl = reclaimTTL
		}
		r := idRange(reclaimMin, reclaimMax)
		n, err := st.ReclaimStale(cmd.Context(), ttl, r)
		if err != nil {
			return err
		}
		zap.L().Info("reclaimed stale claims",
			zap.Int64("count", n),
			zap.Duration("ttl", ttl),
			zap.String("shard", r.String()),
		)
		fmt.Printf("reclaimed %d\n", n)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("schema ready", zap.String("store", cfg.Store.Driver))
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record <id>",
	Short: "Print one record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid record id %q", args[0])
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Manage cached official/not-official URL verdicts",
}

var flagsClearAICmd = &cobra.Command{
	Use:   "clear-ai",
	Short: "Delete every AI-sourced negative URL flag",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ClearAIFlags(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("cleared ai url flags", zap.Int64("count", n))
		fmt.Printf("cleared %d\n", n)
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func init() {
	shardsCmd.Flags().IntVar(&shardsCount, "count", 1, "number of shards")
	reclaimCmd.Flags().DurationVar(&reclaimTTL, "ttl", 0, "claims older than this are reclaimed (default claim.ttl)")
	reclaimCmd.Flags().Int64Var(&reclaimMin, "id-min", 0, "lowest id to sweep")
	reclaimCmd.Flags().Int64Var(&reclaimMax, "id-max", 0, "highest id to sweep (0 = no upper bound)")
	flagsCmd.AddCommand(flagsClearAICmd)
	rootCmd.AddCommand(shardsCmd, reclaimCmd, migrateCmd, recordCmd, flagsCmd)
}
