package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Load every local clean file into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		tablesFlag, _ := cmd.Flags().GetString("tables")
		modeFlag, _ := cmd.Flags().GetString("mode")
		reindex, _ := cmd.Flags().GetBool("reindex")
		truncate, _ := cmd.Flags().GetBool("truncate")

		tables, err := parseTables(tablesFlag)
		if err != nil {
			return err
		}
		mode, err := workspace.ParseMode(modeFlag)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, envOpts{Store: true})
		if err != nil {
			return err
		}
		defer e.Close()

		return trackRun(ctx, e.Store, mode, tables, func() (store.RunResult, error) {
			var total store.RunResult
			for _, k := range tables {
				t := store.Target{Kind: k, Mode: mode}
				if truncate {
					if err := e.Loader.Clear(ctx, t); err != nil {
						return total, err
					}
				}
				sum, err := e.Loader.LoadAll(ctx, e.Workspace, t, reindex)
				total.Files += int64(sum.Files)
				total.Records += sum.Records
				fmt.Fprintf(os.Stdout, "%-18s %5d files  %10d records  %d failed  %s\n",
					t.Table(), sum.Files, sum.Records, sum.Failed, sum.Elapsed.Round(time.Millisecond))
				if err != nil {
					return total, err
				}
			}
			return total, nil
		})
	},
}

func init() {
	storeCmd.Flags().String("tables", "", "comma-separated tables: events, mentions, gkg (default all)")
	storeCmd.Flags().String("mode", "batch", "which clean directory to load: batch or realtime")
	storeCmd.Flags().Bool("reindex", false, "rebuild table indexes after loading")
	storeCmd.Flags().Bool("truncate", false, "empty each table before loading")
	rootCmd.AddCommand(storeCmd)
}
