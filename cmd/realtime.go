package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/gdelt-ingest/internal/realtime"
	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

var realtimeCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Follow the live feed for a window of snapshots",
	Long:  "Polls the GDELT manifest every 15 minutes, ingesting each new snapshot into the realtime tables until the window is complete. Stops with an error if a snapshot is missed or the feed stops advancing.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("realtime"); err != nil {
			return err
		}

		window, _ := cmd.Flags().GetInt("window")
		unitFlag, _ := cmd.Flags().GetString("unit")
		tablesFlag, _ := cmd.Flags().GetString("tables")
		deleteRaw, _ := cmd.Flags().GetBool("delete-raw")

		unit, err := realtime.ParseUnit(unitFlag)
		if err != nil {
			return err
		}
		windows, err := realtime.Windows(window, unit)
		if err != nil {
			return err
		}
		tables, err := parseTables(tablesFlag)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, envOpts{Feed: true, Store: true})
		if err != nil {
			return err
		}
		defer e.Close()
		e.serveMetrics(ctx)

		s := realtime.New(realtime.Config{
			Tables:          tables,
			Windows:         windows,
			EarlyBackoff:    time.Duration(cfg.Realtime.EarlyBackoffSecs) * time.Second,
			MaxEarlyRetries: cfg.Realtime.MaxEarlyRetries,
			Tick:            time.Duration(cfg.Realtime.TickSecs) * time.Second,
			DeleteRaw:       deleteRaw || cfg.Clean.DeleteRaw,
		}, realtime.Deps{
			Manifests: e.Feed,
			Downloads: e.Downloader,
			Cleaner:   e.Cleaner,
			Store:     e.Loader,
			Reporter:  realtime.LogReporter{},
			Metrics:   e.Metrics,
		})

		return trackRun(ctx, e.Store, workspace.Realtime, tables, func() (store.RunResult, error) {
			err := s.Run(ctx)
			sum := s.Summary()
			return store.RunResult{Files: int64(sum.Files), Records: sum.Records}, err
		})
	},
}

func init() {
	realtimeCmd.Flags().Int("window", 1, "number of units to ingest")
	realtimeCmd.Flags().String("unit", "file", "window unit: file, hour (4 files) or day (92 files)")
	realtimeCmd.Flags().String("tables", "", "comma-separated tables: events, mentions, gkg (default all)")
	realtimeCmd.Flags().Bool("delete-raw", false, "delete raw files after a successful clean")
	rootCmd.AddCommand(realtimeCmd)
}
