package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/batch"
	"github.com/sells-group/gdelt-ingest/internal/feed"
	"github.com/sells-group/gdelt-ingest/internal/store"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Download, clean and store whole days of snapshots",
	Long:  "Fetches all 92 snapshots of each requested UTC day for each table, cleans each file as it lands and, unless --no-store is set, loads it into the configured store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		datesFlag, _ := cmd.Flags().GetString("dates")
		tablesFlag, _ := cmd.Flags().GetString("tables")
		workers, _ := cmd.Flags().GetInt("workers")
		deleteRaw, _ := cmd.Flags().GetBool("delete-raw")
		noStore, _ := cmd.Flags().GetBool("no-store")
		reload, _ := cmd.Flags().GetBool("reload")

		days, err := feed.ParseDays(datesFlag)
		if err != nil {
			return err
		}
		tables, err := parseTables(tablesFlag)
		if err != nil {
			return err
		}
		if workers <= 0 {
			workers = cfg.Clean.Workers
		}

		e, err := initEnv(ctx, envOpts{Feed: true, Store: !noStore})
		if err != nil {
			return err
		}
		defer e.Close()
		e.serveMetrics(ctx)

		deps := batch.Deps{
			URLs:       e.Feed,
			Downloader: e.Downloader,
			Cleaner:    e.Cleaner,
			Metrics:    e.Metrics,
		}
		if e.Loader != nil {
			deps.Storer = e.Loader
		}
		r := batch.New(batch.Config{
			Tables:    tables,
			Workers:   workers,
			DeleteRaw: deleteRaw || cfg.Clean.DeleteRaw,
			Store:     !noStore,
			Reload:    reload,
		}, deps)

		run := func() (store.RunResult, error) {
			sum, err := r.Days(ctx, days)
			printBatchSummary(sum)
			return store.RunResult{Files: sum.Files(), Records: sum.Records}, err
		}
		if e.Store == nil {
			_, err := run()
			return err
		}
		return trackRun(ctx, e.Store, workspace.Batch, tables, run)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean every local raw batch file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("clean"); err != nil {
			return err
		}

		tablesFlag, _ := cmd.Flags().GetString("tables")
		workers, _ := cmd.Flags().GetInt("workers")
		deleteRaw, _ := cmd.Flags().GetBool("delete-raw")

		tables, err := parseTables(tablesFlag)
		if err != nil {
			return err
		}
		if workers <= 0 {
			workers = cfg.Clean.Workers
		}

		e, err := initEnv(ctx, envOpts{})
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := batch.New(batch.Config{
			Tables:    tables,
			Workers:   workers,
			DeleteRaw: deleteRaw || cfg.Clean.DeleteRaw,
		}, batch.Deps{Cleaner: e.Cleaner, Files: e.Workspace, Metrics: e.Metrics}).Local(ctx)
		printBatchSummary(sum)
		return err
	},
}

func printBatchSummary(sum batch.Summary) {
	zap.L().Info("batch summary",
		zap.Int64("downloaded", sum.Downloaded),
		zap.Int64("already_local", sum.AlreadyLocal),
		zap.Int64("missing", sum.Missing),
		zap.Int64("download_failed", sum.DownloadFailed),
		zap.Int64("cleaned", sum.Cleaned),
		zap.Int64("clean_skipped", sum.CleanSkipped),
		zap.Int64("clean_failed", sum.CleanFailed),
		zap.Int64("records", sum.Records),
		zap.Int64("dropped", sum.Dropped),
		zap.Int64("stored", sum.Stored),
		zap.Duration("elapsed", sum.Elapsed),
	)
	fmt.Fprintf(os.Stdout, "files: %d cleaned, %d already clean, %d failed, %d missing upstream; records: %d cleaned, %d stored\n",
		sum.Cleaned, sum.CleanSkipped, sum.CleanFailed+sum.DownloadFailed, sum.Missing, sum.Records, sum.Stored)
}

func init() {
	batchCmd.Flags().String("dates", "", "comma-separated UTC days, e.g. 2021/09/01,2021/09/02 (required)")
	batchCmd.Flags().String("tables", "", "comma-separated tables: events, mentions, gkg (default all)")
	batchCmd.Flags().Int("workers", 0, "concurrent file pipelines (default clean.workers)")
	batchCmd.Flags().Bool("delete-raw", false, "delete raw files after a successful clean")
	batchCmd.Flags().Bool("no-store", false, "download and clean only")
	batchCmd.Flags().Bool("reload", false, "also store files that were already clean")
	_ = batchCmd.MarkFlagRequired("dates")

	cleanCmd.Flags().String("tables", "", "comma-separated tables: events, mentions, gkg (default all)")
	cleanCmd.Flags().Int("workers", 0, "concurrent cleaners (default clean.workers)")
	cleanCmd.Flags().Bool("delete-raw", false, "delete raw files after a successful clean")

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(cleanCmd)
}
