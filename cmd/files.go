package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect or remove local snapshot files",
}

// -- files list --

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Count (or list) local files per table and state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("files"); err != nil {
			return err
		}
		full, _ := cmd.Flags().GetBool("full")
		modeFlag, _ := cmd.Flags().GetString("mode")

		states := workspace.AllStates
		if modeFlag != "" {
			m, err := workspace.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			states = workspace.ModeStates(m)
		}

		ws, err := workspace.Open(cfg.Data.Dir)
		if err != nil {
			return err
		}
		formatFilesList(os.Stdout, ws, states, full)
		return nil
	},
}

// -- files wipe --

var filesWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete local files in the given state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("files"); err != nil {
			return err
		}
		stateFlag, _ := cmd.Flags().GetString("state")
		tablesFlag, _ := cmd.Flags().GetString("tables")

		states, err := workspace.ParseWipeTarget(stateFlag)
		if err != nil {
			return err
		}
		tables, err := parseTables(tablesFlag)
		if err != nil {
			return err
		}

		ws, err := workspace.Open(cfg.Data.Dir)
		if err != nil {
			return err
		}
		n, err := ws.Wipe(tables, states)
		fmt.Fprintf(os.Stdout, "removed %d files\n", n)
		return err
	},
}

func formatFilesList(out io.Writer, ws *workspace.Workspace, states []workspace.State, full bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tSTATE\tFILES")
	for _, k := range schema.AllKinds {
		for _, s := range states {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", k, s, ws.Count(k, s))
		}
	}
	_ = w.Flush()

	if !full {
		return
	}
	for _, k := range schema.AllKinds {
		for _, s := range states {
			names := ws.List(k, s)
			if len(names) == 0 {
				continue
			}
			_, _ = fmt.Fprintf(out, "\n%s/%s:\n", k, s)
			for _, n := range names {
				_, _ = fmt.Fprintf(out, "  %s\n", n)
			}
		}
	}
}

func init() {
	filesListCmd.Flags().Bool("full", false, "list every file name")
	filesListCmd.Flags().String("mode", "", "only batch or realtime directories")

	filesWipeCmd.Flags().String("state", "clean", "raw, clean, both, realtime or all")
	filesWipeCmd.Flags().String("tables", "", "comma-separated tables (default all)")

	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesWipeCmd)
	rootCmd.AddCommand(filesCmd)
}
