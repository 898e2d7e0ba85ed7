package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/multiplier-cli/internal/export"
	"github.com/sells-group/multiplier-cli/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and move prediction history",
}

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent predictions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := st.ListHistory(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		formatHistory(os.Stdout, entries)
		return nil
	},
}

// -- history export --

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export history to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListHistory(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history export")
		}
		if err := export.WriteHistory(out, entries); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Exported %d entries to %s\n", len(entries), out)
		return nil
	},
}

// -- history import --

var historyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load history from an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		in, _ := cmd.Flags().GetString("in")
		entries, err := export.ReadHistory(in)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportHistory(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "history import")
		}

		fmt.Fprintf(os.Stderr, "Imported %d entries from %s\n", n, in)
		return nil
	},
}

func formatHistory(w io.Writer, entries []model.HistoryEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tN\tPREDICTION\tMULTIPLIERS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.4f\t%s\n",
			e.ID,
			e.CreatedAt.Local().Format(time.DateTime),
			e.Source,
			len(e.Multipliers),
			e.Prediction,
			truncate(export.FormatMultipliers(e.Multipliers), 48),
		)
	}
	tw.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "max entries to show")

	historyExportCmd.Flags().String("out", "history.xlsx", "output workbook path")
	historyExportCmd.Flags().Int("limit", 0, "max entries to export (0 = store default)")

	historyImportCmd.Flags().String("in", "", "workbook written by history export")
	_ = historyImportCmd.MarkFlagRequired("in")

	historyCmd.AddCommand(historyListCmd, historyExportCmd, historyImportCmd)
	rootCmd.AddCommand(historyCmd)
}
