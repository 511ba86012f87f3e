package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/monitoring"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect harmonization run history",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List harmonization runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		product, _ := cmd.Flags().GetString("product")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, model.RunFilter{
			Status:      model.RunStatus(status),
			ProductName: product,
			Limit:       limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs check --

var runsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate recent runs against the monitoring thresholds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		notify, _ := cmd.Flags().GetBool("notify")
		snap, alerts, err := newChecker(st).Check(ctx, notify)
		if err != nil {
			return eris.Wrap(err, "runs check")
		}

		formatSnapshot(os.Stdout, snap, alerts)
		if len(alerts) > 0 {
			return eris.Errorf("runs check: %d alert(s) triggered", len(alerts))
		}
		return nil
	},
}

// newChecker builds a run-history checker from the monitoring config.
func newChecker(runs monitoring.RunLister) *monitoring.Checker {
	staleFor := time.Duration(cfg.Monitoring.StaleRunMinutes) * time.Minute
	return monitoring.NewChecker(
		monitoring.NewCollector(runs, staleFor),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
}

func init() {
	runsCheckCmd.Flags().Bool("notify", false, "send triggered alerts to monitoring.webhook_url")
	runsCmd.AddCommand(runsCheckCmd)

	runsListCmd.Flags().String("status", "", "filter by run status (started, completed, failed)")
	runsListCmd.Flags().String("product", "", "filter by product name")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPRODUCT\tJURISDICTIONS\tSTATUS\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------------\t------\t-------\t--------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			shorten(r.ProductName, 30),
			strings.Join(r.Jurisdictions, ","),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			shorten(r.Error, 60),
		)
	}
	_ = w.Flush()
}

// formatSnapshot writes a run-health summary and any triggered alerts.
func formatSnapshot(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	fmt.Fprintf(out, "Runs in last %dh: %d (completed %d, failed %d, in flight %d)\n",
		snap.LookbackHours, snap.RunsTotal, snap.RunsCompleted, snap.RunsFailed, snap.RunsInFlight)
	fmt.Fprintf(out, "Failure rate: %.1f%%\n", snap.FailRate*100)
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return
	}
	for _, a := range alerts {
		fmt.Fprintf(out, "[%s] %s: %s\n", strings.ToUpper(a.Severity), a.Type, a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// shorten cuts s to n runes, marking the cut with "...".
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
