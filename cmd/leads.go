package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/monitoring"
	"github.com/sells-group/prospector-cli/internal/store"
)

var (
	leadsLimit int
	leadsJSON  bool
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List stored leads by score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListByScore(ctx, leadsLimit)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		out := cmd.OutOrStdout()
		if leadsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(leads)
		}
		if len(leads) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No leads stored.")
			return nil
		}
		formatLeads(out, leads)
		return nil
	},
}

func formatLeads(w io.Writer, leads []model.Lead) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tNAME\tEMAIL\tPHONE\tWEBSITE")
	for _, l := range leads {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\t%s\n", l.Score, truncate(l.Name, 40), l.Email, l.Phone, l.Website)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lead, suppression and recent run counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st).Collect(ctx, cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			return err
		}
		formatSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

func formatSnapshot(w io.Writer, s *monitoring.Snapshot) {
	fmt.Fprintf(w, "Leads:          %d\n", s.Leads)
	fmt.Fprintf(w, "Suppressed:     %d\n", s.Suppressed)
	fmt.Fprintf(w, "Eligible:       %d\n", s.Eligible)
	fmt.Fprintf(w, "Runs (%dh):      %d complete, %d failed, %d running\n",
		s.LookbackHours, s.RunsComplete, s.RunsFailed, s.RunsRunning)
	fmt.Fprintf(w, "New leads (%dh): %d\n", s.LookbackHours, s.LeadsInserted)
	if s.LastRunAt != nil {
		fmt.Fprintf(w, "Last run:       %s\n", s.LastRunAt.Format(time.RFC3339))
	}
}

func init() {
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", store.DefaultListLimit, "max leads to list")
	leadsCmd.Flags().BoolVar(&leadsJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(leadsCmd, statusCmd)
}
