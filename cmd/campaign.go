package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector-cli/internal/campaign"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/monitoring"
	"github.com/sells-group/prospector-cli/internal/store"
)

// Daily cap bounds accepted from the operator.
const (
	minDailyCap = 10
	maxDailyCap = 500
)

var (
	campaignSubject  string
	campaignBodyFile string
	campaignCap      int
	campaignDryRun   bool
	previewTo        string
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Send email campaigns to stored leads",
}

var campaignSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the campaign to eligible leads, up to the daily cap",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("campaign"); err != nil {
			return err
		}
		dailyCap, err := resolveCap(campaignCap, cfg.Campaign.DailyCap)
		if err != nil {
			return err
		}

		subject, body, err := campaignContent()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		candidates, err := campaign.LoadCandidates(ctx, st)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Eligible recipients: %d (cap %d)\n", len(candidates), dailyCap)

		if campaignDryRun {
			for i, c := range candidates {
				if i >= dailyCap {
					break
				}
				fmt.Fprintln(out, c)
			}
			return nil
		}

		d, err := newDispatcher(st, nil)
		if err != nil {
			return err
		}
		rep, err := d.Run(ctx, campaign.Campaign{
			Subject:    subject,
			HTML:       body,
			Candidates: candidates,
			DailyCap:   dailyCap,
		})
		fmt.Fprintf(out, "Sent %d emails (%d failed, %d suppressed, %d not attempted).\n",
			rep.Sent, rep.Failed, rep.Suppressed, rep.Skipped)
		return err
	},
}

var campaignPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Send one test message to a single address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		subject, body, err := campaignContent()
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		d, err := newDispatcher(st, nil)
		if err != nil {
			return err
		}

		status, err := d.Preview(ctx, subject, body, previewTo)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s (HTTP %d)\n", previewTo, status)
		return nil
	},
}

// resolveCap applies the configured default when n is zero and checks the
// operator bounds.
func resolveCap(n, def int) (int, error) {
	if n == 0 {
		n = def
	}
	if n < minDailyCap || n > maxDailyCap {
		return 0, &model.InputError{Field: "cap", Value: fmt.Sprint(n), Msg: fmt.Sprintf("must be between %d and %d", minDailyCap, maxDailyCap)}
	}
	return n, nil
}

func sender() campaign.Address {
	return campaign.Address{Email: cfg.Campaign.SenderEmail, Name: cfg.Campaign.SenderName}
}

// campaignContent resolves the subject and HTML body from flags and config.
func campaignContent() (string, string, error) {
	subject := campaignSubject
	if subject == "" {
		subject = cfg.Campaign.DefaultSubject
	}
	if campaignBodyFile == "" {
		return subject, campaign.DefaultBody(sender()), nil
	}
	b, err := os.ReadFile(campaignBodyFile)
	if err != nil {
		return "", "", eris.Wrap(err, "read body file")
	}
	return subject, string(b), nil
}

// newDispatcher builds a dispatcher on the configured transport. When st is
// non-nil each recipient is re-checked against the suppression list. metrics
// may be nil.
func newDispatcher(st store.Store, metrics *monitoring.Metrics) (*campaign.Dispatcher, error) {
	t, err := campaign.NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	opts := []campaign.Option{
		campaign.WithReplyTo(cfg.Campaign.ReplyTo),
		campaign.WithPacing(time.Duration(cfg.Campaign.PacingMillis) * time.Millisecond),
	}
	if st != nil {
		opts = append(opts, campaign.WithSuppressionRecheck(st))
	}
	if metrics != nil {
		opts = append(opts, campaign.WithObserver(func(o campaign.Outcome) {
			metrics.RecordSend(o.Status, o.Err)
		}))
	}
	return campaign.NewDispatcher(t, sender(), opts...), nil
}

func init() {
	campaignCmd.PersistentFlags().StringVar(&campaignSubject, "subject", "", "email subject (default from config)")
	campaignCmd.PersistentFlags().StringVar(&campaignBodyFile, "body-file", "", "HTML body file (default: built-in introduction)")

	campaignSendCmd.Flags().IntVar(&campaignCap, "cap", 0, "daily send cap, 10-500 (default from config)")
	campaignSendCmd.Flags().BoolVar(&campaignDryRun, "dry-run", false, "list the recipients without sending")

	campaignPreviewCmd.Flags().StringVar(&previewTo, "to", "", "preview recipient (required)")
	_ = campaignPreviewCmd.MarkFlagRequired("to")

	campaignCmd.AddCommand(campaignSendCmd, campaignPreviewCmd)
	rootCmd.AddCommand(campaignCmd)
}
