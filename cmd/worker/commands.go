package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rgdevment/sms-firewall/internal/app"
	"github.com/rgdevment/sms-firewall/internal/campaign"
	"github.com/rgdevment/sms-firewall/internal/config"
	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/rgdevment/sms-firewall/internal/service"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "smsfw-worker",
		Short:        "Maintenance tasks for the SMS scam firewall",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(newCampaignsCmd(), newBlacklistCmd(), newSignCmd())
	return root
}

// env is what every store-backed command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   service.Repository
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	repo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, repo: repo}, nil
}

func (e *env) Close() {
	e.repo.Close()
	_ = e.logger.Sync()
}

func newCampaignsCmd() *cobra.Command {
	var (
		alert      bool
		minReports int
		lookback   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "Cluster recent reports into campaigns and optionally alert subscribers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.cfg.Pipeline.CampaignDetection {
				fmt.Fprintln(cmd.OutOrStdout(), "campaign detection disabled (ENABLE_CAMPAIGN_DETECTION=false)")
				return nil
			}

			var alerter campaign.Alerter
			if alert && e.cfg.Alerts.BulkAlertsEnabled {
				sender, err := app.NewSender(e.cfg, e.logger)
				if err != nil {
					return err
				}
				_, sa, err := app.NewNotifiers(e.cfg, e.repo, sender, e.logger)
				if err != nil {
					return err
				}
				alerter = sa
			}

			if minReports <= 0 {
				minReports = e.cfg.Pipeline.CampaignMinReports
			}
			if lookback <= 0 {
				lookback = e.cfg.Pipeline.CampaignLookback
			}
			d := campaign.NewDetector(campaign.Config{MinReports: minReports, Lookback: lookback}, e.repo, alerter, e.logger)
			found, err := d.Run(cmd.Context(), alerter != nil)
			if err != nil {
				return err
			}
			for _, c := range found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d reports\t%s\n", c.ID, c.AffectedCount, c.Pattern)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %d campaign(s)\n", len(found))
			return nil
		},
	}
	cmd.Flags().BoolVar(&alert, "alert", false, "send a bulk SMS alert for each campaign")
	cmd.Flags().IntVar(&minReports, "min-reports", 0, "reports needed to call a cluster a campaign (default CAMPAIGN_MIN_REPORTS)")
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "how far back to look (default CAMPAIGN_LOOKBACK)")
	return cmd
}

func newBlacklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Inspect or extend the community blacklist",
	}

	check := &cobra.Command{
		Use:   "check <phone|url> <value>",
		Short: "Show the blacklist entry for an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, value, err := parseEntity(args[0], args[1])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			entry, err := e.repo.GetBlacklistEntry(cmd.Context(), t, value)
			if err != nil {
				return err
			}
			if entry == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s is not blacklisted\n", t, value)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s hits=%d auto_blocked=%t last_seen=%s reason=%q\n",
				entry.EntityType, entry.EntityValue, entry.HitCount, entry.AutoBlocked,
				entry.LastSeen.Format(time.RFC3339), entry.Reason)
			return nil
		},
	}

	var reason string
	add := &cobra.Command{
		Use:   "add <phone|url> <value>",
		Short: "Block an entity manually",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, value, err := parseEntity(args[0], args[1])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			entry, err := e.repo.UpsertBlacklist(cmd.Context(), t, value, true, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s %s blocked (hits=%d)\n", entry.EntityType, entry.EntityValue, entry.HitCount)
			return nil
		},
	}
	add.Flags().StringVar(&reason, "reason", "Manually blocked by administrator", "reason stored with the entry")

	cmd.AddCommand(check, add)
	return cmd
}

func parseEntity(kind, raw string) (domain.EntityType, string, error) {
	t, err := domain.ParseEntityType(strings.ToLower(kind))
	if err != nil {
		return "", "", err
	}
	value, err := domain.CanonicalEntity(t, raw)
	if err != nil {
		return "", "", fmt.Errorf("%s %q: %w", t, raw, err)
	}
	return t, value, nil
}

func newSignCmd() *cobra.Command {
	var (
		secret string
		fields []string
	)
	cmd := &cobra.Command{
		Use:     "sign",
		Short:   "Compute the webhook signature for a form, for testing integrations",
		Example: "  smsfw-worker sign --field from=0712345678 --field text='hello' --field id=ATXid_1",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("AT_WEBHOOK_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("a secret is required (--secret or AT_WEBHOOK_SECRET)")
			}
			form := url.Values{}
			for _, f := range fields {
				k, v, ok := strings.Cut(f, "=")
				if !ok || k == "" {
					return fmt.Errorf("field %q must be key=value", f)
				}
				form.Add(k, v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), security.Sign(security.CanonicalPayload(form, nil), secret))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "shared webhook secret (default AT_WEBHOOK_SECRET)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "form field as key=value, repeatable")
	return cmd
}
