package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/notify"
)

func newProjectCommand(flags *globalFlags) *cobra.Command {
	var months int
	var asOf string
	var asJSON, alert bool

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project the owner's balance month by month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var override func(*config.Config)
			if cmd.Flags().Changed("months") {
				override = func(cfg *config.Config) { cfg.Preferences.ProjectionMonths = months }
			}
			cfg, logger, svc, closeStore, err := bootstrap(flags, cmd.ErrOrStderr(), override)
			if err != nil {
				return err
			}
			defer closeStore()

			var ref engine.Date
			if asOf != "" {
				if ref, err = engine.ParseDate(asOf); err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
			}

			owner := engine.OwnerID(cfg.Preferences.Owner)
			p, err := svc.Project(cmd.Context(), owner, ref, cfg.Preferences.ProjectionMonths)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(p); err != nil {
					return err
				}
			} else if err := printProjection(cmd.OutOrStdout(), owner, p); err != nil {
				return err
			}

			if alert && p.AtRisk {
				return notify.New(cfg.SMTP, logger).NotifyRisk(cmd.Context(), notify.RiskAlert{Owner: owner, Projection: p})
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&months, "months", 6, "months to project after the current one")
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&alert, "notify", false, "send a risk alert when the balance goes negative")

	return cmd
}

func printProjection(out io.Writer, owner engine.OwnerID, p *engine.Projection) error {
	fmt.Fprintf(out, "Owner: %s  As of: %s  Current balance: %s\n\n", owner, p.AsOf, p.CurrentBalance.StringFixed(2))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Month\tPeriod\tInflow\tOutflow\tNet\tBalance\t")
	for _, m := range p.Months {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			m.Index, m.Period.Start.Time.Format("2006-01"),
			m.Inflow.StringFixed(2), m.Outflow.StringFixed(2), m.Net.StringFixed(2), m.Balance.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if p.AtRisk {
		fmt.Fprintf(out, "\nAT RISK: balance reaches %s in month %d\n", p.MinBalance.StringFixed(2), p.MinMonth)
	}
	return nil
}

