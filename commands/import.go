package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/ledger"
)

func newImportCommand(flags *globalFlags) *cobra.Command {
	var format, account, channel string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a bank statement (OFX or CSV) into an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening statement: %w", err)
			}
			defer f.Close()

			cfg, _, svc, closeStore, err := bootstrap(flags, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := svc.ImportStatement(cmd.Context(), ledger.ImportRequest{
				OwnerID:   engine.OwnerID(cfg.Preferences.Owner),
				AccountID: engine.AccountID(account),
				Format:    format,
				Channel:   engine.Channel(channel),
				Statement: f,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Parsed %d lines, imported %d, skipped %d\n", res.Parsed, len(res.Imported), res.Skipped)
			for _, e := range res.Imported {
				category := string(e.CategoryID)
				if category == "" {
					category = "-"
				}
				fmt.Fprintf(out, "  %s  %-8s %12s  %-12s %s\n", e.PostedOn, e.Direction, e.Amount.StringFixed(2), category, e.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "statement format: ofx or csv (default from file extension)")
	cmd.Flags().StringVar(&account, "account", "", "target account ID (required)")
	cmd.Flags().StringVar(&channel, "channel", string(engine.ChannelDebit), "payment channel of the imported entries")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
