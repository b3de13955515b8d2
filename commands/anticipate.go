package commands

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/cashflow-engine/engine"
)

func newAnticipateCommand(_ *globalFlags) *cobra.Command {
	var face, due, paid, rate, settled string

	cmd := &cobra.Command{
		Use:   "anticipate",
		Short: "Price a payment made before or after its due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseAnticipation(face, due, paid, rate)
			if err != nil {
				return err
			}
			a, err := engine.Anticipate(in)
			if err != nil {
				return err
			}
			if settled != "" {
				amount, err := decimal.NewFromString(settled)
				if err != nil {
					return fmt.Errorf("--settled: %w", err)
				}
				a = a.WithSettledAmount(in.FaceValue, amount)
			}
			printAnticipation(cmd.OutOrStdout(), in, a)
			return nil
		},
	}

	cmd.Flags().StringVar(&face, "face", "", "face value of the payable (required)")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&paid, "paid", "", "settlement date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&rate, "rate", "0", "daily interest rate, e.g. 0.0002")
	cmd.Flags().StringVar(&settled, "settled", "", "amount actually paid, overriding the present value")
	_ = cmd.MarkFlagRequired("face")
	_ = cmd.MarkFlagRequired("due")
	_ = cmd.MarkFlagRequired("paid")

	return cmd
}

func parseAnticipation(face, due, paid, rate string) (engine.AnticipationInput, error) {
	var in engine.AnticipationInput
	var err error
	if in.FaceValue, err = decimal.NewFromString(face); err != nil {
		return in, fmt.Errorf("--face: %w", err)
	}
	if in.DueDate, err = engine.ParseDate(due); err != nil {
		return in, fmt.Errorf("--due: %w", err)
	}
	if in.SettlementDate, err = engine.ParseDate(paid); err != nil {
		return in, fmt.Errorf("--paid: %w", err)
	}
	if in.DailyRate, err = decimal.NewFromString(rate); err != nil {
		return in, fmt.Errorf("--rate: %w", err)
	}
	return in, nil
}

func printAnticipation(out io.Writer, in engine.AnticipationInput, a engine.Anticipation) {
	timing := "on time"
	switch {
	case a.IsEarly:
		timing = fmt.Sprintf("%d days early", a.DaysEarly)
	case a.IsLate:
		timing = fmt.Sprintf("%d days late", -a.DaysEarly)
	}
	fmt.Fprintf(out, "Face value:     %s (due %s, paid %s, %s)\n", in.FaceValue.StringFixed(2), in.DueDate, in.SettlementDate, timing)
	fmt.Fprintf(out, "Present value:  %s\n", a.PresentValue.StringFixed(2))
	fmt.Fprintf(out, "Savings:        %s\n", a.Savings.StringFixed(2))
	if !a.SavingsRaw.Equal(a.Savings) {
		fmt.Fprintf(out, "Savings (raw):  %s\n", a.SavingsRaw.StringFixed(2))
	}
	fmt.Fprintf(out, "Interest:       %s\n", a.Interest.StringFixed(2))
	fmt.Fprintf(out, "Amortization:   %s\n", a.Amortization.StringFixed(2))
}
