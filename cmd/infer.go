package cmd

import (
	"fmt"
	"time"

	"github.com/ethpandaops/placeholder-cache/pkg/params"
	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	inferCron       string
	inferNominal    string
	inferTestMode   bool
	inferFixedDate  string
	inferDaysOffset int
	inferNext       int
)

//nolint:gochecknoglobals // Cobra commands are typically global
var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Show the base date inferred for a cron schedule",
	Long: `Infer classifies a cron schedule, applies its data lag and prints the
resulting base date. No config file, database or cache is needed.

Examples:
  placeholder-cache infer --cron "0 9 * * *" --nominal 2024-06-10T09:00:00Z
  placeholder-cache infer --cron "@monthly" --next 3
  placeholder-cache infer --test-mode --fixed-date 2024-03-15`,
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)

	inferCmd.Flags().StringVar(&inferCron, "cron", "", "5-field cron expression or macro (@daily, @weekly, ...)")
	inferCmd.Flags().StringVar(&inferNominal, "nominal", "", "nominal run time, RFC3339 (default now)")
	inferCmd.Flags().BoolVar(&inferTestMode, "test-mode", false, "bypass cron parsing")
	inferCmd.Flags().StringVar(&inferFixedDate, "fixed-date", "", "test mode base date (YYYY-MM-DD)")
	inferCmd.Flags().IntVar(&inferDaysOffset, "days-offset", timeinfer.DefaultTestDaysOffset, "test mode offset from today when no fixed date is given")
	inferCmd.Flags().IntVar(&inferNext, "next", 0, "also print the next N activations of the schedule")
}

func runInfer(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	ec := timeinfer.ExecutionContext{
		CronExpression: inferCron,
		NominalTime:    time.Now(),
		IsTestMode:     inferTestMode,
		TestDaysOffset: &inferDaysOffset,
	}

	if inferNominal != "" {
		nominal, err := time.Parse(time.RFC3339, inferNominal)
		if err != nil {
			return fmt.Errorf("invalid --nominal: %w", err)
		}

		ec.NominalTime = nominal
	}

	if inferFixedDate != "" {
		fixed, err := params.ParseDate(inferFixedDate)
		if err != nil {
			return err
		}

		ec.FixedTestDate = &fixed
	}

	engine := timeinfer.NewEngine(logger, nil)

	result, err := engine.FromContext(ec)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Base date:   %s\n", result.BaseDateString())
	fmt.Fprintf(out, "Frequency:   %s\n", result.Frequency)
	fmt.Fprintf(out, "Data lag:    %d days\n", result.DataLagDays)
	fmt.Fprintf(out, "Confidence:  %.2f\n", result.Confidence)
	fmt.Fprintf(out, "Explanation: %s\n", result.Explanation)

	if inferNext > 0 && inferCron != "" && !inferTestMode {
		fmt.Fprintln(out, "Next runs:")

		at := ec.NominalTime
		for range inferNext {
			next, err := engine.NextRun(inferCron, at)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "  %s\n", next.Format(time.RFC3339))
			at = next
		}
	}

	return nil
}
