package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/ethpandaops/placeholder-cache/pkg/batch"
	"github.com/ethpandaops/placeholder-cache/pkg/observability"
	"github.com/ethpandaops/placeholder-cache/pkg/service"
	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// maxValueWidth caps the display width of a value column cell
const maxValueWidth = 80

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	runBatchFile      string
	runAdHoc          bool
	runMaxConcurrency int
	runOutput         string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve the placeholders of a batch file",
	Long: `Run infers the data period for the batch's execution context, resolves every
placeholder and prints the values. Scheduled runs read and write the cache;
--ad-hoc runs bypass it.

Example batch file:
  context:
    cronExpression: "0 9 * * *"
    nominalTime: 2024-06-10T09:00:00Z
  placeholders:
    - name: 销售额占比
      templateId: daily-sales
      kind: SQL
      sqlTemplate: SELECT sum(a) / sum(b) * 100 FROM sales WHERE dt = {{base_date}}
    - name: 昨天
      kind: PERIOD`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runBatchFile, "batch", "", "batch definition file (YAML)")
	runCmd.Flags().BoolVar(&runAdHoc, "ad-hoc", false, "bypass the cache for this run")
	runCmd.Flags().IntVar(&runMaxConcurrency, "max-concurrency", 0, "maximum in-flight queries (default from config)")
	runCmd.Flags().StringVar(&runOutput, "output", "table", "output format (table, json)")

	_ = runCmd.MarkFlagRequired("batch")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	b, err := loadBatchFile(runBatchFile)
	if err != nil {
		return err
	}

	if runAdHoc {
		b.AdHoc = true
	}

	if runMaxConcurrency != 0 {
		b.MaxConcurrency = runMaxConcurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metrics := observability.NewMetricsServer(logger, cfg.MetricsAddr)
		if err := metrics.Start(); err != nil {
			logger.WithError(err).Warn("Metrics server disabled for this run")
		}

		defer func() {
			if err := metrics.Stop(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to stop metrics server")
			}
		}()
	}

	svc, err := service.NewService(logger, cfg)
	if err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err := svc.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop service")
		}
	}()

	report, err := svc.Run(ctx, b)
	if err != nil {
		return err
	}

	return printReport(os.Stdout, report, runOutput)
}

func printReport(out io.Writer, report *service.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	inf := report.Inference
	fmt.Fprintf(out, "Batch:      %s\n", report.Result.BatchID)
	fmt.Fprintf(out, "Base date:  %s (%s, confidence %.2f)\n", inf.BaseDateString(), inf.Frequency, inf.Confidence)
	fmt.Fprintf(out, "            %s\n\n", inf.Explanation)

	names := make([]string, 0, len(report.Result.PlaceholderValues))
	for name := range report.Result.PlaceholderValues {
		names = append(names, name)
	}

	sort.Strings(names)

	table := newTable(out, "PLACEHOLDER", "STATE", "SOURCE", "TIME(ms)", "VALUE")

	for _, name := range names {
		v := report.Result.PlaceholderValues[name]
		table.Append([]string{name, string(v.State), string(v.Source), strconv.FormatInt(v.ExecutionTimeMS, 10), displayValue(v)})
	}

	table.Render()

	st := report.Result.Stats
	fmt.Fprintf(out, "\n%d placeholders (%d period, %d sql): %d ok, %d failed, %d cache hits in %s\n",
		st.Total, st.PeriodCount, st.SQLCount, st.SuccessCount, st.FailCount, st.CacheHitCount, st.ExecutionTime)

	return nil
}

// newTable returns a borderless table; column widths account for CJK names
func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetHeader(header)

	return table
}

func displayValue(v batch.PlaceholderValue) string {
	return runewidth.Truncate(batch.FormattedText(v.Value), maxValueWidth, "...")
}
