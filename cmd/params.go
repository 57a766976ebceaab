package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ethpandaops/placeholder-cache/pkg/params"
	"github.com/ethpandaops/placeholder-cache/pkg/service"
	"github.com/ethpandaops/placeholder-cache/pkg/sqltemplate"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	paramsBaseDate string
	paramsTimezone int
	paramsSet      []string
	paramsTemplate string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the template parameters for a base date",
	Long: `Params builds the parameter set for a base date, including derived
parameters from the config file when one is present. With --template the
given SQL template is validated and filled as well.

Examples:
  placeholder-cache params --base-date 2024-02-15
  placeholder-cache params --base-date 2024-06-09 --set region=north \
    --template "SELECT count() FROM orders WHERE dt = {{base_date}} AND region = {{region}}"`,
	RunE: runParams,
}

func init() {
	rootCmd.AddCommand(paramsCmd)

	paramsCmd.Flags().StringVar(&paramsBaseDate, "base-date", "", "base date (YYYY-MM-DD)")
	paramsCmd.Flags().IntVar(&paramsTimezone, "tz", params.DefaultTimezoneOffsetHours, "timezone offset in hours for current_time")
	paramsCmd.Flags().StringArrayVar(&paramsSet, "set", nil, "additional parameter as key=value (repeatable)")
	paramsCmd.Flags().StringVar(&paramsTemplate, "template", "", "SQL template to validate and fill")

	_ = paramsCmd.MarkFlagRequired("base-date")
}

func runParams(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	additional := make(map[string]any, len(paramsSet))

	for _, kv := range paramsSet {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid --set %q, expected key=value", kv)
		}

		additional[k] = v
	}

	var derived []params.DerivedParam

	if cfg, err := service.LoadConfig(cfgFile); err == nil {
		derived = cfg.Params.Derived
	} else {
		logger.WithError(err).Debug("No config loaded, derived parameters disabled")
	}

	builder := params.NewBuilder(logger, nil, derived)

	ps, err := builder.BuildFromString(paramsBaseDate, paramsTimezone, additional)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tVALUE")

	for _, k := range ps.Keys() {
		fmt.Fprintf(w, "%s\t%s\n", k, ps.String(k))
	}

	if err := w.Flush(); err != nil {
		return err
	}

	if paramsTemplate == "" {
		return nil
	}

	validation := sqltemplate.Validate(paramsTemplate)
	for _, warning := range validation.Warnings {
		fmt.Fprintf(out, "\nwarning: %s", warning)
	}

	if err := validation.Err(); err != nil {
		return err
	}

	filled, missing := sqltemplate.Fill(paramsTemplate, ps.Map())
	if len(missing) > 0 {
		fmt.Fprintf(out, "\nwarning: %s", (&sqltemplate.MissingParametersError{Keys: missing}).Error())
	}

	fmt.Fprintf(out, "\n%s\n", filled)

	return nil
}
