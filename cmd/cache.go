package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	cacheTemplateID    string
	cachePlaceholderID string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and invalidate cached placeholder values",
}

//nolint:gochecknoglobals // Cobra commands are typically global
var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Expire every live cache entry of a template",
	Long: `Invalidate sets expires_at to now on every live entry belonging to the
placeholders of a template. Entries are kept for history, never deleted.`,
	RunE: runCacheInvalidate,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the stored versions of a placeholder, newest first",
	RunE:  runCacheHistory,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the stored versions of a placeholder",
	RunE:  runCacheStats,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(invalidateCmd)
	cacheCmd.AddCommand(historyCmd)
	cacheCmd.AddCommand(cacheStatsCmd)

	invalidateCmd.Flags().StringVar(&cacheTemplateID, "template", "", "template ID to invalidate")
	_ = invalidateCmd.MarkFlagRequired("template")

	for _, c := range []*cobra.Command{historyCmd, cacheStatsCmd} {
		c.Flags().StringVar(&cachePlaceholderID, "placeholder", "", "placeholder ID")
		_ = c.MarkFlagRequired("placeholder")
	}
}

func runCacheInvalidate(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	ctx := context.Background()

	svc, err := startStoreOnly(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	count, err := svc.Invalidate(ctx, cacheTemplateID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d entries for template %s\n", count, cacheTemplateID)

	return nil
}

func runCacheHistory(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	ctx := context.Background()

	svc, err := startStoreOnly(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	entries, err := svc.Store().History(ctx, cachePlaceholderID)
	if err != nil {
		return err
	}

	table := newTable(cmd.OutOrStdout(), "CREATED", "EXPIRES", "LATEST", "HITS", "VERSION", "VALUE")

	for _, e := range entries {
		table.Append([]string{
			e.CreatedAt.Format(time.RFC3339),
			e.ExpiresAt.Format(time.RFC3339),
			strconv.FormatBool(e.IsLatestVersion),
			strconv.FormatUint(e.HitCount, 10),
			shortHash(e.VersionHash),
			e.FormattedText,
		})
	}

	table.Render()

	return nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	ctx := context.Background()

	svc, err := startStoreOnly(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	stats, err := svc.Store().Stats(ctx, cachePlaceholderID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Placeholder: %s\nVersions:    %d\nLatest:      %d\nExpired:     %d\nHits:        %d\n",
		stats.PlaceholderID, stats.Total, stats.Latest, stats.Expired, stats.Hits)

	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}

	return h
}
