package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"multiscribe/internal/cache"
	"multiscribe/internal/config"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached URL state",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheShowCommand(ctx))
	cacheCmd.AddCommand(newCacheRetryCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *cache.Store) error {
				var statuses []cache.Status
				if statusFilter != "" {
					status, ok := cache.ParseStatus(statusFilter)
					if !ok {
						return fmt.Errorf("unknown status %q; one of: %s", statusFilter, statusNames())
					}
					statuses = append(statuses, status)
				}

				entries, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						entry.URL,
						truncate(entry.Title, 36),
						string(entry.Status),
						entry.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					cmd.OutOrStdout(),
					[]string{"URL", "Title", "Status", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status ("+statusNames()+")")
	return cmd
}

func newCacheShowCommand(ctx *commandContext) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "show <url>",
		Short: "Show the cached entry for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *cache.Store) error {
				entry, err := store.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("no cache entry for %s", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "URL:        %s\n", entry.URL)
				fmt.Fprintf(out, "Title:      %s\n", entry.Title)
				fmt.Fprintf(out, "Status:     %s\n", entry.Status)
				fmt.Fprintf(out, "Audio:      %s\n", entry.AudioPath)
				fmt.Fprintf(out, "Transcript: %s\n", yesNo(entry.HasTranscript()))
				fmt.Fprintf(out, "Summary:    %s\n", yesNo(strings.TrimSpace(entry.SummaryText) != ""))
				if entry.AudioDurationSecs > 0 {
					fmt.Fprintf(out, "Duration:   %.1fs\n", entry.AudioDurationSecs)
				}
				if entry.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:      %s\n", entry.ErrorMessage)
				}
				fmt.Fprintf(out, "Updated:    %s\n", entry.UpdatedAt.Local().Format(time.DateTime))

				if full && entry.HasTranscript() {
					fmt.Fprintf(out, "\n%s\n", entry.TranscriptText)
				}
				if full && strings.TrimSpace(entry.SummaryText) != "" {
					fmt.Fprintf(out, "\n--- Summary ---\n%s\n", entry.SummaryText)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print the stored transcript and summary")
	return cmd
}

func newCacheRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [url ...]",
		Short: "Reset failed entries so the next run reprocesses them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *cache.Store) error {
				count, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed entr%s to pending\n", count, plural(count, "y", "ies"))
				return nil
			})
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a single entry from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *cache.Store) error {
				removed, err := store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no cache entry for %s", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Removed")
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var reset bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// --reset rebuilds the database files. It is the recovery path
			// for a corrupt cache, which cannot be opened normally.
			if reset {
				if err := cache.Reset(cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache database reset; all entries discarded")
				return nil
			}

			return ctx.withStore(func(cfg *config.Config, store *cache.Store) error {
				var count int64
				if failedOnly {
					count, err = store.ClearFailed(cmd.Context())
				} else {
					count, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entr%s\n", count, plural(count, "y", "ies"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only delete failed entries")
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete the database files and start fresh")
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *cache.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(stats))
				total := 0
				for _, status := range cache.AllStatuses() {
					count := stats[status]
					total += count
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
				}
				rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					cmd.OutOrStdout(),
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func statusNames() string {
	statuses := cache.AllStatuses()
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

func plural(count int64, singular, pluralSuffix string) string {
	if count == 1 {
		return singular
	}
	return pluralSuffix
}
