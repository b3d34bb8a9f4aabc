package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelscout/internal/api"
	"reelscout/internal/config"
	"reelscout/internal/store"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the cache store",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheCompactCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache row counts and snapshot ages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				dto := api.FromStats(stats)
				if jsonOut {
					return writeJSON(cmd, dto)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database: %s\n", st.Path())
				rows := [][]string{
					{"Snapshots", strconv.Itoa(dto.Snapshots)},
					{"Matched movies", strconv.Itoa(dto.MatchedMovies)},
					{"Rated movies", strconv.Itoa(dto.RatedMovies)},
					{"Missing titles", strconv.Itoa(dto.MissingTitles)},
					{"Sync runs", strconv.Itoa(dto.Runs)},
					{"Active runs", strconv.Itoa(dto.ActiveRuns)},
					{"Lookup entries", strconv.Itoa(dto.CacheEntries)},
					{"Expired entries", strconv.Itoa(dto.ExpiredEntries)},
					{"Oldest snapshot", formatTimestamp(dto.OldestSnapshot)},
					{"Newest snapshot", formatTimestamp(dto.NewestSnapshot)},
				}
				fmt.Fprintln(out, renderTable(out, []string{"Metric", "Value"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCacheCompactCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Delete expired lookups and old sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				result, err := st.Compact(cmd.Context(), cfg.RunRetention())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired lookups and %d old runs\n",
					result.ExpiredEntries, result.PurgedRuns)
				return nil
			})
		},
	}
}
