package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelscout/internal/api"
	"reelscout/internal/config"
	"reelscout/internal/query"
	"reelscout/internal/store"
)

func newMoviesCommand(ctx *commandContext) *cobra.Command {
	var (
		genre     string
		minRating float64
		maxRating float64
		year      int
		ratedOnly bool
		limit     int
		offset    int
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "movies <platform>",
		Short: "List a platform's titles, best rated first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := query.Filters{Genre: genre, Year: year, RatedOnly: ratedOnly}
			if cmd.Flags().Changed("min-rating") {
				filters.MinRating = &minRating
			}
			if cmd.Flags().Changed("max-rating") {
				filters.MaxRating = &maxRating
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				res, err := query.New(cfg, st).Page(cmd.Context(), args[0], filters, limit, offset)
				if err != nil {
					return err
				}
				list := api.FromQueryResult(res)
				if jsonOut {
					return writeJSON(cmd, list)
				}
				renderMovieList(cmd, list)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&genre, "genre", "g", "", "Only titles tagged with this genre")
	cmd.Flags().Float64Var(&minRating, "min-rating", 0, "Minimum rating (0-5); excludes unrated titles")
	cmd.Flags().Float64Var(&maxRating, "max-rating", 5, "Maximum rating (0-5); excludes unrated titles")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Only titles released in this year")
	cmd.Flags().BoolVar(&ratedOnly, "rated", false, "Only titles with a rating")
	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultLimit, "Maximum titles to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many titles")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderMovieList(cmd *cobra.Command, list api.MovieList) {
	out := cmd.OutOrStdout()
	if !list.SnapshotFound {
		fmt.Fprintf(out, "No catalog cached for %s yet; run `reelscout sync %s`\n", list.Platform, list.Platform)
		return
	}
	if list.Stale {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: catalog for %s is stale (fetched %s)\n", list.Platform, formatTimestamp(list.FetchedAt))
	}
	if len(list.Movies) == 0 {
		fmt.Fprintln(out, "No titles match")
		return
	}
	rows := make([][]string, 0, len(list.Movies))
	for i, movie := range list.Movies {
		rows = append(rows, []string{
			strconv.Itoa(list.Offset + i + 1),
			truncate(movie.Title, 48),
			formatYear(movie.Year),
			formatRating(movie.Rating),
			movie.Confidence,
			truncate(strings.Join(movie.Genres, ", "), 32),
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"#", "Title", "Year", "Rating", "Match", "Genres"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "Showing %d of %d titles\n", len(list.Movies), list.Total)
}

func newMovieCommand(ctx *commandContext) *cobra.Command {
	var (
		platform string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "movie <imdb-id>",
		Short: "Show where a title is cached and how it was rated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				movies, err := query.New(cfg, st).MovieByIMDb(cmd.Context(), args[0], platform)
				if err != nil {
					return err
				}
				lookup := api.FromMovieLookup(args[0], movies)
				if jsonOut {
					return writeJSON(cmd, lookup)
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(lookup.Matches))
				for _, match := range lookup.Matches {
					rows = append(rows, []string{
						match.Platform,
						match.ExternalID,
						truncate(match.Title, 48),
						formatYear(match.Year),
						formatRating(match.Rating),
						match.Confidence,
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Platform", "ID", "Title", "Year", "Rating", "Match"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Only look on this platform")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newMissingCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "missing <platform>",
		Short: "List titles without a confident rating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				platform, ok := cfg.Platform(args[0])
				if !ok {
					return fmt.Errorf("platform %q is not configured", args[0])
				}
				titles, err := st.MissingTitles(cmd.Context(), platform.Key)
				if err != nil {
					return err
				}
				list := api.FromMissingTitles(platform.Key, titles)
				if jsonOut {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list.Titles) == 0 {
					fmt.Fprintf(out, "No missing titles for %s\n", platform.Key)
					return nil
				}
				rows := make([][]string, 0, len(list.Titles))
				for _, title := range list.Titles {
					rows = append(rows, []string{
						title.ExternalID,
						truncate(title.Title, 48),
						formatYear(title.Year),
						title.IMDbID,
						yesNo(title.LookupFailed),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Title", "Year", "IMDb", "Lookup failed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
