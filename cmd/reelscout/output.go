package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"reelscout/internal/api"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatRating(rating *api.Rating) string {
	if rating == nil {
		return "-"
	}
	value := strconv.FormatFloat(rating.Value, 'f', 2, 64)
	if rating.Count != nil {
		value += fmt.Sprintf(" (%d)", *rating.Count)
	}
	return value
}

func formatYear(year int) string {
	if year <= 0 {
		return "-"
	}
	return strconv.Itoa(year)
}

func formatTimestamp(raw string) string {
	if raw == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func renderRunDetail(out io.Writer, run api.SyncRun) {
	lines := [][2]string{
		{"Run", run.RunID},
		{"Platform", run.Platform},
		{"State", run.State},
		{"Trigger", run.Trigger},
		{"Started", formatTimestamp(run.StartedAt)},
		{"Finished", formatTimestamp(run.FinishedAt)},
		{"Duration", formatDuration(run.DurationSeconds)},
		{"Pages", strconv.Itoa(run.PagesFetched)},
		{"Fetched", strconv.Itoa(run.Fetched)},
		{"Diff", fmt.Sprintf("+%d -%d =%d", run.Added, run.Removed, run.Retained)},
		{"Enriched", fmt.Sprintf("%d/%d", run.Enriched, run.EnrichTotal)},
		{"Missing", strconv.Itoa(run.Missing)},
		{"Lookup failures", strconv.Itoa(run.LookupFailures)},
	}
	if run.LastError != "" {
		lines = append(lines, [2]string{"Error", run.LastError})
	}
	for _, line := range lines {
		fmt.Fprintf(out, "%-16s %s\n", line[0]+":", line[1])
	}
}

func renderRunsTable(out io.Writer, runs []api.SyncRun) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.RunID,
			run.Platform,
			run.State,
			run.Trigger,
			formatTimestamp(run.StartedAt),
			strconv.Itoa(run.Fetched),
			fmt.Sprintf("+%d -%d", run.Added, run.Removed),
			strconv.Itoa(run.Missing),
		})
	}
	return renderTable(out,
		[]string{"Run", "Platform", "State", "Trigger", "Started", "Titles", "Diff", "Missing"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

func truncate(value string, width int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= width {
		return string(runes)
	}
	return string(runes[:width-1]) + "…"
}
