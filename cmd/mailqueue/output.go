package main

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/notifyhub/mailqueue/internal/worker"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderReport lays a cycle report out as a two-column table.
func renderReport(r *worker.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Value"})

	tw.AppendRows([]table.Row{
		{"started", r.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"elapsed (ms)", strconv.FormatInt(r.ElapsedMS, 10)},
		{"listed", strconv.Itoa(r.Listed)},
		{"due", strconv.Itoa(r.Due)},
		{"processed", strconv.Itoa(r.Processed)},
		{"sent", strconv.Itoa(r.Sent)},
		{"failed", strconv.Itoa(r.Failed)},
		{"conflicts", strconv.Itoa(r.Conflicts)},
	})

	reasons := make([]string, 0, len(r.Skipped))
	for reason := range r.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		tw.AppendRow(table.Row{"skipped: " + reason, strconv.Itoa(r.Skipped[reason])})
	}

	if len(r.Errors) > 0 {
		tw.AppendSeparator()
		for _, msg := range r.Errors {
			tw.AppendRow(table.Row{"error", msg})
		}
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
