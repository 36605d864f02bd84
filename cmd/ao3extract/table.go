package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ao3extract/internal/crawler"
	"ao3extract/internal/pipeline"
)

func renderSummaryTable(summary pipeline.RunSummary, attempts crawler.AttemptStats, total int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Count"})

	rows := []struct {
		label string
		value int
	}{
		{"Documents completed", summary.Completed},
		{"Documents skipped", summary.Skipped},
		{"Documents failed", summary.Failed},
		{"References found", summary.References},
		{"Duplicate references", summary.Duplicates},
		{"New records", summary.NewRecords},
		{"Works not found", summary.NotFound},
		{"Text fallbacks", summary.Fallbacks},
		{"Rejected references", summary.Rejected},
		{"Requests", attempts.TotalAttempts},
		{"Failed requests", attempts.FailedAttempts},
		{"Unique works recorded", total},
	}

	for _, row := range rows {
		tw.AppendRow(table.Row{row.label, strconv.Itoa(row.value)})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

func renderFailureTable(summary pipeline.RunSummary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Document", "Error"})

	failed := 0

	for _, report := range summary.Documents {
		if report.State != pipeline.StateFailed {
			continue
		}

		failed++
		tw.AppendRow(table.Row{report.URL, fmt.Sprint(report.Err)})
	}

	if failed == 0 {
		return ""
	}

	return tw.Render()
}
