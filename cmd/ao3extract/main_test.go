package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ao3extract/internal/config"
	"ao3extract/internal/crawler"
	"ao3extract/internal/models"
	"ao3extract/internal/pipeline"
	"ao3extract/pkg/metadata"
)

func TestApplyRunOverrides(t *testing.T) {
	cfg := config.DefaultConfig()

	applyRunOverrides(cfg, &runOptions{input: "list.txt", workers: 8, reportFormat: "Markdown"})

	assert.Equal(t, "list.txt", cfg.Extractor.Input)
	assert.Equal(t, 8, cfg.Extractor.Workers)
	assert.Equal(t, config.ReportMarkdown, cfg.Output.ReportFormat)
	assert.Equal(t, "results.md", cfg.Output.ReportPath)
	require.NoError(t, cfg.Validate())
}

func TestApplyRunOverridesKeepsConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	applyRunOverrides(cfg, &runOptions{})

	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestWithExtension(t *testing.T) {
	assert.Equal(t, "out/report.md", withExtension("out/report.html", ".md"))
	assert.Equal(t, "report.html", withExtension("report", ".html"))
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	resultsPath := filepath.Join(dir, "results.json")
	reportPath := filepath.Join(dir, "shelf.md")

	data, err := models.MarshalResults([]models.ResultRecord{
		{URL: "https://archiveofourown.org/works/1", PDFURL: "https://example.com/a.pdf", Title: "First"},
		{URL: "https://archiveofourown.org/works/2", PDFURL: "https://example.com/a.pdf", Title: "Second", NotFound: true},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(resultsPath, data, 0o644))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"render", "-c", writeConfig(t, dir), "-i", resultsPath, "-o", reportPath, "-f", "markdown"})
	require.NoError(t, cmd.Execute())

	report, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(report), "# AO3 Works Extraction Results (2 works)"))

	meta, err := metadata.Verify(string(report))
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Works)

	verify := newRootCommand()
	verify.SetArgs([]string{"verify", reportPath})
	require.NoError(t, verify.Execute())

	require.NoError(t, os.WriteFile(reportPath, append([]byte("tampered "), report...), 0o644))

	verify = newRootCommand()
	verify.SetArgs([]string{"verify", reportPath})
	assert.ErrorIs(t, verify.Execute(), errReportInvalid)
}

func TestRenderCommandCorruptResults(t *testing.T) {
	dir := t.TempDir()
	resultsPath := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(resultsPath, []byte("[{"), 0o644))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"render", "-c", writeConfig(t, dir), "-i", resultsPath})
	assert.Error(t, cmd.Execute())
}

func TestRenderTables(t *testing.T) {
	summary := pipeline.RunSummary{
		Completed:  2,
		Failed:     1,
		NewRecords: 5,
		Documents: []pipeline.DocumentReport{
			{URL: "https://example.com/ok.pdf", State: pipeline.StateCompleted},
			{URL: "https://example.com/bad.pdf", State: pipeline.StateFailed, Err: assert.AnError},
		},
	}

	out := renderSummaryTable(summary, crawler.AttemptStats{TotalAttempts: 7}, 9)
	assert.Contains(t, out, "New records")
	assert.Contains(t, out, "Unique works recorded")

	failures := renderFailureTable(summary)
	assert.Contains(t, failures, "https://example.com/bad.pdf")
	assert.NotContains(t, failures, "ok.pdf")

	assert.Empty(t, renderFailureTable(pipeline.RunSummary{}))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "ao3extract.yaml")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"init", "-c", path})
	require.NoError(t, cmd.Execute())

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), loaded)

	again := newRootCommand()
	again.SetArgs([]string{"init", "-c", path})
	assert.ErrorIs(t, again.Execute(), errConfigExists)

	forced := newRootCommand()
	forced.SetArgs([]string{"init", "-c", path, "--force"})
	require.NoError(t, forced.Execute())
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Output.ResultsPath = filepath.Join(dir, "results.json")
	cfg.Output.ProcessedLogPath = filepath.Join(dir, "processed.txt")
	cfg.Output.ReportPath = filepath.Join(dir, "results.html")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.SaveConfig(path))

	return path
}
