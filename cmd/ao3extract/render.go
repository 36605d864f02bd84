package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ao3extract/internal/formatter"
	"ao3extract/internal/ledger"
	"ao3extract/internal/models"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		input  string
		output string
		format string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the report from an existing results file",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}

			input = firstNonEmpty(input, cfg.Output.ResultsPath)
			format = strings.ToLower(firstNonEmpty(format, cfg.Output.ReportFormat))
			title = firstNonEmpty(title, cfg.Output.ReportTitle)

			if output == "" {
				output = withExtension(cfg.Output.ReportPath, formatter.Extension(format))
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read results: %w", err)
			}

			results, err := models.UnmarshalResults(data)
			if err != nil {
				return err
			}

			report, err := formatter.Render(results, formatter.Options{
				Format:      format,
				Title:       title,
				GeneratedAt: time.Now(),
			})
			if err != nil {
				return err
			}

			if err := ledger.WriteFileAtomic(output, []byte(report)); err != nil {
				return fmt.Errorf("failed to save report: %w", err)
			}

			fmt.Printf("✅ Rendered %d works to %s\n", len(results), output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Results JSON file (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Report file (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Report format: html or markdown")
	cmd.Flags().StringVar(&title, "title", "", "Report title")

	return cmd
}
