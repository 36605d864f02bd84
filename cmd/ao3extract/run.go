package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ao3extract/internal/config"
	"ao3extract/internal/crawler"
	"ao3extract/internal/formatter"
	"ao3extract/internal/ledger"
	"ao3extract/internal/logger"
	"ao3extract/internal/pipeline"
	"ao3extract/internal/validator"
)

var errResetDeclined = errors.New("reset not confirmed")

type runOptions struct {
	input        string
	username     string
	password     string
	reportFormat string
	workers      int
	reset        bool
	yes          bool
	anonymous    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every document in the input list",
		Long: "Download each listed PDF, find the archive works it links to, fetch their " +
			"metadata (falling back to the PDF text), and write the results and report.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}

			return runExtraction(cmd.Context(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "File with one PDF URL per line (overrides config)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Number of documents processed at once (overrides config)")
	flags.StringVar(&opts.reportFormat, "report-format", "", "Report format: html or markdown (overrides config)")
	flags.StringVarP(&opts.username, "username", "u", "", "Archive username (or AO3_USERNAME)")
	flags.StringVar(&opts.password, "password", "", "Archive password (or AO3_PASSWORD; prompted when omitted)")
	flags.BoolVar(&opts.anonymous, "anonymous", false, "Skip login")
	flags.BoolVar(&opts.reset, "reset", false, "Delete previous results, processed log, and report before running")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "Confirm --reset without prompting")

	return cmd
}

func applyRunOverrides(cfg *config.Config, opts *runOptions) {
	if opts.input != "" {
		cfg.Extractor.Input = opts.input
	}

	if opts.workers > 0 {
		cfg.Extractor.Workers = opts.workers
	}

	if opts.reportFormat != "" {
		cfg.Output.ReportFormat = strings.ToLower(opts.reportFormat)
		cfg.Output.ReportPath = withExtension(cfg.Output.ReportPath, formatter.Extension(cfg.Output.ReportFormat))
	}
}

func withExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func runExtraction(ctx context.Context, cfg *config.Config, opts *runOptions) error {
	applyRunOverrides(cfg, opts)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	log := logger.NewLoggerWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format).With("run_id", runID)
	prompt := newPrompter(os.Stdin, os.Stdout)

	printHeader(cfg, runID)
	log.Debug("Resolved configuration", "config", cfg.String())

	// Everything interactive happens before the pipeline starts.
	if opts.reset && !opts.yes {
		ok, err := prompt.confirm("⚠️  Reset will delete " + strings.Join(resetTargets(cfg), ", ") + ". Continue?")
		if err != nil {
			return fmt.Errorf("--reset needs confirmation (use --yes): %w", err)
		}

		if !ok {
			return errResetDeclined
		}
	}

	sources, err := validator.LoadSourceFile(cfg.Extractor.Input)
	if err != nil {
		return err
	}

	sources.Result.PrintWarnings(os.Stdout)
	sources.Result.PrintErrors(os.Stdout)
	fmt.Printf("📄 Found %d PDF URLs to process. %s\n\n", len(sources.URLs), sources.Result)

	creds := credentials{}
	if !opts.anonymous {
		creds, err = resolveCredentials(prompt, opts.username, opts.password)
		if err != nil {
			return err
		}
	}

	session, err := crawler.NewSession(cfg.Site.UserAgent)
	if err != nil {
		return err
	}

	if creds.username == "" {
		log.Warn("no username given, continuing without login; restricted works will fall back to document text")
	} else {
		auth := crawler.NewAuthenticator(session, cfg.LoginURL(), log)
		if err := auth.Login(ctx, creds.username, creds.password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Println("✅ Successfully logged into AO3.")
	}

	book, err := ledger.Open(ledgerPaths(cfg), ledger.WithReset(opts.reset), ledger.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := book.Close(); closeErr != nil {
			log.Error("failed to close ledger", "error", closeErr)
		}
	}()

	if opts.reset {
		fmt.Println("🧹 Previous results cleared.")
	} else if stats := book.Stats(); stats.PriorResults > 0 || stats.Processed > 0 {
		fmt.Printf("🔁 Resuming: %d works recorded, %d documents already processed.\n",
			stats.PriorResults, stats.Processed)
	}

	attempts := crawler.NewAttemptLog()
	scraper := crawler.NewScraper(session, cfg.GetDownloadTimeout(), cfg.MaxDocumentBytes(), attempts)
	fetcher := crawler.NewWorkFetcher(session, cfg.Retry,
		crawler.WithLimiter(crawler.NewLimiter(cfg.Site.RequestsPerSecond)),
		crawler.WithAttemptLog(attempts),
		crawler.WithFetcherLogger(log),
	)

	pipe, err := pipeline.New(book,
		pipeline.WithDownloader(scraper),
		pipeline.WithFetcher(fetcher),
		pipeline.WithSiteHost(cfg.SiteHost()),
		pipeline.WithWorkers(cfg.Extractor.Workers),
		pipeline.WithRequestDelay(cfg.GetRequestDelay()),
		pipeline.WithLogger(log),
		pipeline.WithProgress(printProgress),
	)
	if err != nil {
		return err
	}

	fmt.Printf("🚀 Processing with %d workers...\n", cfg.Extractor.Workers)

	summary := pipe.Run(ctx, sources.URLs)

	results := book.Results()

	out, err := formatter.Finalize(results, formatter.Options{
		Format:      cfg.Output.ReportFormat,
		Title:       cfg.Output.ReportTitle,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	if err := ledger.WriteFileAtomic(cfg.Output.ResultsPath, out.Serialized); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	if err := ledger.WriteFileAtomic(cfg.Output.ReportPath, []byte(out.Report)); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	attempts.LogFailures(log)

	fmt.Println()
	fmt.Println(renderSummaryTable(summary, attempts.Stats(), len(results)))

	if failures := renderFailureTable(summary); failures != "" {
		fmt.Println(failures)
	}

	fmt.Printf("\n✅ Done! Results saved to %s (%d unique works).\n", cfg.Output.ReportPath, len(results))
	fmt.Printf("🔹 Results JSON: %s\n", cfg.Output.ResultsPath)
	fmt.Printf("🔹 Processed PDFs log: %s\n", cfg.Output.ProcessedLogPath)

	return nil
}

func ledgerPaths(cfg *config.Config) ledger.Paths {
	return ledger.Paths{
		Results:      cfg.Output.ResultsPath,
		ProcessedLog: cfg.Output.ProcessedLogPath,
		Report:       cfg.Output.ReportPath,
	}
}

func resetTargets(cfg *config.Config) []string {
	return []string{cfg.Output.ResultsPath, cfg.Output.ProcessedLogPath, cfg.Output.ReportPath}
}

func printHeader(cfg *config.Config, runID string) {
	fmt.Println("================================================================")
	fmt.Println("📚 AO3 PDF Reference Extractor")
	fmt.Println("================================================================")
	fmt.Printf("Run:     %s\n", runID)
	fmt.Printf("Input:   %s\n", cfg.Extractor.Input)
	fmt.Printf("Site:    %s\n", cfg.Site.BaseURL)
	fmt.Printf("Results: %s\n", cfg.Output.ResultsPath)
	fmt.Printf("Report:  %s (%s)\n", cfg.Output.ReportPath, cfg.Output.ReportFormat)
	fmt.Println()
}

func printProgress(report pipeline.DocumentReport) {
	switch report.State {
	case pipeline.StateCompleted:
		fmt.Printf("  ✅ %s: %d references, %d new, %d duplicates (%.1fs)\n",
			report.URL, report.References, report.NewRecords, report.Duplicates, report.Duration.Seconds())
	case pipeline.StateSkipped:
		fmt.Printf("  ⏭️  Skipping already processed: %s\n", report.URL)
	case pipeline.StateFailed:
		fmt.Printf("  ❌ ERROR processing %s: %v\n", report.URL, report.Err)
	}
}
