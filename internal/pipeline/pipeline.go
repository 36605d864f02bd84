// Package pipeline runs source documents through download, reference
// extraction, and metadata recovery on a bounded pool of workers sharing
// one ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ao3extract/internal/crawler"
	"ao3extract/internal/extract"
	"ao3extract/internal/ledger"
	"ao3extract/internal/logger"
	"ao3extract/internal/models"
	"ao3extract/internal/normalizer"
)

// Pipeline errors.
var (
	ErrNoDownloader = errors.New("pipeline needs a downloader")
	ErrNoFetcher    = errors.New("pipeline needs a metadata fetcher")
	ErrPanic        = errors.New("document processing panicked")
)

const (
	// DefaultWorkers is the number of documents processed at once.
	DefaultWorkers = 4
	// DefaultRequestDelay is the pause after every fetched reference.
	DefaultRequestDelay = 1500 * time.Millisecond
	// DefaultSiteHost is the archive whose work links are extracted.
	DefaultSiteHost = "archiveofourown.org"
)

// Downloader fetches source document bytes.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// MetadataFetcher fetches live metadata for a canonical work URL.
type MetadataFetcher interface {
	Fetch(ctx context.Context, workURL string) crawler.FetchResult
}

// Pipeline processes source documents. It is safe to call ProcessDocument
// from several goroutines; Run does exactly that.
type Pipeline struct {
	ledger     *ledger.Ledger
	downloader Downloader
	text       extract.TextExtractor
	fetcher    MetadataFetcher
	references *extract.ReferenceExtractor
	processor  *normalizer.Processor
	logger     *logger.Logger
	sleep      crawler.SleepFunc
	progress   func(DocumentReport)
	siteHost   string
	workers    int
	delay      time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDownloader sets the source document downloader.
func WithDownloader(d Downloader) Option {
	return func(p *Pipeline) { p.downloader = d }
}

// WithTextExtractor sets the document text extractor.
func WithTextExtractor(t extract.TextExtractor) Option {
	return func(p *Pipeline) { p.text = t }
}

// WithFetcher sets the live metadata fetcher.
func WithFetcher(f MetadataFetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithSiteHost sets the archive host whose links are extracted.
func WithSiteHost(host string) Option {
	return func(p *Pipeline) { p.siteHost = host }
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithRequestDelay sets the pause after each fetched reference.
func WithRequestDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.delay = d }
}

// WithSleep replaces the request delay wait (useful for testing).
func WithSleep(sleep crawler.SleepFunc) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Pipeline) { p.logger = log }
}

// WithProgress registers a callback invoked once per finished document.
// It may be called from several workers at once.
func WithProgress(fn func(DocumentReport)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New creates a pipeline writing into l.
func New(l *ledger.Ledger, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		ledger:    l,
		text:      extract.NewPDFExtractor(),
		processor: normalizer.NewProcessor(),
		logger:    logger.Discard(),
		sleep:     crawler.SleepContext,
		siteHost:  DefaultSiteHost,
		workers:   DefaultWorkers,
		delay:     DefaultRequestDelay,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.downloader == nil {
		return nil, ErrNoDownloader
	}

	if p.fetcher == nil {
		return nil, ErrNoFetcher
	}

	if p.workers < 1 {
		p.workers = 1
	}

	p.references = extract.NewReferenceExtractor(p.siteHost)

	return p, nil
}

type job struct {
	url   string
	index int
}

// Run processes every URL on the worker pool and returns once all of them
// are finished. A failing document never stops its siblings.
func (p *Pipeline) Run(ctx context.Context, urls []string) RunSummary {
	start := time.Now()
	reports := make([]DocumentReport, len(urls))
	jobs := make(chan job)

	var wg sync.WaitGroup

	for range min(p.workers, max(len(urls), 1)) {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := range jobs {
				reports[j.index] = p.ProcessDocument(ctx, j.url)
			}
		}()
	}

	for i, url := range urls {
		jobs <- job{index: i, url: url}
	}

	close(jobs)
	wg.Wait()

	summary := RunSummary{Documents: reports, Duration: time.Since(start)}
	for _, report := range reports {
		summary.add(report)
	}

	p.logger.Info("run finished",
		"documents", len(urls),
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"new_records", summary.NewRecords,
		"duplicates", summary.Duplicates,
		"duration", summary.Duration)

	return summary
}

// ProcessDocument downloads one source document, records a result for every
// work it references that no one has claimed yet, and marks it processed.
// Already processed documents are skipped. A panic while processing is
// reported as a failed document.
func (p *Pipeline) ProcessDocument(ctx context.Context, url string) (report DocumentReport) {
	url = strings.TrimSpace(url)
	report = DocumentReport{URL: url, State: StatePending}
	start := time.Now()
	log := p.logger.With("document", url)

	defer func() {
		if r := recover(); r != nil {
			report.State = StateFailed
			report.Err = fmt.Errorf("%w: %v", ErrPanic, r)
			log.Error("document processing panicked", "panic", r)
		}

		report.Duration = time.Since(start)
		p.notify(report)
	}()

	if p.ledger.IsProcessed(url) {
		report.State = StateSkipped
		log.Debug("already processed")

		return report
	}

	fail := func(stage string, err error) DocumentReport {
		report.State = StateFailed
		report.Err = fmt.Errorf("%s: %w", stage, err)
		log.Error("document failed", "stage", stage, "error", err)

		return report
	}

	report.State = StateDownloading
	log.Info("downloading")

	data, err := p.downloader.Download(ctx, url)
	if err != nil {
		return fail("download", err)
	}

	report.State = StateExtracting

	pages, err := p.text.Extract(data)
	if err != nil {
		return fail("extract", err)
	}

	text := extract.JoinPages(pages)
	refs := p.references.Extract(text)
	report.References = len(refs)

	log.Info("references extracted", "references", len(refs), "pages", len(pages))

	for i, ref := range refs {
		if !p.ledger.Claim(ref.URL) {
			report.Duplicates++
			log.Debug("reference already claimed", "work", ref.URL)

			continue
		}

		if err := p.processReference(ctx, log, &report, ref, text); err != nil {
			report.Rejected++
			log.Error("reference rejected", "work", ref.URL, "error", err)
		} else {
			log.Info("reference processed", "work", ref.URL, "index", i+1, "of", len(refs))
		}

		if err := p.sleep(ctx, p.delay); err != nil {
			return fail("delay", err)
		}
	}

	if err := p.ledger.MarkProcessed(url); err != nil {
		return fail("checkpoint", err)
	}

	report.State = StateCompleted
	log.Info("document completed", "new_records", report.NewRecords, "duplicates", report.Duplicates)

	return report
}

// processReference fetches one claimed work and records its result. Fetch
// failures fall back to the document text; only a record that cannot be
// built at all is returned as an error, and it never stops the document.
func (p *Pipeline) processReference(
	ctx context.Context,
	log *logger.Logger,
	report *DocumentReport,
	ref extract.Reference,
	text string,
) error {
	result := p.fetcher.Fetch(ctx, ref.URL)

	switch result.Status {
	case models.StatusFound:
		report.Found++
	case models.StatusNotFound:
		report.NotFound++
		log.Info("work not found, using document text", "work", ref.URL)
	default:
		report.Fallbacks++
		log.Warn("work fetch failed, using document text",
			"work", ref.URL,
			"attempts", result.Attempts,
			"error", result.Err)
	}

	rec, err := p.processor.Process(normalizer.Outcome{
		Live:         result.Metadata,
		WorkURL:      ref.URL,
		SourceURL:    report.URL,
		DocumentText: text,
		Status:       result.Status,
	})
	if err != nil {
		return fmt.Errorf("build record for %s: %w", ref.URL, err)
	}

	if p.ledger.Record(*rec) {
		report.NewRecords++
	}

	return nil
}

func (p *Pipeline) notify(report DocumentReport) {
	if p.progress != nil {
		p.progress(report)
	}
}
