package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"ao3extract/internal/config"
	"ao3extract/internal/logger"
	"ao3extract/internal/models"
	"ao3extract/pkg/utils"
)

const maxWorkPageBytes = 10 * 1024 * 1024

// FetchResult is the classified outcome of fetching one work page.
type FetchResult struct {
	Metadata *models.Metadata
	Err      error
	Attempts int
	Status   models.FetchStatus
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// WorkFetcher retrieves live metadata for works, retrying transient
// failures with exponential backoff.
type WorkFetcher struct {
	session  *Session
	limiter  *rate.Limiter
	attempts *AttemptLog
	logger   *logger.Logger
	strings  *utils.StringHelper
	sleep    SleepFunc
	policy   config.RetryPolicy
}

// FetcherOption configures a WorkFetcher.
type FetcherOption func(*WorkFetcher)

// WithLimiter throttles every request through limiter.
func WithLimiter(limiter *rate.Limiter) FetcherOption {
	return func(f *WorkFetcher) { f.limiter = limiter }
}

// WithAttemptLog records every attempt in log.
func WithAttemptLog(log *AttemptLog) FetcherOption {
	return func(f *WorkFetcher) { f.attempts = log }
}

// WithFetcherLogger sets the logger used for retry messages.
func WithFetcherLogger(log *logger.Logger) FetcherOption {
	return func(f *WorkFetcher) { f.logger = log }
}

// WithSleep replaces the backoff wait (useful for testing).
func WithSleep(sleep SleepFunc) FetcherOption {
	return func(f *WorkFetcher) { f.sleep = sleep }
}

// NewLimiter returns a limiter allowing requestsPerSecond, or an unlimited
// one when requestsPerSecond is zero.
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// NewWorkFetcher creates a fetcher using session and the retry policy.
func NewWorkFetcher(session *Session, policy config.RetryPolicy, opts ...FetcherOption) *WorkFetcher {
	f := &WorkFetcher{
		session:  session,
		policy:   policy,
		limiter:  NewLimiter(0),
		attempts: NewAttemptLog(),
		logger:   logger.Discard(),
		strings:  utils.NewStringHelper(),
		sleep:    SleepContext,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.policy.MaxAttempts < 1 {
		f.policy.MaxAttempts = 1
	}

	return f
}

var errWorkNotFound = errors.New("work not found")

// Fetch retrieves and parses the work page at workURL. A missing work is
// reported as StatusNotFound without retrying; StatusTransientFailure is
// returned once every attempt has failed or the server answered with a
// status that retrying cannot fix.
func (f *WorkFetcher) Fetch(ctx context.Context, workURL string) FetchResult {
	canonical, err := models.CanonicalWorkURL(workURL)
	if err != nil {
		return FetchResult{Status: models.StatusTransientFailure, Err: err}
	}

	var lastErr error

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return FetchResult{Status: models.StatusTransientFailure, Err: err, Attempts: attempt - 1}
		}

		start := time.Now()
		meta, statusCode, err := f.fetchOnce(ctx, canonical)
		duration := time.Since(start)

		// A definitive "gone" answer counts as a successful request.
		f.attempts.Record(canonical, err == nil || errors.Is(err, errWorkNotFound), err, statusCode, duration)

		switch {
		case err == nil:
			return FetchResult{Status: models.StatusFound, Metadata: meta, Attempts: attempt}
		case errors.Is(err, errWorkNotFound):
			return FetchResult{Status: models.StatusNotFound, Err: err, Attempts: attempt}
		case !f.retryable(ctx, err):
			return FetchResult{Status: models.StatusTransientFailure, Err: err, Attempts: attempt}
		}

		lastErr = err

		f.logger.Warn("work fetch attempt failed",
			"url", canonical,
			"attempt", attempt,
			"max_attempts", f.policy.MaxAttempts,
			"error", err)

		if attempt < f.policy.MaxAttempts {
			if err := f.sleep(ctx, f.policy.GetRetryDelay(attempt)); err != nil {
				return FetchResult{Status: models.StatusTransientFailure, Err: err, Attempts: attempt}
			}
		}
	}

	return FetchResult{
		Status:   models.StatusTransientFailure,
		Err:      fmt.Errorf("giving up after %d attempts: %w", f.policy.MaxAttempts, lastErr),
		Attempts: f.policy.MaxAttempts,
	}
}

func (f *WorkFetcher) fetchOnce(ctx context.Context, workURL string) (*models.Metadata, int, error) {
	if timeout := f.policy.GetTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	resp, err := f.session.Get(ctx, workURL)
	if err != nil {
		return nil, 0, err
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, resp.StatusCode, fmt.Errorf("%w: %s", errWorkNotFound, workURL)
	case resp.StatusCode != http.StatusOK:
		return nil, resp.StatusCode, &StatusError{URL: workURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxWorkPageBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to parse work page: %w", err)
	}

	return f.parseWorkPage(doc), resp.StatusCode, nil
}

// parseWorkPage reads the title, summary, and the work meta block.
func (f *WorkFetcher) parseWorkPage(doc *goquery.Document) *models.Metadata {
	meta := &models.Metadata{
		Title:      models.NoTitleFound,
		Summary:    models.NoSummaryFound,
		Origin:     models.OriginLive,
		Attributes: models.Attributes{},
	}

	if title := f.strings.TrimWhitespace(doc.Find("h2.title.heading").First().Text()); title != "" {
		meta.Title = title
	}

	quote := doc.Find("div.summary.module").First().Find("blockquote").First()
	if summary := f.strings.TrimWhitespace(quote.Text()); summary != "" {
		meta.Summary = summary
	}

	doc.Find("dl.work.meta.group").First().ChildrenFiltered("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}

		label := normalizeLabel(dt.Text())
		if label == "" {
			return
		}

		meta.Attributes.Set(label, f.strings.NormalizeWhitespace(dd.Text()))
	})

	return meta
}

// normalizeLabel trims a stats label, lower-cases it, and drops the
// trailing colon, so "Archive Warning:" becomes "archive warning".
func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))

	return strings.TrimSpace(strings.TrimSuffix(label, ":"))
}

func (f *WorkFetcher) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.StatusCode)
	}

	return true
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, // 408
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}

	return false
}

// SleepContext waits for d, returning early with the context error when ctx
// is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
