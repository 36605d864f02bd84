package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Download errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrDocumentTooLarge     = errors.New("document exceeds size limit")
)

const defaultMaxDocumentBytes = 64 * 1024 * 1024

// StatusError reports a response with an unexpected status code.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d from %s", ErrUnexpectedStatusCode, e.StatusCode, e.URL)
}

// Unwrap lets errors.Is match ErrUnexpectedStatusCode.
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatusCode
}

// Scraper downloads source documents. It makes a single attempt per
// document; retries belong to the work page fetcher.
type Scraper struct {
	session  *Session
	attempts *AttemptLog
	timeout  time.Duration
	maxBytes int64
}

// NewScraper creates a downloader bounded by a per-request timeout and a
// maximum document size.
func NewScraper(session *Session, timeout time.Duration, maxBytes int64, attempts *AttemptLog) *Scraper {
	if attempts == nil {
		attempts = NewAttemptLog()
	}

	if maxBytes <= 0 {
		maxBytes = defaultMaxDocumentBytes
	}

	return &Scraper{
		session:  session,
		attempts: attempts,
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// Download returns the bytes of the document at rawURL.
func (s *Scraper) Download(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	data, statusCode, err := s.download(ctx, rawURL)
	s.attempts.Record(rawURL, err == nil, err, statusCode, time.Since(start))

	return data, err
}

func (s *Scraper) download(ctx context.Context, rawURL string) ([]byte, int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)

		defer cancel()
	}

	resp, err := s.session.Get(ctx, rawURL)
	if err != nil {
		return nil, 0, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	// Read one byte past the limit to tell "exactly at limit" from "over".
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > s.maxBytes {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s is larger than %d bytes", ErrDocumentTooLarge, rawURL, s.maxBytes)
	}

	return body, resp.StatusCode, nil
}
