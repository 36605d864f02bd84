package crawler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"ao3extract/internal/logger"
)

// AttemptResult records the result of one request.
type AttemptResult struct {
	Timestamp  time.Time
	URL        string
	Error      string
	Attempt    int
	Duration   time.Duration
	StatusCode int
	Success    bool
}

// AttemptLog collects request attempts from every worker of a run.
type AttemptLog struct {
	entries map[string][]AttemptResult
	mu      sync.Mutex
}

// NewAttemptLog creates an empty attempt log.
func NewAttemptLog() *AttemptLog {
	return &AttemptLog{
		entries: make(map[string][]AttemptResult),
	}
}

// Record records the result of a request attempt.
func (l *AttemptLog) Record(url string, success bool, err error, statusCode int, duration time.Duration) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[url] = append(l.entries[url], AttemptResult{
		URL:        url,
		Attempt:    len(l.entries[url]) + 1,
		Success:    success,
		Error:      errMsg,
		Timestamp:  time.Now(),
		Duration:   duration,
		StatusCode: statusCode,
	})
}

// Attempts returns a copy of the attempts made for url.
func (l *AttemptLog) Attempts(url string) []AttemptResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]AttemptResult(nil), l.entries[url]...)
}

// AttemptStats contains statistics about request attempts.
type AttemptStats struct {
	TotalURLs          int
	SuccessfulURLs     int
	FailedURLs         int
	RetriedURLs        int
	TotalAttempts      int
	SuccessfulAttempts int
	FailedAttempts     int
}

// Stats returns statistics about every recorded attempt.
func (l *AttemptLog) Stats() AttemptStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := AttemptStats{TotalURLs: len(l.entries)}

	for _, results := range l.entries {
		stats.TotalAttempts += len(results)

		if len(results) > 1 {
			stats.RetriedURLs++
		}

		urlSuccess := false

		for _, result := range results {
			if result.Success {
				stats.SuccessfulAttempts++
				urlSuccess = true
			} else {
				stats.FailedAttempts++
			}
		}

		if urlSuccess {
			stats.SuccessfulURLs++
		} else {
			stats.FailedURLs++
		}
	}

	return stats
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"URLs: %d total, %d success, %d failed, %d retried | Attempts: %d total, %d success, %d failed",
		s.TotalURLs,
		s.SuccessfulURLs,
		s.FailedURLs,
		s.RetriedURLs,
		s.TotalAttempts,
		s.SuccessfulAttempts,
		s.FailedAttempts,
	)
}

// LogFailures logs every URL whose last attempt failed.
func (l *AttemptLog) LogFailures(log *logger.Logger) {
	l.mu.Lock()

	var failed []AttemptResult

	for _, results := range l.entries {
		last := results[len(results)-1]
		if !last.Success {
			failed = append(failed, last)
		}
	}

	l.mu.Unlock()

	sort.Slice(failed, func(i, j int) bool { return failed[i].URL < failed[j].URL })

	for _, result := range failed {
		log.Warn("request failed", "url", result.URL, "attempts", result.Attempt, "status", result.StatusCode, "error", result.Error)
	}
}
