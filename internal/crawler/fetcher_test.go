package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ao3extract/internal/config"
	"ao3extract/internal/models"
)

const workPage = `<html><body>
<h2 class="title heading">
  The Long Way Home
</h2>
<dl class="work meta group">
  <dt class="rating tags">Rating:</dt>
  <dd class="rating tags"><a>General Audiences</a></dd>
  <dt class="fandom tags">Fandom:</dt>
  <dd class="fandom tags"><a>Star Trek</a>,
      <a>Star Wars</a></dd>
  <dt class="stats">Stats:</dt>
  <dd class="stats">Words: 1,234 Chapters: 1/1</dd>
</dl>
<div class="summary module">
  <h3 class="heading">Summary:</h3>
  <blockquote class="userstuff"><p>Two ships, one corridor.</p></blockquote>
</div>
</body></html>`

func testPolicy() config.RetryPolicy {
	return config.RetryPolicy{
		MaxAttempts:       3,
		InitialDelayMs:    1000,
		MaxDelayMs:        30000,
		BackoffMultiplier: 2.0,
		TimeoutSec:        5,
	}
}

// recordingSleep captures backoff delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestFetcher(server *httptest.Server, opts ...FetcherOption) *WorkFetcher {
	session := NewSessionWithClient(server.Client(), "test-agent")
	return NewWorkFetcher(session, testPolicy(), opts...)
}

func workURL(server *httptest.Server, id int) string {
	return fmt.Sprintf("%s/works/%d", server.URL, id)
}

func TestFetchFound(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/42", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(workPage))
	}))
	defer server.Close()

	result := newTestFetcher(server).Fetch(context.Background(), workURL(server, 42))

	require.NoError(t, result.Err)
	require.Equal(t, models.StatusFound, result.Status)
	assert.Equal(t, 1, result.Attempts)

	meta := result.Metadata
	require.NotNil(t, meta)
	assert.Equal(t, "The Long Way Home", meta.Title)
	assert.Equal(t, "Two ships, one corridor.", meta.Summary)
	assert.Equal(t, models.OriginLive, meta.Origin)
	assert.False(t, meta.NotFound)

	rating, ok := meta.Attributes.Get("rating")
	require.True(t, ok)
	assert.Equal(t, "General Audiences", rating)

	fandom, _ := meta.Attributes.Get("fandom")
	assert.Equal(t, "Star Trek, Star Wars", fandom)

	stats, _ := meta.Attributes.Get("stats")
	assert.Equal(t, "Words: 1,234 Chapters: 1/1", stats)

	labels := make([]string, 0, len(meta.Attributes))
	for _, attr := range meta.Attributes {
		labels = append(labels, attr.Label)
	}
	assert.Equal(t, []string{"rating", "fandom", "stats"}, labels)
}

func TestFetchFoundWithoutTitleOrSummary(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>locked</p></body></html>`))
	}))
	defer server.Close()

	result := newTestFetcher(server).Fetch(context.Background(), workURL(server, 7))

	require.Equal(t, models.StatusFound, result.Status)
	assert.Equal(t, models.NoTitleFound, result.Metadata.Title)
	assert.Equal(t, models.NoSummaryFound, result.Metadata.Summary)
	assert.Empty(t, result.Metadata.Attributes)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(code)
			}))
			defer server.Close()

			sleeper := &recordingSleep{}
			result := newTestFetcher(server, WithSleep(sleeper.sleep)).Fetch(context.Background(), workURL(server, 1))

			assert.Equal(t, models.StatusNotFound, result.Status)
			assert.Nil(t, result.Metadata)
			assert.Equal(t, int32(1), calls.Load())
			assert.Empty(t, sleeper.delays)
		})
	}
}

func TestFetchRetriesWithIncreasingDelays(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(workPage))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	attempts := NewAttemptLog()
	fetcher := newTestFetcher(server, WithSleep(sleeper.sleep), WithAttemptLog(attempts))

	result := fetcher.Fetch(context.Background(), workURL(server, 9))

	require.Equal(t, models.StatusFound, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, sleeper.delays, 2)
	assert.Equal(t, time.Second, sleeper.delays[0])
	assert.Equal(t, 2*time.Second, sleeper.delays[1])
	assert.Greater(t, sleeper.delays[1], sleeper.delays[0])

	stats := attempts.Stats()
	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 2, stats.FailedAttempts)
	assert.Equal(t, 1, stats.RetriedURLs)
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	result := newTestFetcher(server, WithSleep(sleeper.sleep)).Fetch(context.Background(), workURL(server, 3))

	assert.Equal(t, models.StatusTransientFailure, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, sleeper.delays, 2)
	assert.ErrorIs(t, result.Err, ErrUnexpectedStatusCode)
}

func TestFetchNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	result := newTestFetcher(server).Fetch(context.Background(), workURL(server, 5))

	assert.Equal(t, models.StatusTransientFailure, result.Status)
	assert.Equal(t, int32(1), calls.Load())

	var statusErr *StatusError
	require.ErrorAs(t, result.Err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestFetchRejectsNonWorkURL(t *testing.T) {
	session := NewSessionWithClient(http.DefaultClient, "test-agent")
	result := NewWorkFetcher(session, testPolicy()).Fetch(context.Background(), "https://example.com/users/someone")

	assert.Equal(t, models.StatusTransientFailure, result.Status)
	assert.ErrorIs(t, result.Err, models.ErrNotWorkURL)
	assert.Zero(t, result.Attempts)
}

func TestFetchStopsWhenContextCancelled(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	result := newTestFetcher(server, WithSleep(sleep)).Fetch(ctx, workURL(server, 11))

	assert.Equal(t, models.StatusTransientFailure, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableStatus(tt.code), "status %d", tt.code)
	}
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "archive warning", normalizeLabel("  Archive Warning: "))
	assert.Equal(t, "stats", normalizeLabel("Stats:"))
	assert.Equal(t, "", normalizeLabel(":"))
}
