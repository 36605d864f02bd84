// Package crawler talks to the network: the shared HTTP session, source
// document downloads, the archive login exchange, and live work page fetches.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"ao3extract/pkg/utils"
)

// Session is an HTTP client with a cookie jar shared by every request of a
// run, so a successful login applies to all later fetches.
type Session struct {
	client  *http.Client
	headers *utils.HTTPHelper
}

// NewSession creates a session sending the given user agent.
func NewSession(userAgent string) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Session{
		client:  &http.Client{Jar: jar},
		headers: utils.NewHTTPHelper(userAgent),
	}, nil
}

// NewSessionWithClient wraps an existing client (useful for testing).
func NewSessionWithClient(client *http.Client, userAgent string) *Session {
	return &Session{
		client:  client,
		headers: utils.NewHTTPHelper(userAgent),
	}
}

// Get issues a GET request with the default headers.
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return s.do(req)
}

// PostForm issues a form-encoded POST request with the default headers.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return s.do(req)
}

func (s *Session) do(req *http.Request) (*http.Response, error) {
	s.headers.ApplyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// drainAndClose discards what is left of a response body so the connection
// can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
