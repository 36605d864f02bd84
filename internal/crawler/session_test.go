package crawler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ao3extract/internal/logger"
)

const loginForm = `<html><body><form action="/users/login" method="post">
<input type="hidden" name="authenticity_token" value="tok-123">
<input name="user[login]"><input name="user[password]" type="password">
</form></body></html>`

func newLoginServer(t *testing.T, dashboard string) *httptest.Server {
	t.Helper()

	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(loginForm))
		case http.MethodPost:
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "tok-123", r.PostForm.Get("authenticity_token"))
			assert.Equal(t, "Log in", r.PostForm.Get("commit"))

			if r.PostForm.Get("user[login]") == "reader" && r.PostForm.Get("user[password]") == "secret" {
				http.SetCookie(w, &http.Cookie{Name: "_otwarchive_session", Value: "signed-in", Path: "/"})
				_, _ = w.Write([]byte(dashboard))
				return
			}

			_, _ = w.Write([]byte(`<p>The password or user name you entered doesn't match our records.</p>`))
		}
	}))
}

func newJarSession(t *testing.T, server *httptest.Server) *Session {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := server.Client()
	client.Jar = jar

	return NewSessionWithClient(client, "test-agent")
}

func TestLoginSucceeds(t *testing.T) {
	for _, marker := range []string{"<a>Log Out</a>", "<h2>My Dashboard</h2>"} {
		server := newLoginServer(t, marker)

		session := newJarSession(t, server)
		auth := NewAuthenticator(session, server.URL+"/users/login", logger.Discard())

		require.NoError(t, auth.Login(context.Background(), "reader", "secret"))

		resp, err := session.Get(context.Background(), server.URL+"/users/login")
		require.NoError(t, err)
		drainAndClose(resp.Body)
		assert.NotEmpty(t, session.client.Jar.Cookies(resp.Request.URL))

		server.Close()
	}
}

func TestLoginRejected(t *testing.T) {
	server := newLoginServer(t, "<a>Log Out</a>")
	defer server.Close()

	auth := NewAuthenticator(newJarSession(t, server), server.URL+"/users/login", nil)

	err := auth.Login(context.Background(), "reader", "wrong")
	assert.ErrorIs(t, err, ErrLoginRejected)
}

func TestLoginWithoutToken(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))
	defer server.Close()

	auth := NewAuthenticator(newJarSession(t, server), server.URL+"/users/login", nil)

	err := auth.Login(context.Background(), "reader", "secret")
	assert.ErrorIs(t, err, ErrNoAuthToken)
}

func TestScraperDownload(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.pdf":
			_, _ = w.Write([]byte("%PDF-1.4 tiny"))
		case "/big.pdf":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	attempts := NewAttemptLog()
	scraper := NewScraper(NewSessionWithClient(server.Client(), "test-agent"), 0, 32, attempts)

	data, err := scraper.Download(context.Background(), server.URL+"/ok.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 tiny", string(data))

	_, err = scraper.Download(context.Background(), server.URL+"/big.pdf")
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	_, err = scraper.Download(context.Background(), server.URL+"/missing.pdf")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	stats := attempts.Stats()
	assert.Equal(t, 3, stats.TotalURLs)
	assert.Equal(t, 1, stats.SuccessfulURLs)
	assert.Equal(t, 2, stats.FailedURLs)
}

func TestScraperDownloadExactlyAtLimit(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("y", 32)))
	}))
	defer server.Close()

	scraper := NewScraper(NewSessionWithClient(server.Client(), ""), 0, 32, nil)

	data, err := scraper.Download(context.Background(), server.URL+"/edge.pdf")
	require.NoError(t, err)
	assert.Len(t, data, 32)
}

func TestSessionSendsUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer server.Close()

	session, err := NewSession("custom-agent/1.0")
	require.NoError(t, err)

	resp, err := session.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer drainAndClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "custom-agent/1.0", string(body))
}
