package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ao3extract/internal/logger"
)

// Login errors.
var (
	ErrNoAuthToken   = errors.New("no authenticity token on login page")
	ErrLoginRejected = errors.New("login rejected")
)

// Markers that only appear on pages served to a signed-in user.
var loggedInMarkers = []string{"Log Out", "My Dashboard"}

// Authenticator signs a session in to the archive.
type Authenticator struct {
	session  *Session
	logger   *logger.Logger
	loginURL string
}

// NewAuthenticator creates an authenticator posting to loginURL.
func NewAuthenticator(session *Session, loginURL string, log *logger.Logger) *Authenticator {
	if log == nil {
		log = logger.Discard()
	}

	return &Authenticator{
		session:  session,
		loginURL: loginURL,
		logger:   log,
	}
}

// Login exchanges credentials for a session cookie. The session's cookie
// jar keeps the cookie for every later request.
func (a *Authenticator) Login(ctx context.Context, username, password string) error {
	a.logger.Debug("fetching login page", "url", a.loginURL)

	token, err := a.authenticityToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"user[login]":        {username},
		"user[password]":     {password},
		"authenticity_token": {token},
		"commit":             {"Log in"},
	}

	resp, err := a.session.PostForm(ctx, a.loginURL, form)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkPageBytes))
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	page := string(body)
	for _, marker := range loggedInMarkers {
		if strings.Contains(page, marker) {
			a.logger.Info("logged in", "user", username)
			return nil
		}
	}

	return fmt.Errorf("%w: status %d", ErrLoginRejected, resp.StatusCode)
}

func (a *Authenticator) authenticityToken(ctx context.Context) (string, error) {
	resp, err := a.session.Get(ctx, a.loginURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch login page: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: a.loginURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxWorkPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse login page: %w", err)
	}

	token, ok := doc.Find(`input[name="authenticity_token"]`).First().Attr("value")
	if !ok || token == "" {
		return "", ErrNoAuthToken
	}

	return token, nil
}
