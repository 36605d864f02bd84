// Package formatter turns the result list into its persisted form and the
// human-readable report.
package formatter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ao3extract/internal/models"
	"ao3extract/pkg/metadata"
)

// Report formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// DefaultTitle heads a report when no title is configured.
const DefaultTitle = "AO3 Works Extraction Results"

// NotFoundNotice is shown on works whose page no longer exists.
const NotFoundNotice = "Work page not found; showing extracted metadata."

// ErrUnknownFormat is returned for a report format other than html or markdown.
var ErrUnknownFormat = errors.New("unknown report format")

// Options controls report rendering.
type Options struct {
	GeneratedAt time.Time
	Format      string
	Title       string
}

// Output is the finished result of a run.
type Output struct {
	Serialized []byte
	Report     string
}

// Finalize serializes results and renders the signed report. Records keep
// their order in both.
func Finalize(results []models.ResultRecord, opts Options) (*Output, error) {
	serialized, err := models.MarshalResults(results)
	if err != nil {
		return nil, err
	}

	report, err := Render(results, opts)
	if err != nil {
		return nil, err
	}

	return &Output{Serialized: serialized, Report: report}, nil
}

// Render renders results in the requested format and signs the report.
func Render(results []models.ResultRecord, opts Options) (string, error) {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}

	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}

	var (
		content string
		err     error
	)

	switch strings.ToLower(opts.Format) {
	case FormatHTML, "":
		content, err = renderHTML(results, opts)
	case FormatMarkdown, "md":
		content = renderMarkdown(results, opts)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	if err != nil {
		return "", err
	}

	return metadata.Sign(content, len(results), opts.GeneratedAt), nil
}

// Extension returns the file extension for a report format.
func Extension(format string) string {
	if strings.EqualFold(format, FormatMarkdown) || strings.EqualFold(format, "md") {
		return ".md"
	}

	return ".html"
}

func heading(title string, count int) string {
	return fmt.Sprintf("%s (%d works)", title, count)
}

// labelFormatter title-cases stats labels ("archive warning" -> "Archive
// Warning"). A caser keeps state, so each render makes its own.
type labelFormatter struct {
	caser cases.Caser
}

func newLabelFormatter() *labelFormatter {
	return &labelFormatter{caser: cases.Title(language.English)}
}

func (f *labelFormatter) format(label string) string {
	return f.caser.String(label)
}
