// Package fallback reconstructs work metadata from a downloaded document's
// own text when the live work page cannot be used.
package fallback

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"ao3extract/internal/models"
	"ao3extract/pkg/utils"
)

// Labels recognized at the start of a line, in the order they usually
// appear in an exported work header.
var Labels = []string{
	"Rating",
	"Archive Warning",
	"Category",
	"Fandom",
	"Character",
	"Additional Tags",
	"Stats",
}

var summaryRegex = regexp.MustCompile(`(?is)Summary\s*(.+?)(?:\s*Notes\b|\s*Rating\b|\s*Archive Warning\b|$)`)

type scanState int

const (
	stateScanning scanState = iota
	stateInSummary
	stateDone
)

// Parser recovers title, summary, and attributes from document text.
type Parser struct {
	strings *utils.StringHelper
}

// NewParser creates a fallback parser.
func NewParser() *Parser {
	return &Parser{strings: utils.NewStringHelper()}
}

// Parse is the general-purpose fallback: the summary comes from the line
// scan only.
func (p *Parser) Parse(rawText, sourceURL string) models.Metadata {
	scan := p.scan(rawText)

	meta := models.Metadata{
		Title:      scan.title,
		Summary:    scan.summary,
		Attributes: scan.attributes,
		Origin:     models.OriginFallback,
	}

	if meta.Title == "" {
		meta.Title = TitleFromFilename(sourceURL)
	}

	if meta.Summary == "" {
		meta.Summary = models.NoSummaryFound
	}

	return meta
}

// ParseNotFound is used when the work no longer exists: the regex summary
// wins over the line-scanned one.
func (p *Parser) ParseNotFound(rawText, sourceURL string) models.Metadata {
	meta := p.Parse(rawText, sourceURL)
	meta.NotFound = true

	if summary, ok := p.ExtractSummary(rawText); ok {
		meta.Summary = summary
	}

	return meta
}

// ExtractSummary searches the whole text for a "Summary" marker and returns
// everything up to the next Notes, Rating or Archive Warning marker (or the
// end of the text) with whitespace collapsed.
func (p *Parser) ExtractSummary(rawText string) (string, bool) {
	match := summaryRegex.FindStringSubmatch(rawText)
	if match == nil {
		return "", false
	}

	summary := p.strings.NormalizeWhitespace(match[1])
	if summary == "" {
		return "", false
	}

	return summary, true
}

type scanResult struct {
	title      string
	summary    string
	attributes models.Attributes
}

func (p *Parser) scan(rawText string) scanResult {
	var res scanResult

	lines := strings.Split(strings.TrimSpace(rawText), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	start := -1

	for i, line := range lines {
		if line != "" {
			res.title = line
			start = i + 1

			break
		}
	}

	if start < 0 {
		return res
	}

	res.attributes = models.Attributes{}

	var (
		summaryLines []string
		openLabel    string
	)

	state := stateScanning

	for _, line := range lines[start:] {
		if state == stateDone {
			break
		}

		switch state {
		case stateScanning:
			switch {
			case strings.EqualFold(line, "summary"):
				openLabel = ""
				state = stateInSummary
			case strings.EqualFold(line, "notes"):
				state = stateDone
			case line == "":
				// Blank lines do not close an open attribute.
			default:
				if label, value, ok := splitLabel(line); ok {
					res.attributes.Set(label, value)
					openLabel = label
				} else if openLabel != "" {
					res.attributes.Extend(openLabel, line)
				}
			}
		case stateInSummary:
			if line == "" || startsSection(line) {
				state = stateDone

				continue
			}

			summaryLines = append(summaryLines, line)
		}
	}

	res.summary = strings.TrimSpace(strings.Join(summaryLines, " "))

	return res
}

// splitLabel reports whether line starts with a recognized "Label:" prefix
// and returns the label and the rest of the line.
func splitLabel(line string) (string, string, bool) {
	for _, label := range Labels {
		prefix := label + ":"
		if strings.HasPrefix(line, prefix) {
			return label, strings.TrimSpace(line[len(prefix):]), true
		}
	}

	return "", "", false
}

func startsSection(line string) bool {
	if _, _, ok := splitLabel(line); ok {
		return true
	}

	return strings.HasPrefix(line, "Summary") || strings.HasPrefix(line, "Notes")
}

// TitleFromFilename derives a title from a document URL: the file name
// without its .pdf extension, underscores turned into spaces, and
// percent-encoding decoded.
func TitleFromFilename(sourceURL string) string {
	name := sourceURL
	if u, err := url.Parse(sourceURL); err == nil {
		name = u.EscapedPath()
	}

	name = path.Base(name)
	name = strings.TrimSuffix(name, ".pdf")
	name = strings.ReplaceAll(name, "_", " ")

	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}

	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return models.UnknownTitle
	}

	return name
}
