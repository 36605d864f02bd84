// Package extract pulls text out of source documents and finds the work
// references embedded in that text.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"ao3extract/internal/models"
)

// Reference is a work identifier found in a document.
type Reference struct {
	ID  string
	URL string
}

// ReferenceExtractor finds links to works hosted on one site.
type ReferenceExtractor struct {
	host    string
	pattern *regexp.Regexp
}

// NewReferenceExtractor creates an extractor matching http and https links
// to /works/<id> on host, with or without a leading "www.".
func NewReferenceExtractor(host string) *ReferenceExtractor {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	pattern := regexp.MustCompile(fmt.Sprintf(`(?i)https?://(?:www\.)?%s/works/(\d+)`, regexp.QuoteMeta(host)))

	return &ReferenceExtractor{
		host:    host,
		pattern: pattern,
	}
}

// Extract returns every reference in text in order of appearance. The same
// work may appear more than once.
func (e *ReferenceExtractor) Extract(text string) []Reference {
	matches := e.pattern.FindAllStringSubmatch(text, -1)
	refs := make([]Reference, 0, len(matches))

	for _, m := range matches {
		refs = append(refs, Reference{
			ID:  m[1],
			URL: models.WorkURL(e.host, m[1]),
		})
	}

	return refs
}
