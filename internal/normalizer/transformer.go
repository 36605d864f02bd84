package normalizer

import (
	"strings"

	"ao3extract/internal/fallback"
	"ao3extract/internal/models"
	"ao3extract/pkg/utils"
)

// Transformer picks the metadata source for an outcome and maps it onto the
// record schema.
type Transformer struct {
	fallback *fallback.Parser
	strings  *utils.StringHelper
}

// NewTransformer creates a new transformer instance.
func NewTransformer() *Transformer {
	return &Transformer{
		fallback: fallback.NewParser(),
		strings:  utils.NewStringHelper(),
	}
}

// Transform builds a record. Found outcomes use the live metadata; a work
// that no longer exists uses the document text with the regex summary
// preferred; a failed fetch uses the general document-text fallback for the
// title and summary only and records no attributes.
func (t *Transformer) Transform(outcome Outcome) *models.ResultRecord {
	var meta models.Metadata

	switch outcome.Status {
	case models.StatusFound:
		meta = *outcome.Live
	case models.StatusNotFound:
		meta = t.fallback.ParseNotFound(outcome.DocumentText, outcome.SourceURL)
	default:
		meta = t.fallback.Parse(outcome.DocumentText, outcome.SourceURL)
		meta.NotFound = false
		meta.Attributes = nil
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = fallback.TitleFromFilename(outcome.SourceURL)
	}

	return &models.ResultRecord{
		URL:      outcome.WorkURL,
		PDFURL:   outcome.SourceURL,
		Title:    title,
		Summary:  strings.TrimSpace(meta.Summary),
		Stats:    t.normalizeAttributes(meta.Attributes),
		NotFound: meta.NotFound,
		Origin:   meta.Origin,
	}
}

func (t *Transformer) normalizeAttributes(attrs models.Attributes) models.Attributes {
	if attrs == nil {
		return nil
	}

	out := make(models.Attributes, 0, len(attrs))
	for _, attr := range attrs {
		label := strings.TrimSpace(attr.Label)
		if label == "" {
			continue
		}

		out.Set(label, t.strings.NormalizeWhitespace(attr.Value))
	}

	return out
}
