package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRecordMissingURL is returned when a persisted record has no work URL.
var ErrRecordMissingURL = errors.New("record is missing its url")

// ResultRecord is the unit of persisted output: one per canonical work URL.
type ResultRecord struct {
	URL      string     `json:"url"`
	PDFURL   string     `json:"pdf_url"`
	Title    string     `json:"title"`
	Summary  string     `json:"summary"`
	Stats    Attributes `json:"stats"`
	NotFound bool       `json:"not_found"`
	Origin   Origin     `json:"origin,omitempty"`
}

// Link returns the URL a report should point readers at. Works that no
// longer exist link to the document they were found in.
func (r ResultRecord) Link() string {
	if r.NotFound {
		return r.PDFURL
	}

	return r.URL
}

// MarshalResults serializes records into the results file format.
func MarshalResults(records []ResultRecord) ([]byte, error) {
	if records == nil {
		records = []ResultRecord{}
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalResults parses the results file format.
func UnmarshalResults(data []byte) ([]ResultRecord, error) {
	var records []ResultRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	for i, rec := range records {
		if rec.URL == "" {
			return nil, fmt.Errorf("%w: record[%d]", ErrRecordMissingURL, i)
		}
	}

	if records == nil {
		records = []ResultRecord{}
	}

	return records, nil
}
