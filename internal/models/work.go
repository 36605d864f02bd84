// Package models defines the data structures shared by the extractor pipeline.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrNotWorkURL is returned when a URL does not point at a work page.
var ErrNotWorkURL = errors.New("not a work URL")

// Origin records where a piece of metadata came from.
type Origin string

// Metadata origins.
const (
	OriginLive     Origin = "live"
	OriginFallback Origin = "fallback"
)

// Placeholder values used when a field cannot be recovered.
const (
	NoTitleFound   = "No title found"
	NoSummaryFound = "No summary found"
	UnknownTitle   = "Unknown Title"
)

// Metadata describes a single work, either scraped from its live page or
// reconstructed from a downloaded document.
type Metadata struct {
	Title      string
	Summary    string
	Origin     Origin
	Attributes Attributes
	NotFound   bool
}

// Attribute is one labeled value, e.g. "rating" -> "Explicit".
type Attribute struct {
	Label string
	Value string
}

// Attributes is an ordered label/value mapping. Its JSON form is an object
// whose key order is preserved in both directions. A nil Attributes encodes
// as null.
type Attributes []Attribute

// Get returns the value stored under label.
func (a Attributes) Get(label string) (string, bool) {
	for _, attr := range a {
		if attr.Label == label {
			return attr.Value, true
		}
	}

	return "", false
}

// Set stores value under label, replacing an existing entry in place.
func (a *Attributes) Set(label, value string) {
	for i := range *a {
		if (*a)[i].Label == label {
			(*a)[i].Value = value

			return
		}
	}

	*a = append(*a, Attribute{Label: label, Value: value})
}

// Extend appends more text to the value stored under label, space separated.
func (a *Attributes) Extend(label, more string) {
	for i := range *a {
		if (*a)[i].Label != label {
			continue
		}

		if (*a)[i].Value == "" {
			(*a)[i].Value = more
		} else {
			(*a)[i].Value += " " + more
		}

		return
	}

	*a = append(*a, Attribute{Label: label, Value: more})
}

// MarshalJSON encodes the attributes as an ordered JSON object.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')

	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}

		if err := enc.Encode(attr.Label); err != nil {
			return nil, fmt.Errorf("failed to encode label %q: %w", attr.Label, err)
		}

		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')

		if err := enc.Encode(attr.Value); err != nil {
			return nil, fmt.Errorf("failed to encode value of %q: %w", attr.Label, err)
		}

		buf.Truncate(buf.Len() - 1)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object into attributes, keeping key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil

		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read attributes: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("attributes must be an object, got %v", tok)
	}

	out := Attributes{}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read attribute label: %w", err)
		}

		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("attribute label must be a string, got %v", keyTok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to read attribute %q: %w", label, err)
		}

		out.Set(label, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to close attributes: %w", err)
	}

	*a = out

	return nil
}

var workPathRegex = regexp.MustCompile(`^/works/(\d+)`)

// WorkURL builds the canonical URL for a work id on the given site host.
func WorkURL(host, id string) string {
	return "https://" + normalizeHost(host) + "/works/" + id
}

// CanonicalWorkURL normalizes any http(s) link to a work page into its
// canonical form: https scheme, lower-case host without "www.", and the
// path reduced to /works/<id>.
func CanonicalWorkURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotWorkURL, raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %s", ErrNotWorkURL, raw)
	}

	match := workPathRegex.FindStringSubmatch(u.Path)
	if match == nil || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrNotWorkURL, raw)
	}

	return WorkURL(u.Host, match[1]), nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))

	return strings.TrimPrefix(host, "www.")
}

// FetchStatus classifies the outcome of a live work page fetch.
type FetchStatus int

// Fetch outcomes.
const (
	StatusFound FetchStatus = iota
	StatusNotFound
	StatusTransientFailure
)

// String returns the status name used in logs.
func (s FetchStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusTransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}
