package models

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const legacyResults = `[
  {
    "url": "https://archiveofourown.org/works/111",
    "pdf_url": "https://example.com/docs/A_Story.pdf",
    "title": "A Story",
    "summary": "Fox & hound <3",
    "stats": {
      "rating": "Explicit",
      "archive warning": "No Archive Warnings Apply",
      "fandom": "Original Work"
    },
    "not_found": false
  },
  {
    "url": "https://archiveofourown.org/works/222",
    "pdf_url": "https://example.com/docs/Gone.pdf",
    "title": "Gone",
    "summary": "",
    "stats": {},
    "not_found": true
  },
  {
    "url": "https://archiveofourown.org/works/333",
    "pdf_url": "https://example.com/docs/Flaky.pdf",
    "title": "Flaky",
    "summary": "No summary found",
    "stats": null,
    "not_found": false
  }
]`

func TestUnmarshalResults_LegacyFile(t *testing.T) {
	records, err := UnmarshalResults([]byte(legacyResults))
	if err != nil {
		t.Fatalf("UnmarshalResults failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	wantLabels := []string{"rating", "archive warning", "fandom"}
	for i, attr := range records[0].Stats {
		if attr.Label != wantLabels[i] {
			t.Errorf("Label %d = %q, want %q", i, attr.Label, wantLabels[i])
		}
	}

	if records[1].Stats == nil || len(records[1].Stats) != 0 {
		t.Errorf("Expected empty non-nil stats for record 1, got %#v", records[1].Stats)
	}

	if records[2].Stats != nil {
		t.Errorf("Expected nil stats for record 2, got %#v", records[2].Stats)
	}
}

func TestMarshalResults_RoundTrip(t *testing.T) {
	records, err := UnmarshalResults([]byte(legacyResults))
	if err != nil {
		t.Fatalf("UnmarshalResults failed: %v", err)
	}

	records[0].Origin = OriginLive

	data, err := MarshalResults(records)
	if err != nil {
		t.Fatalf("MarshalResults failed: %v", err)
	}

	if !strings.Contains(string(data), "Fox & hound <3") {
		t.Errorf("Expected HTML characters to stay unescaped, got:\n%s", data)
	}

	again, err := UnmarshalResults(data)
	if err != nil {
		t.Fatalf("UnmarshalResults of own output failed: %v", err)
	}

	if !reflect.DeepEqual(records, again) {
		t.Errorf("Round trip mismatch:\n got %#v\nwant %#v", again, records)
	}

	second, err := MarshalResults(again)
	if err != nil {
		t.Fatalf("MarshalResults failed: %v", err)
	}

	if string(second) != string(data) {
		t.Errorf("Serialized form is not stable:\n%s\n---\n%s", data, second)
	}
}

func TestMarshalResults_Empty(t *testing.T) {
	data, err := MarshalResults(nil)
	if err != nil {
		t.Fatalf("MarshalResults failed: %v", err)
	}

	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("Expected [], got %s", data)
	}
}

func TestUnmarshalResults_Errors(t *testing.T) {
	if _, err := UnmarshalResults([]byte(`[{"url": "x"`)); err == nil {
		t.Error("Expected error for truncated JSON")
	}

	_, err := UnmarshalResults([]byte(`[{"title": "no url"}]`))
	if !errors.Is(err, ErrRecordMissingURL) {
		t.Errorf("Expected ErrRecordMissingURL, got %v", err)
	}

	if _, err := UnmarshalResults([]byte(`[{"url": "u", "stats": ["a"]}]`)); err == nil {
		t.Error("Expected error for array stats")
	}
}

func TestResultRecord_Link(t *testing.T) {
	rec := ResultRecord{URL: "https://archiveofourown.org/works/1", PDFURL: "https://example.com/a.pdf"}
	if rec.Link() != rec.URL {
		t.Errorf("Link() = %s, want work URL", rec.Link())
	}

	rec.NotFound = true
	if rec.Link() != rec.PDFURL {
		t.Errorf("Link() = %s, want document URL", rec.Link())
	}
}

func TestAttributes_SetAndExtend(t *testing.T) {
	var attrs Attributes

	attrs.Set("Rating", "Teen")
	attrs.Set("Fandom", "A")
	attrs.Extend("Fandom", "B")
	attrs.Set("Rating", "Mature")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	if v, _ := attrs.Get("Rating"); v != "Mature" {
		t.Errorf("Rating = %q, want Mature", v)
	}

	if v, _ := attrs.Get("Fandom"); v != "A B" {
		t.Errorf("Fandom = %q, want %q", v, "A B")
	}

	if attrs[0].Label != "Rating" {
		t.Errorf("Expected Set to keep position, got order %v", attrs)
	}
}

func TestCanonicalWorkURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "http scheme", input: "http://archiveofourown.org/works/123", want: "https://archiveofourown.org/works/123"},
		{name: "already canonical", input: "https://archiveofourown.org/works/123", want: "https://archiveofourown.org/works/123"},
		{name: "www and case", input: "HTTPS://WWW.ArchiveOfOurOwn.org/works/123/", want: "https://archiveofourown.org/works/123"},
		{name: "chapter suffix", input: "https://archiveofourown.org/works/123/chapters/456?view_adult=true#main", want: "https://archiveofourown.org/works/123"},
		{name: "not a work", input: "https://archiveofourown.org/users/someone", wantErr: true},
		{name: "bad scheme", input: "ftp://archiveofourown.org/works/1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalWorkURL(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNotWorkURL) {
					t.Errorf("Expected ErrNotWorkURL, got %v", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("CanonicalWorkURL failed: %v", err)
			}

			if got != tt.want {
				t.Errorf("CanonicalWorkURL() = %s, want %s", got, tt.want)
			}
		})
	}
}
