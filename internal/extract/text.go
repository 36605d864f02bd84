package extract

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("document contains no extractable text")

// wordGap is the horizontal gap, as a fraction of the font size, above which
// two glyphs on the same line are separated by a space.
const wordGap = 0.15

// TextExtractor turns raw document bytes into per-page text.
type TextExtractor interface {
	Extract(data []byte) ([]string, error)
}

// PDFExtractor extracts plain text from PDF documents.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF text extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns the plain text of each page. Pages that fail to decode are
// returned as empty strings so page numbering is preserved.
func (p *PDFExtractor) Extract(data []byte) (pages []string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	empty := true

	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")

			continue
		}

		text, pageErr := pageText(page)
		if pageErr != nil {
			pages = append(pages, "")

			continue
		}

		if strings.TrimSpace(text) != "" {
			empty = false
		}

		pages = append(pages, text)
	}

	if empty {
		return pages, ErrNoText
	}

	return pages, nil
}

// pageText lays out the positioned glyphs of a page as lines. The plain
// text operator stream is used only when the page has no positioned text.
func pageText(page pdf.Page) (string, error) {
	text, err := layoutPage(page)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}

	return page.GetPlainText(nil)
}

func layoutPage(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("failed to lay out page: %v", r)
		}
	}()

	return layoutGlyphs(page.Content().Text), nil
}

// layoutGlyphs joins glyphs in content order, starting a new line whenever
// the baseline moves by more than half the font size.
func layoutGlyphs(glyphs []pdf.Text) string {
	var (
		b     strings.Builder
		lineY float64
		nextX float64
		size  float64
	)

	for _, g := range glyphs {
		if g.S == "" || g.S == "\n" {
			continue
		}

		if b.Len() == 0 {
			lineY = g.Y
		} else {
			fontSize := math.Max(size, g.FontSize)

			switch {
			case math.Abs(g.Y-lineY) > math.Max(fontSize/2, 1):
				b.WriteByte('\n')
				lineY = g.Y
			case g.X-nextX > fontSize*wordGap && !endsWithSpace(&b) && g.S != " ":
				b.WriteByte(' ')
			}
		}

		b.WriteString(g.S)
		nextX = g.X + g.W
		size = g.FontSize
	}

	return b.String()
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()

	return s != "" && s[len(s)-1] == ' '
}

// JoinPages concatenates page texts into one document text, one page per
// line block.
func JoinPages(pages []string) string {
	return strings.Join(pages, "\n")
}
