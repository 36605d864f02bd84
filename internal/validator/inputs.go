// Package validator checks the tool's inputs and outputs: the source
// document list read at startup and the signature of a rendered report.
package validator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"ao3extract/pkg/metadata"
	"ao3extract/pkg/utils"
)

// Validation errors.
var (
	ErrInvalidSourceURL = errors.New("not an absolute http(s) URL")
	ErrEmptySourceList  = errors.New("source list contains no URLs")
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	Err     error
	Value   string
	Message string
	Line    int
}

// ValidationResult contains validation results.
type ValidationResult struct {
	// Report is the verified signature block; set only by ValidateReport.
	Report   *metadata.Metadata
	Errors   []ValidationError
	Warnings []string
	Stats    ValidationStats
	IsValid  bool
}

// ValidationStats contains validation statistics.
type ValidationStats struct {
	TotalLines  int
	BlankLines  int
	ValidURLs   int
	InvalidURLs int
	Duplicates  int
}

// SourceList is the ordered, de-duplicated list of source document URLs.
type SourceList struct {
	Result *ValidationResult
	URLs   []string
}

// LoadSourceFile reads the source list at path. An unreadable file is an
// error; bad lines are reported in the result and skipped.
func LoadSourceFile(path string) (*SourceList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source list: %w", err)
	}
	defer f.Close()

	return LoadSourceList(f)
}

// LoadSourceList reads one URL per line. Blank lines are ignored, lines
// that are not http(s) URLs are reported as errors, and repeated URLs are
// reported as warnings and kept once.
func LoadSourceList(r io.Reader) (*SourceList, error) {
	list := &SourceList{Result: &ValidationResult{IsValid: true}}
	result := list.Result
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		result.Stats.TotalLines++

		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		if line == "" {
			result.Stats.BlankLines++
			continue
		}

		if err := validateSourceURL(line); err != nil {
			result.Stats.InvalidURLs++
			result.Errors = append(result.Errors, ValidationError{
				Line:    lineNum,
				Value:   line,
				Err:     err,
				Message: err.Error(),
			})

			continue
		}

		if first, dup := seen[line]; dup {
			result.Stats.Duplicates++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("line %d: duplicate of line %d: %s", lineNum, first, strutil.TruncateString(line, 80)))

			continue
		}

		seen[line] = lineNum
		result.Stats.ValidURLs++
		list.URLs = append(list.URLs, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source list: %w", err)
	}

	if len(result.Errors) > 0 {
		result.IsValid = false
	}

	if len(list.URLs) == 0 {
		result.Warnings = append(result.Warnings, ErrEmptySourceList.Error())
	}

	return list, nil
}

var (
	httpHelper = utils.NewHTTPHelper("")
	strutil    = utils.NewStringHelper()
)

func validateSourceURL(raw string) error {
	if !httpHelper.IsValidURL(raw) {
		return ErrInvalidSourceURL
	}

	return nil
}

// ValidateReport checks a rendered report against its signature block.
func ValidateReport(content string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	meta, err := metadata.Verify(content)
	if err != nil {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{
			Err:     err,
			Message: fmt.Sprintf("integrity check failed: %v", err),
		})

		return result
	}

	result.Report = meta

	return result
}

// String returns string representation of validation result.
func (r *ValidationResult) String() string {
	status := "✅ VALID"
	if !r.IsValid {
		status = "❌ INVALID"
	}

	return fmt.Sprintf(
		"%s | Lines: %d | URLs: %d | Invalid: %d | Duplicates: %d | Warnings: %d",
		status,
		r.Stats.TotalLines,
		r.Stats.ValidURLs,
		r.Stats.InvalidURLs,
		r.Stats.Duplicates,
		len(r.Warnings),
	)
}

// PrintErrors prints validation errors in readable format.
func (r *ValidationResult) PrintErrors(w io.Writer) {
	if len(r.Errors) == 0 {
		return
	}

	fmt.Fprintln(w, "❌ Validation Errors:")

	for _, err := range r.Errors {
		if err.Line > 0 {
			fmt.Fprintf(w, "  Line %d: %s\n", err.Line, err.Message)

			if err.Value != "" {
				fmt.Fprintf(w, "    Found: %q\n", strutil.TruncateString(err.Value, 80))
			}
		} else {
			fmt.Fprintf(w, "  %s\n", err.Message)
		}
	}
}

// PrintWarnings prints validation warnings.
func (r *ValidationResult) PrintWarnings(w io.Writer) {
	if len(r.Warnings) == 0 {
		return
	}

	fmt.Fprintln(w, "⚠️  Validation Warnings:")

	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s\n", warn)
	}
}
