package normalizer

import (
	"errors"
	"fmt"

	"ao3extract/internal/models"
)

// Validation errors.
var (
	ErrMissingWorkURL     = errors.New("missing work URL")
	ErrNonCanonicalURL    = errors.New("work URL is not canonical")
	ErrMissingSourceURL   = errors.New("missing source document URL")
	ErrMissingLive        = errors.New("found outcome carries no live metadata")
	ErrUnknownFetchStatus = errors.New("unknown fetch status")
	ErrMissingTitle       = errors.New("record has no title")
)

// Validator checks outcomes and records against the result schema.
type Validator struct{}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateOutcome checks that an outcome can be turned into a record.
func (v *Validator) ValidateOutcome(outcome Outcome) error {
	if err := validateWorkURL(outcome.WorkURL); err != nil {
		return err
	}

	if outcome.SourceURL == "" {
		return ErrMissingSourceURL
	}

	switch outcome.Status {
	case models.StatusFound:
		if outcome.Live == nil {
			return ErrMissingLive
		}
	case models.StatusNotFound, models.StatusTransientFailure:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFetchStatus, outcome.Status)
	}

	return nil
}

// ValidateRecord checks a normalized record.
func (v *Validator) ValidateRecord(record *models.ResultRecord) error {
	if err := validateWorkURL(record.URL); err != nil {
		return err
	}

	if record.PDFURL == "" {
		return ErrMissingSourceURL
	}

	if record.Title == "" {
		return ErrMissingTitle
	}

	return nil
}

func validateWorkURL(workURL string) error {
	if workURL == "" {
		return ErrMissingWorkURL
	}

	canonical, err := models.CanonicalWorkURL(workURL)
	if err != nil {
		return err
	}

	if canonical != workURL {
		return fmt.Errorf("%w: %s (want %s)", ErrNonCanonicalURL, workURL, canonical)
	}

	return nil
}
