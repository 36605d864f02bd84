// Package normalizer turns fetch outcomes into validated result records.
package normalizer

import (
	"fmt"

	"ao3extract/internal/models"
)

// Outcome is everything known about one reference once its live fetch has
// finished.
type Outcome struct {
	Live         *models.Metadata
	WorkURL      string
	SourceURL    string
	DocumentText string
	Status       models.FetchStatus
}

// Processor validates outcomes and normalizes them into records.
type Processor struct {
	validator   *Validator
	transformer *Transformer
}

// NewProcessor creates a new processor instance.
func NewProcessor() *Processor {
	return &Processor{
		validator:   NewValidator(),
		transformer: NewTransformer(),
	}
}

// Process builds the record for one outcome.
func (p *Processor) Process(outcome Outcome) (*models.ResultRecord, error) {
	if err := p.validator.ValidateOutcome(outcome); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	record := p.transformer.Transform(outcome)

	if err := p.validator.ValidateRecord(record); err != nil {
		return nil, fmt.Errorf("normalized record invalid: %w", err)
	}

	return record, nil
}
