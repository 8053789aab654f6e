package model

import "time"

// Extraction status values
const (
	StatusExtracted        = "extracted"
	StatusValidationFailed = "validation_failed"

	// ExtractionStatusSuccess is recorded in the extraction audit row
	ExtractionStatusSuccess = "success"
)

// ExtractionResponse is returned for a pipeline run that reached validation
type ExtractionResponse struct {
	Filename    string           `json:"filename"`
	SizeBytes   int              `json:"size_bytes"`
	Status      string           `json:"status"`
	ProductISIN string           `json:"product_isin"`
	Approved    bool             `json:"approved"`
	Data        *TermsheetData   `json:"data"`
	Validation  ValidationResult `json:"validation"`
}

// Job is an uploaded document waiting for its extraction stream
type Job struct {
	ID        string
	Filename  string
	Payload   []byte
	CreatedAt time.Time
}

// JobCreatedResponse is returned by the async upload endpoint
type JobCreatedResponse struct {
	JobID     string `json:"job_id"`
	Filename  string `json:"filename"`
	SizeBytes int    `json:"size_bytes"`
}
