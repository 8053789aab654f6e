package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bluebridge/termsheet-ingest/backend/model"
)

// Kind classifies why a pipeline run stopped before completion
type Kind string

const (
	// KindInput means the source document was empty or unreadable
	KindInput Kind = "input_error"
	// KindExtraction means the inference service returned no usable data
	KindExtraction Kind = "extraction_failure"
	// KindValidation is a terminal state carrying data, not a fault
	KindValidation Kind = "validation_failure"
	// KindPersistence means the durable write failed
	KindPersistence Kind = "persistence_failure"
)

// Failure is the typed outcome of a stage that stops the pipeline.
// Response is set only for KindValidation.
type Failure struct {
	Kind     Kind
	Message  string
	Err      error
	Response *model.ExtractionResponse
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// StatusCode maps the failure onto an HTTP status
func (f *Failure) StatusCode() int {
	switch f.Kind {
	case KindInput, KindExtraction, KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Detail is the client-facing message, including the underlying cause
func (f *Failure) Detail() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func inputFailure(err error) *Failure {
	return &Failure{Kind: KindInput, Message: "PDF extraction failed", Err: err}
}

func extractionFailure(err error) *Failure {
	return &Failure{Kind: KindExtraction, Message: "LLM extraction failed", Err: err}
}

func validationFailure(resp *model.ExtractionResponse) *Failure {
	return &Failure{Kind: KindValidation, Message: "validation failed", Response: resp}
}

func persistenceFailure(err error) *Failure {
	return &Failure{Kind: KindPersistence, Message: "failed to persist extraction", Err: err}
}

// AsFailure extracts a *Failure from err
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
