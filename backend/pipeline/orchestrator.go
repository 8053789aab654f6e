// Package pipeline runs the termsheet ingest stages in a fixed order:
// text extraction, staging blob save, inference extraction, re-save under the
// ISIN, validation and persistence. RunSync returns a single result; Stream
// reports each stage as it starts and ends with exactly one terminal event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/bluebridge/termsheet-ingest/backend/model"
	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
	"github.com/bluebridge/termsheet-ingest/backend/validation"
)

// StagingKey is the blob prefix used before the ISIN is known
const StagingKey = "pending"

// TextExtractor converts raw document bytes into text
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, filename string) (string, error)
}

// StructuredExtractor turns document text into termsheet data
type StructuredExtractor interface {
	ExtractTermsheet(ctx context.Context, text string) (*model.TermsheetData, error)
}

// BlobSaver stores the intermediate text and returns its path
type BlobSaver interface {
	SaveMarkdown(ctx context.Context, key, filename, markdown string) (string, error)
}

// Repository answers duplicate lookups and persists validated extractions
type Repository interface {
	validation.DuplicateChecker
	Persist(ctx context.Context, data *model.TermsheetData, sourceFilename, blobPath, status string) (*model.ProductRecord, error)
}

// Dependencies are the collaborators an Orchestrator drives
type Dependencies struct {
	Text       TextExtractor
	Structured StructuredExtractor
	Blobs      BlobSaver
	Repository Repository
	Validator  *validation.Engine
}

// Upload is the raw document handed to a pipeline run
type Upload struct {
	Filename string
	Data     []byte
}

// Orchestrator holds collaborators only; runs share no state.
type Orchestrator struct {
	text       TextExtractor
	structured StructuredExtractor
	blobs      BlobSaver
	repo       Repository
	validator  *validation.Engine
}

// New creates an orchestrator. A nil Validator uses the default rule table.
func New(deps Dependencies) *Orchestrator {
	if deps.Validator == nil {
		deps.Validator = validation.NewEngine()
	}
	return &Orchestrator{
		text:       deps.Text,
		structured: deps.Structured,
		blobs:      deps.Blobs,
		repo:       deps.Repository,
		validator:  deps.Validator,
	}
}

// RunSync executes every stage and returns the response on success.
// Stage failures are returned as *Failure; a validation failure carries the
// extracted data and issues in Failure.Response. Errors outside the taxonomy
// are returned unchanged.
func (o *Orchestrator) RunSync(ctx context.Context, up Upload) (*model.ExtractionResponse, error) {
	return o.execute(ctx, up, func(Stage) {})
}

// Stream executes every stage on its own goroutine and returns the events.
// The channel is buffered for the whole run, so an abandoned consumer never
// blocks the producer; dispatched stages still run to completion.
func (o *Orchestrator) Stream(ctx context.Context, up Upload) <-chan ProgressEvent {
	events := make(chan ProgressEvent, maxEvents)

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "panic in extraction stream",
					"filename", up.Filename,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				events <- Error(fmt.Sprint(r))
			}
		}()

		resp, err := o.execute(ctx, up, func(stage Stage) {
			events <- Progress(stage)
		})
		events <- terminalEvent(ctx, resp, err)
	}()

	return events
}

func terminalEvent(ctx context.Context, resp *model.ExtractionResponse, err error) ProgressEvent {
	if err == nil {
		return Complete(resp)
	}

	f, ok := AsFailure(err)
	if !ok {
		logger.Error(ctx, "unexpected error in extraction stream", "error", err)
		return Error(err.Error())
	}

	switch f.Kind {
	case KindValidation:
		return ValidationFailed(f.Response)
	default:
		return Error(f.Detail())
	}
}

// execute is the single stage sequence behind both entry points. enter is
// called before each stage's blocking work starts.
func (o *Orchestrator) execute(ctx context.Context, up Upload, enter func(Stage)) (*model.ExtractionResponse, error) {
	log := logger.WithContext(ctx).With("filename", up.Filename)

	// 1. document -> text
	enter(StageExtractingPDF)
	markdown, err := o.text.ExtractText(ctx, up.Data, up.Filename)
	if err != nil {
		log.Warn("text extraction failed", "error", err)
		return nil, inputFailure(err)
	}
	log.Info("text extracted", "chars", len(markdown))

	// 2. staging copy before the slow inference call
	enter(StageSavingBlob)
	o.saveBlob(ctx, StagingKey, up.Filename, markdown)

	// 3. text -> structured data
	enter(StageLLMExtraction)
	data, err := o.structured.ExtractTermsheet(ctx, markdown)
	if err == nil && data == nil {
		err = errors.New("extractor returned no data")
	}
	if err != nil {
		log.Error("LLM extraction failed", "error", err)
		return nil, extractionFailure(err)
	}
	isin := data.Product.ISIN
	log = log.With("isin", isin)
	log.Info("termsheet extracted", "underlyings", len(data.Underlyings), "events", len(data.Events))

	// 4. supersede the staging copy; a malformed ISIN never becomes an object prefix
	blobKey := isin
	if !validation.IsISINFormat(isin) {
		log.Warn("extracted ISIN is malformed, keeping staging blob key")
		blobKey = StagingKey
	}
	blobPath := o.saveBlob(ctx, blobKey, up.Filename, markdown)

	// 5. business rules
	enter(StageValidation)
	result, err := o.validator.Validate(ctx, data, o.repo)
	if err != nil {
		return nil, err
	}

	resp := &model.ExtractionResponse{
		Filename:    up.Filename,
		SizeBytes:   len(up.Data),
		Status:      model.StatusExtracted,
		ProductISIN: isin,
		Approved:    false,
		Data:        data,
		Validation:  result,
	}

	if !result.IsValid() {
		resp.Status = model.StatusValidationFailed
		log.Info("validation failed", "errors", len(result.Errors()), "issues", len(result.Issues))
		return nil, validationFailure(resp)
	}

	// 6. durable write, unapproved
	enter(StagePersisting)
	if _, err := o.repo.Persist(ctx, data, up.Filename, blobPath, model.ExtractionStatusSuccess); err != nil {
		log.Error("persist failed", "error", err)
		return nil, persistenceFailure(err)
	}

	log.Info("termsheet persisted", "blob_path", blobPath, "warnings", len(result.Issues))
	return resp, nil
}

// saveBlob is best effort: a failure is logged and an empty path returned.
func (o *Orchestrator) saveBlob(ctx context.Context, key, filename, markdown string) string {
	path, err := o.blobs.SaveMarkdown(ctx, key, filename, markdown)
	if err != nil {
		logger.Warn(ctx, "failed to save markdown blob", "key", key, "filename", filename, "error", err)
		return ""
	}
	return path
}
