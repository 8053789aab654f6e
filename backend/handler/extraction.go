package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bluebridge/termsheet-ingest/backend/model"
	"github.com/bluebridge/termsheet-ingest/backend/pipeline"
	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
	"github.com/bluebridge/termsheet-ingest/backend/service"
)

const defaultUploadName = "termsheet.pdf"

// Runner is the pipeline surface the extraction endpoints drive
type Runner interface {
	RunSync(ctx context.Context, up pipeline.Upload) (*model.ExtractionResponse, error)
	Stream(ctx context.Context, up pipeline.Upload) <-chan pipeline.ProgressEvent
}

// ExtractionHandler serves the sync, async and streamed termsheet uploads
type ExtractionHandler struct {
	runner         Runner
	jobs           *service.JobStore
	maxUploadBytes int64
}

// NewExtractionHandler creates the handler; maxUploadBytes <= 0 disables the size limit
func NewExtractionHandler(runner Runner, jobs *service.JobStore, maxUploadBytes int64) *ExtractionHandler {
	return &ExtractionHandler{
		runner:         runner,
		jobs:           jobs,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload runs the whole pipeline inside the request
func (h *ExtractionHandler) Upload(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	resp, err := h.runner.RunSync(c.Request.Context(), up)
	if err != nil {
		h.writeFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UploadAsync stores the document and returns a job id for the extraction stream
func (h *ExtractionHandler) UploadAsync(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	jobID := h.jobs.Create(up.Filename, up.Data)
	logger.Info(c.Request.Context(), "extraction job queued", "job_id", jobID, "filename", up.Filename)

	c.JSON(http.StatusOK, model.JobCreatedResponse{
		JobID:     jobID,
		Filename:  up.Filename,
		SizeBytes: len(up.Data),
	})
}

// Stream pops the job and reports pipeline progress as server-sent events
func (h *ExtractionHandler) Stream(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.Pop(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found or already consumed"})
		return
	}

	// the run continues after a client disconnect, so it must not share the request's cancellation
	ctx := logger.WithJobID(context.WithoutCancel(c.Request.Context()), job.ID)
	events := h.runner.Stream(ctx, pipeline.Upload{Filename: job.Filename, Data: job.Payload})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	clientGone := c.Request.Context().Done()
	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			if err := pipeline.WriteFrame(c.Writer, event); err != nil {
				logger.Warn(ctx, "failed to write progress event", "error", err)
				return
			}
			c.Writer.Flush()
		case <-clientGone:
			logger.Info(ctx, "extraction stream consumer disconnected")
			return
		}
	}
}

// readUpload validates the multipart "file" field. It writes the error response itself and reports false on rejection.
func (h *ExtractionHandler) readUpload(c *gin.Context) (pipeline.Upload, bool) {
	if h.maxUploadBytes > 0 {
		// multipart framing needs a little room on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Uploaded file is too large"})
			return pipeline.Upload{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return pipeline.Upload{}, false
	}
	defer file.Close()

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Uploaded file is too large"})
		return pipeline.Upload{}, false
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return pipeline.Upload{}, false
	}
	data := buf.Bytes()

	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Uploaded file is empty"})
		return pipeline.Upload{}, false
	}

	contentType := header.Header.Get("Content-Type")
	if !service.IsPDF(data) && !strings.Contains(contentType, "pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are accepted"})
		return pipeline.Upload{}, false
	}

	filename := header.Filename
	if filename == "" {
		filename = defaultUploadName
	}

	return pipeline.Upload{Filename: filename, Data: data}, true
}

func (h *ExtractionHandler) writeFailure(c *gin.Context, err error) {
	f, ok := pipeline.AsFailure(err)
	if !ok {
		logger.Error(c.Request.Context(), "extraction failed unexpectedly", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if f.Kind == pipeline.KindValidation {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": f.Response})
		return
	}

	logger.Warn(c.Request.Context(), "extraction failed", "kind", f.Kind, "error", f.Err)
	c.JSON(f.StatusCode(), gin.H{"error": f.Detail()})
}
