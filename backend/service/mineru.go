package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bluebridge/termsheet-ingest/backend/config"
	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
)

// MinerU task states
const (
	MineruStatePending    = "pending"
	MineruStateRunning    = "running"
	MineruStateConverting = "converting"
	MineruStateDone       = "done"
	MineruStateFailed     = "failed"
)

// ErrMineruTimeout is returned when a task is still running after the last poll
var ErrMineruTimeout = errors.New("mineru task did not finish in time")

type MineruService struct {
	config     *config.MineruConfig
	httpClient *http.Client
}

// MineruTaskRequest represents the request to create an extraction task
type MineruTaskRequest struct {
	URL          string `json:"url"`
	ModelVersion string `json:"model_version"`
	DataID       string `json:"data_id,omitempty"`
}

// MineruTaskResponse represents the response from task creation
type MineruTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// MineruTaskStatusResponse represents the task status query response
type MineruTaskStatusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	TraceID string `json:"trace_id"`
	Data    struct {
		TaskID          string `json:"task_id"`
		DataID          string `json:"data_id"`
		State           string `json:"state"`
		FullZipURL      string `json:"full_zip_url,omitempty"`
		ErrorMsg        string `json:"err_msg,omitempty"`
		ExtractProgress struct {
			ExtractedPages int `json:"extracted_pages"`
			TotalPages     int `json:"total_pages"`
		} `json:"extract_progress,omitempty"`
	} `json:"data"`
}

func NewMineruService(cfg *config.MineruConfig) *MineruService {
	return &MineruService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateTask creates a new extraction task for the document at pdfURL
func (s *MineruService) CreateTask(ctx context.Context, pdfURL, dataID string) (*MineruTaskResponse, error) {
	jsonData, err := json.Marshal(MineruTaskRequest{
		URL:          pdfURL,
		ModelVersion: s.config.ModelVersion,
		DataID:       dataID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL+"/extract/task", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result MineruTaskResponse
	if err := s.do(req, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("MinerU API error: %s", result.Message)
	}

	return &result, nil
}

// GetTaskStatus queries the status of a task
func (s *MineruService) GetTaskStatus(ctx context.Context, taskID string) (*MineruTaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/extract/task/%s", s.config.APIURL, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result MineruTaskStatusResponse
	if err := s.do(req, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("MinerU API error: %s", result.Message)
	}

	return &result, nil
}

func (s *MineruService) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	slog.Debug("MinerU response", "url", req.URL.Path, "status", resp.StatusCode, "bytes", len(body))

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// FetchMarkdown downloads the result ZIP and returns its markdown,
// preferring full.md over any other .md entry.
func (s *MineruService) FetchMarkdown(ctx context.Context, zipURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download ZIP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download ZIP: status %d", resp.StatusCode)
	}

	zipData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ZIP: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return "", fmt.Errorf("failed to open ZIP: %w", err)
	}

	var fallback *zip.File
	for _, file := range zipReader.File {
		if path.Base(file.Name) == "full.md" {
			return readZipFile(file)
		}
		if fallback == nil && strings.HasSuffix(file.Name, ".md") {
			fallback = file
		}
	}
	if fallback != nil {
		return readZipFile(fallback)
	}

	return "", errors.New("no markdown file found in ZIP")
}

func readZipFile(file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	return string(content), nil
}

// sourceStore is where MinerU fetches the uploaded document from
type sourceStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, objectName string) (string, error)
	DeleteFile(ctx context.Context, objectName string) error
}

// MineruExtractor converts a PDF to markdown with the MinerU API.
// The document is staged in the object store so MinerU can download it.
type MineruExtractor struct {
	api          *MineruService
	store        sourceStore
	pollInterval time.Duration
	pollAttempts int
}

func NewMineruExtractor(api *MineruService, store sourceStore, cfg config.ExtractorConfig) *MineruExtractor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &MineruExtractor{
		api:          api,
		store:        store,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
	}
}

// ExtractText uploads data, runs a MinerU task and returns the resulting markdown
func (e *MineruExtractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}
	log := logger.WithContext(ctx).With("filename", filename)

	dataID := uuid.New().String()
	objectName := "sources/" + dataID + ".pdf"
	if err := e.store.UploadFile(ctx, objectName, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return "", err
	}
	defer func() {
		if err := e.store.DeleteFile(context.WithoutCancel(ctx), objectName); err != nil {
			log.Warn("failed to delete staged source", "object", objectName, "error", err)
		}
	}()

	pdfURL, err := e.store.GetPresignedURL(ctx, objectName)
	if err != nil {
		return "", err
	}

	task, err := e.api.CreateTask(ctx, pdfURL, dataID)
	if err != nil {
		return "", err
	}
	taskID := task.Data.TaskID
	log.Info("MinerU task created", "task_id", taskID)

	zipURL, err := e.waitForResult(ctx, taskID)
	if err != nil {
		return "", err
	}

	markdown, err := e.api.FetchMarkdown(ctx, zipURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(markdown) == "" {
		return "", ErrNoText
	}

	log.Info("MinerU task finished", "task_id", taskID, "chars", len(markdown))
	return markdown, nil
}

func (e *MineruExtractor) waitForResult(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < e.pollAttempts; attempt++ {
		status, err := e.api.GetTaskStatus(ctx, taskID)
		if err != nil {
			return "", err
		}

		switch status.Data.State {
		case MineruStateDone:
			if status.Data.FullZipURL == "" {
				return "", fmt.Errorf("mineru task %s finished without a result", taskID)
			}
			return status.Data.FullZipURL, nil
		case MineruStateFailed:
			return "", fmt.Errorf("mineru task %s failed: %s", taskID, status.Data.ErrorMsg)
		}

		logger.Debug(ctx, "MinerU task in progress",
			"task_id", taskID,
			"state", status.Data.State,
			"pages", status.Data.ExtractProgress.ExtractedPages,
			"total_pages", status.Data.ExtractProgress.TotalPages,
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}

	return "", fmt.Errorf("%w: task %s", ErrMineruTimeout, taskID)
}
