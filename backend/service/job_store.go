package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluebridge/termsheet-ingest/backend/model"
)

// ErrJobNotFound is returned when a job id is unknown or was already consumed
var ErrJobNotFound = errors.New("job not found or already consumed")

// JobStore is an in-memory handoff between the async upload and the extraction stream.
// Each job can be popped exactly once. Entries that are never popped stay for the
// lifetime of the process.
type JobStore struct {
	jobs map[string]*model.Job
	mu   sync.Mutex
}

// NewJobStore creates an empty job store
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*model.Job),
	}
}

// Create stores the payload under a fresh random id and returns the id
func (s *JobStore) Create(filename string, payload []byte) string {
	job := &model.Job{
		ID:        uuid.New().String(),
		Filename:  filename,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	pending := len(s.jobs)
	s.mu.Unlock()

	slog.Debug("job created", "job_id", job.ID, "filename", filename, "size_bytes", len(payload), "pending_jobs", pending)
	return job.ID
}

// Pop removes and returns the job. Concurrent pops on the same id yield it to at most one caller.
func (s *JobStore) Pop(id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	delete(s.jobs, id)
	return job, nil
}

// Count returns the number of jobs waiting to be popped
func (s *JobStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
