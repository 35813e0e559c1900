package jobs

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvilar/thermolog/internal/domain"
)

// Store owns the import-job registry. The pipeline goroutine that owns a job
// id is the only writer for that job; status-polling readers may observe a
// job whose result list is still growing.
type Store interface {
	Create(job domain.ImportJob)
	Get(id string) (domain.ImportJob, bool)
	SetStatus(id string, status domain.JobStatus)
	AppendResult(id string, result domain.ProcessingResult, totalProgress int)
	Complete(id string, status domain.JobStatus)
	// Fail marks the job failed with a job-level error message, for
	// conditions that prevented any file from being processed.
	Fail(id string, msg string)
	// Sweep evicts terminal jobs older than maxAge and returns how many were
	// removed. It is invoked by an external scheduler, never by the store.
	Sweep(maxAge time.Duration) int
}

// MemoryStore tracks jobs in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*domain.ImportJob
	logger zerolog.Logger
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*domain.ImportJob),
		logger: logger.With().Str("component", "job-store").Logger(),
	}
}

func (s *MemoryStore) Create(job domain.ImportJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := job
	s.jobs[job.ID] = &stored
	s.logger.Debug().Str("job_id", job.ID).Int("files", len(job.Files)).Msg("Job registered")
}

// Get returns a snapshot copy so callers never observe a result slice being
// appended to concurrently.
func (s *MemoryStore) Get(id string) (domain.ImportJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ImportJob{}, false
	}
	snapshot := *job
	snapshot.Files = append([]domain.SubmittedFile(nil), job.Files...)
	snapshot.Results = append([]domain.ProcessingResult(nil), job.Results...)
	return snapshot, true
}

func (s *MemoryStore) SetStatus(id string, status domain.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	job.Status = status
}

func (s *MemoryStore) AppendResult(id string, result domain.ProcessingResult, totalProgress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	job.Results = append(job.Results, result)
	job.TotalProgress = totalProgress
}

func (s *MemoryStore) Complete(id string, status domain.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	s.logger.Debug().Str("job_id", id).Str("status", string(status)).Msg("Job finished")
}

func (s *MemoryStore) Fail(id string, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.Status = domain.JobFailed
	job.Error = msg
	job.CompletedAt = &now
	s.logger.Warn().Str("job_id", id).Str("error", msg).Msg("Job failed")
}

func (s *MemoryStore) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Swept stale jobs")
	}
	return removed
}
