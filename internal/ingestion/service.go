package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvilar/thermolog/internal/domain"
	"github.com/mvilar/thermolog/internal/jobs"
	"github.com/mvilar/thermolog/internal/repository"
)

// Upload is one submitted file, payload included.
type Upload struct {
	Name string
	Size int64
	Data []byte
}

// Request describes one import submission.
type Request struct {
	SuitcaseID uuid.UUID
	UserID     uuid.UUID
	Uploads    []Upload
	ChunkSize  int
}

// DefaultMaxFileBytes caps individual uploads.
const DefaultMaxFileBytes = 50 << 20

// Service owns the ingestion pipeline. Submission returns a job id
// immediately; files are processed sequentially by a detached worker per
// job, while separate jobs run concurrently.
type Service struct {
	suitcases    repository.SuitcaseRepository
	resolver     *Resolver
	engine       *Engine
	bridge       *FallbackBridge
	store        jobs.Store
	progress     jobs.ProgressCache
	tempDir      string
	maxFileBytes int64
	logger       zerolog.Logger
}

// NewService wires the pipeline. bridge may be nil when no legacy parser is
// configured; legacy files then fail with a clear error.
func NewService(
	suitcases repository.SuitcaseRepository,
	resolver *Resolver,
	engine *Engine,
	bridge *FallbackBridge,
	store jobs.Store,
	progress jobs.ProgressCache,
	tempDir string,
	maxFileBytes int64,
	logger zerolog.Logger,
) *Service {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	return &Service{
		suitcases:    suitcases,
		resolver:     resolver,
		engine:       engine,
		bridge:       bridge,
		store:        store,
		progress:     progress,
		tempDir:      tempDir,
		maxFileBytes: maxFileBytes,
		logger:       logger.With().Str("component", "ingestion-service").Logger(),
	}
}

// Submit registers a job for the uploaded files and returns its id. Only
// argument validation happens synchronously; a missing suitcase is an async
// job-level failure observable through the job status.
func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	if req.SuitcaseID == uuid.Nil {
		return "", errors.New("suitcase id is required")
	}
	if len(req.Uploads) == 0 {
		return "", errors.New("at least one file is required")
	}
	for _, upload := range req.Uploads {
		if len(upload.Data) == 0 {
			return "", fmt.Errorf("file %s is empty", upload.Name)
		}
		if int64(len(upload.Data)) > s.maxFileBytes {
			return "", fmt.Errorf("file %s exceeds the %d MB size limit", upload.Name, s.maxFileBytes>>20)
		}
	}

	files := make([]domain.SubmittedFile, len(req.Uploads))
	for i, upload := range req.Uploads {
		files[i] = domain.SubmittedFile{Name: upload.Name, Size: upload.Size}
	}

	job := domain.NewImportJob(req.SuitcaseID, req.UserID, files)
	s.store.Create(job)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("suitcase_id", req.SuitcaseID.String()).
		Int("files", len(files)).
		Msg("Import job submitted")

	go s.processJob(job.ID, req)

	return job.ID, nil
}

// JobStatus returns a snapshot of the job.
func (s *Service) JobStatus(jobID string) (domain.ImportJob, bool) {
	return s.store.Get(jobID)
}

// JobProgress returns the live progress of the file currently being
// ingested. Best effort; absent entries are not an error.
func (s *Service) JobProgress(jobID string) (jobs.Progress, bool) {
	return s.progress.Get(jobs.ProgressKey(jobID))
}

// CleanupOldJobs evicts terminal jobs older than maxAge from the registry.
// Invoked by an external scheduler.
func (s *Service) CleanupOldJobs(maxAge time.Duration) int {
	return s.store.Sweep(maxAge)
}

func (s *Service) processJob(jobID string, req Request) {
	ctx := context.Background()
	s.store.SetStatus(jobID, domain.JobProcessing)

	if _, err := s.suitcases.GetByID(ctx, req.SuitcaseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.store.Fail(jobID, fmt.Sprintf("suitcase %s does not exist", req.SuitcaseID))
		} else {
			s.store.Fail(jobID, fmt.Sprintf("failed to load suitcase: %v", err))
		}
		s.clearProgress(jobID)
		return
	}

	for idx, upload := range req.Uploads {
		result := s.processFile(ctx, jobID, req, upload)
		progress := (idx + 1) * 100 / len(req.Uploads)
		s.store.AppendResult(jobID, result, progress)
	}

	s.store.Complete(jobID, domain.JobCompleted)
	s.clearProgress(jobID)
}

// processFile runs one file through the pipeline and always produces a
// structured result, never a bare error.
func (s *Service) processFile(ctx context.Context, jobID string, req Request, upload Upload) domain.ProcessingResult {
	opts := EngineOptions{ChunkSize: req.ChunkSize, JobID: jobID, FileName: upload.Name}

	kind, err := DetectKind(upload.Name)
	if err != nil {
		return failedResult(upload.Name, err.Error())
	}

	parsed, err := Parse(upload.Data, upload.Name, kind)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) && parseErr.Legacy {
			return s.processLegacy(ctx, req, upload, opts)
		}
		return failedResult(upload.Name, err.Error())
	}
	if len(parsed.Rows) == 0 {
		return failedResult(upload.Name, "no rows found in file")
	}

	resolution, err := s.resolver.Resolve(ctx, req.SuitcaseID, upload.Name, sampleRows(parsed.Rows), parsed.ProbeSerial)
	if err != nil {
		return failedResult(upload.Name, fmt.Sprintf("sensor resolution failed: %v", err))
	}

	mapping, ok := MappingFromDataConfig(resolution.Sensor.Type.DataConfig)
	if !ok {
		mapping, err = FindMapping(parsed.Rows, upload.Name)
		if err != nil {
			result := failedResult(upload.Name, err.Error())
			result.SensorID = &resolution.Sensor.ID
			result.SensorSerialNumber = resolution.Sensor.SerialNumber
			return result
		}
	}

	return s.engine.Run(ctx, parsed.Rows, mapping, resolution.Sensor, opts)
}

// processLegacy resolves the sensor without sample rows (the workbook is
// unreadable in process), stages the payload on disk, and hands it to the
// fallback bridge.
func (s *Service) processLegacy(ctx context.Context, req Request, upload Upload, opts EngineOptions) domain.ProcessingResult {
	if s.bridge == nil {
		return failedResult(upload.Name, ErrNoLegacyParser.Error())
	}

	resolution, err := s.resolver.Resolve(ctx, req.SuitcaseID, upload.Name, nil, "")
	if err != nil {
		return failedResult(upload.Name, fmt.Sprintf("sensor resolution failed: %v", err))
	}

	tempFile, err := os.CreateTemp(s.tempDir, "legacy-*"+filepath.Ext(upload.Name))
	if err != nil {
		return failedResult(upload.Name, fmt.Sprintf("failed to stage file: %v", err))
	}
	defer func() { _ = os.Remove(tempFile.Name()) }()

	if _, err := tempFile.Write(upload.Data); err != nil {
		_ = tempFile.Close()
		return failedResult(upload.Name, fmt.Sprintf("failed to stage file: %v", err))
	}
	if err := tempFile.Close(); err != nil {
		return failedResult(upload.Name, fmt.Sprintf("failed to stage file: %v", err))
	}

	result, err := s.bridge.ProcessLegacy(ctx, tempFile.Name(), upload.Name, resolution.Sensor, opts)
	if err != nil {
		s.logger.Warn().Str("file", upload.Name).Err(err).Msg("Legacy fallback failed")
	}
	return result
}

func (s *Service) clearProgress(jobID string) {
	if s.progress != nil {
		s.progress.Delete(jobs.ProgressKey(jobID))
	}
}

func failedResult(fileName, msg string) domain.ProcessingResult {
	return domain.ProcessingResult{
		FileName: fileName,
		Success:  false,
		Errors:   []string{msg},
	}
}

// sampleRows returns the leading data rows handed to the content-scan
// strategy.
func sampleRows(rows [][]string) [][]string {
	limit := len(rows)
	if limit > contentScanRows+1 {
		limit = contentScanRows + 1
	}
	return rows[:limit]
}
