package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvilar/thermolog/internal/domain"
	"github.com/mvilar/thermolog/internal/jobs"
	"github.com/mvilar/thermolog/internal/repository"
)

const (
	// DefaultChunkSize bounds peak memory on large files; MaxChunkSize caps
	// user overrides.
	DefaultChunkSize = 1000
	MaxChunkSize     = 10000

	// interChunkPause yields between chunks so concurrent imports share the
	// runtime.
	interChunkPause = 50 * time.Millisecond

	// maxRecordedErrors truncates the per-file error list on pathological
	// inputs.
	maxRecordedErrors = 500
)

// EngineOptions tunes one run of the persistence engine.
type EngineOptions struct {
	ChunkSize int
	JobID     string
	FileName  string
}

func (o EngineOptions) chunkSize() int {
	size := o.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	if size > MaxChunkSize {
		size = MaxChunkSize
	}
	return size
}

// Engine drives normalization, validation, and batched inserts over a row
// source, publishing progress after every chunk.
type Engine struct {
	readings    repository.ReadingRepository
	progress    jobs.ProgressCache
	progressTTL time.Duration
	logger      zerolog.Logger
}

func NewEngine(readings repository.ReadingRepository, progress jobs.ProgressCache, progressTTL time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		readings:    readings,
		progress:    progress,
		progressTTL: progressTTL,
		logger:      logger.With().Str("component", "persistence-engine").Logger(),
	}
}

// Run processes the data rows in fixed-size chunks. A failure in one row
// never aborts its chunk; each chunk's insert completes before the next
// chunk starts so progress stays monotonic.
func (e *Engine) Run(ctx context.Context, rows [][]string, mapping ColumnMapping, sensor domain.Sensor, opts EngineOptions) domain.ProcessingResult {
	started := time.Now()
	result := domain.ProcessingResult{
		FileName:           opts.FileName,
		SensorID:           &sensor.ID,
		SensorSerialNumber: sensor.SerialNumber,
	}

	dataRows := rows
	if mapping.StartRow > 0 {
		if mapping.StartRow >= len(rows) {
			// The configured data block starts past the end of the file.
			dataRows = nil
		} else {
			dataRows = rows[mapping.StartRow:]
		}
	}
	total := len(dataRows)
	chunkSize := opts.chunkSize()

	processed := 0
	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}

		batch := make([]domain.Reading, 0, end-start)
		for offset, row := range dataRows[start:end] {
			rowNumber := start + offset + 1
			reading, rowErr := NormalizeRow(row, mapping, rowNumber, opts.FileName)
			if rowErr != nil {
				result.RecordsFailed++
				e.recordError(&result, rowErr.Error())
				continue
			}

			validation := SemanticValidate(reading)
			for _, warning := range validation.Warnings {
				e.recordWarning(&result, fmt.Sprintf("Row %d: %s", rowNumber, warning))
			}
			if !validation.Valid {
				result.RecordsFailed++
				for _, msg := range validation.Errors {
					e.recordError(&result, fmt.Sprintf("Row %d: %s", rowNumber, msg))
				}
				continue
			}

			reading.SensorID = sensor.ID
			batch = append(batch, reading)
		}

		if len(batch) > 0 {
			if _, err := e.readings.InsertBatch(ctx, batch); err != nil {
				result.RecordsFailed += len(batch)
				e.recordError(&result, fmt.Sprintf("failed to insert rows %d-%d: %v", start+1, end, err))
			} else {
				result.RecordsProcessed += len(batch)
				for _, flag := range FlagOutliers(batch) {
					e.recordWarning(&result, flag.String())
				}
			}
		}

		processed = end
		e.publishProgress(opts.JobID, opts.FileName, processed, total)

		if end < total {
			select {
			case <-ctx.Done():
				e.recordError(&result, "processing cancelled")
				result.ProcessingTime = time.Since(started)
				return result
			case <-time.After(interChunkPause):
			}
		}
	}

	result.Success = result.RecordsFailed == 0 || result.RecordsProcessed > 0
	result.ProcessingTime = time.Since(started)

	e.logger.Info().
		Str("job_id", opts.JobID).
		Str("file", opts.FileName).
		Int("processed", result.RecordsProcessed).
		Int("failed", result.RecordsFailed).
		Dur("elapsed", result.ProcessingTime).
		Msg("File ingestion finished")

	return result
}

func (e *Engine) recordError(result *domain.ProcessingResult, msg string) {
	if len(result.Errors) == maxRecordedErrors {
		result.Errors = append(result.Errors, fmt.Sprintf("further errors truncated after %d entries", maxRecordedErrors))
		return
	}
	if len(result.Errors) > maxRecordedErrors {
		return
	}
	result.Errors = append(result.Errors, msg)
}

func (e *Engine) recordWarning(result *domain.ProcessingResult, msg string) {
	if len(result.Warnings) >= maxRecordedErrors {
		return
	}
	result.Warnings = append(result.Warnings, msg)
}

func (e *Engine) publishProgress(jobID, fileName string, processed, total int) {
	if e.progress == nil || jobID == "" {
		return
	}
	percentage := 0
	if total > 0 {
		percentage = processed * 100 / total
	}
	e.progress.Set(jobs.ProgressKey(jobID), jobs.Progress{
		Processed:   processed,
		Total:       total,
		Percentage:  percentage,
		CurrentFile: fileName,
	}, e.progressTTL)
}
