package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvilar/thermolog/internal/domain"
	"github.com/mvilar/thermolog/internal/jobs"
	"github.com/mvilar/thermolog/internal/repository"
)

// Looser bounds for the fallback path. Legacy exports carry sentinel values
// the vendors never documented, so only clearly impossible readings are
// dropped here.
const (
	fallbackTempMin = -80.0
	fallbackTempMax = 120.0
)

// DefaultFallbackTimeout bounds the whole subprocess run.
const DefaultFallbackTimeout = 20 * time.Second

// fallbackLine is one JSON object on the helper's standard output. Lines
// carrying only an error count as failed rows.
type fallbackLine struct {
	Timestamp   string   `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Error       string   `json:"error"`
}

// FallbackBridge parses legacy workbooks through an external single-purpose
// helper process, applying the same batching and progress discipline as the
// in-process path.
type FallbackBridge struct {
	readings    repository.ReadingRepository
	progress    jobs.ProgressCache
	progressTTL time.Duration
	runtime     string
	script      string
	timeout     time.Duration
	logger      zerolog.Logger
}

func NewFallbackBridge(readings repository.ReadingRepository, progress jobs.ProgressCache, progressTTL time.Duration, runtime, script string, timeout time.Duration, logger zerolog.Logger) *FallbackBridge {
	if timeout <= 0 {
		timeout = DefaultFallbackTimeout
	}
	return &FallbackBridge{
		readings:    readings,
		progress:    progress,
		progressTTL: progressTTL,
		runtime:     runtime,
		script:      script,
		timeout:     timeout,
		logger:      logger.With().Str("component", "fallback-bridge").Logger(),
	}
}

// ProcessLegacy runs the helper on filePath and persists its output. On
// timeout the subprocess is killed and the file fails; chunks flushed before
// the timeout stay persisted.
func (b *FallbackBridge) ProcessLegacy(ctx context.Context, filePath, originalName string, sensor domain.Sensor, opts EngineOptions) (domain.ProcessingResult, error) {
	started := time.Now()
	result := domain.ProcessingResult{
		FileName:           originalName,
		SensorID:           &sensor.ID,
		SensorSerialNumber: sensor.SerialNumber,
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := []string{b.script, filePath}
	if sheet, ok := vendorSheet(GuessVendor(originalName)); ok {
		args = append(args, sheet)
	}

	cmd := exec.CommandContext(ctx, b.runtime, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result, fmt.Errorf("failed to open helper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("failed to spawn legacy parser: %w", err)
	}

	b.logger.Debug().
		Str("file", originalName).
		Strs("args", args).
		Msg("Spawned legacy parser")

	// Reader goroutine drains stdout so the helper never blocks on a full
	// pipe; the consumer below validates and batches.
	lines := make(chan fallbackLine, 256)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			var line fallbackLine
			if err := json.Unmarshal(raw, &line); err != nil {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	chunkSize := opts.chunkSize()
	batch := make([]domain.Reading, 0, chunkSize)
	totalLines := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if _, err := b.readings.InsertBatch(context.WithoutCancel(ctx), batch); err != nil {
			result.RecordsFailed += len(batch)
			b.recordError(&result, fmt.Sprintf("failed to insert batch ending at line %d: %v", totalLines, err))
		} else {
			result.RecordsProcessed += len(batch)
		}
		batch = batch[:0]
		b.publishProgress(opts.JobID, originalName, totalLines)
	}

	for line := range lines {
		totalLines++
		if line.Error != "" {
			result.RecordsFailed++
			b.recordError(&result, fmt.Sprintf("Row %d: %s", totalLines, line.Error))
			continue
		}

		reading, why := b.normalizeLine(line, sensor, originalName, totalLines)
		if why != "" {
			result.RecordsFailed++
			b.recordError(&result, fmt.Sprintf("Row %d: %s", totalLines, why))
			continue
		}

		batch = append(batch, reading)
		if len(batch) >= chunkSize {
			flush()
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		result.Success = false
		b.recordError(&result, fmt.Sprintf("legacy parser timed out after %s", b.timeout))
		result.ProcessingTime = time.Since(started)
		return result, fmt.Errorf("legacy parser timed out after %s", b.timeout)
	}
	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		result.Success = false
		b.recordError(&result, fmt.Sprintf("legacy parser failed: %s", detail))
		result.ProcessingTime = time.Since(started)
		return result, fmt.Errorf("legacy parser failed: %s", detail)
	}

	flush()

	result.Success = true
	result.ProcessingTime = time.Since(started)

	b.logger.Info().
		Str("file", originalName).
		Int("processed", result.RecordsProcessed).
		Int("failed", result.RecordsFailed).
		Dur("elapsed", result.ProcessingTime).
		Msg("Legacy fallback finished")

	return result, nil
}

func (b *FallbackBridge) normalizeLine(line fallbackLine, sensor domain.Sensor, fileName string, lineNumber int) (domain.Reading, string) {
	if line.Temperature == nil {
		return domain.Reading{}, "missing temperature"
	}
	if *line.Temperature < fallbackTempMin || *line.Temperature > fallbackTempMax {
		return domain.Reading{}, fmt.Sprintf("temperature %.2f°C outside range [%.0f, %.0f]", *line.Temperature, fallbackTempMin, fallbackTempMax)
	}
	recordedAt, err := ParseTimestampCell(line.Timestamp)
	if err != nil {
		return domain.Reading{}, fmt.Sprintf("unparseable timestamp %q", line.Timestamp)
	}

	reading := domain.Reading{
		SensorID:    sensor.ID,
		RecordedAt:  recordedAt,
		Temperature: *line.Temperature,
		FileName:    fileName,
		RowNumber:   lineNumber,
	}
	if line.Humidity != nil {
		humidity := *line.Humidity
		if humidity < humHardMin || humidity > humHardMax {
			return domain.Reading{}, fmt.Sprintf("humidity %.2f%% outside range [%.0f, %.0f]", humidity, humHardMin, humHardMax)
		}
		reading.Humidity = &humidity
	}
	return reading, ""
}

func (b *FallbackBridge) recordError(result *domain.ProcessingResult, msg string) {
	if len(result.Errors) >= maxRecordedErrors {
		return
	}
	result.Errors = append(result.Errors, msg)
}

func (b *FallbackBridge) publishProgress(jobID, fileName string, processed int) {
	if b.progress == nil || jobID == "" {
		return
	}
	// Total line count is unknown until the helper exits; Total 0 means
	// indeterminate to pollers.
	b.progress.Set(jobs.ProgressKey(jobID), jobs.Progress{
		Processed:   processed,
		CurrentFile: fileName,
	}, b.progressTTL)
}

// ErrNoLegacyParser is returned when the bridge is not configured.
var ErrNoLegacyParser = errors.New("legacy parser is not configured")
