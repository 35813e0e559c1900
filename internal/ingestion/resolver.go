package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvilar/thermolog/internal/domain"
	"github.com/mvilar/thermolog/internal/repository"
)

// Resolution strategies, in precedence order.
const (
	MatchFilename      = "filename"
	MatchSingleSensor  = "single-sensor"
	MatchContentScan   = "content-scan"
	MatchSummaryProbe  = "summary-probe"
	MatchAutoProvision = "auto-provision"
)

// Resolution binds a file to the sensor that produced it. AutoProvisioned
// distinguishes a created sensor from a real match so operators can audit
// auto-created devices.
type Resolution struct {
	Sensor          domain.Sensor
	Strategy        string
	AutoProvisioned bool
}

// serialPattern recognizes vendor-style device serials in file names, two
// letters followed by six or more digits.
var serialPattern = regexp.MustCompile(`[A-Za-z]{2}\d{6,}`)

var stemSanitizer = regexp.MustCompile(`[^A-Za-z0-9]+`)

const contentScanRows = 5

// Resolver maps incoming files to registered sensors, creating one when
// nothing matches.
type Resolver struct {
	sensors repository.SensorRepository
	logger  zerolog.Logger
}

func NewResolver(sensors repository.SensorRepository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		sensors: sensors,
		logger:  logger.With().Str("component", "sensor-resolver").Logger(),
	}
}

// Resolve evaluates the matching strategies in order and returns on the
// first hit. sampleRows are the leading data rows; probeSerial is the
// summary-sheet serial when the workbook carried one.
func (r *Resolver) Resolve(ctx context.Context, suitcaseID uuid.UUID, fileName string, sampleRows [][]string, probeSerial string) (Resolution, error) {
	registered, err := r.sensors.ListBySuitcase(ctx, suitcaseID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to list suitcase sensors: %w", err)
	}

	loweredName := strings.ToLower(fileName)
	for _, sensor := range registered {
		serial := strings.ToLower(sensor.SerialNumber)
		if serial != "" && strings.Contains(loweredName, serial) {
			return Resolution{Sensor: sensor, Strategy: MatchFilename}, nil
		}
	}

	if len(registered) == 1 {
		return Resolution{Sensor: registered[0], Strategy: MatchSingleSensor}, nil
	}

	if sensor, ok := scanContent(registered, sampleRows); ok {
		return Resolution{Sensor: sensor, Strategy: MatchContentScan}, nil
	}

	if probeSerial != "" {
		loweredProbe := strings.ToLower(probeSerial)
		for _, sensor := range registered {
			serial := strings.ToLower(sensor.SerialNumber)
			if serial != "" && strings.Contains(loweredProbe, serial) {
				return Resolution{Sensor: sensor, Strategy: MatchSummaryProbe}, nil
			}
		}
	}

	return r.autoProvision(ctx, suitcaseID, fileName, probeSerial)
}

// scanContent looks for a registered serial in any cell of the first few
// data rows.
func scanContent(registered []domain.Sensor, sampleRows [][]string) (domain.Sensor, bool) {
	limit := len(sampleRows)
	if limit > contentScanRows {
		limit = contentScanRows
	}
	for _, sensor := range registered {
		serial := strings.ToLower(sensor.SerialNumber)
		if serial == "" {
			continue
		}
		for _, row := range sampleRows[:limit] {
			for _, cell := range row {
				if strings.Contains(strings.ToLower(cell), serial) {
					return sensor, true
				}
			}
		}
	}
	return domain.Sensor{}, false
}

// autoProvision creates a sensor for a file nothing matched. The serial is
// derived deterministically from the file name so resubmitting the same file
// reuses the sensor instead of creating another.
func (r *Resolver) autoProvision(ctx context.Context, suitcaseID uuid.UUID, fileName, probeSerial string) (Resolution, error) {
	serial := DeriveSerial(fileName, probeSerial)
	if serial == "" {
		return Resolution{}, fmt.Errorf("cannot derive a serial for %s", fileName)
	}

	if existing, err := r.sensors.GetBySerial(ctx, suitcaseID, serial); err == nil {
		return Resolution{Sensor: existing, Strategy: MatchAutoProvision, AutoProvisioned: true}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Resolution{}, fmt.Errorf("failed to look up serial %s: %w", serial, err)
	}

	genericType, err := r.sensors.EnsureGenericType(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to ensure generic sensor type: %w", err)
	}

	sensor := domain.Sensor{
		ID:           uuid.New(),
		SerialNumber: serial,
		Model:        genericType.Name,
		TypeID:       genericType.ID,
		Type:         genericType,
	}
	created, err := r.sensors.CreateWithBinding(ctx, suitcaseID, sensor)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to auto-provision sensor %s: %w", serial, err)
	}

	r.logger.Warn().
		Str("serial", serial).
		Str("suitcase_id", suitcaseID.String()).
		Str("file", fileName).
		Msg("Auto-provisioned sensor for unmatched file")

	return Resolution{Sensor: created, Strategy: MatchAutoProvision, AutoProvisioned: true}, nil
}

// DeriveSerial extracts a plausible device serial for auto-provisioning. It
// prefers a vendor-style token from the file name, then the summary-sheet
// serial, then the sanitized file stem.
func DeriveSerial(fileName, probeSerial string) string {
	base := filepath.Base(fileName)
	if match := serialPattern.FindString(base); match != "" {
		return strings.ToUpper(match)
	}
	if probeSerial != "" {
		if match := serialPattern.FindString(probeSerial); match != "" {
			return strings.ToUpper(match)
		}
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = stemSanitizer.ReplaceAllString(stem, "-")
	stem = strings.Trim(stem, "-")
	if len(stem) > 32 {
		stem = stem[:32]
	}
	return strings.ToUpper(stem)
}
