package repository

import (
	"context"
	"errors"

	"github.com/mvilar/thermolog/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SuitcaseRepository defines read access to suitcases.
type SuitcaseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Suitcase, error)
}

// SensorRepository defines the sensor operations the ingestion pipeline
// needs: listing a suitcase's bound sensors, and the auto-provision fallback
// (ensure a generic type exists, create a sensor together with its binding).
type SensorRepository interface {
	ListBySuitcase(ctx context.Context, suitcaseID uuid.UUID) ([]domain.Sensor, error)
	GetBySerial(ctx context.Context, suitcaseID uuid.UUID, serialNumber string) (domain.Sensor, error)
	EnsureGenericType(ctx context.Context) (domain.SensorType, error)
	CreateWithBinding(ctx context.Context, suitcaseID uuid.UUID, sensor domain.Sensor) (domain.Sensor, error)
}

// ReadingRepository persists normalized readings in bulk. InsertBatch skips
// readings already present (same sensor, instant and value set) and returns
// the number of rows actually inserted.
type ReadingRepository interface {
	InsertBatch(ctx context.Context, readings []domain.Reading) (int, error)
}
