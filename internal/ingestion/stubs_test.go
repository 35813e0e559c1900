package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mvilar/thermolog/internal/domain"
	"github.com/mvilar/thermolog/internal/repository"
)

type stubSuitcaseRepo struct {
	suitcases map[uuid.UUID]domain.Suitcase
	err       error
}

func (s *stubSuitcaseRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Suitcase, error) {
	if s.err != nil {
		return domain.Suitcase{}, s.err
	}
	sc, ok := s.suitcases[id]
	if !ok {
		return domain.Suitcase{}, fmt.Errorf("suitcase %s: %w", id, repository.ErrNotFound)
	}
	return sc, nil
}

type stubSensorRepo struct {
	sensors     map[uuid.UUID][]domain.Sensor
	genericType domain.SensorType
	created     []domain.Sensor
	listErr     error
	createErr   error
}

func newStubSensorRepo() *stubSensorRepo {
	return &stubSensorRepo{
		sensors: map[uuid.UUID][]domain.Sensor{},
		genericType: domain.SensorType{
			ID:   uuid.New(),
			Name: "Generic Logger",
		},
	}
}

func (s *stubSensorRepo) ListBySuitcase(_ context.Context, suitcaseID uuid.UUID) ([]domain.Sensor, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.sensors[suitcaseID], nil
}

func (s *stubSensorRepo) GetBySerial(_ context.Context, suitcaseID uuid.UUID, serial string) (domain.Sensor, error) {
	for _, sensor := range s.sensors[suitcaseID] {
		if strings.EqualFold(sensor.SerialNumber, serial) {
			return sensor, nil
		}
	}
	return domain.Sensor{}, fmt.Errorf("sensor %q: %w", serial, repository.ErrNotFound)
}

func (s *stubSensorRepo) EnsureGenericType(_ context.Context) (domain.SensorType, error) {
	return s.genericType, nil
}

func (s *stubSensorRepo) CreateWithBinding(_ context.Context, suitcaseID uuid.UUID, sensor domain.Sensor) (domain.Sensor, error) {
	if s.createErr != nil {
		return domain.Sensor{}, s.createErr
	}
	// Serials are globally unique; an existing sensor is adopted and only
	// the suitcase binding is added, mirroring the conflict-tolerant insert.
	var adopted *domain.Sensor
	for _, existing := range s.sensors {
		for i := range existing {
			if strings.EqualFold(existing[i].SerialNumber, sensor.SerialNumber) {
				adopted = &existing[i]
				break
			}
		}
	}
	if adopted != nil {
		s.sensors[suitcaseID] = append(s.sensors[suitcaseID], *adopted)
		return *adopted, nil
	}
	s.created = append(s.created, sensor)
	s.sensors[suitcaseID] = append(s.sensors[suitcaseID], sensor)
	return sensor, nil
}

type stubReadingRepo struct {
	mu       sync.Mutex
	batches  [][]domain.Reading
	inserted []domain.Reading
	err      error
}

func (s *stubReadingRepo) InsertBatch(_ context.Context, readings []domain.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	batch := append([]domain.Reading(nil), readings...)
	s.batches = append(s.batches, batch)
	s.inserted = append(s.inserted, batch...)
	return len(batch), nil
}

func (s *stubReadingRepo) insertedReadings() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Reading(nil), s.inserted...)
}

func (s *stubReadingRepo) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, batch := range s.batches {
		sizes[i] = len(batch)
	}
	return sizes
}
