package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reading is one timestamped sample attributed to a sensor. Once built it is
// either persisted or discarded; it is never mutated.
type Reading struct {
	SensorID    uuid.UUID `json:"sensor_id"`
	RecordedAt  time.Time `json:"recorded_at"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
	FileName    string    `json:"file_name"`
	RowNumber   int       `json:"row_number"`
}
