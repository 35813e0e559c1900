package domain

import (
	"time"

	"github.com/google/uuid"
)

// MeasurementRange bounds a physical quantity a sensor model can report.
type MeasurementRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DataConfig declares how a sensor model lays out its export files: which
// column letters hold each quantity, the first data row, and the date format.
// Empty column letters mean the generic header heuristics apply instead.
type DataConfig struct {
	TimestampColumn   string            `json:"timestampColumn,omitempty"`
	TemperatureColumn string            `json:"temperatureColumn,omitempty"`
	HumidityColumn    string            `json:"humidityColumn,omitempty"`
	StartRow          int               `json:"startRow,omitempty"`
	DateFormat        string            `json:"dateFormat,omitempty"`
	TemperatureRange  *MeasurementRange `json:"temperatureRange,omitempty"`
	HumidityRange     *MeasurementRange `json:"humidityRange,omitempty"`
}

// Structured reports whether the config pins explicit column positions,
// bypassing header inference.
func (c DataConfig) Structured() bool {
	return c.TimestampColumn != "" && c.TemperatureColumn != ""
}

// SensorType is a logger device model.
type SensorType struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	DataConfig  DataConfig `json:"dataConfig"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Sensor is a physical logger device identified by its serial number.
type Sensor struct {
	ID           uuid.UUID  `json:"id"`
	SerialNumber string     `json:"serial_number"`
	Model        string     `json:"model"`
	TypeID       uuid.UUID  `json:"type_id"`
	Type         SensorType `json:"type"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Suitcase groups the sensors deployed together for one validation run.
type Suitcase struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
