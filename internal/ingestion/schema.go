package ingestion

import (
	"fmt"
	"strings"

	"github.com/mvilar/thermolog/internal/domain"
)

// ColumnMapping names the column index for each semantic field. An index of
// -1 means the field is absent from the file.
type ColumnMapping struct {
	Timestamp   int
	Temperature int
	Humidity    int
	SensorID    int
	// StartRow is the first data row, 0-based within the materialized rows.
	StartRow int
}

// SchemaError reports a file whose header does not expose the required
// columns. Fatal for the file; no rows are processed.
type SchemaError struct {
	FileName string
	Missing  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: required column(s) not found: %s", e.FileName, strings.Join(e.Missing, ", "))
}

// Synonym lists for header matching, Portuguese first since most vendor
// exports here are localized. Matching is case-insensitive substring.
var (
	timestampSynonyms   = []string{"data/hora", "data e hora", "data", "hora", "date", "time", "timestamp"}
	temperatureSynonyms = []string{"temperatura", "temp", "temperature", "°c", "celsius"}
	humiditySynonyms    = []string{"umidade", "umid", "humidity", "hum", "%rh", "rh"}
	sensorSynonyms      = []string{"sensor", "serial", "sonda", "n/s", "s/n", "device", "logger"}
)

// InferMapping identifies semantic columns from the header row. The first
// header cell matching a field's synonym list wins; header order is
// authoritative when several cells match.
func InferMapping(header []string, fileName string) (ColumnMapping, error) {
	mapping := ColumnMapping{Timestamp: -1, Temperature: -1, Humidity: -1, SensorID: -1, StartRow: 1}

	for idx, cell := range header {
		lowered := strings.ToLower(strings.TrimSpace(cell))
		if lowered == "" {
			continue
		}
		if mapping.Timestamp < 0 && matchesAny(lowered, timestampSynonyms) {
			mapping.Timestamp = idx
			continue
		}
		if mapping.Temperature < 0 && matchesAny(lowered, temperatureSynonyms) {
			mapping.Temperature = idx
			continue
		}
		if mapping.Humidity < 0 && matchesAny(lowered, humiditySynonyms) {
			mapping.Humidity = idx
			continue
		}
		if mapping.SensorID < 0 && matchesAny(lowered, sensorSynonyms) {
			mapping.SensorID = idx
		}
	}

	var missing []string
	if mapping.Timestamp < 0 {
		missing = append(missing, "timestamp")
	}
	if mapping.Temperature < 0 {
		missing = append(missing, "temperature")
	}
	if len(missing) > 0 {
		return ColumnMapping{}, &SchemaError{FileName: fileName, Missing: missing}
	}
	return mapping, nil
}

// FindMapping scans the leading rows for a usable header. Vendor exports
// often carry a preamble before the actual column titles, so the first row
// that yields both required columns is taken as the header.
func FindMapping(rows [][]string, fileName string) (ColumnMapping, error) {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	var firstErr error
	for idx := 0; idx < limit; idx++ {
		mapping, err := InferMapping(rows[idx], fileName)
		if err == nil {
			mapping.StartRow = idx + 1
			return mapping, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &SchemaError{FileName: fileName, Missing: []string{"timestamp", "temperature"}}
	}
	return ColumnMapping{}, firstErr
}

func matchesAny(lowered string, synonyms []string) bool {
	for _, synonym := range synonyms {
		if strings.Contains(lowered, synonym) {
			return true
		}
	}
	return false
}

// MappingFromDataConfig converts a sensor type's declared column letters
// into the same mapping shape the inferencer produces, so structured vendor
// files and heuristic files share one validator contract.
func MappingFromDataConfig(cfg domain.DataConfig) (ColumnMapping, bool) {
	if !cfg.Structured() {
		return ColumnMapping{}, false
	}
	startRow := cfg.StartRow - 1
	if startRow < 0 {
		startRow = 0
	}
	return ColumnMapping{
		Timestamp:   columnLetterToIndex(cfg.TimestampColumn),
		Temperature: columnLetterToIndex(cfg.TemperatureColumn),
		Humidity:    columnLetterToIndex(cfg.HumidityColumn),
		SensorID:    -1,
		StartRow:    startRow,
	}, true
}

// columnLetterToIndex converts "A" to 0, "B" to 1, "AA" to 26. Unknown or
// empty letters map to -1.
func columnLetterToIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return -1
	}
	index := 0
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return -1
		}
		index = index*26 + int(r-'A') + 1
	}
	return index - 1
}
