package ingestion

import (
	"errors"
	"testing"

	"github.com/mvilar/thermolog/internal/domain"
)

func TestInferMappingPortugueseHeaders(t *testing.T) {
	mapping, err := InferMapping([]string{"Data", "Temperatura", "Umidade"}, "export.csv")
	if err != nil {
		t.Fatalf("infer returned error: %v", err)
	}
	if mapping.Timestamp != 0 || mapping.Temperature != 1 || mapping.Humidity != 2 {
		t.Fatalf("unexpected mapping: %+v", mapping)
	}
}

func TestInferMappingEnglishHeaders(t *testing.T) {
	mapping, err := InferMapping([]string{"Serial", "Time", "Temperature (°C)", "Humidity (%RH)"}, "export.csv")
	if err != nil {
		t.Fatalf("infer returned error: %v", err)
	}
	if mapping.SensorID != 0 || mapping.Timestamp != 1 || mapping.Temperature != 2 || mapping.Humidity != 3 {
		t.Fatalf("unexpected mapping: %+v", mapping)
	}
}

func TestInferMappingFirstMatchWins(t *testing.T) {
	// Two cells match the timestamp synonyms; header order decides.
	mapping, err := InferMapping([]string{"Data", "Data de exportação", "Temp"}, "export.csv")
	if err != nil {
		t.Fatalf("infer returned error: %v", err)
	}
	if mapping.Timestamp != 0 {
		t.Fatalf("expected first matching column to win, got %d", mapping.Timestamp)
	}
}

func TestInferMappingMissingRequiredColumns(t *testing.T) {
	_, err := InferMapping([]string{"Umidade", "Serial"}, "export.csv")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(schemaErr.Missing) != 2 {
		t.Fatalf("expected both required columns reported, got %v", schemaErr.Missing)
	}
}

func TestFindMappingSkipsPreamble(t *testing.T) {
	rows := [][]string{
		{"Relatório de exportação"},
		{"Dispositivo: RC400123"},
		{"Data", "Temperatura", "Umidade"},
		{"2024-05-10 08:00:00", "22.1", "55"},
	}
	mapping, err := FindMapping(rows, "export.csv")
	if err != nil {
		t.Fatalf("find returned error: %v", err)
	}
	if mapping.StartRow != 3 {
		t.Fatalf("expected data to start at row 3, got %d", mapping.StartRow)
	}
	if mapping.Temperature != 1 {
		t.Fatalf("unexpected mapping: %+v", mapping)
	}
}

func TestFindMappingNoHeaderAnywhere(t *testing.T) {
	rows := [][]string{{"a", "b"}, {"c", "d"}}
	if _, err := FindMapping(rows, "export.csv"); err == nil {
		t.Fatalf("expected error when no header is found")
	}
}

func TestMappingFromDataConfig(t *testing.T) {
	cfg := domain.DataConfig{
		TimestampColumn:   "A",
		TemperatureColumn: "C",
		HumidityColumn:    "D",
		StartRow:          3,
	}
	mapping, ok := MappingFromDataConfig(cfg)
	if !ok {
		t.Fatalf("expected structured config to produce a mapping")
	}
	if mapping.Timestamp != 0 || mapping.Temperature != 2 || mapping.Humidity != 3 {
		t.Fatalf("unexpected mapping: %+v", mapping)
	}
	if mapping.StartRow != 2 {
		t.Fatalf("expected 0-based start row 2, got %d", mapping.StartRow)
	}
}

func TestMappingFromDataConfigUnstructured(t *testing.T) {
	if _, ok := MappingFromDataConfig(domain.DataConfig{}); ok {
		t.Fatalf("expected empty config to fall back to inference")
	}
}

func TestColumnLetterToIndex(t *testing.T) {
	cases := map[string]int{
		"A":  0,
		"B":  1,
		"Z":  25,
		"AA": 26,
		"":   -1,
		"4":  -1,
	}
	for letter, want := range cases {
		if got := columnLetterToIndex(letter); got != want {
			t.Fatalf("%q: expected %d, got %d", letter, want, got)
		}
	}
}
