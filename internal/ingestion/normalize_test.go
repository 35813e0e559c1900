package ingestion

import (
	"strconv"
	"testing"
	"time"

	"github.com/mvilar/thermolog/internal/domain"
)

func TestParseTimestampCellDateSerial(t *testing.T) {
	// Serial 25569 is the Unix epoch.
	ts, err := ParseTimestampCell("25569")
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	want := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("expected %s, got %s", want, ts)
	}
}

func TestParseTimestampCellSerialFraction(t *testing.T) {
	// 0.5 of a day is noon.
	ts, err := ParseTimestampCell("25569.5")
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if ts.Hour() != 12 || ts.Minute() != 0 {
		t.Fatalf("expected noon, got %s", ts)
	}
}

func TestParseTimestampCellRoundTripsToMinute(t *testing.T) {
	want := time.Date(2024, time.March, 15, 9, 41, 0, 0, time.UTC)
	serial := float64(want.Sub(time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC))) / float64(24*time.Hour)

	ts, err := ParseTimestampCell(strconv.FormatFloat(serial, 'f', -1, 64))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if !ts.Truncate(time.Minute).Equal(want) {
		t.Fatalf("expected %s, got %s", want, ts)
	}
}

func TestParseTimestampCellLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-05-10 14:30:00": time.Date(2024, time.May, 10, 14, 30, 0, 0, time.UTC),
		"10/05/2024 14:30":    time.Date(2024, time.May, 10, 14, 30, 0, 0, time.UTC),
		"10/05/2024":          time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC),
		"2024-05-10":          time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		ts, err := ParseTimestampCell(raw)
		if err != nil {
			t.Fatalf("%s: parse returned error: %v", raw, err)
		}
		if !ts.Equal(want) {
			t.Fatalf("%s: expected %s, got %s", raw, want, ts)
		}
	}
}

func TestParseTimestampCellTwoDigitYear(t *testing.T) {
	ts, err := ParseTimestampCell("10/05/99")
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if ts.Year() != 1999 {
		t.Fatalf("expected year 1999, got %d", ts.Year())
	}

	ts, err = ParseTimestampCell("10/05/24 08:00")
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if ts.Year() != 2024 {
		t.Fatalf("expected year 2024, got %d", ts.Year())
	}
}

func TestParseTimestampCellRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not a date", "99/99/9999"} {
		if _, err := ParseTimestampCell(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseDecimalSeparators(t *testing.T) {
	cases := map[string]float64{
		"23.5":    23.5,
		"23,5":    23.5,
		"-12,75":  -12.75,
		"23,5 °C": 23.5,
	}
	for raw, want := range cases {
		got, err := ParseDecimal(raw)
		if err != nil {
			t.Fatalf("%s: parse returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", raw, want, got)
		}
	}

	if _, err := ParseDecimal("abc"); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}
}

func TestNormalizeRowBuildsReading(t *testing.T) {
	mapping := ColumnMapping{Timestamp: 0, Temperature: 1, Humidity: 2, SensorID: -1}
	reading, rowErr := NormalizeRow([]string{"2024-05-10 08:00:00", "22,4", "55"}, mapping, 3, "export.csv")
	if rowErr != nil {
		t.Fatalf("normalize returned error: %v", rowErr)
	}
	if reading.Temperature != 22.4 {
		t.Fatalf("expected temperature 22.4, got %v", reading.Temperature)
	}
	if reading.Humidity == nil || *reading.Humidity != 55 {
		t.Fatalf("expected humidity 55, got %v", reading.Humidity)
	}
	if reading.RowNumber != 3 || reading.FileName != "export.csv" {
		t.Fatalf("unexpected provenance: %+v", reading)
	}
}

func TestNormalizeRowMissingHumidityIsOptional(t *testing.T) {
	mapping := ColumnMapping{Timestamp: 0, Temperature: 1, Humidity: -1, SensorID: -1}
	reading, rowErr := NormalizeRow([]string{"2024-05-10", "20"}, mapping, 1, "f.csv")
	if rowErr != nil {
		t.Fatalf("normalize returned error: %v", rowErr)
	}
	if reading.Humidity != nil {
		t.Fatalf("expected no humidity, got %v", *reading.Humidity)
	}
}

func TestNormalizeRowErrors(t *testing.T) {
	mapping := ColumnMapping{Timestamp: 0, Temperature: 1, Humidity: -1, SensorID: -1}

	if _, rowErr := NormalizeRow([]string{"garbage", "20"}, mapping, 2, "f.csv"); rowErr == nil {
		t.Fatalf("expected timestamp error")
	}
	if _, rowErr := NormalizeRow([]string{"2024-05-10", "hot"}, mapping, 2, "f.csv"); rowErr == nil {
		t.Fatalf("expected temperature error")
	}
}

func TestSemanticValidateTemperatureBounds(t *testing.T) {
	cases := []struct {
		temp      float64
		wantValid bool
		wantWarn  bool
	}{
		{temp: 20, wantValid: true, wantWarn: false},
		{temp: -45, wantValid: true, wantWarn: true},
		{temp: 90, wantValid: true, wantWarn: true},
		{temp: -50, wantValid: true, wantWarn: true},
		{temp: 100, wantValid: true, wantWarn: true},
		{temp: -50.1, wantValid: false},
		{temp: 200, wantValid: false},
	}

	recordedAt := time.Now().UTC().Add(-time.Hour)
	for _, tc := range cases {
		v := SemanticValidate(domain.Reading{RecordedAt: recordedAt, Temperature: tc.temp})
		if v.Valid != tc.wantValid {
			t.Fatalf("temp %v: expected valid=%v, got %+v", tc.temp, tc.wantValid, v)
		}
		if tc.wantValid && tc.wantWarn && len(v.Warnings) == 0 {
			t.Fatalf("temp %v: expected warning", tc.temp)
		}
		if tc.wantValid && !tc.wantWarn && len(v.Warnings) != 0 {
			t.Fatalf("temp %v: unexpected warnings %v", tc.temp, v.Warnings)
		}
	}
}

func TestSemanticValidateHumidityBounds(t *testing.T) {
	recordedAt := time.Now().UTC().Add(-time.Hour)

	over := 101.0
	v := SemanticValidate(domain.Reading{RecordedAt: recordedAt, Temperature: 20, Humidity: &over})
	if v.Valid {
		t.Fatalf("expected humidity over 100 to be rejected")
	}

	low := 2.0
	v = SemanticValidate(domain.Reading{RecordedAt: recordedAt, Temperature: 20, Humidity: &low})
	if !v.Valid || len(v.Warnings) == 0 {
		t.Fatalf("expected low humidity to warn, got %+v", v)
	}
}

func TestSemanticValidateImplausibleDates(t *testing.T) {
	future := SemanticValidate(domain.Reading{RecordedAt: time.Now().Add(48 * time.Hour), Temperature: 20})
	if !future.Valid || len(future.Warnings) == 0 {
		t.Fatalf("expected future timestamp to warn, got %+v", future)
	}

	ancient := SemanticValidate(domain.Reading{RecordedAt: time.Now().AddDate(-12, 0, 0), Temperature: 20})
	if !ancient.Valid || len(ancient.Warnings) == 0 {
		t.Fatalf("expected ancient timestamp to warn, got %+v", ancient)
	}
}
