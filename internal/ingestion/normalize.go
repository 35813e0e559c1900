package ingestion

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mvilar/thermolog/internal/domain"
)

// Physical bounds for accepted readings. Values outside the hard range are
// rejected; values inside the hard range but outside the warn range are
// persisted with a warning.
const (
	tempHardMin = -50.0
	tempHardMax = 100.0
	tempWarnMin = -40.0
	tempWarnMax = 85.0

	humHardMin = 0.0
	humHardMax = 100.0
	humWarnMin = 5.0
	humWarnMax = 95.0

	futureSlack = time.Hour
	staleAfter  = 10 * 365 * 24 * time.Hour
)

// Day zero of the workbook serial calendar. Dated 1899-12-30 rather than
// 1900-01-01 to absorb the off-by-two from the fictitious 1900 leap day.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

var twoDigitYearPattern = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/)(\d{2})(\D|$)`)

// RowError marks a row that could not be normalized. Local to the row; the
// file keeps processing.
type RowError struct {
	Row int
	Msg string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Msg)
}

// NormalizeRow converts one raw row into a typed reading. The sensor id is
// bound later by the persistence engine; rowNumber is 1-based within the
// data block for user diagnostics.
func NormalizeRow(row []string, mapping ColumnMapping, rowNumber int, fileName string) (domain.Reading, *RowError) {
	timestampRaw := cellAt(row, mapping.Timestamp)
	if timestampRaw == "" {
		return domain.Reading{}, &RowError{Row: rowNumber, Msg: "missing timestamp"}
	}
	recordedAt, err := ParseTimestampCell(timestampRaw)
	if err != nil {
		return domain.Reading{}, &RowError{Row: rowNumber, Msg: fmt.Sprintf("unparseable timestamp %q", timestampRaw)}
	}

	temperatureRaw := cellAt(row, mapping.Temperature)
	if temperatureRaw == "" {
		return domain.Reading{}, &RowError{Row: rowNumber, Msg: "missing temperature"}
	}
	temperature, err := ParseDecimal(temperatureRaw)
	if err != nil {
		return domain.Reading{}, &RowError{Row: rowNumber, Msg: fmt.Sprintf("non-numeric temperature %q", temperatureRaw)}
	}

	reading := domain.Reading{
		RecordedAt:  recordedAt,
		Temperature: temperature,
		FileName:    fileName,
		RowNumber:   rowNumber,
	}

	if humidityRaw := cellAt(row, mapping.Humidity); humidityRaw != "" {
		humidity, err := ParseDecimal(humidityRaw)
		if err != nil {
			return domain.Reading{}, &RowError{Row: rowNumber, Msg: fmt.Sprintf("non-numeric humidity %q", humidityRaw)}
		}
		reading.Humidity = &humidity
	}

	return reading, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Validation carries the outcome of the semantic checks on one reading.
type Validation struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// SemanticValidate applies the physical-range and plausibility checks.
// Errors exclude the reading from persistence; warnings never do.
func SemanticValidate(reading domain.Reading) Validation {
	v := Validation{Valid: true}

	if reading.Temperature < tempHardMin || reading.Temperature > tempHardMax {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("temperature %.2f°C outside physical range [%.0f, %.0f]", reading.Temperature, tempHardMin, tempHardMax))
	} else if reading.Temperature < tempWarnMin || reading.Temperature > tempWarnMax {
		v.Warnings = append(v.Warnings, fmt.Sprintf("temperature %.2f°C near the edge of plausible range", reading.Temperature))
	}

	if reading.Humidity != nil {
		humidity := *reading.Humidity
		if humidity < humHardMin || humidity > humHardMax {
			v.Valid = false
			v.Errors = append(v.Errors, fmt.Sprintf("humidity %.2f%% outside physical range [%.0f, %.0f]", humidity, humHardMin, humHardMax))
		} else if humidity < humWarnMin || humidity > humWarnMax {
			v.Warnings = append(v.Warnings, fmt.Sprintf("humidity %.2f%% near the edge of plausible range", humidity))
		}
	}

	now := time.Now().UTC()
	if reading.RecordedAt.After(now.Add(futureSlack)) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("timestamp %s is in the future", reading.RecordedAt.Format(time.RFC3339)))
	} else if reading.RecordedAt.Before(now.Add(-staleAfter)) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("timestamp %s is more than 10 years old", reading.RecordedAt.Format(time.RFC3339)))
	}

	return v
}

// ParseTimestampCell interprets a raw cell as a point in time, trying in
// order: workbook date serials, explicit layouts (Brazilian day-first and
// ISO), then two-digit-year day-first dates.
func ParseTimestampCell(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		return excelSerialToTime(serial)
	}

	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}

	if expanded, ok := expandTwoDigitYear(raw); ok {
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, expanded); err == nil {
				return ts.UTC(), nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

// excelSerialToTime converts a workbook date serial to UTC. The fractional
// part carries the time of day; serial 25569 is 1970-01-01.
func excelSerialToTime(serial float64) (time.Time, error) {
	if serial < 1 || serial > 150_000 {
		return time.Time{}, fmt.Errorf("date serial %v out of range", serial)
	}
	days := math.Floor(serial)
	seconds := math.Round((serial - days) * 86400)
	return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second), nil
}

// expandTwoDigitYear rewrites dd/mm/yy into dd/mm/yyyy. Years 50 and above
// resolve to the 1900s, anything below to the 2000s.
func expandTwoDigitYear(raw string) (string, bool) {
	match := twoDigitYearPattern.FindStringSubmatch(raw)
	if match == nil {
		return "", false
	}
	year, err := strconv.Atoi(match[2])
	if err != nil {
		return "", false
	}
	century := 2000
	if year >= 50 {
		century = 1900
	}
	full := fmt.Sprintf("%s%d", match[1], century+year)
	return full + raw[len(match[1])+len(match[2]):], true
}

// ParseDecimal accepts comma or dot decimal separators and tolerates a
// trailing unit token ("23,5 °C").
func ParseDecimal(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if fields := strings.Fields(raw); len(fields) > 0 {
		raw = fields[0]
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	return value, nil
}
