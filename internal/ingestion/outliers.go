package ingestion

import (
	"fmt"
	"sort"

	"github.com/mvilar/thermolog/internal/domain"
)

// OutlierFlag marks a persisted reading whose value sits outside the Tukey
// fences for its file. Flags are advisory; they never block ingestion.
type OutlierFlag struct {
	Row   int
	Field string
	Value float64
}

func (f OutlierFlag) String() string {
	return fmt.Sprintf("Row %d: %s %.2f is a statistical outlier for this file", f.Row, f.Field, f.Value)
}

// FlagOutliers runs the interquartile-range analysis over an already
// persisted batch, on temperature and, where present, humidity.
func FlagOutliers(readings []domain.Reading) []OutlierFlag {
	if len(readings) < 4 {
		return nil
	}

	var flags []OutlierFlag

	temps := make([]float64, len(readings))
	for i, r := range readings {
		temps[i] = r.Temperature
	}
	lower, upper, ok := tukeyFences(temps)
	if ok {
		for _, r := range readings {
			if r.Temperature < lower || r.Temperature > upper {
				flags = append(flags, OutlierFlag{Row: r.RowNumber, Field: "temperature", Value: r.Temperature})
			}
		}
	}

	var hums []float64
	for _, r := range readings {
		if r.Humidity != nil {
			hums = append(hums, *r.Humidity)
		}
	}
	if len(hums) >= 4 {
		lower, upper, ok = tukeyFences(hums)
		if ok {
			for _, r := range readings {
				if r.Humidity != nil && (*r.Humidity < lower || *r.Humidity > upper) {
					flags = append(flags, OutlierFlag{Row: r.RowNumber, Field: "humidity", Value: *r.Humidity})
				}
			}
		}
	}

	return flags
}

// tukeyFences returns the 1.5×IQR bounds for the sample. ok is false when
// the spread is zero, where every point would trivially sit on the fence.
func tukeyFences(values []float64) (lower, upper float64, ok bool) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	if iqr == 0 {
		return 0, 0, false
	}
	return q1 - 1.5*iqr, q3 + 1.5*iqr, true
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
