package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mvilar/thermolog/internal/domain"
)

// readingRepository implements ReadingRepository over pgxpool.
type readingRepository struct {
	pool *pgxpool.Pool
}

// NewReadingRepository creates a new reading repository.
func NewReadingRepository(pool *pgxpool.Pool) ReadingRepository {
	return &readingRepository{pool: pool}
}

// InsertBatch bulk-inserts readings with duplicate skipping. The unique index
// on (sensor_id, recorded_at, temperature, humidity) makes a resubmitted
// chunk a row-level no-op, so callers may safely retry.
func (r *readingRepository) InsertBatch(ctx context.Context, readings []domain.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	const cols = 6
	var sb strings.Builder
	sb.WriteString(`INSERT INTO sensor_readings (sensor_id, recorded_at, temperature, humidity, file_name, row_number) VALUES `)
	args := make([]any, 0, len(readings)*cols)
	for i, reading := range readings {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args,
			reading.SensorID,
			reading.RecordedAt,
			reading.Temperature,
			reading.Humidity,
			reading.FileName,
			reading.RowNumber,
		)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	tag, err := r.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
