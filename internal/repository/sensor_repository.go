package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mvilar/thermolog/internal/db"
	"github.com/mvilar/thermolog/internal/domain"
)

// genericTypeName is the sensor type under which auto-provisioned sensors are
// registered.
const genericTypeName = "Generic Logger"

// sensorRepository implements SensorRepository over pgxpool. It holds the
// connection wrapper as well because auto-provisioning writes transactionally.
type sensorRepository struct {
	conn *db.Connection
	pool *pgxpool.Pool
}

// NewSensorRepository creates a new sensor repository.
func NewSensorRepository(conn *db.Connection) SensorRepository {
	return &sensorRepository{conn: conn, pool: conn.Pool}
}

const sensorColumns = `s.id, s.serial_number, s.model, s.type_id, s.created_at,
	       t.id, t.name, t.description, t.data_config, t.created_at`

func (r *sensorRepository) ListBySuitcase(ctx context.Context, suitcaseID uuid.UUID) ([]domain.Sensor, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+sensorColumns+`
		 FROM suitcase_sensors ss
		 JOIN sensors s ON s.id = ss.sensor_id
		 JOIN sensor_types t ON t.id = s.type_id
		 WHERE ss.suitcase_id = $1
		 ORDER BY s.created_at`,
		suitcaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list suitcase sensors: %w", err)
	}
	defer rows.Close()

	var sensors []domain.Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, sensor)
	}
	return sensors, rows.Err()
}

func (r *sensorRepository) GetBySerial(ctx context.Context, suitcaseID uuid.UUID, serialNumber string) (domain.Sensor, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+sensorColumns+`
		 FROM suitcase_sensors ss
		 JOIN sensors s ON s.id = ss.sensor_id
		 JOIN sensor_types t ON t.id = s.type_id
		 WHERE ss.suitcase_id = $1 AND lower(s.serial_number) = lower($2)`,
		suitcaseID,
		serialNumber,
	)
	sensor, err := scanSensor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sensor{}, fmt.Errorf("sensor %q: %w", serialNumber, ErrNotFound)
		}
		return domain.Sensor{}, err
	}
	return sensor, nil
}

// EnsureGenericType returns the shared fallback sensor type, creating it with
// conservative default ranges on first use.
func (r *sensorRepository) EnsureGenericType(ctx context.Context) (domain.SensorType, error) {
	existing, err := r.getTypeByName(ctx, genericTypeName)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.SensorType{}, err
	}

	st := domain.SensorType{
		ID:          uuid.New(),
		Name:        genericTypeName,
		Description: "Auto-created sensor type for imported files",
		DataConfig: domain.DataConfig{
			TemperatureRange: &domain.MeasurementRange{Min: -40, Max: 85},
			HumidityRange:    &domain.MeasurementRange{Min: 0, Max: 100},
		},
	}
	configJSON, err := json.Marshal(st.DataConfig)
	if err != nil {
		return domain.SensorType{}, fmt.Errorf("failed to marshal data config: %w", err)
	}

	// Another import may race us to the first insert; the unique name
	// constraint settles it and we re-read the winner.
	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO sensor_types (id, name, description, data_config)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
		st.ID, st.Name, st.Description, configJSON,
	)
	if err != nil {
		return domain.SensorType{}, fmt.Errorf("failed to create generic sensor type: %w", err)
	}
	return r.getTypeByName(ctx, genericTypeName)
}

// CreateWithBinding registers the sensor and its suitcase membership. Both
// statements tolerate conflicts, so a serial provisioned concurrently or
// already known from another suitcase is adopted instead of failing.
func (r *sensorRepository) CreateWithBinding(ctx context.Context, suitcaseID uuid.UUID, sensor domain.Sensor) (domain.Sensor, error) {
	if sensor.ID == uuid.Nil {
		sensor.ID = uuid.New()
	}
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(
			ctx,
			`INSERT INTO sensors (id, serial_number, model, type_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (lower(serial_number)) DO NOTHING
			 RETURNING id, created_at`,
			sensor.ID, sensor.SerialNumber, sensor.Model, sensor.TypeID,
		).Scan(&sensor.ID, &sensor.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// The serial already exists; adopt that sensor row.
			err = tx.QueryRow(
				ctx,
				`SELECT id, model, type_id, created_at FROM sensors
				 WHERE lower(serial_number) = lower($1)`,
				sensor.SerialNumber,
			).Scan(&sensor.ID, &sensor.Model, &sensor.TypeID, &sensor.CreatedAt)
		}
		if err != nil {
			return fmt.Errorf("failed to create sensor: %w", err)
		}

		_, err = tx.Exec(
			ctx,
			`INSERT INTO suitcase_sensors (suitcase_id, sensor_id)
			 VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			suitcaseID, sensor.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to bind sensor to suitcase: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Sensor{}, err
	}
	return sensor, nil
}

func (r *sensorRepository) getTypeByName(ctx context.Context, name string) (domain.SensorType, error) {
	var st domain.SensorType
	var configJSON []byte
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, data_config, created_at FROM sensor_types WHERE name = $1`,
		name,
	).Scan(&st.ID, &st.Name, &st.Description, &configJSON, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SensorType{}, fmt.Errorf("sensor type %q: %w", name, ErrNotFound)
		}
		return domain.SensorType{}, fmt.Errorf("failed to get sensor type: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &st.DataConfig); err != nil {
			return domain.SensorType{}, fmt.Errorf("failed to unmarshal data config: %w", err)
		}
	}
	return st, nil
}

func scanSensor(row pgx.Row) (domain.Sensor, error) {
	var s domain.Sensor
	var configJSON []byte
	err := row.Scan(
		&s.ID, &s.SerialNumber, &s.Model, &s.TypeID, &s.CreatedAt,
		&s.Type.ID, &s.Type.Name, &s.Type.Description, &configJSON, &s.Type.CreatedAt,
	)
	if err != nil {
		return domain.Sensor{}, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &s.Type.DataConfig); err != nil {
			return domain.Sensor{}, fmt.Errorf("failed to unmarshal data config: %w", err)
		}
	}
	return s, nil
}
