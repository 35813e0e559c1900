package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mvilar/thermolog/internal/domain"
)

// suitcaseRepository implements SuitcaseRepository over pgxpool.
type suitcaseRepository struct {
	pool *pgxpool.Pool
}

// NewSuitcaseRepository creates a new suitcase repository.
func NewSuitcaseRepository(pool *pgxpool.Pool) SuitcaseRepository {
	return &suitcaseRepository{pool: pool}
}

func (r *suitcaseRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Suitcase, error) {
	var sc domain.Suitcase
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, created_at FROM suitcases WHERE id = $1`,
		id,
	).Scan(&sc.ID, &sc.Name, &sc.Description, &sc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Suitcase{}, fmt.Errorf("suitcase %s: %w", id, ErrNotFound)
		}
		return domain.Suitcase{}, fmt.Errorf("failed to get suitcase: %w", err)
	}
	return sc, nil
}
