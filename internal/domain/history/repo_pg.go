package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) MostRecentCompletion(ctx context.Context, patientID uuid.UUID, screeningType string) (*time.Time, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT MAX(completed) FROM (
			SELECT occurred_at AS completed
			FROM visits
			WHERE patient_id = $1 AND screening_type = $2
			UNION ALL
			SELECT document_date
			FROM document_imports
			WHERE patient_id = $1 AND screening_type = $2
		) completions`,
		patientID, screeningType).Scan(&latest)
	if err != nil {
		return nil, err
	}
	return latest, nil
}
