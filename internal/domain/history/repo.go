package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository answers completion-history queries across both evidence sources
// (visits and document imports).
type Repository interface {
	// MostRecentCompletion returns the latest completion date for the given
	// patient and screening type, or nil when no completion is on record.
	MostRecentCompletion(ctx context.Context, patientID uuid.UUID, screeningType string) (*time.Time, error)
}
