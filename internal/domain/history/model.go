package history

import (
	"time"

	"github.com/google/uuid"
)

// Visit records a completed in-person screening during an encounter.
type Visit struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	ScreeningType string    `db:"screening_type" json:"screening_type"`
	OccurredAt    time.Time `db:"occurred_at" json:"occurred_at"`
	Note          *string   `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DocumentImport records a screening completion evidenced by an imported
// outside document (faxed results, prior-practice records).
type DocumentImport struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	ScreeningType string    `db:"screening_type" json:"screening_type"`
	DocumentDate  time.Time `db:"document_date" json:"document_date"`
	FileName      *string   `db:"file_name" json:"file_name,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
