package screening

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PatientInfo is the directory projection the engine needs: identity plus
// the display fields the list surface searches on.
type PatientInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	MRN  string    `json:"mrn"`
}

// PatientDirectory is the read side of the patient store. GetPatient returns
// ErrPatientNotFound for unknown IDs.
type PatientDirectory interface {
	ListPatients(ctx context.Context) ([]PatientInfo, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
}

// HistorySource answers most-recent-completion queries from the clinical
// record (visits, imported documents). A nil time means never completed.
type HistorySource interface {
	MostRecentCompletion(ctx context.Context, patientID uuid.UUID, screeningType string) (*time.Time, error)
}

// Filter narrows the record set. Empty or "all" values match everything;
// Search is a case-insensitive substring match on patient name and MRN.
type Filter struct {
	Status        string
	ScreeningType string
	Search        string
}

// RecordRepository stores screening records keyed by (patient, type).
// Upserts are atomic per key and never touch operator-owned fields
// (notes, frequency override).
type RecordRepository interface {
	Upsert(ctx context.Context, rec *ScreeningRecord) error
	UpsertMany(ctx context.Context, recs []*ScreeningRecord) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ScreeningRecord, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*ScreeningRecord, int, error)
	CountByStatus(ctx context.Context, f Filter) (map[Status]int, error)
}
