package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. The screening engine consumes patients
// through a read-side directory interface; there is no CRUD surface here.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	MRN       string     `db:"mrn" json:"mrn"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
