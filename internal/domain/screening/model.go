package screening

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a screening compliance status.
type Status string

const (
	StatusDue        Status = "Due"
	StatusDueSoon    Status = "Due Soon"
	StatusIncomplete Status = "Incomplete"
	StatusComplete   Status = "Complete"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusDue, StatusDueSoon, StatusIncomplete, StatusComplete}

// StatusDisplay carries presentation metadata for a status.
type StatusDisplay struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var statusDisplays = map[Status]StatusDisplay{
	StatusDue:        {Label: "Due", Color: "red"},
	StatusDueSoon:    {Label: "Due Soon", Color: "orange"},
	StatusIncomplete: {Label: "Incomplete", Color: "gray"},
	StatusComplete:   {Label: "Complete", Color: "green"},
}

// Valid reports whether s is one of the four statuses.
func (s Status) Valid() bool {
	_, ok := statusDisplays[s]
	return ok
}

// Display returns the presentation metadata for s. The mapping is total over
// the valid statuses.
func (s Status) Display() StatusDisplay {
	return statusDisplays[s]
}

// ParseStatus resolves user-supplied text to a Status. Matching is
// case-insensitive and tolerates "due_soon"/"due-soon" spellings.
func ParseStatus(text string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.NewReplacer("_", " ", "-", " ").Replace(normalized)
	for _, s := range AllStatuses {
		if normalized == strings.ToLower(string(s)) {
			return s, true
		}
	}
	return "", false
}

// FrequencyUnit is the calendar unit of a recurrence interval.
type FrequencyUnit string

const (
	UnitDay   FrequencyUnit = "day"
	UnitMonth FrequencyUnit = "month"
	UnitYear  FrequencyUnit = "year"
)

// FrequencyRule describes how often a screening recurs: either a positive
// count of days/months/years, or Once for screenings that never repeat.
type FrequencyRule struct {
	Count int           `json:"count,omitempty"`
	Unit  FrequencyUnit `json:"unit,omitempty"`
	Once  bool          `json:"once,omitempty"`
}

func (r *FrequencyRule) valid() bool {
	if r == nil {
		return false
	}
	if r.Once {
		return true
	}
	if r.Count <= 0 {
		return false
	}
	switch r.Unit {
	case UnitDay, UnitMonth, UnitYear:
		return true
	}
	return false
}

// String renders the rule in the text form ParseFrequency accepts.
func (r *FrequencyRule) String() string {
	if r == nil {
		return ""
	}
	if r.Once {
		return "once"
	}
	unit := string(r.Unit)
	if r.Count != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", r.Count, unit)
}

// ParseFrequency parses text like "1 year", "6 months", or "once".
func ParseFrequency(text string) (*FrequencyRule, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, fmt.Errorf("frequency is empty")
	}
	if normalized == "once" {
		return &FrequencyRule{Once: true}, nil
	}

	fields := strings.Fields(normalized)
	if len(fields) != 2 {
		return nil, fmt.Errorf("invalid frequency %q", text)
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count <= 0 {
		return nil, fmt.Errorf("invalid frequency count %q", fields[0])
	}
	switch strings.TrimSuffix(fields[1], "s") {
	case "day":
		return &FrequencyRule{Count: count, Unit: UnitDay}, nil
	case "month":
		return &FrequencyRule{Count: count, Unit: UnitMonth}, nil
	case "year":
		return &FrequencyRule{Count: count, Unit: UnitYear}, nil
	}
	return nil, fmt.Errorf("invalid frequency unit %q", fields[1])
}

// ScreeningType is a catalog entry: a named screening with its default
// recurrence rule. Immutable once registered.
type ScreeningType struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Frequency   *FrequencyRule `json:"frequency,omitempty"`
}

// ScreeningRecord maps to the screening_records table, one row per
// (patient, screening type) pair. PatientName and PatientMRN are populated
// from the patients join on reads. Notes and Frequency are operator-owned
// and survive regeneration untouched; Frequency, when set, overrides the
// type's default rule.
type ScreeningRecord struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName   string     `db:"patient_name" json:"patient_name"`
	PatientMRN    string     `db:"patient_mrn" json:"patient_mrn"`
	ScreeningType string     `db:"screening_type" json:"screening_type"`
	Status        Status     `db:"status" json:"status"`
	DueDate       *time.Time `db:"due_date" json:"due_date,omitempty"`
	LastCompleted *time.Time `db:"last_completed" json:"last_completed,omitempty"`
	Frequency     *string    `db:"frequency" json:"frequency,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	GeneratedAt   time.Time  `db:"generated_at" json:"generated_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
