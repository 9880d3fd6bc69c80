package screening

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrTypeNotFound is returned when a screening type is not in the registry.
var ErrTypeNotFound = errors.New("screening type not found")

// Registry is the catalog of recognized screening types. Lookups are
// read-mostly; Add and Retire take effect for subsequent regenerations only.
type Registry struct {
	mu    sync.RWMutex
	types []ScreeningType
}

// NewRegistry creates a registry preloaded with the given types, preserving
// their order.
func NewRegistry(types ...ScreeningType) *Registry {
	r := &Registry{}
	for _, t := range types {
		// construction is single-threaded; ignore duplicates silently
		_ = r.Add(t)
	}
	return r
}

// DefaultRegistry returns the standard preventive-screening catalog.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ScreeningType{Name: "Mammogram", Description: "Breast cancer screening", Frequency: &FrequencyRule{Count: 1, Unit: UnitYear}},
		ScreeningType{Name: "Pap Smear", Description: "Cervical cancer screening", Frequency: &FrequencyRule{Count: 3, Unit: UnitYear}},
		ScreeningType{Name: "Colonoscopy", Description: "Colorectal cancer screening", Frequency: &FrequencyRule{Count: 10, Unit: UnitYear}},
		ScreeningType{Name: "Blood Pressure Check", Description: "Hypertension screening", Frequency: &FrequencyRule{Count: 1, Unit: UnitYear}},
		ScreeningType{Name: "Lipid Panel", Description: "Cholesterol screening", Frequency: &FrequencyRule{Count: 5, Unit: UnitYear}},
		ScreeningType{Name: "Hemoglobin A1C", Description: "Diabetes monitoring", Frequency: &FrequencyRule{Count: 6, Unit: UnitMonth}},
		ScreeningType{Name: "Flu Vaccine", Description: "Seasonal influenza immunization", Frequency: &FrequencyRule{Count: 1, Unit: UnitYear}},
		ScreeningType{Name: "Eye Exam", Description: "Comprehensive vision exam", Frequency: &FrequencyRule{Count: 2, Unit: UnitYear}},
		ScreeningType{Name: "Shingles Vaccine", Description: "Herpes zoster immunization", Frequency: &FrequencyRule{Once: true}},
	)
}

// Lookup finds a type by name, case-insensitively.
func (r *Registry) Lookup(name string) (ScreeningType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.types {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return ScreeningType{}, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
}

// All returns the registered types in registration order.
func (r *Registry) All() []ScreeningType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ScreeningType, len(r.types))
	copy(out, r.types)
	return out
}

// Add registers a new type. Names are unique, compared case-insensitively.
func (r *Registry) Add(t ScreeningType) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("screening type name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.types {
		if strings.EqualFold(existing.Name, t.Name) {
			return fmt.Errorf("screening type %q already registered", t.Name)
		}
	}
	r.types = append(r.types, t)
	return nil
}

// Retire removes a type from the catalog. Existing records for the type are
// left in place; they stop being regenerated.
func (r *Registry) Retire(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.types {
		if strings.EqualFold(t.Name, name) {
			r.types = append(r.types[:i], r.types[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTypeNotFound, name)
}
