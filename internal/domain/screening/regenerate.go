package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/visitprep/visitprep/internal/platform/cache"
	"github.com/visitprep/visitprep/internal/platform/metrics"
)

// ErrPatientNotFound is returned by a scoped refresh for an unknown patient.
var ErrPatientNotFound = errors.New("patient not found")

// PatientError records a single patient skipped during a regeneration run.
type PatientError struct {
	PatientID uuid.UUID `json:"patient_id"`
	Reason    string    `json:"reason"`
}

// RunResult summarizes a regeneration run. Errors holds the patients that
// were skipped; their presence does not make the run itself a failure.
type RunResult struct {
	UpdatedCount int            `json:"updated_count"`
	Errors       []PatientError `json:"errors,omitempty"`
}

// Engine recomputes screening statuses for one patient or the whole
// population. It is idempotent: rerunning with unchanged clinical data
// rewrites the same computed values.
type Engine struct {
	records     RecordRepository
	patients    PatientDirectory
	history     HistorySource
	registry    *Registry
	cache       *cache.Store
	logger      zerolog.Logger
	dueSoonDays int
	now         func() time.Time
}

func NewEngine(records RecordRepository, patients PatientDirectory, history HistorySource,
	registry *Registry, cacheStore *cache.Store, logger zerolog.Logger, dueSoonDays int) *Engine {
	if dueSoonDays <= 0 {
		dueSoonDays = DueSoonWindowDays
	}
	return &Engine{
		records:     records,
		patients:    patients,
		history:     history,
		registry:    registry,
		cache:       cacheStore,
		logger:      logger,
		dueSoonDays: dueSoonDays,
		now:         time.Now,
	}
}

// RegenerateAll recomputes every (patient, type) pair. A failure on one
// patient is recorded and skipped; the run continues. The query cache is
// cleared once at the end. Single-flight control lives in RunManager, not
// here, so scoped refreshes can share the engine.
func (e *Engine) RegenerateAll(ctx context.Context) (*RunResult, error) {
	start := e.now()
	patients, err := e.patients.ListPatients(ctx)
	if err != nil {
		metrics.RecordRegenerationRun("all", "error", time.Since(start))
		return nil, fmt.Errorf("list patients: %w", err)
	}

	// Snapshot the catalog once; registry edits mid-run apply next run.
	types := e.registry.All()

	result := &RunResult{}
	for _, p := range patients {
		n, err := e.regenerateOne(ctx, p, types)
		if err != nil {
			e.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("patient skipped during regeneration")
			result.Errors = append(result.Errors, PatientError{PatientID: p.ID, Reason: err.Error()})
			continue
		}
		result.UpdatedCount += n
	}

	e.cache.Clear()
	metrics.RecordRegenerationRun("all", "ok", time.Since(start))
	metrics.RecordRecordsUpserted(result.UpdatedCount)
	e.logger.Info().
		Int("updated", result.UpdatedCount).
		Int("skipped", len(result.Errors)).
		Dur("took", time.Since(start)).
		Msg("regeneration run finished")
	return result, nil
}

// RegeneratePatient recomputes one patient's records. Safe to call
// concurrently with other refreshes and with a full run; same-key writes are
// serialized by the repository's atomic upsert.
func (e *Engine) RegeneratePatient(ctx context.Context, patientID uuid.UUID) (*RunResult, error) {
	start := e.now()
	p, err := e.patients.GetPatient(ctx, patientID)
	if err != nil {
		metrics.RecordRegenerationRun("patient", "error", time.Since(start))
		return nil, err
	}

	n, err := e.regenerateOne(ctx, *p, e.registry.All())
	if err != nil {
		metrics.RecordRegenerationRun("patient", "error", time.Since(start))
		return nil, err
	}

	e.cache.Clear()
	metrics.RecordRegenerationRun("patient", "ok", time.Since(start))
	metrics.RecordRecordsUpserted(n)
	return &RunResult{UpdatedCount: n}, nil
}

// regenerateOne evaluates every catalog type for one patient and upserts the
// batch. Operator frequency overrides on existing records take precedence
// over the type defaults; an unparseable override evaluates to Incomplete.
func (e *Engine) regenerateOne(ctx context.Context, p PatientInfo, types []ScreeningType) (int, error) {
	existing, err := e.records.ListByPatient(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("load existing records: %w", err)
	}
	overrides := make(map[string]*string, len(existing))
	for _, rec := range existing {
		if rec.Frequency != nil {
			overrides[rec.ScreeningType] = rec.Frequency
		}
	}

	ref := e.now()
	recs := make([]*ScreeningRecord, 0, len(types))
	for _, t := range types {
		last, err := e.history.MostRecentCompletion(ctx, p.ID, t.Name)
		if err != nil {
			return 0, fmt.Errorf("history lookup for %s: %w", t.Name, err)
		}

		rule := t.Frequency
		if text, ok := overrides[t.Name]; ok {
			// parse failure leaves rule nil and the record Incomplete
			rule, _ = ParseFrequency(*text)
		}

		status, due := EvaluateWindow(last, rule, ref, e.dueSoonDays)
		recs = append(recs, &ScreeningRecord{
			PatientID:     p.ID,
			ScreeningType: t.Name,
			Status:        status,
			DueDate:       due,
			LastCompleted: last,
			GeneratedAt:   ref,
		})
	}

	if err := e.records.UpsertMany(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}
