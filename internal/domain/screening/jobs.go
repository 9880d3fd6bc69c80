package screening

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyRunning signals that a full regeneration is in flight.
	// Callers treat it as "already in progress", not a failure.
	ErrAlreadyRunning = errors.New("regeneration already in progress")

	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("regeneration run not found")
)

// RunStatus is the lifecycle state of a background regeneration run.
type RunStatus string

const (
	RunQueued   RunStatus = "queued"
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunError    RunStatus = "error"
)

// Run is the pollable handle for a background full regeneration.
type Run struct {
	ID           uuid.UUID      `json:"run_id"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	UpdatedCount int            `json:"updated_count"`
	Errors       []PatientError `json:"errors,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// RunManager executes full regenerations as background jobs, enforcing
// single-flight per process: at most one run in flight at a time. Completed
// runs stay queryable for status polling.
type RunManager struct {
	engine *Engine
	logger zerolog.Logger

	mu       sync.RWMutex
	runs     map[uuid.UUID]*Run
	activeID uuid.UUID
}

func NewRunManager(engine *Engine, logger zerolog.Logger) *RunManager {
	return &RunManager{
		engine: engine,
		logger: logger,
		runs:   make(map[uuid.UUID]*Run),
	}
}

// Start launches a background full regeneration and returns its handle.
// If one is already in flight, the in-flight run's handle is returned
// together with ErrAlreadyRunning.
func (m *RunManager) Start() (*Run, error) {
	m.mu.Lock()
	if m.activeID != uuid.Nil {
		active := m.runs[m.activeID]
		snapshot := snapshotRun(active)
		m.mu.Unlock()
		return snapshot, ErrAlreadyRunning
	}

	run := &Run{
		ID:        uuid.New(),
		Status:    RunQueued,
		StartedAt: time.Now(),
	}
	m.runs[run.ID] = run
	m.activeID = run.ID
	m.mu.Unlock()

	go m.process(run.ID)
	return snapshotRun(run), nil
}

// Status returns a snapshot of the run with the given ID.
func (m *RunManager) Status(id uuid.UUID) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return snapshotRun(run), nil
}

// process runs detached from the triggering request: a full-population run
// must not hold the caller's request context open.
func (m *RunManager) process(id uuid.UUID) {
	ctx := context.Background()

	m.mu.Lock()
	m.runs[id].Status = RunRunning
	m.mu.Unlock()

	result, err := m.engine.RegenerateAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[id]
	now := time.Now()
	run.CompletedAt = &now
	if err != nil {
		run.Status = RunError
		run.Error = err.Error()
		m.logger.Error().Err(err).Str("run_id", id.String()).Msg("regeneration run failed")
	} else {
		run.Status = RunComplete
		run.UpdatedCount = result.UpdatedCount
		run.Errors = result.Errors
	}
	m.activeID = uuid.Nil
}

func snapshotRun(run *Run) *Run {
	copied := *run
	if run.Errors != nil {
		copied.Errors = make([]PatientError, len(run.Errors))
		copy(copied.Errors, run.Errors)
	}
	return &copied
}
