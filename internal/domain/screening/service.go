package screening

import (
	"context"

	"github.com/google/uuid"
)

// Service is the facade the HTTP layer talks to: cached reads, background
// full regeneration, scoped patient refresh, and the type catalog.
type Service struct {
	registry *Registry
	engine   *Engine
	runs     *RunManager
	query    *QueryService
}

func NewService(registry *Registry, engine *Engine, runs *RunManager, query *QueryService) *Service {
	return &Service{registry: registry, engine: engine, runs: runs, query: query}
}

func (s *Service) List(ctx context.Context, q Query) (*ListResult, error) {
	return s.query.List(ctx, q)
}

func (s *Service) Types() []ScreeningType {
	return s.registry.All()
}

// StartRegenerateAll launches a background full run. When one is already in
// flight it returns that run's handle with ErrAlreadyRunning.
func (s *Service) StartRegenerateAll() (*Run, error) {
	return s.runs.Start()
}

func (s *Service) RunStatus(id uuid.UUID) (*Run, error) {
	return s.runs.Status(id)
}

// RefreshPatient synchronously recomputes one patient's records; the scope
// is small enough to stay on the request path.
func (s *Service) RefreshPatient(ctx context.Context, patientID uuid.UUID) (*RunResult, error) {
	return s.engine.RegeneratePatient(ctx, patientID)
}
