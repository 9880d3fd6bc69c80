package screening

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func waitForRun(t *testing.T, m *RunManager, id uuid.UUID) *Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, err := m.Status(id)
		if err != nil {
			t.Fatalf("status lookup failed: %v", err)
		}
		if run.Status == RunComplete || run.Status == RunError {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return nil
}

func TestRunManager_BackgroundRun(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	m := NewRunManager(f.engine, zerolog.Nop())

	run, err := m.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Fatal("expected a run ID")
	}

	done := waitForRun(t, m, run.ID)
	if done.Status != RunComplete {
		t.Fatalf("expected complete, got %s (%s)", done.Status, done.Error)
	}
	if done.UpdatedCount != 2 {
		t.Errorf("expected 2 records updated, got %d", done.UpdatedCount)
	}
	if done.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
}

func TestRunManager_SingleFlight(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	f.history.block = make(chan struct{})
	m := NewRunManager(f.engine, zerolog.Nop())

	first, err := m.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := m.Start()
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("the rejected call should get the in-flight run's handle")
	}

	close(f.history.block)
	waitForRun(t, m, first.ID)

	// the slot frees up once the run finishes
	third, err := m.Start()
	if err != nil {
		t.Fatalf("expected a fresh run after completion, got %v", err)
	}
	if third.ID == first.ID {
		t.Error("expected a new run ID")
	}
	waitForRun(t, m, third.ID)
}

func TestRunManager_RecordsPatientErrors(t *testing.T) {
	p1 := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	p2 := PatientInfo{ID: uuid.New(), Name: "Bob Brown", MRN: "MRN-002"}
	f := newEngineFixture(p1, p2)
	f.history.failFor[p2.ID] = errors.New("history provider unavailable")
	m := NewRunManager(f.engine, zerolog.Nop())

	run, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	done := waitForRun(t, m, run.ID)
	if done.Status != RunComplete {
		t.Fatalf("skipped patients must not fail the run, got %s", done.Status)
	}
	if done.UpdatedCount != 2 {
		t.Errorf("expected 2 updates, got %d", done.UpdatedCount)
	}
	if len(done.Errors) != 1 || done.Errors[0].PatientID != p2.ID {
		t.Errorf("expected one recorded error for patient 2, got %+v", done.Errors)
	}
}

func TestRunManager_StatusUnknownRun(t *testing.T) {
	f := newEngineFixture()
	m := NewRunManager(f.engine, zerolog.Nop())
	if _, err := m.Status(uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunManager_StatusReturnsSnapshot(t *testing.T) {
	p1 := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(p1)
	f.history.failFor[p1.ID] = errors.New("boom")
	m := NewRunManager(f.engine, zerolog.Nop())

	run, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	done := waitForRun(t, m, run.ID)
	done.Errors[0].Reason = "mutated by caller"

	again, err := m.Status(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Errors[0].Reason == "mutated by caller" {
		t.Error("Status must return an isolated copy")
	}
}
