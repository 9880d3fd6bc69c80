package screening

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/visitprep/visitprep/internal/platform/cache"
)

// -- mocks shared by the engine, query, and handler tests --

type recordKey struct {
	patient uuid.UUID
	typ     string
}

type mockRecordRepo struct {
	mu      sync.Mutex
	records map[recordKey]*ScreeningRecord
	failAll bool
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[recordKey]*ScreeningRecord)}
}

// seed installs a record directly, bypassing upsert semantics.
func (m *mockRecordRepo) seed(rec *ScreeningRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.records[recordKey{rec.PatientID, rec.ScreeningType}] = rec
}

func (m *mockRecordRepo) get(patientID uuid.UUID, typ string) *ScreeningRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[recordKey{patientID, typ}]
}

func (m *mockRecordRepo) Upsert(ctx context.Context, rec *ScreeningRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(rec)
}

// upsertLocked mirrors the SQL ON CONFLICT clause: computed fields change,
// operator-owned fields and identity survive.
func (m *mockRecordRepo) upsertLocked(rec *ScreeningRecord) error {
	if m.failAll {
		return errors.New("record store unavailable")
	}
	key := recordKey{rec.PatientID, rec.ScreeningType}
	if existing, ok := m.records[key]; ok {
		existing.Status = rec.Status
		existing.DueDate = rec.DueDate
		existing.LastCompleted = rec.LastCompleted
		existing.GeneratedAt = rec.GeneratedAt
		existing.UpdatedAt = time.Now()
		return nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	copied := *rec
	m.records[key] = &copied
	return nil
}

func (m *mockRecordRepo) UpsertMany(ctx context.Context, recs []*ScreeningRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		if err := m.upsertLocked(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRecordRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ScreeningRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*ScreeningRecord
	for key, rec := range m.records {
		if key.patient == patientID {
			copied := *rec
			items = append(items, &copied)
		}
	}
	return items, nil
}

func (m *mockRecordRepo) matches(rec *ScreeningRecord, f Filter) bool {
	if f.Status != "" && !strings.EqualFold(f.Status, "all") && !strings.EqualFold(string(rec.Status), f.Status) {
		return false
	}
	if f.ScreeningType != "" && !strings.EqualFold(f.ScreeningType, "all") && !strings.EqualFold(rec.ScreeningType, f.ScreeningType) {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		if !strings.Contains(strings.ToLower(rec.PatientName), s) && !strings.Contains(strings.ToLower(rec.PatientMRN), s) {
			return false
		}
	}
	return true
}

func (m *mockRecordRepo) filtered(f Filter) []*ScreeningRecord {
	var items []*ScreeningRecord
	for _, rec := range m.records {
		if m.matches(rec, f) {
			copied := *rec
			items = append(items, &copied)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].PatientName != items[j].PatientName {
			return items[i].PatientName < items[j].PatientName
		}
		return items[i].ScreeningType < items[j].ScreeningType
	})
	return items
}

func (m *mockRecordRepo) List(ctx context.Context, f Filter, limit, offset int) ([]*ScreeningRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.filtered(f)
	total := len(items)
	if offset >= len(items) {
		return nil, total, nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (m *mockRecordRepo) CountByStatus(ctx context.Context, f Filter) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	for _, rec := range m.filtered(f) {
		counts[rec.Status]++
	}
	return counts, nil
}

type mockDirectory struct {
	patients []PatientInfo
}

func (m *mockDirectory) ListPatients(ctx context.Context) ([]PatientInfo, error) {
	return append([]PatientInfo(nil), m.patients...), nil
}

func (m *mockDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*PatientInfo, error) {
	for _, p := range m.patients {
		if p.ID == id {
			copied := p
			return &copied, nil
		}
	}
	return nil, ErrPatientNotFound
}

type mockHistory struct {
	mu          sync.Mutex
	completions map[recordKey]time.Time
	failFor     map[uuid.UUID]error
	block       chan struct{}
}

func newMockHistory() *mockHistory {
	return &mockHistory{
		completions: make(map[recordKey]time.Time),
		failFor:     make(map[uuid.UUID]error),
	}
}

func (m *mockHistory) setCompletion(patientID uuid.UUID, typ string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions[recordKey{patientID, typ}] = at
}

func (m *mockHistory) MostRecentCompletion(ctx context.Context, patientID uuid.UUID, screeningType string) (*time.Time, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[patientID]; ok {
		return nil, err
	}
	if at, ok := m.completions[recordKey{patientID, screeningType}]; ok {
		return &at, nil
	}
	return nil, nil
}

type engineFixture struct {
	engine   *Engine
	records  *mockRecordRepo
	patients *mockDirectory
	history  *mockHistory
	cache    *cache.Store
	registry *Registry
}

func newEngineFixture(patients ...PatientInfo) *engineFixture {
	f := &engineFixture{
		records:  newMockRecordRepo(),
		patients: &mockDirectory{patients: patients},
		history:  newMockHistory(),
		cache:    cache.New(0),
		registry: NewRegistry(
			ScreeningType{Name: "Mammogram", Frequency: &FrequencyRule{Count: 1, Unit: UnitYear}},
			ScreeningType{Name: "Flu Vaccine", Frequency: &FrequencyRule{Count: 1, Unit: UnitYear}},
		),
	}
	f.engine = NewEngine(f.records, f.patients, f.history, f.registry, f.cache, zerolog.Nop(), DueSoonWindowDays)
	f.engine.now = func() time.Time { return date(2024, time.June, 15) }
	return f
}

// -- tests --

func TestRegenerateAll_ComputesStatuses(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	f.history.setCompletion(alice.ID, "Mammogram", date(2024, time.January, 10))

	result, err := f.engine.RegenerateAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.UpdatedCount != 2 {
		t.Errorf("expected 2 records updated, got %d", result.UpdatedCount)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}

	mammo := f.records.get(alice.ID, "Mammogram")
	if mammo == nil {
		t.Fatal("mammogram record missing")
	}
	if mammo.Status != StatusComplete {
		t.Errorf("completed 2024-01-10, due 2025-01-10, ref 2024-06-15: expected Complete, got %s", mammo.Status)
	}
	if mammo.DueDate == nil || !mammo.DueDate.Equal(date(2025, time.January, 10)) {
		t.Errorf("expected due 2025-01-10, got %v", mammo.DueDate)
	}

	flu := f.records.get(alice.ID, "Flu Vaccine")
	if flu == nil {
		t.Fatal("flu vaccine record missing")
	}
	if flu.Status != StatusDue {
		t.Errorf("never completed: expected Due, got %s", flu.Status)
	}
}

func TestRegenerateAll_PartialFailure(t *testing.T) {
	p1 := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	p2 := PatientInfo{ID: uuid.New(), Name: "Bob Brown", MRN: "MRN-002"}
	p3 := PatientInfo{ID: uuid.New(), Name: "Cara Cruz", MRN: "MRN-003"}
	f := newEngineFixture(p1, p2, p3)
	f.history.failFor[p2.ID] = errors.New("history provider unavailable")

	result, err := f.engine.RegenerateAll(context.Background())
	if err != nil {
		t.Fatalf("a skipped patient must not fail the run: %v", err)
	}
	if result.UpdatedCount != 4 {
		t.Errorf("expected 4 records (2 patients x 2 types), got %d", result.UpdatedCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].PatientID != p2.ID {
		t.Fatalf("expected one error for patient 2, got %+v", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Reason, "history provider unavailable") {
		t.Errorf("expected cause in reason, got %q", result.Errors[0].Reason)
	}

	if f.records.get(p1.ID, "Mammogram") == nil || f.records.get(p3.ID, "Mammogram") == nil {
		t.Error("records for patients 1 and 3 should exist")
	}
	if f.records.get(p2.ID, "Mammogram") != nil {
		t.Error("no records should have been written for the failed patient")
	}
}

func TestRegenerateAll_Idempotent(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	f.history.setCompletion(alice.ID, "Mammogram", date(2023, time.December, 1))

	if _, err := f.engine.RegenerateAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := snapshotRecords(f.records)

	if _, err := f.engine.RegenerateAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := snapshotRecords(f.records)

	if len(first) != len(second) {
		t.Fatalf("record count changed: %d vs %d", len(first), len(second))
	}
	for key, a := range first {
		b := second[key]
		if a != b {
			t.Errorf("record %v changed across identical runs:\n  first:  %v\n  second: %v", key, a, b)
		}
	}
}

// recordSnapshot is the computed state of a record, excluding the
// regeneration-timestamp bookkeeping.
type recordSnapshot struct {
	id            uuid.UUID
	status        Status
	dueDate       string
	lastCompleted string
	notes         string
}

func snapshotRecords(repo *mockRecordRepo) map[recordKey]recordSnapshot {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	out := make(map[recordKey]recordSnapshot, len(repo.records))
	for key, rec := range repo.records {
		snap := recordSnapshot{id: rec.ID, status: rec.Status}
		if rec.DueDate != nil {
			snap.dueDate = rec.DueDate.Format("2006-01-02")
		}
		if rec.LastCompleted != nil {
			snap.lastCompleted = rec.LastCompleted.Format("2006-01-02")
		}
		if rec.Notes != nil {
			snap.notes = *rec.Notes
		}
		out[key] = snap
	}
	return out
}

func TestRegenerateAll_PreservesNotes(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	notes := "patient declined last visit, revisit in fall"
	f.records.seed(&ScreeningRecord{
		PatientID:     alice.ID,
		ScreeningType: "Mammogram",
		Status:        StatusDue,
		Notes:         &notes,
	})

	if _, err := f.engine.RegenerateAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := f.records.get(alice.ID, "Mammogram")
	if rec.Notes == nil || *rec.Notes != notes {
		t.Errorf("notes must survive regeneration, got %v", rec.Notes)
	}
}

func TestRegenerateAll_FrequencyOverride(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	// completed 2024-01-10; type default "1 year" would be Complete at the
	// fixture's 2024-06-15 reference, the "6 months" override makes it Due Soon
	override := "6 months"
	f.records.seed(&ScreeningRecord{
		PatientID:     alice.ID,
		ScreeningType: "Mammogram",
		Status:        StatusDue,
		Frequency:     &override,
	})
	f.history.setCompletion(alice.ID, "Mammogram", date(2024, time.January, 10))

	if _, err := f.engine.RegenerateAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := f.records.get(alice.ID, "Mammogram")
	if rec.Status != StatusDueSoon {
		t.Errorf("override should govern evaluation: expected Due Soon, got %s", rec.Status)
	}
	if rec.DueDate == nil || !rec.DueDate.Equal(date(2024, time.July, 10)) {
		t.Errorf("expected due 2024-07-10, got %v", rec.DueDate)
	}
	if rec.Frequency == nil || *rec.Frequency != override {
		t.Errorf("override must survive regeneration, got %v", rec.Frequency)
	}
}

func TestRegenerateAll_UnparseableOverride(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	override := "whenever convenient"
	f.records.seed(&ScreeningRecord{
		PatientID:     alice.ID,
		ScreeningType: "Mammogram",
		Status:        StatusDue,
		Frequency:     &override,
	})
	f.history.setCompletion(alice.ID, "Mammogram", date(2024, time.January, 10))

	if _, err := f.engine.RegenerateAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec := f.records.get(alice.ID, "Mammogram"); rec.Status != StatusIncomplete {
		t.Errorf("unparseable override: expected Incomplete, got %s", rec.Status)
	}
}

func TestRegenerateAll_ClearsCache(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	f := newEngineFixture(alice)
	f.cache.Set("screenings|stale", "stale page")

	if _, err := f.engine.RegenerateAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.cache.Len() != 0 {
		t.Errorf("expected cache cleared, %d entries remain", f.cache.Len())
	}
}

func TestRegeneratePatient_UnknownPatient(t *testing.T) {
	f := newEngineFixture()
	_, err := f.engine.RegeneratePatient(context.Background(), uuid.New())
	if !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestRegeneratePatient_ScopedToOnePatient(t *testing.T) {
	alice := PatientInfo{ID: uuid.New(), Name: "Alice Adams", MRN: "MRN-001"}
	bob := PatientInfo{ID: uuid.New(), Name: "Bob Brown", MRN: "MRN-002"}
	f := newEngineFixture(alice, bob)
	f.cache.Set("screenings|stale", "stale page")

	result, err := f.engine.RegeneratePatient(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.UpdatedCount != 2 {
		t.Errorf("expected 2 records for one patient, got %d", result.UpdatedCount)
	}
	if f.records.get(bob.ID, "Mammogram") != nil {
		t.Error("other patients must not be touched by a scoped refresh")
	}
	if f.cache.Len() != 0 {
		t.Error("scoped refresh must invalidate the cache too")
	}
}
