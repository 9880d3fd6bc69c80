package screening

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `sr.id, sr.patient_id, p.name, p.mrn, sr.screening_type, sr.status,
	sr.due_date, sr.last_completed, sr.frequency, sr.notes,
	sr.generated_at, sr.created_at, sr.updated_at`

func scanRecord(row pgx.Row) (*ScreeningRecord, error) {
	var rec ScreeningRecord
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.PatientName, &rec.PatientMRN,
		&rec.ScreeningType, &rec.Status,
		&rec.DueDate, &rec.LastCompleted, &rec.Frequency, &rec.Notes,
		&rec.GeneratedAt, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

// upsert inserts or updates one record atomically. On conflict only the
// computed fields change; notes and the frequency override are operator-owned
// and left untouched.
func upsert(ctx context.Context, q queryable, rec *ScreeningRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO screening_records
			(id, patient_id, screening_type, status, due_date, last_completed, frequency, generated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (patient_id, screening_type) DO UPDATE SET
			status = EXCLUDED.status,
			due_date = EXCLUDED.due_date,
			last_completed = EXCLUDED.last_completed,
			generated_at = EXCLUDED.generated_at,
			updated_at = NOW()`,
		rec.ID, rec.PatientID, rec.ScreeningType, rec.Status,
		rec.DueDate, rec.LastCompleted, rec.Frequency, rec.GeneratedAt)
	return err
}

func (r *recordRepoPG) Upsert(ctx context.Context, rec *ScreeningRecord) error {
	return upsert(ctx, r.pool, rec)
}

// UpsertMany writes a batch of records in one transaction so a patient's
// refresh lands atomically.
func (r *recordRepoPG) UpsertMany(ctx context.Context, recs []*ScreeningRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range recs {
		if err := upsert(ctx, tx, rec); err != nil {
			return fmt.Errorf("upsert %s for patient %s: %w", rec.ScreeningType, rec.PatientID, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ScreeningRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordCols+`
		FROM screening_records sr
		JOIN patients p ON p.id = sr.patient_id
		WHERE sr.patient_id = $1
		ORDER BY sr.screening_type`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ScreeningRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// where builds the WHERE clause for a filter. "all" (or empty) disables a
// dimension; search matches name and MRN case-insensitively.
func (f Filter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Status != "" && !strings.EqualFold(f.Status, "all") {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("sr.status = $%d", len(args)))
	}
	if f.ScreeningType != "" && !strings.EqualFold(f.ScreeningType, "all") {
		args = append(args, f.ScreeningType)
		clauses = append(clauses, fmt.Sprintf("LOWER(sr.screening_type) = LOWER($%d)", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		clauses = append(clauses, fmt.Sprintf("(p.name ILIKE $%d OR p.mrn ILIKE $%d)", len(args), len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *recordRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*ScreeningRecord, int, error) {
	where, args := f.where()
	base := ` FROM screening_records sr JOIN patients p ON p.id = sr.patient_id` + where

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordCols+base+
			fmt.Sprintf(` ORDER BY p.name, sr.screening_type LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ScreeningRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *recordRepoPG) CountByStatus(ctx context.Context, f Filter) (map[Status]int, error) {
	where, args := f.where()
	rows, err := r.pool.Query(ctx, `
		SELECT sr.status, COUNT(*)
		FROM screening_records sr
		JOIN patients p ON p.id = sr.patient_id`+where+`
		GROUP BY sr.status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}
