package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"faceattend/internal/recognition"
)

// Repository persists attendance records in Postgres, one row per class|name.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS attendance_records (
	record_key       TEXT PRIMARY KEY,
	class_name       TEXT NOT NULL,
	student_name     TEXT NOT NULL,
	status           TEXT NOT NULL,
	last_update_date DATE NOT NULL,
	last_update_ts   TIMESTAMPTZ NOT NULL,
	version          BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_attendance_records_class ON attendance_records (class_name);
`

// EnsureSchema creates the records table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Get returns the record of id, or nil when none exists.
func (r *Repository) Get(ctx context.Context, id recognition.Identity) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT class_name, student_name, status, last_update_date, last_update_ts, version
		FROM attendance_records WHERE record_key = $1
	`, id.Key())
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert overwrites the record and bumps its version.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (record_key, class_name, student_name, status, last_update_date, last_update_ts, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (record_key) DO UPDATE SET
			status = EXCLUDED.status,
			last_update_date = EXCLUDED.last_update_date,
			last_update_ts = EXCLUDED.last_update_ts,
			version = attendance_records.version + 1
	`, rec.Identity().Key(), rec.Class, rec.Student, string(rec.Status), rec.Date, rec.UpdatedAt)
	return err
}

// PutIfMatch inserts when expected is 0, otherwise updates only the row still at version expected.
func (r *Repository) PutIfMatch(ctx context.Context, expected int64, rec Record) error {
	var (
		res sql.Result
		err error
	)
	if expected == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO attendance_records (record_key, class_name, student_name, status, last_update_date, last_update_ts, version)
			VALUES ($1, $2, $3, $4, $5, $6, 1)
			ON CONFLICT (record_key) DO NOTHING
		`, rec.Identity().Key(), rec.Class, rec.Student, string(rec.Status), rec.Date, rec.UpdatedAt)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE attendance_records
			SET status = $2, last_update_date = $3, last_update_ts = $4, version = version + 1
			WHERE record_key = $1 AND version = $5
		`, rec.Identity().Key(), string(rec.Status), rec.Date, rec.UpdatedAt, expected)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListByClass returns every record of class ordered by student name.
func (r *Repository) ListByClass(ctx context.Context, class string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT class_name, student_name, status, last_update_date, last_update_ts, version
		FROM attendance_records
		WHERE class_name = $1
		ORDER BY student_name
	`, class)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec    Record
		status string
		date   time.Time
	)
	if err := s.Scan(&rec.Class, &rec.Student, &status, &date, &rec.UpdatedAt, &rec.Version); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.Date = date.Format(DateLayout)
	return rec, nil
}
