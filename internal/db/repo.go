package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	ierrors "clinical-intake/internal/errors"
	"clinical-intake/pkg"
)

// Repository stores finalized intake records and their narratives.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// CreateRecord persists a record and fills in its ID and creation time.
func (r *Repository) CreateRecord(ctx context.Context, rec *pkg.Record) error {
	structured, err := json.Marshal(rec.Structured)
	if err != nil {
		return err
	}
	var basic []byte
	if rec.BasicInfo != nil {
		if basic, err = json.Marshal(rec.BasicInfo); err != nil {
			return err
		}
	}
	id := uuid.New()
	err = r.DB.QueryRowContext(ctx,
		`INSERT INTO intake_records (id, session_id, department, basic_info, structured)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING created_at`,
		id, rec.SessionID, rec.Department, nullJSON(basic), structured,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return err
	}
	rec.ID = id.String()
	return nil
}

// GetRecord loads a record by ID.
func (r *Repository) GetRecord(ctx context.Context, id string) (*pkg.Record, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, ierrors.Newf(ierrors.ErrCodeRecordNotFound, "record %q not found", id)
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, session_id, department, basic_info, structured, created_at
         FROM intake_records
         WHERE id = $1`, rid)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ierrors.Newf(ierrors.ErrCodeRecordNotFound, "record %q not found", id)
	}
	return rec, err
}

// ListRecords returns the most recent records, newest first.
func (r *Repository) ListRecords(ctx context.Context, limit int) ([]pkg.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, session_id, department, basic_info, structured, created_at
         FROM intake_records
         ORDER BY created_at DESC
         LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SaveNarrative stores a generated story against its record.
func (r *Repository) SaveNarrative(ctx context.Context, recordID string, story *pkg.Story) (*pkg.Narrative, error) {
	rid, err := uuid.Parse(recordID)
	if err != nil {
		return nil, ierrors.Newf(ierrors.ErrCodeRecordNotFound, "record %q not found", recordID)
	}
	n := pkg.Narrative{RecordID: recordID, Department: story.Department, Story: story.Story, Model: story.Model}
	err = r.DB.QueryRowContext(ctx,
		`INSERT INTO narratives (record_id, department, story, model)
         VALUES ($1, $2, $3, $4)
         RETURNING id, created_at`,
		rid, n.Department, n.Story, n.Model,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// LatestNarrative returns the newest narrative for a record, or nil if none
// has been generated yet.
func (r *Repository) LatestNarrative(ctx context.Context, recordID string) (*pkg.Narrative, error) {
	rid, err := uuid.Parse(recordID)
	if err != nil {
		return nil, nil
	}
	var n pkg.Narrative
	err = r.DB.QueryRowContext(ctx,
		`SELECT id, record_id, department, story, model, created_at
         FROM narratives
         WHERE record_id = $1
         ORDER BY created_at DESC, id DESC
         LIMIT 1`, rid,
	).Scan(&n.ID, &n.RecordID, &n.Department, &n.Story, &n.Model, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*pkg.Record, error) {
	var (
		rec        pkg.Record
		basic      []byte
		structured []byte
		createdAt  time.Time
	)
	if err := s.Scan(&rec.ID, &rec.SessionID, &rec.Department, &basic, &structured, &createdAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = createdAt
	if len(basic) > 0 {
		rec.BasicInfo = &pkg.BasicInfo{}
		if err := json.Unmarshal(basic, rec.BasicInfo); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(structured, &rec.Structured); err != nil {
		return nil, err
	}
	return &rec, nil
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
