package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/shared"
)

// SQLite stores entries in the course_assessments table of the service
// database. The table is created by the store migrations.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a backend on an already migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Get implements Backend.
func (s *SQLite) Get(ctx context.Context, courseID string) (Entry, bool, error) {
	const q = `SELECT assessment_json, stored_at FROM course_assessments WHERE course_id = ?`

	var (
		js       []byte
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, q, courseID).Scan(&js, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("scan assessment row: %w", err)
	}

	a, err := domain.DecodeAssessment(js)
	if err != nil {
		return Entry{}, false, fmt.Errorf("decode cached assessment: %w", err)
	}
	return Entry{CourseID: courseID, Assessment: a, StoredAt: time.UnixMilli(storedAt).UTC()}, true, nil
}

// Put implements Backend.
func (s *SQLite) Put(ctx context.Context, e Entry) error {
	js, err := json.Marshal(e.Assessment)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	const q = `
	INSERT INTO course_assessments (course_id, assessment_json, stored_at)
	VALUES (?, ?, ?)
	ON CONFLICT(course_id) DO UPDATE SET
		assessment_json = excluded.assessment_json,
		stored_at = excluded.stored_at`

	err = shared.WithRetry(ctx, "upsert assessment", func() error {
		_, err := s.db.ExecContext(ctx, q, e.CourseID, string(js), e.StoredAt.UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (s *SQLite) Delete(ctx context.Context, courseID string) error {
	err := shared.WithRetry(ctx, "delete assessment", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM course_assessments WHERE course_id = ?`, courseID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	return nil
}

// Len implements Backend.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM course_assessments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assessments: %w", err)
	}
	return n, nil
}

var _ Backend = (*SQLite)(nil)
