package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// Postgres stores entries in an external database shared between replicas.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, applies the cache migrations and returns the
// backend. Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing, migrated pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("open cache migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, p.db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run cache migrations: %w", err)
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Get implements Backend.
func (p *Postgres) Get(ctx context.Context, courseID string) (Entry, bool, error) {
	const q = `select assessment_json, stored_at from course_assessments where course_id = $1`

	var (
		js []byte
		ts time.Time
	)
	err := p.db.QueryRowContext(ctx, q, courseID).Scan(&js, &ts)
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
	return Entry{CourseID: courseID, Assessment: a, StoredAt: ts.UTC()}, true, nil
}

// Put implements Backend.
func (p *Postgres) Put(ctx context.Context, e Entry) error {
	js, err := json.Marshal(e.Assessment)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	const q = `
insert into course_assessments(course_id, assessment_json, stored_at)
values ($1, $2, $3)
on conflict (course_id)
do update set assessment_json = excluded.assessment_json, stored_at = excluded.stored_at`
	if _, err := p.db.ExecContext(ctx, q, e.CourseID, js, e.StoredAt); err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (p *Postgres) Delete(ctx context.Context, courseID string) error {
	if _, err := p.db.ExecContext(ctx, `delete from course_assessments where course_id = $1`, courseID); err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	return nil
}

// Len implements Backend.
func (p *Postgres) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `select count(*) from course_assessments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assessments: %w", err)
	}
	return n, nil
}

var _ Backend = (*Postgres)(nil)
