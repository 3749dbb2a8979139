package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/shared"
	"github.com/google/uuid"
)

const scheduleColumns = `id, user_id, name, items_json, favorite, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var sch domain.Schedule
	var itemsJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&sch.ID, &sch.UserID, &sch.Name, &itemsJSON, &sch.Favorite, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &sch.Items); err != nil {
		return nil, fmt.Errorf("decode schedule items: %w", err)
	}
	if sch.Items == nil {
		sch.Items = []domain.ScheduleItem{}
	}
	sch.CreatedAt = time.Unix(createdAt, 0).UTC()
	sch.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sch, nil
}

// ListSchedules returns every schedule owned by userID, newest first.
func (s *SQLiteStore) ListSchedules(ctx context.Context, userID int64) ([]*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE user_id = ? ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close schedule rows", "error", closeErr)
		}
	}()

	out := []*domain.Schedule{}
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		out = append(out, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return out, nil
}

// FavoriteSchedule returns the schedule the user marked as favorite.
func (s *SQLiteStore) FavoriteSchedule(ctx context.Context, userID int64) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE user_id = ? AND favorite = 1`

	sch, err := scanSchedule(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan favorite schedule: %w", err)
	}
	return sch, nil
}

// SaveSchedule updates the user's schedule with the same name, or inserts
// a new one. ID and timestamps are filled in on return.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, sch *domain.Schedule) error {
	return s.writeSchedule(ctx, sch, true)
}

// AddSchedule inserts sch as a new schedule even if the name is taken.
func (s *SQLiteStore) AddSchedule(ctx context.Context, sch *domain.Schedule) error {
	return s.writeSchedule(ctx, sch, false)
}

func (s *SQLiteStore) writeSchedule(ctx context.Context, sch *domain.Schedule, upsert bool) error {
	sch.Name = strings.TrimSpace(sch.Name)
	if sch.Name == "" {
		sch.Name = domain.DefaultScheduleName
	}
	if sch.Items == nil {
		sch.Items = []domain.ScheduleItem{}
	}
	items, err := json.Marshal(sch.Items)
	if err != nil {
		return fmt.Errorf("encode schedule items: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	err = shared.WithRetry(ctx, "write schedule", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if sch.Favorite {
			if _, err := tx.ExecContext(ctx,
				`UPDATE schedules SET favorite = 0, updated_at = ? WHERE user_id = ? AND favorite = 1`,
				now.Unix(), sch.UserID); err != nil {
				return err
			}
		}

		var existingID string
		var createdAt int64
		if upsert {
			err := tx.QueryRowContext(ctx,
				`SELECT id, created_at FROM schedules WHERE user_id = ? AND name = ? ORDER BY created_at DESC LIMIT 1`,
				sch.UserID, sch.Name).Scan(&existingID, &createdAt)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		if existingID != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE schedules SET items_json = ?, favorite = ?, updated_at = ? WHERE id = ?`,
				string(items), sch.Favorite, now.Unix(), existingID); err != nil {
				return err
			}
			sch.ID = existingID
			sch.CreatedAt = time.Unix(createdAt, 0).UTC()
		} else {
			sch.ID = uuid.NewString()
			sch.CreatedAt = now
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sch.ID, sch.UserID, sch.Name, string(items), sch.Favorite, now.Unix(), now.Unix()); err != nil {
				return err
			}
		}
		sch.UpdatedAt = now
		return tx.Commit()
	})
	if shared.IsForeignKeyViolation(err) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes scheduleID if userID owns it.
func (s *SQLiteStore) DeleteSchedule(ctx context.Context, userID int64, scheduleID string) error {
	var rows int64
	err := shared.WithRetry(ctx, "delete schedule", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND user_id = ?`, scheduleID, userID)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if rows == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}
