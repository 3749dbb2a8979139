package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/shared"
)

// CreateUser inserts a user and fills in its ID and timestamps.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (username, email, password_hash, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	now := time.Now().UTC().Truncate(time.Second)
	var id int64
	err := shared.WithRetry(ctx, "create user", func() error {
		res, err := s.db.ExecContext(ctx, query,
			user.Username, user.Email, user.PasswordHash, now.Unix(), now.Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if shared.IsUniqueViolation(err) {
		return domain.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.getUser(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getUser(ctx context.Context, q queryer, id int64) (*domain.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?`

	var user domain.User
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &user, nil
}

// UpdateUser applies the non-nil fields of update.
func (s *SQLiteStore) UpdateUser(ctx context.Context, id int64, update domain.UserUpdate) (*domain.User, error) {
	query := `
	UPDATE users SET
		username = COALESCE(?, username),
		email = COALESCE(?, email),
		password_hash = COALESCE(?, password_hash),
		updated_at = ?
	WHERE id = ?`

	var updated *domain.User
	err := shared.WithRetry(ctx, "update user", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, query,
			nullable(update.Username), nullable(update.Email), nullable(update.Password),
			time.Now().Unix(), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrUserNotFound
		}

		updated, err = s.getUser(ctx, tx, id)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	case shared.IsUniqueViolation(err):
		return nil, domain.ErrUserExists
	case err != nil:
		return nil, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// DeleteUser removes a user. Their schedules go with them.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	var rows int64
	err := shared.WithRetry(ctx, "delete user", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
