// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/classgrade/internal/domain"
)

// Repository defines the interface for persisting users and schedules.
type Repository interface {
	// CreateUser inserts a user. Returns domain.ErrUserExists when the
	// username or email is taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by ID. Returns domain.ErrUserNotFound.
	GetUser(ctx context.Context, id int64) (*domain.User, error)

	// UpdateUser applies a partial update. The password, if set, must already
	// be hashed.
	UpdateUser(ctx context.Context, id int64, update domain.UserUpdate) (*domain.User, error)

	// DeleteUser removes a user and their schedules.
	DeleteUser(ctx context.Context, id int64) error

	// ListSchedules returns a user's schedules, newest first.
	ListSchedules(ctx context.Context, userID int64) ([]*domain.Schedule, error)

	// FavoriteSchedule returns the user's favorite schedule.
	// Returns domain.ErrScheduleNotFound when none is marked.
	FavoriteSchedule(ctx context.Context, userID int64) (*domain.Schedule, error)

	// SaveSchedule upserts a schedule by (userID, name).
	SaveSchedule(ctx context.Context, s *domain.Schedule) error

	// AddSchedule always inserts a new schedule.
	AddSchedule(ctx context.Context, s *domain.Schedule) error

	// DeleteSchedule removes one schedule owned by the user.
	DeleteSchedule(ctx context.Context, userID int64, scheduleID string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
