package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestConflictErrors(t *testing.T) {
	assert.True(t, IsSQLiteConflictError(errors.New("SQLITE_BUSY: database busy")))
	assert.True(t, IsSQLiteConflictError(fmt.Errorf("exec: %w", errors.New("database is locked (5)"))))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
	assert.False(t, IsSQLiteConflictError(nil))
}

func TestConstraintErrors(t *testing.T) {
	sqliteUnique := errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")
	sqliteFK := errors.New("constraint failed: FOREIGN KEY constraint failed (787)")
	pgUnique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	pgFK := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(sqliteUnique))
	assert.True(t, IsUniqueViolation(pgUnique))
	assert.False(t, IsUniqueViolation(sqliteFK))
	assert.False(t, IsUniqueViolation(nil))

	assert.True(t, IsForeignKeyViolation(sqliteFK))
	assert.True(t, IsForeignKeyViolation(pgFK))
	assert.False(t, IsForeignKeyViolation(pgUnique))
	assert.False(t, IsForeignKeyViolation(nil))
}
