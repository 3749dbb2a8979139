// Package cache stores validated course assessments with a freshness window.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
)

// ErrCacheUnavailable wraps any backend failure.
var ErrCacheUnavailable = errors.New("cache unavailable")

// DefaultTTL is the freshness window used when none is configured.
const DefaultTTL = 6 * time.Hour

// Entry is one cached assessment.
type Entry struct {
	CourseID   string            `json:"courseId"`
	Assessment domain.Assessment `json:"assessment"`
	StoredAt   time.Time         `json:"storedAt"`
}

// Age reports how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Backend is a key/value store for entries. Implementations must make Put
// atomic per key: concurrent writers leave exactly one of the written values.
type Backend interface {
	Get(ctx context.Context, courseID string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, courseID string) error
	Len(ctx context.Context) (int, error)
}

// Cache applies key normalization, validation and the TTL policy on top of a
// Backend.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache. A non-positive ttl falls back to DefaultTTL.
func New(backend Backend, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{backend: backend, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Now returns the cache's current time.
func (c *Cache) Now() time.Time { return c.now() }

// Fresh reports whether e is within the freshness window. The boundary is
// inclusive. Both ends are compared at the millisecond precision StoredAt is
// kept in.
func (c *Cache) Fresh(e Entry) bool {
	return e.Age(c.now().Truncate(time.Millisecond)) <= c.ttl
}

// Lookup returns the entry for courseID and whether it is still fresh.
func (c *Cache) Lookup(ctx context.Context, courseID string) (entry Entry, fresh, found bool, err error) {
	id, err := domain.NormalizeCourseID(courseID)
	if err != nil {
		return Entry{}, false, false, err
	}
	entry, found, err = c.backend.Get(ctx, id)
	if err != nil {
		return Entry{}, false, false, fmt.Errorf("%w: get %s: %w", ErrCacheUnavailable, id, err)
	}
	if !found {
		return Entry{}, false, false, nil
	}
	return entry, c.Fresh(entry), true, nil
}

// Store validates and writes an assessment, overwriting any previous entry.
func (c *Cache) Store(ctx context.Context, courseID string, a domain.Assessment) (Entry, error) {
	id, err := domain.NormalizeCourseID(courseID)
	if err != nil {
		return Entry{}, err
	}
	a = a.Normalized()
	if err := a.Validate(); err != nil {
		return Entry{}, fmt.Errorf("refusing to cache %s: %w", id, err)
	}

	// Millisecond precision is what the SQL backends persist.
	e := Entry{CourseID: id, Assessment: a, StoredAt: c.now().UTC().Truncate(time.Millisecond)}
	if err := c.backend.Put(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("%w: put %s: %w", ErrCacheUnavailable, id, err)
	}
	return e, nil
}

// Delete removes the entry for courseID if present.
func (c *Cache) Delete(ctx context.Context, courseID string) error {
	id, err := domain.NormalizeCourseID(courseID)
	if err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrCacheUnavailable, id, err)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	n, err := c.backend.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: len: %w", ErrCacheUnavailable, err)
	}
	return n, nil
}
