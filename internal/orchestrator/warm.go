package orchestrator

import (
	"context"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
)

// Warm schedules a background refresh for courseID when its cache entry is
// missing or stale. It reports whether a refresh was started.
func (o *Orchestrator) Warm(ctx context.Context, courseID string) (bool, error) {
	id, err := domain.NormalizeCourseID(courseID)
	if err != nil {
		return false, err
	}

	_, fresh, found, err := o.cache.Lookup(ctx, id)
	if err != nil {
		o.logger.Warn("Warm lookup failed, refreshing anyway", "course_id", id, "error", err)
	} else if found && fresh {
		return false, nil
	}
	return o.refresh(id, ""), nil
}

// StartWarmWorker runs a background goroutine that keeps the given courses
// warm, sweeping once at start and then every interval until ctx is done.
func (o *Orchestrator) StartWarmWorker(ctx context.Context, courses []string, interval time.Duration) {
	if len(courses) == 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		o.logger.Info("Warm worker started", "interval", interval, "courses", len(courses))

		o.warmAll(ctx, courses)
		for {
			select {
			case <-ticker.C:
				o.warmAll(ctx, courses)
			case <-ctx.Done():
				o.logger.Info("Warm worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (o *Orchestrator) warmAll(ctx context.Context, courses []string) {
	started := 0
	for _, c := range courses {
		if ctx.Err() != nil {
			return
		}
		ok, err := o.Warm(ctx, c)
		if err != nil {
			o.logger.Error("Warm worker skipped course", "course_id", c, "error", err)
			continue
		}
		if ok {
			started++
		}
	}
	if started > 0 {
		o.logger.Info("Warm worker scheduled refreshes", "count", started)
	}
}
