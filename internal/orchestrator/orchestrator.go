// Package orchestrator drives the cache-then-research state machine that
// serves course assessments.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/classgrade/internal/cache"
	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/research"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// State is a step of the assessment state machine.
type State string

// States, in the order a full miss visits them.
const (
	StateCheckingCache      State = "checking_cache"
	StateResearchInProgress State = "research_in_progress"
	StateCaching            State = "caching"
	StateDone               State = "done"
)

// Status describes how a result was obtained.
type Status string

// Result statuses.
const (
	StatusHit    Status = "hit"    // fresh cache entry
	StatusStale  Status = "stale"  // expired entry served, refresh scheduled
	StatusMiss   Status = "miss"   // no entry, researched synchronously
	StatusBypass Status = "bypass" // caller asked for fresh research
)

// DefaultRefreshTimeout bounds a background refresh when no option is given.
const DefaultRefreshTimeout = 50 * time.Second

// Researcher produces a validated assessment for one course.
type Researcher interface {
	Research(ctx context.Context, req research.Request) (*research.Report, error)
}

// Cache is the subset of cache.Cache the orchestrator needs.
type Cache interface {
	Lookup(ctx context.Context, courseID string) (cache.Entry, bool, bool, error)
	Store(ctx context.Context, courseID string, a domain.Assessment) (cache.Entry, error)
}

// Request asks for the assessment of one course.
type Request struct {
	CourseID    string
	Fresh       bool   // skip the cache lookup
	Requester   string // opaque identity of the caller, for logs
	Instruction string // optional research instruction override
}

// Result is a served assessment together with how it was produced.
type Result struct {
	Entry     cache.Entry
	Status    Status
	Path      []State
	SessionID string // research session, empty when served from cache
}

type outcome struct {
	entry     cache.Entry
	sessionID string
}

// Orchestrator owns the cache and the researcher and is safe for concurrent
// use. Call Wait before shutdown to drain background refreshes.
type Orchestrator struct {
	researcher     Researcher
	cache          Cache
	logger         *slog.Logger
	refreshTimeout time.Duration
	now            func() time.Time

	flight     singleflight.Group
	refreshing sync.Map // course ID -> struct{} while a background refresh runs
	bg         conc.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRefreshTimeout bounds background refreshes and detached synchronous
// research. It should exceed the researcher's own timeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.refreshTimeout = d
		}
	}
}

// WithClock overrides the time source used for uncached results.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(researcher Researcher, c Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		researcher:     researcher,
		cache:          c,
		logger:         slog.Default(),
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Assess returns the assessment for req.CourseID. A fresh hit returns
// immediately, a stale hit returns the old value and refreshes in the
// background, and a miss or a fresh request researches synchronously.
// The returned Result carries the visited path even when err is non-nil.
func (o *Orchestrator) Assess(ctx context.Context, req Request) (Result, error) {
	id, err := domain.NormalizeCourseID(req.CourseID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	enter := func(s State) {
		res.Path = append(res.Path, s)
		research.Emit(ctx, research.Event{Type: research.EventState, CourseID: id, State: string(s)})
	}

	res.Status = StatusBypass
	if !req.Fresh {
		res.Status = StatusMiss
		enter(StateCheckingCache)

		entry, fresh, found, err := o.cache.Lookup(ctx, id)
		switch {
		case err != nil:
			o.logger.Warn("Cache lookup failed, treating as miss",
				"course_id", id,
				"error", err)
		case found && fresh:
			res.Entry = entry
			res.Status = StatusHit
			enter(StateDone)
			return res, nil
		case found:
			res.Entry = entry
			res.Status = StatusStale
			o.refresh(id, req.Instruction)
			enter(StateDone)
			return res, nil
		}
	}

	enter(StateResearchInProgress)
	out, err := o.researchShared(ctx, id, req.Instruction)
	if err != nil {
		enter(StateDone)
		o.logger.Warn("Assessment failed",
			"course_id", id,
			"requester", req.Requester,
			"status", res.Status,
			"error", err)
		return res, err
	}

	enter(StateCaching)
	res.Entry = out.entry
	res.SessionID = out.sessionID
	enter(StateDone)
	return res, nil
}

// researchShared runs research for id, joining an identical call already in
// flight. The work is detached from ctx so that one caller giving up does not
// fail the others; ctx only bounds how long this caller waits.
func (o *Orchestrator) researchShared(ctx context.Context, id, instruction string) (outcome, error) {
	ch := o.flight.DoChan(id, func() (any, error) {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.refreshTimeout)
		defer cancel()
		return o.researchAndStore(detached, id, instruction)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return outcome{}, r.Err
		}
		return r.Val.(outcome), nil
	case <-ctx.Done():
		return outcome{}, fmt.Errorf("%w: %w", research.ErrResearchIncomplete, ctx.Err())
	}
}

func (o *Orchestrator) researchAndStore(ctx context.Context, id, instruction string) (outcome, error) {
	report, err := o.researcher.Research(ctx, research.Request{CourseID: id, Instruction: instruction})
	if err != nil {
		return outcome{}, err
	}

	out := outcome{}
	if report.Session != nil {
		out.sessionID = report.Session.ID
	}

	entry, err := o.cache.Store(ctx, id, report.Assessment)
	if err != nil {
		o.logger.Error("Failed to cache assessment, serving uncached result",
			"course_id", id,
			"error", err)
		entry = cache.Entry{CourseID: id, Assessment: report.Assessment.Normalized(), StoredAt: o.now().UTC()}
	}
	out.entry = entry
	return out, nil
}

// refresh schedules a background refresh of id unless one is already running.
// It reports whether a new refresh was started.
func (o *Orchestrator) refresh(id, instruction string) bool {
	if _, running := o.refreshing.LoadOrStore(id, struct{}{}); running {
		o.logger.Debug("Refresh already in flight", "course_id", id)
		return false
	}

	o.bg.Go(func() {
		defer o.refreshing.Delete(id)

		ctx, cancel := context.WithTimeout(context.Background(), o.refreshTimeout)
		defer cancel()

		start := time.Now()
		_, err, _ := o.flight.Do(id, func() (any, error) {
			return o.researchAndStore(ctx, id, instruction)
		})
		if err != nil {
			o.logger.Warn("Background refresh failed",
				"course_id", id,
				"error", err)
			return
		}
		o.logger.Info("Background refresh complete",
			"course_id", id,
			"duration", time.Since(start))
	})
	return true
}

// Wait blocks until every background refresh has finished. A panic in a
// refresh is logged, not re-raised.
func (o *Orchestrator) Wait() {
	if r := o.bg.WaitAndRecover(); r != nil {
		o.logger.Error("Background refresh panicked", "panic", r.Value)
	}
}
