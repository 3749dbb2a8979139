// Package planner aggregates course assessments into comparisons and
// weekly schedule load estimates.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/orchestrator"
	"github.com/sourcegraph/conc/pool"
)

// ErrInvalidRequest marks caller mistakes such as unknown weights or too
// many courses.
var ErrInvalidRequest = errors.New("invalid request")

// Limits on request sizes.
const (
	MaxCompareCourses  = 10
	MaxScheduleCourses = 12
	DefaultMaxCredits  = 18
	fetchConcurrency   = 4
)

// Assessor serves course assessments.
type Assessor interface {
	Assess(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// Planner answers compare and schedule-load queries.
type Planner struct {
	assessor Assessor
}

// New creates a planner.
func New(a Assessor) *Planner {
	return &Planner{assessor: a}
}

// fetch assesses every course in parallel, preserving input order. The first
// failure cancels the rest.
func (p *Planner) fetch(ctx context.Context, ids []string, requester string) ([]orchestrator.Result, error) {
	out := make([]orchestrator.Result, len(ids))
	g := pool.New().
		WithErrors().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(fetchConcurrency)
	for i, id := range ids {
		g.Go(func(ctx context.Context) error {
			res, err := p.assessor.Assess(ctx, orchestrator.Request{CourseID: id, Requester: requester})
			if err != nil {
				return fmt.Errorf("assess %s: %w", id, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeIDs canonicalizes ids, drops duplicates in first-seen order and
// enforces 1..limit entries.
func normalizeIDs(raw []string, limit int) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id, err := domain.NormalizeCourseID(r)
		if err != nil {
			return nil, fmt.Errorf("%w: course id %q: %w", ErrInvalidRequest, r, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one course is required", ErrInvalidRequest)
	}
	if len(ids) > limit {
		return nil, fmt.Errorf("%w: at most %d courses are allowed, got %d", ErrInvalidRequest, limit, len(ids))
	}
	return ids, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// sortRanked orders by composite descending, breaking ties by course ID.
func sortRanked(items []CompareResult) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Composite != items[j].Composite {
			return items[i].Composite > items[j].Composite
		}
		return strings.Compare(items[i].CourseID, items[j].CourseID) < 0
	})
}
