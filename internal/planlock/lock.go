// Package planlock caches one plan per day and decides whether it can be reused.
package planlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/verte-zerg/dayplan/internal/logger"
	"github.com/verte-zerg/dayplan/internal/model"
)

// SchemaVersion is stamped on every written plan. Bump it when TodayPlan changes shape.
const SchemaVersion = 3

// ErrNoPlan is returned by persistence backends that prefer an error to a nil plan.
var ErrNoPlan = errors.New("no plan cached")

// ErrCorrupt marks a cached plan that failed validation after matching identity.
var ErrCorrupt = errors.New("cached plan corrupt")

// State is the lock outcome.
type State string

// Lock states.
const (
	StateReused  State = "reused"
	StateRebuild State = "rebuild"
)

// Persistence stores the plan for the current session context.
type Persistence interface {
	ReadTodayPlan(ctx context.Context) (*model.TodayPlan, error)
	SaveTodayPlan(ctx context.Context, plan model.TodayPlan) error
	ClearTodayPlan(ctx context.Context) error
}

// Resolver resolves lesson references. It errors on unknown ids.
type Resolver interface {
	ResolveLessonReference(ctx context.Context, lessonID string) (model.LessonMeta, error)
}

// Identity is the set of fields that must all match for reuse.
type Identity struct {
	DayKey        string
	WorldID       string
	RequestedMode model.Mode
	ContextTag    *string
}

// Tag converts an optional tag to its identity form. Empty means absent.
func Tag(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Decision is the result of Check.
type Decision struct {
	State   State
	Plan    *model.TodayPlan
	Lessons []model.LessonMeta
	RunID   string
	Reason  string
	// Err carries read or corruption failures. It is informational only.
	Err error
}

// Lock is the plan cache state machine.
type Lock struct {
	persist  Persistence
	resolver Resolver
	log      *logger.Logger
	newRunID func() string
}

// New creates a lock. persist and resolver may be nil.
func New(persist Persistence, resolver Resolver, log *logger.Logger) *Lock {
	return &Lock{
		persist:  persist,
		resolver: resolver,
		log:      logger.OrNop(log).With("component", "planlock"),
		newRunID: uuid.NewString,
	}
}

// Check reads the cached plan and reports whether it can be reused as is.
func (l *Lock) Check(ctx context.Context, id Identity) Decision {
	if l.persist == nil {
		return l.rebuild("no_persistence", nil)
	}
	cached, err := l.persist.ReadTodayPlan(ctx)
	if err != nil && !errors.Is(err, ErrNoPlan) {
		l.log.Warn("plan read failed", "day", id.DayKey, "error", err)
		l.clear(ctx, id)
		return l.rebuild("read_failed", fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	if cached == nil {
		return l.rebuild("miss", nil)
	}
	if reason := mismatch(*cached, id); reason != "" {
		return l.rebuild(reason, nil)
	}

	lessons := make([]model.LessonMeta, 0, len(cached.LessonIDs))
	for _, lessonID := range cached.LessonIDs {
		if l.resolver == nil {
			break
		}
		lesson, err := l.resolver.ResolveLessonReference(ctx, lessonID)
		if err != nil {
			l.log.Warn("cached plan references unresolvable lesson", "day", id.DayKey, "run_id", cached.RunID, "lesson", lessonID, "error", err)
			l.clear(ctx, id)
			return l.rebuild("corrupt", fmt.Errorf("%w: lesson %q: %v", ErrCorrupt, lessonID, err))
		}
		lessons = append(lessons, lesson)
	}
	return Decision{State: StateReused, Plan: cached, Lessons: lessons, RunID: cached.RunID, Reason: "hit"}
}

// Commit stamps identity fields and writes the plan. Writes are last-write-wins.
func (l *Lock) Commit(ctx context.Context, id Identity, runID string, plan model.TodayPlan) (model.TodayPlan, error) {
	plan.DayKey = id.DayKey
	plan.WorldID = id.WorldID
	plan.RequestedMode = id.RequestedMode
	plan.ContextTag = copyTag(id.ContextTag)
	plan.SchemaVersion = SchemaVersion
	plan.RunID = runID
	if l.persist == nil {
		return plan, nil
	}
	if err := l.persist.SaveTodayPlan(ctx, plan); err != nil {
		l.log.Warn("plan write failed", "day", id.DayKey, "run_id", runID, "error", err)
		return plan, fmt.Errorf("save plan: %w", err)
	}
	return plan, nil
}

func (l *Lock) rebuild(reason string, err error) Decision {
	return Decision{State: StateRebuild, RunID: l.newRunID(), Reason: reason, Err: err}
}

func (l *Lock) clear(ctx context.Context, id Identity) {
	if err := l.persist.ClearTodayPlan(ctx); err != nil {
		l.log.Warn("plan clear failed", "day", id.DayKey, "error", err)
	}
}

func mismatch(p model.TodayPlan, id Identity) string {
	switch {
	case p.SchemaVersion != SchemaVersion:
		return fmt.Sprintf("schema %d!=%d", p.SchemaVersion, SchemaVersion)
	case p.DayKey != id.DayKey:
		return fmt.Sprintf("day %s!=%s", p.DayKey, id.DayKey)
	case p.WorldID != id.WorldID:
		return fmt.Sprintf("world %s!=%s", p.WorldID, id.WorldID)
	case p.RequestedMode != id.RequestedMode:
		return fmt.Sprintf("mode %q!=%q", p.RequestedMode, id.RequestedMode)
	case !sameTag(p.ContextTag, id.ContextTag):
		return "context_tag"
	case len(p.LessonIDs) == 0 || p.ModuleID == "":
		return "empty_references"
	}
	return ""
}

func sameTag(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyTag(t *string) *string {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
