package planner

import (
	"context"
	"errors"
	"time"

	"github.com/verte-zerg/dayplan/internal/history"
	"github.com/verte-zerg/dayplan/internal/model"
)

// ErrNoLedger is returned by round operations when no ledger is configured.
var ErrNoLedger = errors.New("earned rounds not configured")

// Completion is the outcome of RecordComplete.
type Completion struct {
	// AllDone is true once every lesson of the plan is complete today.
	AllDone     bool
	Earned      bool
	Rounds      model.EarnedRoundState
	Diagnostics []Diagnostic
}

// RecordStart records that a lesson of plan was started.
func (p *Planner) RecordStart(plan model.TodayPlan, lessonID string) {
	rec := p.record(plan, lessonID)
	rec.StartedAt = p.opts.Now()
	if p.deps.History != nil {
		p.deps.Writer.Submit(Task{Name: "practice_start", Run: func(ctx context.Context) error {
			return p.deps.History.RecordPracticeStart(ctx, rec)
		}})
	}
	p.markGuestState()
}

// RecordComplete records a completed lesson. Completing the last pending
// lesson of today's plan earns one extra round.
func (p *Planner) RecordComplete(ctx context.Context, plan model.TodayPlan, lessonID string, durationSeconds int) Completion {
	var diags diagnostics
	today := p.Today()
	done := p.completedToday(ctx, today, &diags)
	already := done[lessonID]
	done[lessonID] = true

	now := p.opts.Now()
	rec := p.record(plan, lessonID)
	rec.Completed = true
	rec.CompletedAt = now
	if durationSeconds > 0 {
		rec.DurationSeconds = durationSeconds
		rec.StartedAt = now.Add(-time.Duration(durationSeconds) * time.Second)
	}
	if p.deps.History != nil {
		p.deps.Writer.Submit(Task{Name: "practice_complete", Run: func(ctx context.Context) error {
			return p.deps.History.RecordPracticeComplete(ctx, rec)
		}})
	}
	p.markGuestState()

	out := Completion{AllDone: len(plan.LessonIDs) > 0}
	for _, id := range plan.LessonIDs {
		if !done[id] {
			out.AllDone = false
			break
		}
	}
	if p.deps.Rounds != nil {
		if out.AllDone && !already {
			out.Rounds = p.deps.Rounds.Earn(ctx, today, 1)
			out.Earned = true
		} else {
			out.Rounds = p.deps.Rounds.State(ctx, today)
		}
	}
	out.Diagnostics = diags.list
	return out
}

// RecordAttempt feeds a scored attempt to the difficulty engine and returns
// the updated snapshot.
func (p *Planner) RecordAttempt(ctx context.Context, score int, seconds float64) model.PerformanceSnapshot {
	engine := p.engineFor(ctx, nil, p.log)
	p.mu.Lock()
	engine.Record(score, seconds)
	snap := engine.Snapshot()
	p.mu.Unlock()
	if p.deps.Snapshots != nil {
		p.deps.Writer.Submit(Task{Name: "snapshot", Run: func(ctx context.Context) error {
			return p.deps.Snapshots.SaveSnapshot(ctx, p.userID, snap)
		}})
	}
	return snap
}

// Rounds returns today's earned round state.
func (p *Planner) Rounds(ctx context.Context) (model.EarnedRoundState, error) {
	if p.deps.Rounds == nil {
		return model.EarnedRoundState{}, ErrNoLedger
	}
	return p.deps.Rounds.State(ctx, p.Today()), nil
}

// SpendRound consumes one earned round.
func (p *Planner) SpendRound(ctx context.Context) (model.EarnedRoundState, error) {
	if p.deps.Rounds == nil {
		return model.EarnedRoundState{}, ErrNoLedger
	}
	return p.deps.Rounds.Spend(ctx, p.Today())
}

// SignIn replays guest state into the account identified by userID.
func (p *Planner) SignIn(ctx context.Context, userID string) []Diagnostic {
	if p.deps.Guest == nil {
		return nil
	}
	p.deps.Writer.Flush()
	out := p.deps.Guest.OnIdentity(ctx, userID)
	if out.Err != nil {
		return []Diagnostic{{Stage: "migrate", Kind: KindReplayFailure, Err: out.Err}}
	}
	return nil
}

func (p *Planner) record(plan model.TodayPlan, lessonID string) model.PracticeRecord {
	return model.PracticeRecord{
		UserID:   p.userID,
		DayKey:   p.Today(),
		Cluster:  plan.Cluster,
		Mode:     plan.Mode,
		LessonID: lessonID,
	}
}

func (p *Planner) completedToday(ctx context.Context, today string, diags *diagnostics) map[string]bool {
	done := map[string]bool{}
	if p.deps.History == nil {
		return done
	}
	p.deps.Writer.Flush()
	raws, err := p.deps.History.PracticeHistory(ctx, p.userID, p.opts.HistoryLimit)
	if err != nil {
		p.log.Warn("history read failed", "stage", "complete", "day", today, "error", err)
		diags.add("history", KindMissingInput, err)
		return done
	}
	records, _ := history.Canonicalize(raws)
	for _, rec := range records {
		if rec.DayKey == today && rec.Completed {
			done[rec.LessonID] = true
		}
	}
	return done
}
