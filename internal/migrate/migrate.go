// Package migrate replays locally collected guest state into an account once
// the user signs in.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/dayplan/internal/logger"
	"github.com/verte-zerg/dayplan/internal/model"
)

// Flags is the guest migration state kept on the device.
type Flags struct {
	Pending  bool `json:"pending"`
	Migrated bool `json:"migrated"`
}

// FlagStore persists Flags.
type FlagStore interface {
	LoadFlags(ctx context.Context) (Flags, error)
	SaveFlags(ctx context.Context, flags Flags) error
}

// LocalSignals is whatever guest state exists locally. Nil fields are skipped.
type LocalSignals struct {
	PacingAnswer *string
	ShownCard    *model.ShownCard
	CompletedRun *model.PracticeRecord
}

// Empty reports whether there is nothing to replay.
func (s LocalSignals) Empty() bool {
	return s.PacingAnswer == nil && s.ShownCard == nil && s.CompletedRun == nil
}

// Source reads the local guest signals.
type Source interface {
	LocalSignals(ctx context.Context) (LocalSignals, error)
}

// Recorder writes replayed signals into account-backed storage. Every method
// must tolerate being called more than once with the same data.
type Recorder interface {
	RecordPacingAnswer(ctx context.Context, userID, answer string) error
	RecordShownCard(ctx context.Context, userID string, card model.ShownCard) error
	RecordPractice(ctx context.Context, userID string, rec model.PracticeRecord) error
}

// Outcome describes what OnIdentity did.
type Outcome struct {
	Replayed int
	Skipped  bool
	Err      error
}

// Migrator runs the replay batch.
type Migrator struct {
	flags    FlagStore
	source   Source
	recorder Recorder
	log      *logger.Logger
}

// New creates a Migrator.
func New(flags FlagStore, source Source, recorder Recorder, log *logger.Logger) *Migrator {
	return &Migrator{
		flags:    flags,
		source:   source,
		recorder: recorder,
		log:      logger.OrNop(log).With("stage", "migrate"),
	}
}

// MarkPending records that meaningful guest state exists.
func (m *Migrator) MarkPending(ctx context.Context) error {
	flags, err := m.flags.LoadFlags(ctx)
	if err != nil {
		return fmt.Errorf("load migration flags: %w", err)
	}
	if flags.Migrated || flags.Pending {
		return nil
	}
	flags.Pending = true
	return m.flags.SaveFlags(ctx, flags)
}

// OnIdentity runs when a stable user id becomes available. Errors are
// reported in the Outcome, never returned: a failed batch leaves the pending
// flag set so the next sign-in retries every task.
func (m *Migrator) OnIdentity(ctx context.Context, userID string) Outcome {
	log := m.log.With("user", userID)
	flags, err := m.flags.LoadFlags(ctx)
	if err != nil {
		log.Warn("migration flags unreadable", "error", err)
		return Outcome{Err: err}
	}
	if flags.Migrated {
		if flags.Pending {
			flags.Pending = false
			if err := m.flags.SaveFlags(ctx, flags); err != nil {
				log.Warn("clear pending failed", "error", err)
				return Outcome{Skipped: true, Err: err}
			}
		}
		return Outcome{Skipped: true}
	}

	signals, err := m.source.LocalSignals(ctx)
	if err != nil {
		log.Warn("local signals unreadable", "error", err)
		return Outcome{Err: err}
	}

	tasks := m.tasks(userID, signals)
	if err := run(ctx, tasks, log); err != nil {
		return Outcome{Err: err}
	}

	flags.Migrated = true
	flags.Pending = false
	if err := m.flags.SaveFlags(ctx, flags); err != nil {
		log.Warn("save migration flags failed", "error", err)
		return Outcome{Replayed: len(tasks), Err: err}
	}
	log.Info("guest state migrated", "tasks", len(tasks))
	return Outcome{Replayed: len(tasks)}
}

type task struct {
	name string
	fn   func(context.Context) error
}

func (m *Migrator) tasks(userID string, s LocalSignals) []task {
	var tasks []task
	if s.PacingAnswer != nil {
		answer := *s.PacingAnswer
		tasks = append(tasks, task{"pacing_answer", func(ctx context.Context) error {
			return m.recorder.RecordPacingAnswer(ctx, userID, answer)
		}})
	}
	if s.ShownCard != nil {
		card := *s.ShownCard
		tasks = append(tasks, task{"shown_card", func(ctx context.Context) error {
			return m.recorder.RecordShownCard(ctx, userID, card)
		}})
	}
	if s.CompletedRun != nil {
		rec := *s.CompletedRun
		rec.UserID = userID
		tasks = append(tasks, task{"completed_run", func(ctx context.Context) error {
			return m.recorder.RecordPractice(ctx, userID, rec)
		}})
	}
	return tasks
}

// run executes every task concurrently. One failure does not cancel the
// others; all errors are collected.
func run(ctx context.Context, tasks []task, log *logger.Logger) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, t := range tasks {
		g.Go(func() error {
			if err := t.fn(ctx); err != nil {
				log.Warn("replay task failed", "task", t.name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// MemoryFlags is an in-process FlagStore.
type MemoryFlags struct {
	mu    sync.Mutex
	flags Flags
}

// LoadFlags implements FlagStore.
func (m *MemoryFlags) LoadFlags(context.Context) (Flags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags, nil
}

// SaveFlags implements FlagStore.
func (m *MemoryFlags) SaveFlags(_ context.Context, flags Flags) error {
	m.mu.Lock()
	m.flags = flags
	m.mu.Unlock()
	return nil
}
