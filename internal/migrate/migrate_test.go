package migrate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/verte-zerg/dayplan/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticSource struct {
	signals LocalSignals
}

func (s staticSource) LocalSignals(context.Context) (LocalSignals, error) {
	return s.signals, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
}

func newRecorder() *fakeRecorder {
	return &fakeRecorder{calls: map[string]int{}, failures: map[string]error{}}
}

func (f *fakeRecorder) hit(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.failures[name]
}

func (f *fakeRecorder) RecordPacingAnswer(context.Context, string, string) error {
	return f.hit("pacing_answer")
}

func (f *fakeRecorder) RecordShownCard(context.Context, string, model.ShownCard) error {
	return f.hit("shown_card")
}

func (f *fakeRecorder) RecordPractice(_ context.Context, userID string, rec model.PracticeRecord) error {
	if rec.UserID != userID {
		return errors.New("record not re-keyed to account")
	}
	return f.hit("completed_run")
}

func allSignals() LocalSignals {
	answer := "steady"
	return LocalSignals{
		PacingAnswer: &answer,
		ShownCard:    &model.ShownCard{CardID: "one-step", DayKey: "2024-01-10"},
		CompletedRun: &model.PracticeRecord{UserID: "guest", DayKey: "2024-01-10", Completed: true},
	}
}

func TestOnIdentityReplaysAndFlips(t *testing.T) {
	flags := &MemoryFlags{}
	rec := newRecorder()
	m := New(flags, staticSource{allSignals()}, rec, nil)
	if err := m.MarkPending(context.Background()); err != nil {
		t.Fatalf("mark pending: %v", err)
	}

	out := m.OnIdentity(context.Background(), "u1")
	if out.Err != nil || out.Replayed != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	got, _ := flags.LoadFlags(context.Background())
	if !got.Migrated || got.Pending {
		t.Fatalf("expected migrated and not pending, got %+v", got)
	}
}

func TestOnIdentityPartialFailureKeepsPending(t *testing.T) {
	flags := &MemoryFlags{flags: Flags{Pending: true}}
	rec := newRecorder()
	rec.failures["shown_card"] = errors.New("offline")
	m := New(flags, staticSource{allSignals()}, rec, nil)

	out := m.OnIdentity(context.Background(), "u1")
	if out.Err == nil {
		t.Fatalf("expected batch error")
	}
	got, _ := flags.LoadFlags(context.Background())
	if got.Migrated || !got.Pending {
		t.Fatalf("partial failure must leave pending set, got %+v", got)
	}
	if rec.calls["pacing_answer"] != 1 || rec.calls["completed_run"] != 1 {
		t.Fatalf("other tasks must still run: %v", rec.calls)
	}

	delete(rec.failures, "shown_card")
	out = m.OnIdentity(context.Background(), "u1")
	if out.Err != nil || out.Replayed != 3 {
		t.Fatalf("retry must replay the whole batch, got %+v", out)
	}
	if rec.calls["pacing_answer"] != 2 {
		t.Fatalf("expected duplicate replay, got %v", rec.calls)
	}
}

func TestOnIdentityAlreadyMigrated(t *testing.T) {
	flags := &MemoryFlags{flags: Flags{Pending: true, Migrated: true}}
	rec := newRecorder()
	m := New(flags, staticSource{allSignals()}, rec, nil)

	out := m.OnIdentity(context.Background(), "u1")
	if !out.Skipped || out.Err != nil {
		t.Fatalf("expected skip, got %+v", out)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("no replay expected, got %v", rec.calls)
	}
	got, _ := flags.LoadFlags(context.Background())
	if got.Pending {
		t.Fatalf("pending must be cleared")
	}
}

func TestOnIdentityNothingToReplay(t *testing.T) {
	flags := &MemoryFlags{flags: Flags{Pending: true}}
	m := New(flags, staticSource{}, newRecorder(), nil)
	if out := m.OnIdentity(context.Background(), "u1"); out.Err != nil || out.Replayed != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	got, _ := flags.LoadFlags(context.Background())
	if !got.Migrated || got.Pending {
		t.Fatalf("empty batch should still complete, got %+v", got)
	}
}
