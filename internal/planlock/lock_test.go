package planlock

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/verte-zerg/dayplan/internal/model"
)

type fakeResolver struct {
	known map[string]bool
}

func (f fakeResolver) ResolveLessonReference(_ context.Context, id string) (model.LessonMeta, error) {
	if !f.known[id] {
		return model.LessonMeta{}, fmt.Errorf("unknown lesson %q", id)
	}
	return model.LessonMeta{ID: id}, nil
}

type failingPersistence struct {
	readErr error
	cleared bool
}

func (f *failingPersistence) ReadTodayPlan(context.Context) (*model.TodayPlan, error) {
	return nil, f.readErr
}

func (f *failingPersistence) SaveTodayPlan(context.Context, model.TodayPlan) error {
	return errors.New("disk full")
}

func (f *failingPersistence) ClearTodayPlan(context.Context) error {
	f.cleared = true
	return nil
}

func resolver() fakeResolver {
	return fakeResolver{known: map[string]bool{"l1": true, "l2": true}}
}

func identity(day string) Identity {
	return Identity{DayKey: day, WorldID: "core", ContextTag: Tag("anxiety")}
}

func committed(t *testing.T, lock *Lock, id Identity) model.TodayPlan {
	t.Helper()
	plan, err := lock.Commit(context.Background(), id, "run-1", model.TodayPlan{
		Mode:      model.ModeShort,
		Cluster:   model.ClusterClarity,
		ModuleID:  "clarity",
		LessonIDs: []string{"l1"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return plan
}

func TestCheckMissWithoutPersistence(t *testing.T) {
	d := New(nil, nil, nil).Check(context.Background(), identity("2024-01-10"))
	if d.State != StateRebuild || d.RunID == "" {
		t.Fatalf("expected rebuild with run id, got %+v", d)
	}
}

func TestCheckReusesMatchingPlan(t *testing.T) {
	mem := NewMemoryPersistence()
	lock := New(mem, resolver(), nil)
	plan := committed(t, lock, identity("2024-01-10"))
	if plan.SchemaVersion != SchemaVersion || plan.RunID != "run-1" || plan.DayKey != "2024-01-10" {
		t.Fatalf("identity not stamped: %+v", plan)
	}

	d := lock.Check(context.Background(), identity("2024-01-10"))
	if d.State != StateReused {
		t.Fatalf("expected reuse, got %+v", d)
	}
	if d.RunID != "run-1" || len(d.Lessons) != 1 || d.Lessons[0].ID != "l1" {
		t.Fatalf("unexpected reuse decision: %+v", d)
	}
}

func TestCheckRebuildsOnNewDay(t *testing.T) {
	mem := NewMemoryPersistence()
	lock := New(mem, resolver(), nil)
	committed(t, lock, identity("2024-01-10"))

	d := lock.Check(context.Background(), identity("2024-01-11"))
	if d.State != StateRebuild {
		t.Fatalf("expected rebuild, got %s", d.State)
	}
	if d.RunID == "" || d.RunID == "run-1" {
		t.Fatalf("expected fresh run id, got %q", d.RunID)
	}
	if d.Reason != "day 2024-01-10!=2024-01-11" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestCheckIdentityMismatches(t *testing.T) {
	base := identity("2024-01-10")
	cases := map[string]Identity{
		"world":     {DayKey: base.DayKey, WorldID: "other", ContextTag: base.ContextTag},
		"mode":      {DayKey: base.DayKey, WorldID: base.WorldID, RequestedMode: model.ModeDeep, ContextTag: base.ContextTag},
		"tag":       {DayKey: base.DayKey, WorldID: base.WorldID, ContextTag: Tag("panic")},
		"tag unset": {DayKey: base.DayKey, WorldID: base.WorldID},
	}
	for name, id := range cases {
		mem := NewMemoryPersistence()
		lock := New(mem, resolver(), nil)
		committed(t, lock, base)
		if d := lock.Check(context.Background(), id); d.State != StateRebuild {
			t.Fatalf("%s: expected rebuild, got %+v", name, d)
		}
	}
}

func TestCheckBothTagsAbsentMatch(t *testing.T) {
	mem := NewMemoryPersistence()
	lock := New(mem, resolver(), nil)
	id := Identity{DayKey: "2024-01-10", WorldID: "core", ContextTag: Tag("")}
	committed(t, lock, id)
	if d := lock.Check(context.Background(), Identity{DayKey: "2024-01-10", WorldID: "core"}); d.State != StateReused {
		t.Fatalf("absent tags should match, got %+v", d)
	}
}

func TestCheckCorruptionClearsCache(t *testing.T) {
	mem := NewMemoryPersistence()
	lock := New(mem, resolver(), nil)
	id := identity("2024-01-10")
	if _, err := lock.Commit(context.Background(), id, "run-1", model.TodayPlan{
		ModuleID:  "clarity",
		LessonIDs: []string{"l1", "gone"},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	d := lock.Check(context.Background(), id)
	if d.State != StateRebuild || !errors.Is(d.Err, ErrCorrupt) {
		t.Fatalf("expected corruption rebuild, got %+v", d)
	}
	if d.RunID == "run-1" {
		t.Fatalf("expected fresh run id")
	}
	if len(mem.Raw()) != 0 {
		t.Fatalf("expected cache cleared")
	}
}

func TestCheckUndecodableCache(t *testing.T) {
	mem := NewMemoryPersistence()
	mem.SetRaw([]byte("{not json"))
	d := New(mem, resolver(), nil).Check(context.Background(), identity("2024-01-10"))
	if d.State != StateRebuild || !errors.Is(d.Err, ErrCorrupt) {
		t.Fatalf("expected rebuild on undecodable cache, got %+v", d)
	}
	if len(mem.Raw()) != 0 {
		t.Fatalf("expected cache cleared")
	}
}

func TestCheckEmptyReferences(t *testing.T) {
	mem := NewMemoryPersistence()
	lock := New(mem, resolver(), nil)
	id := identity("2024-01-10")
	if _, err := lock.Commit(context.Background(), id, "run-1", model.TodayPlan{ModuleID: "clarity"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if d := lock.Check(context.Background(), id); d.State != StateRebuild || d.Reason != "empty_references" {
		t.Fatalf("expected rebuild on empty references, got %+v", d)
	}
}

func TestCheckStaleSchema(t *testing.T) {
	mem := NewMemoryPersistence()
	id := identity("2024-01-10")
	if err := mem.SaveTodayPlan(context.Background(), model.TodayPlan{
		DayKey: id.DayKey, WorldID: id.WorldID, ContextTag: id.ContextTag,
		SchemaVersion: SchemaVersion - 1, ModuleID: "clarity", LessonIDs: []string{"l1"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if d := New(mem, resolver(), nil).Check(context.Background(), id); d.State != StateRebuild {
		t.Fatalf("expected rebuild on old schema, got %+v", d)
	}
}

func TestReadAndWriteFailures(t *testing.T) {
	fp := &failingPersistence{readErr: errors.New("io timeout")}
	lock := New(fp, resolver(), nil)
	d := lock.Check(context.Background(), identity("2024-01-10"))
	if d.State != StateRebuild || d.Err == nil || !fp.cleared {
		t.Fatalf("expected rebuild after read failure, got %+v", d)
	}
	plan, err := lock.Commit(context.Background(), identity("2024-01-10"), d.RunID, model.TodayPlan{ModuleID: "m"})
	if err == nil {
		t.Fatalf("expected write error")
	}
	if plan.RunID != d.RunID {
		t.Fatalf("stamped plan must still be returned on write failure")
	}

	missing := &failingPersistence{readErr: ErrNoPlan}
	d = New(missing, resolver(), nil).Check(context.Background(), identity("2024-01-10"))
	if d.State != StateRebuild || d.Err != nil || d.Reason != "miss" {
		t.Fatalf("ErrNoPlan must be a plain miss, got %+v", d)
	}
}
