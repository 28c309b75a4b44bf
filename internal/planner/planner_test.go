package planner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/verte-zerg/dayplan/internal/catalog"
	"github.com/verte-zerg/dayplan/internal/history"
	"github.com/verte-zerg/dayplan/internal/ledger"
	"github.com/verte-zerg/dayplan/internal/model"
	"github.com/verte-zerg/dayplan/internal/planlock"
	"github.com/verte-zerg/dayplan/internal/policy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errOffline = errors.New("offline")

func fixedNow() time.Time {
	return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
}

type memHistory struct {
	mu      sync.Mutex
	raws    []history.RawRecord
	readErr error
}

func (m *memHistory) PracticeHistory(context.Context, string, int) ([]history.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return append([]history.RawRecord(nil), m.raws...), nil
}

func (m *memHistory) RecordPracticeStart(_ context.Context, rec model.PracticeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raws = append(m.raws, history.RawRecord{Day: rec.DayKey, PracticeRecord: rec})
	return nil
}

func (m *memHistory) RecordPracticeComplete(ctx context.Context, rec model.PracticeRecord) error {
	return m.RecordPracticeStart(ctx, rec)
}

type failing struct{}

func (failing) AxisProfile(context.Context, string) (model.AxisProfile, error) { return nil, errOffline }
func (failing) PracticeHistory(context.Context, string, int) ([]history.RawRecord, error) {
	return nil, errOffline
}
func (failing) RecordPracticeStart(context.Context, model.PracticeRecord) error    { return errOffline }
func (failing) RecordPracticeComplete(context.Context, model.PracticeRecord) error { return errOffline }
func (failing) LoadSnapshot(context.Context, string) (*model.PerformanceSnapshot, error) {
	return nil, errOffline
}
func (failing) SaveSnapshot(context.Context, string, model.PerformanceSnapshot) error {
	return errOffline
}
func (failing) ReadTodayPlan(context.Context) (*model.TodayPlan, error) { return nil, errOffline }
func (failing) SaveTodayPlan(context.Context, model.TodayPlan) error    { return errOffline }
func (failing) ClearTodayPlan(context.Context) error                    { return errOffline }
func (failing) ShownCards(context.Context, string, int) ([]model.ShownCard, error) {
	return nil, errOffline
}
func (failing) RecordShownCard(context.Context, string, model.ShownCard) error { return errOffline }

type staticProfile model.AxisProfile

func (s staticProfile) AxisProfile(context.Context, string) (model.AxisProfile, error) {
	return model.AxisProfile(s), nil
}

func newPlanner(t *testing.T, deps Deps) *Planner {
	t.Helper()
	if deps.Content == nil {
		cat, err := catalog.Default()
		if err != nil {
			t.Fatalf("catalog: %v", err)
		}
		deps.Content = cat
	}
	if deps.Writer == nil {
		deps.Writer = NewWriter(nil)
	}
	t.Cleanup(deps.Writer.Close)
	return New(Options{UserID: "u1", Now: fixedNow}, deps)
}

func TestPlanTodayIsIdempotentWithinDay(t *testing.T) {
	plans := planlock.NewMemoryPersistence()
	p := newPlanner(t, Deps{Plans: plans, History: &memHistory{}})
	req := Request{WorldID: "core", ContextTag: "anxiety"}

	first := p.PlanToday(context.Background(), req)
	if first.Reused {
		t.Fatalf("first call must build")
	}
	if len(first.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", first.Diagnostics)
	}
	second := p.PlanToday(context.Background(), req)
	if !second.Reused {
		t.Fatalf("second call must reuse")
	}
	if diff := cmp.Diff(first.Plan, second.Plan); diff != "" {
		t.Fatalf("plan changed (-first +second):\n%s", diff)
	}
	a, _ := json.Marshal(first.Plan)
	b, _ := json.Marshal(second.Plan)
	if string(a) != string(b) {
		t.Fatalf("plans not byte-identical:\n%s\n%s", a, b)
	}
	if second.Prompts.Primary == nil || second.Prompts.Primary.ID != first.Plan.PrimaryCardID {
		t.Fatalf("reused prompts must match plan, got %+v", second.Prompts)
	}
}

func TestPlanTodayDefaultsWithoutProfile(t *testing.T) {
	p := newPlanner(t, Deps{Plans: planlock.NewMemoryPersistence()})
	res := p.PlanToday(context.Background(), Request{})
	plan := res.Plan
	if plan.Cluster != model.ClusterClarity || plan.Mode != model.ModeShort {
		t.Fatalf("unexpected default plan %+v", plan)
	}
	if diff := cmp.Diff([]string{"clarity-02"}, plan.LessonIDs); diff != "" {
		t.Fatalf("lessons mismatch (-want +got):\n%s", diff)
	}
	if plan.WorldID != "core" || plan.DayKey != "2024-01-10" || plan.RunID == "" {
		t.Fatalf("identity not stamped: %+v", plan)
	}
	if plan.Difficulty != string(model.DifficultyMedium) {
		t.Fatalf("expected medium difficulty, got %s", plan.Difficulty)
	}
}

func TestPlanTodayWithAllCollaboratorsFailing(t *testing.T) {
	f := failing{}
	p := newPlanner(t, Deps{Profiles: f, History: f, Snapshots: f, Plans: f, Cards: f})
	res := p.PlanToday(context.Background(), Request{})

	if res.Reused {
		t.Fatalf("failing persistence cannot produce a reuse")
	}
	if res.Plan.RunID == "" || res.Plan.Mode != model.ModeShort || len(res.Plan.LessonIDs) != 1 {
		t.Fatalf("expected a defaulted plan, got %+v", res.Plan)
	}
	for _, kind := range []Kind{KindCacheCorruption, KindMissingInput, KindWriteFailure} {
		if !res.Has(kind) {
			t.Fatalf("missing %s diagnostic in %v", kind, res.Diagnostics)
		}
	}
}

func TestPlanTodayRebuildsOnIdentityChange(t *testing.T) {
	p := newPlanner(t, Deps{Plans: planlock.NewMemoryPersistence()})
	first := p.PlanToday(context.Background(), Request{})
	deep := p.PlanToday(context.Background(), Request{RequestedMode: model.ModeDeep})
	if deep.Reused || deep.Plan.RunID == first.Plan.RunID {
		t.Fatalf("requested mode must rebuild")
	}
	if deep.Plan.Mode != model.ModeDeep || len(deep.Plan.LessonIDs) != 2 {
		t.Fatalf("expected deep plan with two lessons, got %+v", deep.Plan)
	}
	again := p.PlanToday(context.Background(), Request{RequestedMode: model.ModeDeep})
	if !again.Reused {
		t.Fatalf("same requested mode must reuse")
	}
}

func TestPlanTodayDropsUnparsableHistory(t *testing.T) {
	hist := &memHistory{raws: []history.RawRecord{
		{Day: "not a day", PracticeRecord: model.PracticeRecord{Completed: true}},
		{Day: "2024-01-09", PracticeRecord: model.PracticeRecord{Cluster: model.ClusterClarity, Completed: true}},
	}}
	p := newPlanner(t, Deps{History: hist})
	res := p.PlanToday(context.Background(), Request{})
	if !res.Has(KindUnparsableData) {
		t.Fatalf("expected unparsable_data diagnostic, got %v", res.Diagnostics)
	}
}

func TestPlanTodayStreakSwitchesCluster(t *testing.T) {
	var raws []history.RawRecord
	for _, day := range []string{"2024-01-07", "2024-01-08", "2024-01-09"} {
		raws = append(raws, history.RawRecord{Day: day, PracticeRecord: model.PracticeRecord{
			Cluster: model.ClusterClarity, Completed: true,
		}})
	}
	profile := staticProfile{model.AxisClarity: 0.1, model.AxisFocus: 0.2, model.AxisEnergy: 0.5, model.AxisEmotionalStability: 0.6}
	p := newPlanner(t, Deps{Profiles: profile, History: &memHistory{raws: raws}})
	res := p.PlanToday(context.Background(), Request{})
	if res.Plan.Cluster != model.ClusterFocus {
		t.Fatalf("expected switch to focus, got %s (%s)", res.Plan.Cluster, res.Plan.Reason)
	}
}

func TestPlanTodayClusterExhaustionFallback(t *testing.T) {
	var raws []history.RawRecord
	for i, id := range []string{"clarity-01", "clarity-02", "clarity-03", "clarity-04"} {
		raws = append(raws, history.RawRecord{
			Day:            history.AddDays("2023-12-01", i*3),
			PracticeRecord: model.PracticeRecord{Cluster: model.ClusterClarity, LessonID: id, Completed: true},
		})
	}
	p := newPlanner(t, Deps{History: &memHistory{raws: raws}})
	res := p.PlanToday(context.Background(), Request{})
	if res.Plan.Cluster != model.ClusterFocus {
		t.Fatalf("expected rotation to focus, got %+v", res.Plan)
	}
	if res.Plan.FallbackReason != "exhausted:clarity->focus" {
		t.Fatalf("unexpected fallback reason %q", res.Plan.FallbackReason)
	}
}

func TestPolicyFlowsIntoPlan(t *testing.T) {
	p := newPlanner(t, Deps{})
	res := p.PlanToday(context.Background(), Request{Signals: policy.Signals{TimeAvailableMinutes: policy.Float(15)}})
	if res.Plan.Mode != model.ModeDeep || !res.Decision.PolicyApplied {
		t.Fatalf("expected promotion to deep, got %+v", res.Decision)
	}
}

func TestExplicitZeroPolicyIsKept(t *testing.T) {
	w := NewWriter(nil)
	t.Cleanup(w.Close)
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	req := Request{Signals: policy.Signals{TimeAvailableMinutes: policy.Float(5)}}

	zero := New(Options{UserID: "u1", Now: fixedNow, Policy: &policy.Config{}}, Deps{Content: cat, Writer: w})
	if res := zero.PlanToday(context.Background(), req); res.Plan.Mode != model.ModeDeep {
		t.Fatalf("zero threshold must promote 5 minutes to deep, got %+v", res.Decision)
	}
	defaults := New(Options{UserID: "u1", Now: fixedNow}, Deps{Content: cat, Writer: w})
	if res := defaults.PlanToday(context.Background(), req); res.Plan.Mode != model.ModeShort {
		t.Fatalf("default threshold must keep short, got %+v", res.Decision)
	}
}

func TestRequestedModeMarksPolicyApplied(t *testing.T) {
	p := newPlanner(t, Deps{})
	res := p.PlanToday(context.Background(), Request{RequestedMode: model.ModeDeep})
	if res.Plan.Mode != model.ModeDeep || !res.Decision.PolicyApplied {
		t.Fatalf("requested deep over a short baseline must mark policy applied, got %+v", res.Decision)
	}

	p = newPlanner(t, Deps{})
	res = p.PlanToday(context.Background(), Request{RequestedMode: model.ModeShort})
	if res.Plan.Mode != model.ModeShort || res.Decision.PolicyApplied {
		t.Fatalf("requested mode equal to baseline must not mark policy applied, got %+v", res.Decision)
	}
}

func TestContextTagTrimmedForIdentity(t *testing.T) {
	p := newPlanner(t, Deps{Plans: planlock.NewMemoryPersistence()})
	first := p.PlanToday(context.Background(), Request{ContextTag: " anxiety "})
	if first.Plan.ContextTag == nil || *first.Plan.ContextTag != "anxiety" {
		t.Fatalf("expected trimmed tag in plan, got %v", first.Plan.ContextTag)
	}
	second := p.PlanToday(context.Background(), Request{ContextTag: "anxiety"})
	if !second.Reused || second.Plan.RunID != first.Plan.RunID {
		t.Fatalf("padded and plain tags must share the cached plan")
	}
}

func TestRecordCompleteEarnsRound(t *testing.T) {
	hist := &memHistory{}
	rounds := ledger.New(ledger.NewMemoryStore(), nil, "u1", nil)
	p := newPlanner(t, Deps{History: hist, Rounds: rounds})
	plan := p.PlanToday(context.Background(), Request{RequestedMode: model.ModeDeep}).Plan
	if len(plan.LessonIDs) != 2 {
		t.Fatalf("expected two lessons, got %v", plan.LessonIDs)
	}

	p.RecordStart(plan, plan.LessonIDs[0])
	first := p.RecordComplete(context.Background(), plan, plan.LessonIDs[0], 120)
	if first.AllDone || first.Earned {
		t.Fatalf("one of two lessons must not earn, got %+v", first)
	}
	second := p.RecordComplete(context.Background(), plan, plan.LessonIDs[1], 200)
	if !second.AllDone || !second.Earned || second.Rounds.Credits != 1 {
		t.Fatalf("expected earned round, got %+v", second)
	}
	repeat := p.RecordComplete(context.Background(), plan, plan.LessonIDs[1], 200)
	if repeat.Earned || repeat.Rounds.Credits != 1 {
		t.Fatalf("repeat completion must not earn again, got %+v", repeat)
	}

	state, err := p.SpendRound(context.Background())
	if err != nil || state.Credits != 0 || state.UsedToday != 1 {
		t.Fatalf("spend: %+v %v", state, err)
	}
}

func TestRecordAttemptUpdatesEngine(t *testing.T) {
	p := newPlanner(t, Deps{})
	var snap model.PerformanceSnapshot
	for i := 0; i < 5; i++ {
		snap = p.RecordAttempt(context.Background(), 95, 60)
	}
	if snap.DifficultyBias != 1 || len(snap.RecentScores) != 5 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	plan := p.PlanToday(context.Background(), Request{}).Plan
	if plan.Difficulty != string(model.DifficultyHard) {
		t.Fatalf("expected hard difficulty after strong attempts, got %s", plan.Difficulty)
	}
}
