package selector

import (
	"strings"
	"testing"

	"github.com/verte-zerg/dayplan/internal/model"
)

func rec(day string, cluster model.Cluster, completed bool) model.PracticeRecord {
	return model.PracticeRecord{DayKey: day, Cluster: cluster, Completed: completed}
}

func profile() model.AxisProfile {
	return model.AxisProfile{
		model.AxisClarity:            2,
		model.AxisFocus:              3,
		model.AxisEnergy:             4,
		model.AxisEmotionalStability: 5,
	}
}

func TestSelectFallbackWithoutProfile(t *testing.T) {
	b := New(nil, "").Select(nil, nil, "2024-01-08")
	if b.Cluster != model.DefaultCluster || b.Mode != model.ModeShort || !b.Fallback {
		t.Fatalf("unexpected fallback baseline: %+v", b)
	}
	if !strings.Contains(b.Reason, "fallback") {
		t.Fatalf("expected fallback reason, got %q", b.Reason)
	}
	if b.Lang != "en" {
		t.Fatalf("expected default lang, got %q", b.Lang)
	}
}

func TestSelectWeakestAxisNoHistory(t *testing.T) {
	b := New(nil, "en").Select(profile(), nil, "2024-01-08")
	if b.Cluster != model.ClusterClarity || b.Mode != model.ModeShort {
		t.Fatalf("unexpected baseline: %+v", b)
	}
	for _, want := range []string{"weakest=clarity(2)", "cluster=clarity", "streak=0", "mode=short(no_history)"} {
		if !strings.Contains(b.Reason, want) {
			t.Fatalf("reason %q missing %q", b.Reason, want)
		}
	}
}

func TestSelectSwitchesAfterThreeDayStreak(t *testing.T) {
	records := []model.PracticeRecord{
		rec("2024-01-05", model.ClusterClarity, true),
		rec("2024-01-06", model.ClusterClarity, true),
		rec("2024-01-07", model.ClusterClarity, true),
	}
	b := New(nil, "en").Select(profile(), records, "2024-01-08")
	if b.Cluster == model.ClusterClarity {
		t.Fatalf("expected switch away from clarity, got %+v", b)
	}
	if b.Cluster != model.ClusterFocus {
		t.Fatalf("expected next weakest cluster focus, got %s", b.Cluster)
	}
	if !strings.Contains(b.Reason, "streak=3>=3 switch:clarity->focus(next_weakest=focus)") {
		t.Fatalf("unexpected reason: %q", b.Reason)
	}
	if b.HistoryCount != 3 {
		t.Fatalf("expected history count 3, got %d", b.HistoryCount)
	}
}

func TestSelectRotationWhenNoAlternateAxis(t *testing.T) {
	p := model.AxisProfile{model.AxisClarity: 1}
	records := []model.PracticeRecord{
		rec("2024-01-05", model.ClusterClarity, true),
		rec("2024-01-06", model.ClusterClarity, true),
		rec("2024-01-07", model.ClusterClarity, true),
	}
	b := New(NewRotation([]model.Cluster{model.ClusterClarity, model.ClusterCalm}), "en").Select(p, records, "2024-01-08")
	if b.Cluster != model.ClusterCalm {
		t.Fatalf("expected rotation to calm, got %s", b.Cluster)
	}
	if !strings.Contains(b.Reason, "(rotation)") {
		t.Fatalf("expected rotation reason, got %q", b.Reason)
	}
}

func TestSelectModes(t *testing.T) {
	cases := []struct {
		name    string
		records []model.PracticeRecord
		want    model.Mode
		why     string
	}{
		{"yesterday incomplete", []model.PracticeRecord{rec("2024-01-07", model.ClusterClarity, false)}, model.ModeShort, "yesterday_incomplete"},
		{"stale record", []model.PracticeRecord{rec("2024-01-05", model.ClusterClarity, true)}, model.ModeShort, "no_record_yesterday"},
		{"two complete", []model.PracticeRecord{
			rec("2024-01-06", model.ClusterClarity, true),
			rec("2024-01-07", model.ClusterClarity, true),
		}, model.ModeShort, "only_2_records"},
		{"last three mixed", []model.PracticeRecord{
			rec("2024-01-04", model.ClusterClarity, true),
			rec("2024-01-05", model.ClusterClarity, false),
			rec("2024-01-07", model.ClusterClarity, true),
		}, model.ModeShort, "last_3_mixed"},
		{"last three complete", []model.PracticeRecord{
			rec("2024-01-01", model.ClusterClarity, true),
			rec("2024-01-03", model.ClusterClarity, true),
			rec("2024-01-07", model.ClusterClarity, true),
		}, model.ModeDeep, "last_3_complete"},
		{"other cluster ignored", []model.PracticeRecord{rec("2024-01-07", model.ClusterFocus, true)}, model.ModeShort, "no_history"},
		{"today ignored", []model.PracticeRecord{rec("2024-01-08", model.ClusterClarity, true)}, model.ModeShort, "no_history"},
	}
	s := New(nil, "en")
	for _, tc := range cases {
		b := s.Select(profile(), tc.records, "2024-01-08")
		if b.Cluster != model.ClusterClarity {
			t.Fatalf("%s: unexpected cluster %s", tc.name, b.Cluster)
		}
		if b.Mode != tc.want || !strings.Contains(b.Reason, tc.why) {
			t.Fatalf("%s: expected %s(%s), got %s reason %q", tc.name, tc.want, tc.why, b.Mode, b.Reason)
		}
	}
}

func TestRotationOrder(t *testing.T) {
	r := NewRotation(nil)
	got := r.Order(model.ClusterFocus)
	want := []model.Cluster{model.ClusterEnergy, model.ClusterCalm, model.ClusterClarity}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.Next("unknown") != model.ClusterClarity {
		t.Fatalf("unknown cluster should start rotation")
	}
}
