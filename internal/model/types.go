// Package model defines shared data structures.
package model

import (
	"fmt"
	"time"
)

// Axis identifies one dimension of a user's skill profile.
type Axis string

// Known axes.
const (
	AxisClarity            Axis = "clarity"
	AxisEnergy             Axis = "energy"
	AxisEmotionalStability Axis = "emotional_stability"
	AxisFocus              Axis = "focus"
)

// Axes lists every known axis in canonical order.
var Axes = []Axis{AxisClarity, AxisEnergy, AxisEmotionalStability, AxisFocus}

// Cluster identifies a training cluster of lessons.
type Cluster string

// Known clusters.
const (
	ClusterClarity Cluster = "clarity"
	ClusterEnergy  Cluster = "energy"
	ClusterCalm    Cluster = "calm"
	ClusterFocus   Cluster = "focus"
)

// DefaultCluster is used when no profile is available.
const DefaultCluster = ClusterClarity

// Clusters is the fixed round-robin order.
var Clusters = []Cluster{ClusterClarity, ClusterFocus, ClusterEnergy, ClusterCalm}

// Mode is the session depth.
type Mode string

// Session modes.
const (
	ModeShort Mode = "short"
	ModeDeep  Mode = "deep"
)

// Variant modifies how a session is presented.
type Variant string

// Session variants. The zero value means no variant.
const (
	VariantNone      Variant = ""
	VariantChallenge Variant = "challenge"
	VariantSoft      Variant = "soft"
)

// Difficulty is a lesson difficulty tier.
type Difficulty string

// Difficulty tiers.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseAxis validates an axis identifier.
func ParseAxis(s string) (Axis, error) {
	for _, a := range Axes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown axis %q", s)
}

// ParseCluster validates a cluster identifier.
func ParseCluster(s string) (Cluster, error) {
	for _, c := range Clusters {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown cluster %q", s)
}

// ParseMode validates a mode. Empty input is accepted and means "auto".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeShort, ModeDeep:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// ParseDifficulty validates a difficulty tier.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// AxisProfile maps axes to scores. Lower is weaker.
type AxisProfile map[Axis]float64

// PracticeRecord is one attempted session.
type PracticeRecord struct {
	UserID          string    `json:"userId"`
	DayKey          string    `json:"dayKey"`
	Cluster         Cluster   `json:"cluster"`
	Mode            Mode      `json:"mode"`
	LessonID        string    `json:"lessonId,omitempty"`
	Completed       bool      `json:"completed"`
	StartedAt       time.Time `json:"startedAt"`
	CompletedAt     time.Time `json:"completedAt"`
	DurationSeconds int       `json:"durationSeconds"`
}

// MaxRecentAttempts bounds the performance history.
const MaxRecentAttempts = 10

// PerformanceSnapshot is the rolling performance history.
type PerformanceSnapshot struct {
	RecentScores    []int     `json:"recentScores"`
	RecentTimeSpent []float64 `json:"recentTimeSpent"`
	DifficultyBias  int       `json:"difficultyBias"`
}

// LessonMeta describes a lesson in the content catalog.
type LessonMeta struct {
	ID         string     `json:"id" yaml:"id"`
	Cluster    Cluster    `json:"cluster" yaml:"cluster"`
	Title      string     `json:"title" yaml:"title"`
	Difficulty Difficulty `json:"difficulty" yaml:"difficulty"`
	Minutes    int        `json:"minutes" yaml:"minutes"`
}

// VocabCard is a support prompt in the static catalog.
type VocabCard struct {
	ID            string   `json:"id" yaml:"id"`
	Text          string   `json:"text" yaml:"text"`
	TagsPrimary   []string `json:"tagsPrimary" yaml:"tags_primary"`
	TagsSecondary []string `json:"tagsSecondary" yaml:"tags_secondary"`
	Weight        float64  `json:"weight" yaml:"weight"`
	IsBuffer      bool     `json:"isBuffer" yaml:"buffer"`
}

// TodayPlan is the cached per-day plan.
type TodayPlan struct {
	DayKey          string   `json:"dayKey"`
	SchemaVersion   int      `json:"schemaVersion"`
	RunID           string   `json:"runId"`
	WorldID         string   `json:"worldId"`
	RequestedMode   Mode     `json:"requestedMode"`
	Mode            Mode     `json:"mode"`
	Variant         Variant  `json:"variant,omitempty"`
	Cluster         Cluster  `json:"cluster"`
	ModuleID        string   `json:"moduleId"`
	LessonIDs       []string `json:"lessonIds"`
	Difficulty      string   `json:"difficulty"`
	PrimaryCardID   string   `json:"primaryCardId,omitempty"`
	SecondaryCardID string   `json:"secondaryCardId,omitempty"`
	ContextTag      *string  `json:"contextTag"`
	Reason          string   `json:"reason"`
	FallbackReason  string   `json:"fallbackReason,omitempty"`
}

// EarnedRoundState is the per-day credit ledger.
type EarnedRoundState struct {
	DayKey    string `json:"dayKey"`
	Credits   int    `json:"credits"`
	UsedToday int    `json:"usedToday"`
}

// ShownCard records a vocabulary card displayed on a given day.
type ShownCard struct {
	CardID string `json:"cardId"`
	DayKey string `json:"dayKey"`
}

// GuestUserID is the user id used before sign-in.
const GuestUserID = "guest"
