// Package difficulty tracks a rolling comfort index and picks lessons by tier.
package difficulty

import (
	"math"

	"github.com/verte-zerg/dayplan/internal/model"
)

const (
	biasWindow       = 5
	timeNormSeconds  = 300.0
	defaultScoreNorm = 0.5
	defaultTimeNorm  = 0.6
	easyThreshold    = -0.3
	hardThreshold    = 0.3
	biasWeight       = 0.1
	fastScoreFloor   = 80.0
	fastTimeCeiling  = 150.0
	slowScoreCeiling = 50.0
	slowTimeFloor    = 240.0
	maxScore         = 100
	minScore         = 0
)

// Engine owns one user's performance snapshot.
type Engine struct {
	snap model.PerformanceSnapshot
}

// New returns an engine seeded from a stored snapshot. The snapshot is copied
// and re-bounded, so out-of-range input cannot violate the history cap.
func New(snap model.PerformanceSnapshot) *Engine {
	e := &Engine{}
	e.snap.RecentScores = truncate(append([]int(nil), snap.RecentScores...))
	e.snap.RecentTimeSpent = truncateFloats(append([]float64(nil), snap.RecentTimeSpent...))
	e.snap.DifficultyBias = clampBias(snap.DifficultyBias)
	return e
}

// Snapshot returns a copy of the current snapshot.
func (e *Engine) Snapshot() model.PerformanceSnapshot {
	return model.PerformanceSnapshot{
		RecentScores:    append([]int(nil), e.snap.RecentScores...),
		RecentTimeSpent: append([]float64(nil), e.snap.RecentTimeSpent...),
		DifficultyBias:  e.snap.DifficultyBias,
	}
}

// Record appends a scored attempt and re-evaluates the bias.
func (e *Engine) Record(score int, seconds float64) {
	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	e.snap.RecentScores = truncate(append(e.snap.RecentScores, score))
	e.snap.RecentTimeSpent = truncateFloats(append(e.snap.RecentTimeSpent, seconds))
	e.updateBias()
}

func (e *Engine) updateBias() {
	if len(e.snap.RecentScores) < biasWindow {
		return
	}
	scores := e.snap.RecentScores[len(e.snap.RecentScores)-biasWindow:]
	times := e.snap.RecentTimeSpent
	if len(times) > biasWindow {
		times = times[len(times)-biasWindow:]
	}
	avgScore := meanInts(scores)
	avgTime := meanFloats(times)
	switch {
	case avgScore >= fastScoreFloor && avgTime <= fastTimeCeiling:
		e.snap.DifficultyBias = 1
	case avgScore <= slowScoreCeiling && avgTime >= slowTimeFloor:
		e.snap.DifficultyBias = -1
	default:
		e.snap.DifficultyBias = 0
	}
}

// ComfortIndex is in [-1, 1]. Higher means the user is coasting.
func (e *Engine) ComfortIndex() float64 {
	scoreNorm := defaultScoreNorm
	if len(e.snap.RecentScores) > 0 {
		scoreNorm = meanInts(e.snap.RecentScores) / 100
	}
	timeNorm := defaultTimeNorm
	if len(e.snap.RecentTimeSpent) > 0 {
		timeNorm = clamp(meanFloats(e.snap.RecentTimeSpent)/timeNormSeconds, 0, 1)
	}
	return clamp(scoreNorm-timeNorm+float64(e.snap.DifficultyBias)*biasWeight, -1, 1)
}

// Preferred maps the comfort index to a tier.
func (e *Engine) Preferred() model.Difficulty {
	ci := e.ComfortIndex()
	switch {
	case ci < easyThreshold:
		return model.DifficultyEasy
	case ci > hardThreshold:
		return model.DifficultyHard
	default:
		return model.DifficultyMedium
	}
}

// PickLesson returns the first pending lesson at the preferred tier, else the
// first pending lesson. It returns false when every lesson is completed.
func (e *Engine) PickLesson(lessons []model.LessonMeta, completed map[string]bool) (model.LessonMeta, bool) {
	picked := e.PickLessons(lessons, completed, 1)
	if len(picked) == 0 {
		return model.LessonMeta{}, false
	}
	return picked[0], true
}

// PickLessons applies PickLesson repeatedly, up to n lessons without repeats.
func (e *Engine) PickLessons(lessons []model.LessonMeta, completed map[string]bool, n int) []model.LessonMeta {
	preferred := e.Preferred()
	taken := make(map[string]bool, len(completed))
	for id, done := range completed {
		if done {
			taken[id] = true
		}
	}
	var out []model.LessonMeta
	for len(out) < n {
		lesson, ok := pick(lessons, taken, preferred)
		if !ok {
			break
		}
		taken[lesson.ID] = true
		out = append(out, lesson)
	}
	return out
}

func pick(lessons []model.LessonMeta, taken map[string]bool, preferred model.Difficulty) (model.LessonMeta, bool) {
	firstPending := -1
	for i, l := range lessons {
		if taken[l.ID] {
			continue
		}
		if l.Difficulty == preferred {
			return l, true
		}
		if firstPending < 0 {
			firstPending = i
		}
	}
	if firstPending < 0 {
		return model.LessonMeta{}, false
	}
	return lessons[firstPending], true
}

func truncate(v []int) []int {
	if len(v) > model.MaxRecentAttempts {
		v = v[len(v)-model.MaxRecentAttempts:]
	}
	return v
}

func truncateFloats(v []float64) []float64 {
	if len(v) > model.MaxRecentAttempts {
		v = v[len(v)-model.MaxRecentAttempts:]
	}
	return v
}

func clampBias(b int) int {
	if b > 1 {
		return 1
	}
	if b < -1 {
		return -1
	}
	return b
}

func meanInts(v []int) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

func meanFloats(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
