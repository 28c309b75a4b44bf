// Package policy applies live-signal overrides to a selector baseline.
package policy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/verte-zerg/dayplan/internal/model"
	"github.com/verte-zerg/dayplan/internal/selector"
)

// NoChange is the reason reported when no rule fired.
const NoChange = "no change"

// Energy levels reported by the client.
const (
	EnergyLow    = "low"
	EnergyNormal = "normal"
	EnergyHigh   = "high"
)

// Config holds tunable thresholds.
type Config struct {
	MinMinutesForDeep      float64
	MaxDeepAbandonRate     float64
	MaxOverallAbandonRate  float64
	EnableSoftVariant      bool
	LowEnergyDowngrade     bool
	EnableChallengeVariant bool
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinMinutesForDeep:     10,
		MaxDeepAbandonRate:    0.5,
		MaxOverallAbandonRate: 0.6,
		EnableSoftVariant:     true,
		LowEnergyDowngrade:    true,
	}
}

// Signals are live inputs. Nil pointers mean absent.
type Signals struct {
	TimeAvailableMinutes *float64
	Energy               string
	DeepAbandonRate      *float64
	OverallAbandonRate   *float64
}

// Decision is the policy output.
type Decision struct {
	Cluster       model.Cluster `json:"cluster"`
	Mode          model.Mode    `json:"mode"`
	Lang          string        `json:"lang"`
	Variant       model.Variant `json:"variant,omitempty"`
	Reason        string        `json:"reason"`
	PolicyApplied bool          `json:"policyApplied"`
}

// Apply runs the rules in order over the baseline.
func Apply(baseline selector.Baseline, signals Signals, cfg Config) Decision {
	d := Decision{
		Cluster: baseline.Cluster,
		Mode:    baseline.Mode,
		Lang:    baseline.Lang,
	}
	var reasons []string

	minutes, hasMinutes := positive(signals.TimeAvailableMinutes)
	deepAbandon, hasDeepAbandon := rate(signals.DeepAbandonRate)
	overallAbandon, hasOverallAbandon := rate(signals.OverallAbandonRate)

	if hasMinutes {
		switch {
		case minutes >= cfg.MinMinutesForDeep && d.Mode == model.ModeShort:
			d.Mode = model.ModeDeep
			reasons = append(reasons, fmt.Sprintf("time %s>=%s promote deep", num(minutes), num(cfg.MinMinutesForDeep)))
		case minutes < cfg.MinMinutesForDeep && d.Mode == model.ModeDeep:
			d.Mode = model.ModeShort
			reasons = append(reasons, fmt.Sprintf("time %s<%s demote short", num(minutes), num(cfg.MinMinutesForDeep)))
		}
	}

	if d.Mode == model.ModeDeep {
		switch {
		case cfg.LowEnergyDowngrade && strings.EqualFold(signals.Energy, EnergyLow):
			d.Mode = model.ModeShort
			reasons = append(reasons, "low energy demote short")
		case hasDeepAbandon && deepAbandon > cfg.MaxDeepAbandonRate:
			d.Mode = model.ModeShort
			reasons = append(reasons, fmt.Sprintf("deep abandon %s>%s demote short", num(deepAbandon), num(cfg.MaxDeepAbandonRate)))
		}
	}

	if hasOverallAbandon && cfg.EnableSoftVariant && overallAbandon > cfg.MaxOverallAbandonRate {
		d.Variant = model.VariantSoft
		reasons = append(reasons, fmt.Sprintf("abandon %s>%s variant soft", num(overallAbandon), num(cfg.MaxOverallAbandonRate)))
	}

	if cfg.EnableChallengeVariant && d.Variant == model.VariantNone && d.Mode == model.ModeDeep &&
		strings.EqualFold(signals.Energy, EnergyHigh) {
		d.Variant = model.VariantChallenge
		reasons = append(reasons, "high energy variant challenge")
	}

	if len(reasons) == 0 {
		d.Reason = NoChange
	} else {
		d.Reason = strings.Join(reasons, "|")
	}
	d.PolicyApplied = d.Mode != baseline.Mode || d.Variant != model.VariantNone
	return d
}

// Float is a helper for building optional signals.
func Float(v float64) *float64 {
	return &v
}

func positive(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return 0, false
	}
	return *v, true
}

func rate(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) {
		return 0, false
	}
	r := *v
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return r, true
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
