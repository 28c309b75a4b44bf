// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/dayplan/internal/policy"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Planner PlannerConfig `toml:"planner"`
	Policy  PolicyConfig  `toml:"policy"`
	Store   StoreConfig   `toml:"store"`
	Catalog CatalogConfig `toml:"catalog"`
	Log     LogConfig     `toml:"log"`
}

// PlannerConfig maps planning settings.
type PlannerConfig struct {
	Lang         *string `toml:"lang"`
	World        *string `toml:"world"`
	HistoryLimit *int    `toml:"history-limit"`
	DeepLessons  *int    `toml:"deep-lessons"`
}

// PolicyConfig maps policy thresholds.
type PolicyConfig struct {
	MinMinutesForDeep      *float64 `toml:"min-minutes-for-deep"`
	MaxDeepAbandonRate     *float64 `toml:"max-deep-abandon-rate"`
	MaxOverallAbandonRate  *float64 `toml:"max-overall-abandon-rate"`
	EnableSoftVariant      *bool    `toml:"enable-soft-variant"`
	LowEnergyDowngrade     *bool    `toml:"low-energy-downgrade"`
	EnableChallengeVariant *bool    `toml:"enable-challenge-variant"`
}

// StoreConfig maps persistence settings.
type StoreConfig struct {
	DBPath    *string `toml:"db-path"`
	PlanStore *string `toml:"plan-store"`
	RedisAddr *string `toml:"redis-addr"`
	PlanTTL   *string `toml:"plan-ttl"`
}

// CatalogConfig maps content catalog settings.
type CatalogConfig struct {
	Path *string `toml:"path"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Mode *string `toml:"mode"`
}

// Plan store backends.
const (
	PlanStoreSQLite = "sqlite"
	PlanStoreRedis  = "redis"
	PlanStoreMemory = "memory"
)

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Resolve overlays the configured thresholds on base.
func (p PolicyConfig) Resolve(base policy.Config) policy.Config {
	if p.MinMinutesForDeep != nil {
		base.MinMinutesForDeep = *p.MinMinutesForDeep
	}
	if p.MaxDeepAbandonRate != nil {
		base.MaxDeepAbandonRate = *p.MaxDeepAbandonRate
	}
	if p.MaxOverallAbandonRate != nil {
		base.MaxOverallAbandonRate = *p.MaxOverallAbandonRate
	}
	if p.EnableSoftVariant != nil {
		base.EnableSoftVariant = *p.EnableSoftVariant
	}
	if p.LowEnergyDowngrade != nil {
		base.LowEnergyDowngrade = *p.LowEnergyDowngrade
	}
	if p.EnableChallengeVariant != nil {
		base.EnableChallengeVariant = *p.EnableChallengeVariant
	}
	return base
}

// Backend returns the plan store backend, defaulting to sqlite.
func (s StoreConfig) Backend() (string, error) {
	if s.PlanStore == nil || *s.PlanStore == "" {
		return PlanStoreSQLite, nil
	}
	switch *s.PlanStore {
	case PlanStoreSQLite, PlanStoreRedis, PlanStoreMemory:
		return *s.PlanStore, nil
	default:
		return "", fmt.Errorf("unknown plan-store %q", *s.PlanStore)
	}
}

// TTL parses plan-ttl. Unset returns zero.
func (s StoreConfig) TTL() (time.Duration, error) {
	if s.PlanTTL == nil || *s.PlanTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(*s.PlanTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid plan-ttl: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("plan-ttl must be positive")
	}
	return d, nil
}
