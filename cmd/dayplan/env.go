package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/dayplan/internal/catalog"
	"github.com/verte-zerg/dayplan/internal/config"
	"github.com/verte-zerg/dayplan/internal/ledger"
	"github.com/verte-zerg/dayplan/internal/logger"
	"github.com/verte-zerg/dayplan/internal/migrate"
	"github.com/verte-zerg/dayplan/internal/model"
	"github.com/verte-zerg/dayplan/internal/planlock"
	"github.com/verte-zerg/dayplan/internal/planner"
	"github.com/verte-zerg/dayplan/internal/policy"
	"github.com/verte-zerg/dayplan/internal/stats"
	"github.com/verte-zerg/dayplan/internal/store"
)

// env holds the collaborators of one CLI invocation.
type env struct {
	cfg     config.FileConfig
	log     *logger.Logger
	store   *store.Store
	planner *planner.Planner
	rounds  *ledger.Ledger
	userID  string
	closers []func() error
}

func openEnv(cmd *cobra.Command) (*env, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "world", &planWorld, fileCfg.Planner.World)

	logMode := ""
	if fileCfg.Log.Mode != nil {
		logMode = *fileCfg.Log.Mode
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	catalogPath := ""
	if fileCfg.Catalog.Path != nil {
		catalogPath = *fileCfg.Catalog.Path
	}
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	dbPath := config.DefaultDBPath()
	if fileCfg.Store.DBPath != nil && *fileCfg.Store.DBPath != "" {
		dbPath = *fileCfg.Store.DBPath
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	e := &env{cfg: fileCfg, log: log, store: st}
	e.closers = append(e.closers, st.Close)

	userID := strings.TrimSpace(planUser)
	if userID == "" {
		userID = readSession()
	}
	e.userID = userID

	plans, err := e.planStore(userID)
	if err != nil {
		e.Close()
		return nil, err
	}

	rules := fileCfg.Policy.Resolve(policy.DefaultConfig())
	opts := planner.Options{
		UserID: userID,
		Lang:   defaultLang,
		Policy: &rules,
	}
	if fileCfg.Planner.Lang != nil {
		opts.Lang = *fileCfg.Planner.Lang
	}
	if fileCfg.Planner.HistoryLimit != nil {
		opts.HistoryLimit = *fileCfg.Planner.HistoryLimit
	}
	if fileCfg.Planner.DeepLessons != nil {
		opts.DeepLessons = *fileCfg.Planner.DeepLessons
	}

	scoped := userID
	if scoped == "" {
		scoped = model.GuestUserID
	}
	writer := planner.NewWriter(log)
	e.closers = append(e.closers, func() error {
		writer.Flush()
		if failed := writer.Failed(); len(failed) > 0 {
			logErrf("unsaved writes: %s\n", strings.Join(failed, ", "))
		}
		writer.Close()
		return nil
	})
	e.rounds = ledger.New(st, ledger.NewMemoryStore(), scoped, log)
	e.planner = planner.New(opts, planner.Deps{
		Profiles:  st,
		History:   st,
		Snapshots: st,
		Plans:     plans,
		Content:   cat,
		Cards:     st,
		Rounds:    e.rounds,
		Guest:     migrate.New(st, st, st, log),
		Writer:    writer,
		Log:       log,
	})
	return e, nil
}

func (e *env) planStore(userID string) (planlock.Persistence, error) {
	backend, err := e.cfg.Store.Backend()
	if err != nil {
		return nil, err
	}
	scope := userID
	if scope == "" {
		scope = model.GuestUserID
	}
	switch backend {
	case config.PlanStoreMemory:
		return planlock.NewMemoryPersistence(), nil
	case config.PlanStoreRedis:
		ttl, err := e.cfg.Store.TTL()
		if err != nil {
			return nil, err
		}
		addr := ""
		if e.cfg.Store.RedisAddr != nil {
			addr = *e.cfg.Store.RedisAddr
		}
		rp, err := planlock.NewRedisPersistence(addr, scope, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect plan store: %w", err)
		}
		e.closers = append(e.closers, rp.Close)
		return rp, nil
	default:
		return e.store.Plans(scope), nil
	}
}

// Close flushes pending writes and releases resources in reverse order.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logErrf("failed to close: %v\n", err)
		}
	}
	e.closers = nil
	if e.log != nil {
		e.log.Sync()
	}
}

func (e *env) report(ctx context.Context, limit int) (stats.Report, error) {
	return stats.BuildReport(ctx, e.store, e.planner.UserID(), limit, defaultCurveWindow)
}

// request builds the planning request from flags and recent history.
func (e *env) request(cmd *cobra.Command, report stats.Report) (planner.Request, error) {
	mode, err := model.ParseMode(planMode)
	if err != nil {
		return planner.Request{}, err
	}
	switch planEnergy {
	case "", policy.EnergyLow, policy.EnergyNormal, policy.EnergyHigh:
	default:
		return planner.Request{}, fmt.Errorf("--energy must be low, normal or high")
	}
	req := planner.Request{
		WorldID:       planWorld,
		RequestedMode: mode,
		ContextTag:    planTag,
		Signals:       policy.Signals{Energy: planEnergy},
	}
	if cmd.Flags().Changed("minutes") {
		if planMinutes < 0 {
			return planner.Request{}, fmt.Errorf("--minutes must be >= 0")
		}
		minutes := planMinutes
		req.Signals.TimeAvailableMinutes = &minutes
	}
	req.Signals.DeepAbandonRate, req.Signals.OverallAbandonRate = stats.AbandonRates(report.Series.Days)
	return req, nil
}

func readSession() string {
	data, err := os.ReadFile(config.DefaultSessionPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeSession(userID string) error {
	path := config.DefaultSessionPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if userID == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(userID+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}
