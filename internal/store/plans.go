package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/verte-zerg/dayplan/internal/model"
)

// PlanScope is the plan persistence for one session scope.
type PlanScope struct {
	s     *Store
	scope string
}

// Plans returns the plan persistence for scope.
func (s *Store) Plans(scope string) *PlanScope {
	return &PlanScope{s: s, scope: scope}
}

// ReadTodayPlan implements planlock.Persistence.
func (p *PlanScope) ReadTodayPlan(ctx context.Context) (*model.TodayPlan, error) {
	var payload string
	err := p.s.db.QueryRowContext(ctx,
		`SELECT payload FROM today_plans WHERE scope = ?`, p.scope).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var plan model.TodayPlan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &plan, nil
}

// SaveTodayPlan implements planlock.Persistence.
func (p *PlanScope) SaveTodayPlan(ctx context.Context, plan model.TodayPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = p.s.db.ExecContext(ctx,
		`INSERT INTO today_plans (scope, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(scope) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		p.scope, string(payload), p.s.stamp())
	return err
}

// ClearTodayPlan implements planlock.Persistence.
func (p *PlanScope) ClearTodayPlan(ctx context.Context) error {
	_, err := p.s.db.ExecContext(ctx, `DELETE FROM today_plans WHERE scope = ?`, p.scope)
	return err
}

// WriteRawPlan stores an arbitrary payload. Used to repair or inspect caches.
func (p *PlanScope) WriteRawPlan(ctx context.Context, payload string) error {
	_, err := p.s.db.ExecContext(ctx,
		`INSERT INTO today_plans (scope, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(scope) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		p.scope, payload, p.s.stamp())
	return err
}
