package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/verte-zerg/dayplan/internal/model"
)

// AxisProfile returns a user's axis scores, or nil if none were recorded.
// Rows with an unknown axis are skipped.
func (s *Store) AxisProfile(ctx context.Context, userID string) (model.AxisProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT axis, score FROM axis_profiles WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var profile model.AxisProfile
	for rows.Next() {
		var (
			name  string
			score float64
		)
		if err := rows.Scan(&name, &score); err != nil {
			return nil, err
		}
		axis, err := model.ParseAxis(name)
		if err != nil {
			continue
		}
		if profile == nil {
			profile = model.AxisProfile{}
		}
		profile[axis] = score
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profile, nil
}

// SetAxisScore upserts one axis score.
func (s *Store) SetAxisScore(ctx context.Context, userID string, axis model.Axis, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO axis_profiles (user_id, axis, score) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, axis) DO UPDATE SET score = excluded.score`,
		userID, string(axis), score)
	return err
}

// LoadSnapshot returns the stored performance snapshot, or nil if none.
func (s *Store) LoadSnapshot(ctx context.Context, userID string) (*model.PerformanceSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM performance_snapshots WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.PerformanceSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot replaces the stored performance snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, userID string, snap model.PerformanceSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO performance_snapshots (user_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, string(payload), s.stamp())
	return err
}

// LoadRounds implements ledger.Store.
func (s *Store) LoadRounds(ctx context.Context, userID string) (*model.EarnedRoundState, error) {
	var state model.EarnedRoundState
	err := s.db.QueryRowContext(ctx,
		`SELECT day_key, credits, used_today FROM earned_rounds WHERE user_id = ?`, userID).
		Scan(&state.DayKey, &state.Credits, &state.UsedToday)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveRounds implements ledger.Store.
func (s *Store) SaveRounds(ctx context.Context, userID string, state model.EarnedRoundState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO earned_rounds (user_id, day_key, credits, used_today) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET day_key = excluded.day_key, credits = excluded.credits, used_today = excluded.used_today`,
		userID, state.DayKey, state.Credits, state.UsedToday)
	return err
}
