package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dayplan/internal/model"
)

type brokenStore struct{}

func (brokenStore) LoadRounds(context.Context, string) (*model.EarnedRoundState, error) {
	return nil, errors.New("offline")
}

func (brokenStore) SaveRounds(context.Context, string, model.EarnedRoundState) error {
	return errors.New("offline")
}

func TestEarnAndSpend(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil, "u1", nil)

	state := l.State(ctx, "2024-01-10")
	require.Equal(t, model.EarnedRoundState{DayKey: "2024-01-10"}, state)

	_, err := l.Spend(ctx, "2024-01-10")
	require.ErrorIs(t, err, ErrNoCredits)

	state = l.Earn(ctx, "2024-01-10", 2)
	require.Equal(t, 2, state.Credits)

	state, err = l.Spend(ctx, "2024-01-10")
	require.NoError(t, err)
	require.Equal(t, 1, state.Credits)
	require.Equal(t, 1, state.UsedToday)
}

func TestUsedTodayResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil, "u1", nil)
	l.Earn(ctx, "2024-01-10", 3)
	_, err := l.Spend(ctx, "2024-01-10")
	require.NoError(t, err)

	state := l.State(ctx, "2024-01-11")
	require.Equal(t, "2024-01-11", state.DayKey)
	require.Equal(t, 2, state.Credits, "credits carry over")
	require.Equal(t, 0, state.UsedToday)
}

func TestMirrorFallback(t *testing.T) {
	ctx := context.Background()
	mirror := NewMemoryStore()
	l := New(brokenStore{}, mirror, "u1", nil)

	state := l.Earn(ctx, "2024-01-10", 1)
	require.Equal(t, 1, state.Credits)

	stored, err := mirror.LoadRounds(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 1, stored.Credits)

	state, err = l.Spend(ctx, "2024-01-10")
	require.NoError(t, err)
	require.Equal(t, 0, state.Credits)
}

func TestAllStoresFailingStillAnswers(t *testing.T) {
	l := New(brokenStore{}, brokenStore{}, "u1", nil)
	state := l.Earn(context.Background(), "2024-01-10", 1)
	require.Equal(t, 1, state.Credits)
	require.Equal(t, model.EarnedRoundState{DayKey: "2024-01-10"}, l.State(context.Background(), "2024-01-10"))
}
