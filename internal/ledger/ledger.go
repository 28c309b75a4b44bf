// Package ledger tracks earned extra rounds per user and day.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/verte-zerg/dayplan/internal/logger"
	"github.com/verte-zerg/dayplan/internal/model"
)

// ErrNoCredits is returned by Spend when the balance is zero.
var ErrNoCredits = errors.New("no earned rounds available")

// Store persists round state per user. A nil state with nil error means none stored.
type Store interface {
	LoadRounds(ctx context.Context, userID string) (*model.EarnedRoundState, error)
	SaveRounds(ctx context.Context, userID string, state model.EarnedRoundState) error
}

// Ledger reads from the primary store and falls back to a local mirror.
type Ledger struct {
	mu      sync.Mutex
	primary Store
	mirror  Store
	userID  string
	log     *logger.Logger
}

// New creates a ledger. Either store may be nil.
func New(primary, mirror Store, userID string, log *logger.Logger) *Ledger {
	return &Ledger{
		primary: primary,
		mirror:  mirror,
		userID:  userID,
		log:     logger.OrNop(log).With("component", "ledger", "user", userID),
	}
}

// State returns today's state, rolling usedToday over when the day changed.
func (l *Ledger) State(ctx context.Context, today string) model.EarnedRoundState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx, today)
}

// Earn adds n credits.
func (l *Ledger) Earn(ctx context.Context, today string, n int) model.EarnedRoundState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.load(ctx, today)
	if n > 0 {
		state.Credits += n
	}
	l.save(ctx, state)
	return state
}

// Spend consumes one credit.
func (l *Ledger) Spend(ctx context.Context, today string) (model.EarnedRoundState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.load(ctx, today)
	if state.Credits <= 0 {
		return state, ErrNoCredits
	}
	state.Credits--
	state.UsedToday++
	l.save(ctx, state)
	return state, nil
}

func (l *Ledger) load(ctx context.Context, today string) model.EarnedRoundState {
	state, ok := l.read(ctx, l.primary, "primary")
	if !ok {
		state, ok = l.read(ctx, l.mirror, "mirror")
	}
	if !ok {
		state = model.EarnedRoundState{DayKey: today}
	}
	if state.DayKey != today {
		state.DayKey = today
		state.UsedToday = 0
	}
	if state.Credits < 0 {
		state.Credits = 0
	}
	if state.UsedToday < 0 {
		state.UsedToday = 0
	}
	return state
}

func (l *Ledger) read(ctx context.Context, st Store, name string) (model.EarnedRoundState, bool) {
	if st == nil {
		return model.EarnedRoundState{}, false
	}
	state, err := st.LoadRounds(ctx, l.userID)
	if err != nil {
		l.log.Warn("round state read failed", "store", name, "error", err)
		return model.EarnedRoundState{}, false
	}
	if state == nil {
		return model.EarnedRoundState{}, false
	}
	return *state, true
}

func (l *Ledger) save(ctx context.Context, state model.EarnedRoundState) {
	for _, target := range []struct {
		name string
		st   Store
	}{{"primary", l.primary}, {"mirror", l.mirror}} {
		if target.st == nil {
			continue
		}
		if err := target.st.SaveRounds(ctx, l.userID, state); err != nil {
			l.log.Warn("round state write failed", "store", target.name, "day", state.DayKey, "error", err)
		}
	}
}

// MemoryStore is an in-process Store, used as the local mirror.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]model.EarnedRoundState
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]model.EarnedRoundState{}}
}

// LoadRounds implements Store.
func (m *MemoryStore) LoadRounds(_ context.Context, userID string) (*model.EarnedRoundState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// SaveRounds implements Store.
func (m *MemoryStore) SaveRounds(_ context.Context, userID string, state model.EarnedRoundState) error {
	m.mu.Lock()
	m.states[userID] = state
	m.mu.Unlock()
	return nil
}
