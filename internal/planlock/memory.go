package planlock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/verte-zerg/dayplan/internal/model"
)

// MemoryPersistence keeps the serialized plan in process memory.
type MemoryPersistence struct {
	mu  sync.Mutex
	raw []byte
}

// NewMemoryPersistence returns an empty in-memory plan store.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

// ReadTodayPlan implements Persistence.
func (m *MemoryPersistence) ReadTodayPlan(_ context.Context) (*model.TodayPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil, nil
	}
	var plan model.TodayPlan
	if err := json.Unmarshal(m.raw, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// SaveTodayPlan implements Persistence.
func (m *MemoryPersistence) SaveTodayPlan(_ context.Context, plan model.TodayPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = raw
	m.mu.Unlock()
	return nil
}

// ClearTodayPlan implements Persistence.
func (m *MemoryPersistence) ClearTodayPlan(_ context.Context) error {
	m.mu.Lock()
	m.raw = nil
	m.mu.Unlock()
	return nil
}

// Raw returns the stored bytes.
func (m *MemoryPersistence) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.raw...)
}

// SetRaw overwrites the stored bytes.
func (m *MemoryPersistence) SetRaw(raw []byte) {
	m.mu.Lock()
	m.raw = append([]byte(nil), raw...)
	m.mu.Unlock()
}
