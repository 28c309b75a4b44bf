package planlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/verte-zerg/dayplan/internal/model"
)

// DefaultPlanTTL bounds how long a plan lives in a session-scoped store.
const DefaultPlanTTL = 36 * time.Hour

// RedisPersistence stores the plan under a per-session key with a TTL.
type RedisPersistence struct {
	rdb *goredis.Client
	key string
	ttl time.Duration
}

// NewRedisPersistence connects to addr and scopes the plan to scope.
func NewRedisPersistence(addr, scope string, ttl time.Duration) (*RedisPersistence, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if scope == "" {
		return nil, fmt.Errorf("missing plan scope")
	}
	if ttl <= 0 {
		ttl = DefaultPlanTTL
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPersistence{rdb: rdb, key: "dayplan:plan:" + scope, ttl: ttl}, nil
}

// ReadTodayPlan implements Persistence.
func (r *RedisPersistence) ReadTodayPlan(ctx context.Context) (*model.TodayPlan, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var plan model.TodayPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &plan, nil
}

// SaveTodayPlan implements Persistence.
func (r *RedisPersistence) SaveTodayPlan(ctx context.Context, plan model.TodayPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, raw, r.ttl).Err()
}

// ClearTodayPlan implements Persistence.
func (r *RedisPersistence) ClearTodayPlan(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}

// Close releases the client.
func (r *RedisPersistence) Close() error {
	return r.rdb.Close()
}
