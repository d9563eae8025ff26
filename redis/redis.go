package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pnp-bridge/config"
	"pnp-bridge/models"

	"github.com/go-redis/redis/v8"
)

const stateTTL = 24 * time.Hour

// StateMirror keeps the last-known derived state in Redis so external
// dashboards can read it without touching the bridge or the machine.
type StateMirror struct {
	client *redis.Client
}

// NewStateMirror connects and pings the server; a mirror that cannot be
// reached at startup is a configuration error.
func NewStateMirror(cfg *config.Config) (*StateMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &StateMirror{client: rdb}, nil
}

// SaveState overwrites the mirrored projection. The TTL bounds how stale a
// mirror can get if the bridge dies without cleanup.
func (m *StateMirror) SaveState(ctx context.Context, state *models.DerivedState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := m.client.Set(ctx, "pnp:state", stateJSON, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save state to Redis: %w", err)
	}
	return nil
}

// GetState reads the mirrored projection back.
func (m *StateMirror) GetState(ctx context.Context) (*models.DerivedState, error) {
	val, err := m.client.Get(ctx, "pnp:state").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("no mirrored state present")
		}
		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}
	var state models.DerivedState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// SaveSafetyLevel mirrors the current safety level for external monitors.
func (m *StateMirror) SaveSafetyLevel(ctx context.Context, level string) error {
	info := map[string]interface{}{
		"level":     level,
		"timestamp": time.Now().Unix(),
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal safety level: %w", err)
	}
	if err := m.client.Set(ctx, "pnp:safety", infoJSON, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save safety level to Redis: %w", err)
	}
	return nil
}

// GetSafetyLevel reads the mirrored safety level.
func (m *StateMirror) GetSafetyLevel(ctx context.Context) (string, error) {
	val, err := m.client.Get(ctx, "pnp:safety").Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("no mirrored safety level present")
		}
		return "", fmt.Errorf("failed to get safety level from Redis: %w", err)
	}
	var info map[string]interface{}
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return "", fmt.Errorf("failed to unmarshal safety level: %w", err)
	}
	level, ok := info["level"].(string)
	if !ok {
		return "", fmt.Errorf("invalid safety level format")
	}
	return level, nil
}

func (m *StateMirror) Close() error {
	return m.client.Close()
}
