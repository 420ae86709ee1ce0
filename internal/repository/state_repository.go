package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
)

const stateKeyPrefix = "mashov:state:"

// StateRepository stores the published sensor states of each instance as one
// Redis hash keyed by sensor key.
type StateRepository struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewStateRepository constructs a state repository. A nil client turns every
// write into a no-op and every read into a cache miss.
func NewStateRepository(client redis.UniversalClient, logger *zap.Logger) *StateRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateRepository{client: client, logger: logger}
}

func stateKey(instanceID string) string {
	return stateKeyPrefix + instanceID
}

// Replace swaps the whole published state of an instance atomically.
func (r *StateRepository) Replace(ctx context.Context, instanceID string, states []models.SensorState) error {
	if r.client == nil {
		return nil
	}
	fields := make(map[string]any, len(states))
	for _, s := range states {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal sensor %s: %w", s.Key, err)
		}
		fields[s.Key] = payload
	}

	key := stateKey(instanceID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace %s: %w", key, err)
	}
	return nil
}

// List returns every sensor state of an instance ordered by key.
func (r *StateRepository) List(ctx context.Context, instanceID string) ([]models.SensorState, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	key := stateKey(instanceID)
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, appErrors.ErrCacheMiss
	}

	states := make([]models.SensorState, 0, len(raw))
	for field, value := range raw {
		var s models.SensorState
		if err := json.Unmarshal([]byte(value), &s); err != nil {
			r.logger.Warn("skipping undecodable sensor state", zap.String("key", key), zap.String("field", field), zap.Error(err))
			continue
		}
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Key < states[j].Key })
	return states, nil
}

// Get returns one sensor state.
func (r *StateRepository) Get(ctx context.Context, instanceID, sensorKey string) (*models.SensorState, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	key := stateKey(instanceID)
	raw, err := r.client.HGet(ctx, key, sensorKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis hget %s %s: %w", key, sensorKey, err)
	}
	var s models.SensorState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal sensor %s: %w", sensorKey, err)
	}
	return &s, nil
}

// Delete removes the published state of an instance.
func (r *StateRepository) Delete(ctx context.Context, instanceID string) error {
	if r.client == nil {
		return nil
	}
	key := stateKey(instanceID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *StateRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
