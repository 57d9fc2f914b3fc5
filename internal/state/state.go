package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"catalog/taxonomy/internal/domain"

	"github.com/redis/go-redis/v9"
)

type StateManager interface {
	// GetLastSync returns nil when no sync has been recorded yet.
	GetLastSync(ctx context.Context) (*domain.SyncSummary, error)
	SetLastSync(ctx context.Context, summary *domain.SyncSummary) error
}

type redisStateManager struct {
	redisClient *redis.Client
	key         string
}

func NewRedisStateManager(redisClient *redis.Client) StateManager {
	return &redisStateManager{
		redisClient: redisClient,
		key:         "taxonomy:sync:last",
	}
}

func (s *redisStateManager) GetLastSync(ctx context.Context) (*domain.SyncSummary, error) {
	val, err := s.redisClient.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last sync: %w", err)
	}

	var summary domain.SyncSummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse last sync: %w", err)
	}

	return &summary, nil
}

func (s *redisStateManager) SetLastSync(ctx context.Context, summary *domain.SyncSummary) error {
	val, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize sync summary: %w", err)
	}

	if err := s.redisClient.Set(ctx, s.key, val, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	return nil
}
