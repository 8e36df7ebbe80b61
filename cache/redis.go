// Package cache
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/types"
)

const (
	KeyTWAPObservation   = "#twap#%d"
	KeyPricePoint        = "#price#%d"
	KeyLastProcessedSlot = "#monitor#lastSlot"
	KeyServerStatus      = "#server#status"
)

type Redis struct {
	cfg    Config
	client *redis.Client

	logger *zap.Logger
}

func newRedis(cfg Config) (Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.URL,
		DB:   cfg.DB,
	})
	if redisClient == nil {
		return nil, fmt.Errorf("cannot init redis client")
	}
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if cfg.IsFlush {
		if err := redisClient.FlushDB(ctx).Err(); err != nil {
			return nil, err
		}
	}
	client := &Redis{
		cfg:    cfg,
		client: redisClient,
		logger: cfg.Logger,
	}
	return client, nil
}

func (c *Redis) LatestTWAPObservation(ctx context.Context, proposalID uint64) (*types.TWAPObservation, error) {
	result, err := c.client.Get(ctx, fmt.Sprintf(KeyTWAPObservation, proposalID)).Result()
	if err != nil {
		return nil, err
	}
	var observation *types.TWAPObservation
	if err := json.Unmarshal([]byte(result), &observation); err != nil {
		return nil, err
	}
	return observation, nil
}

func (c *Redis) UpdateLatestTWAPObservation(ctx context.Context, o *types.TWAPObservation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(KeyTWAPObservation, o.ProposalID), string(data), c.cfg.DefaultExpiredTime).Err()
}

func (c *Redis) LatestPricePoint(ctx context.Context, proposalID uint64) (*types.PricePoint, error) {
	result, err := c.client.Get(ctx, fmt.Sprintf(KeyPricePoint, proposalID)).Result()
	if err != nil {
		return nil, err
	}
	var point *types.PricePoint
	if err := json.Unmarshal([]byte(result), &point); err != nil {
		return nil, err
	}
	return point, nil
}

func (c *Redis) UpdateLatestPricePoint(ctx context.Context, p *types.PricePoint) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(KeyPricePoint, p.ProposalID), string(data), c.cfg.DefaultExpiredTime).Err()
}

func (c *Redis) LastProcessedSlot(ctx context.Context) uint64 {
	result, err := c.client.Get(ctx, KeyLastProcessedSlot).Uint64()
	if err != nil {
		return 0
	}
	return result
}

func (c *Redis) UpdateLastProcessedSlot(ctx context.Context, slot uint64) error {
	if err := c.client.Set(ctx, KeyLastProcessedSlot, slot, 0).Err(); err != nil {
		c.logger.Warn("cannot set last processed slot", zap.Error(err))
		return err
	}
	return nil
}

func (c *Redis) ServerStatus(ctx context.Context) (*types.CoordinatorStatus, error) {
	result, err := c.client.Get(ctx, KeyServerStatus).Result()
	if err != nil {
		return nil, err
	}
	var status *types.CoordinatorStatus
	if err := json.Unmarshal([]byte(result), &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Redis) UpdateServerStatus(ctx context.Context, status *types.CoordinatorStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, KeyServerStatus, string(data), 0).Err()
}
