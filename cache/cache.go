// Package cache
package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/types"
)

type Adapter string

const (
	RedisAdapter Adapter = "redis"
)

type Config struct {
	Adapter Adapter
	URL     string
	DB      int

	IsFlush bool

	DefaultExpiredTime time.Duration

	Logger *zap.Logger
}

type Client interface {
	LatestTWAPObservation(ctx context.Context, proposalID uint64) (*types.TWAPObservation, error)
	UpdateLatestTWAPObservation(ctx context.Context, o *types.TWAPObservation) error

	LatestPricePoint(ctx context.Context, proposalID uint64) (*types.PricePoint, error)
	UpdateLatestPricePoint(ctx context.Context, p *types.PricePoint) error

	LastProcessedSlot(ctx context.Context) uint64
	UpdateLastProcessedSlot(ctx context.Context, slot uint64) error

	ServerStatus(ctx context.Context) (*types.CoordinatorStatus, error)
	UpdateServerStatus(ctx context.Context, status *types.CoordinatorStatus) error
}

func New(cfg Config) (Client, error) {
	switch cfg.Adapter {
	case RedisAdapter:
		return newRedis(cfg)
	}
	return nil, errors.New("invalid cache config")
}
