// Package db
package db

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/types"
)

type Adapter string

const (
	MGO Adapter = "mgo"
	Mem Adapter = "mem"
)

type Config struct {
	DbAdapter Adapter
	DbName    string
	URL       string
	MinConn   int
	MaxConn   int
	FlushDB   bool

	Logger *zap.Logger
}

type IProposal interface {
	UpsertProposal(ctx context.Context, p *types.Proposal) error
	ProposalByID(ctx context.Context, id uint64) (*types.Proposal, error)
	Proposals(ctx context.Context) ([]*types.Proposal, error)
}

type IModerator interface {
	ModeratorState(ctx context.Context) (*types.ModeratorState, error)
	UpsertModeratorState(ctx context.Context, s *types.ModeratorState) error
	// ProposalIDCounter returns the next safe-to-assign proposal id. The
	// stored counter may lag behind the highest persisted proposal if the
	// process crashed between the proposal write and the counter write, so
	// the larger of the two wins.
	ProposalIDCounter(ctx context.Context) (uint64, error)
}

type IObservation interface {
	InsertTWAPObservation(ctx context.Context, o *types.TWAPObservation) error
	TWAPObservations(ctx context.Context, proposalID uint64, limit int64) ([]*types.TWAPObservation, error)
	InsertPricePoint(ctx context.Context, p *types.PricePoint) error
	PricePoints(ctx context.Context, proposalID uint64, limit int64) ([]*types.PricePoint, error)
}

type Client interface {
	ping(ctx context.Context) error
	dropDatabase(ctx context.Context) error

	IProposal
	IModerator
	IObservation
}

func NewClient(cfg Config) (Client, error) {
	switch cfg.DbAdapter {
	case MGO:
		return newMongoDB(cfg)
	case Mem:
		return newMemDB(cfg), nil
	default:
		return nil, errors.New("invalid db config")
	}
}
