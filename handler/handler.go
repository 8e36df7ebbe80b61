// Package handler
package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/cache"
	"github.com/futarchyhub/coordinator-backend/chain"
	"github.com/futarchyhub/coordinator-backend/db"
	"github.com/futarchyhub/coordinator-backend/scheduler"
	"github.com/futarchyhub/coordinator-backend/types"
)

type Config struct {
	Node      chain.Node
	DB        db.Client
	Cache     cache.Client
	Scheduler *scheduler.Scheduler

	ModeratorAddress   string
	ModeratorAuthority string
	BaseMint           string
	QuoteMint          string

	ProposalLength time.Duration
	FinalizeGrace  time.Duration

	Logger *zap.Logger
}

type CreateProposalParams struct {
	Description string
	Payload     string
}

type IModerator interface {
	CreateProposal(ctx context.Context, params CreateProposalParams) (*types.Proposal, error)
	GetProposal(ctx context.Context, id uint64) (*types.Proposal, error)
	FinalizeProposalByID(ctx context.Context, id uint64) (types.ProposalStatus, error)
	ExecuteProposal(ctx context.Context, id uint64, signer string) (*types.Proposal, error)
	RestoreTasks(ctx context.Context) error
}

type Handler interface {
	IModerator
	scheduler.Runner
}

type handler struct {
	node  chain.Node
	db    db.Client
	cache cache.Client
	sched *scheduler.Scheduler

	moderator types.ModeratorState

	proposalLength int64
	finalizeGrace  int64

	logger *zap.Logger
}

// New builds the moderator handler. The persisted moderator state is
// authoritative; the config values only seed it on first run.
func New(cfg Config) (Handler, error) {
	if cfg.ModeratorAddress == "" {
		return nil, errors.New("missing moderator address")
	}
	h := &handler{
		node:           cfg.Node,
		db:             cfg.DB,
		cache:          cfg.Cache,
		sched:          cfg.Scheduler,
		proposalLength: int64(cfg.ProposalLength / time.Second),
		finalizeGrace:  int64(cfg.FinalizeGrace / time.Second),
		logger:         cfg.Logger,
	}

	ctx := context.Background()
	state, err := cfg.DB.ModeratorState(ctx)
	if err != nil {
		if !errors.Is(err, types.ErrModeratorNotFound) {
			return nil, err
		}
		state = &types.ModeratorState{
			Address:   cfg.ModeratorAddress,
			Authority: cfg.ModeratorAuthority,
			BaseMint:  cfg.BaseMint,
			QuoteMint: cfg.QuoteMint,
		}
		if err := cfg.DB.UpsertModeratorState(ctx, state); err != nil {
			return nil, err
		}
	}
	h.moderator = *state
	return h, nil
}
