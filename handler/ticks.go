// Package handler
package handler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/types"
)

// Scheduler tick delegates. The scheduler has already reloaded the proposal
// and checked it is still live; these calls do the collaborator work and
// persist what they observe.

func (h *handler) CrankTWAP(ctx context.Context, p *types.Proposal) error {
	lgr := h.logger.With(zap.String("method", "CrankTWAP"), zap.Uint64("proposal", p.ID))
	// The crank may no-op outside the oracle's active window; that is not an
	// error.
	if err := h.node.CrankTWAP(ctx, p.Address); err != nil {
		return err
	}
	oracle, err := h.node.OracleAccount(ctx, p.Address)
	if err != nil {
		return err
	}
	observation := &types.TWAPObservation{
		ProposalID:      p.ID,
		PassValue:       oracle.PassValue,
		FailValue:       oracle.FailValue,
		PassAggregation: oracle.PassAggregation,
		FailAggregation: oracle.FailAggregation,
		Time:            time.Now().Unix(),
	}
	if err := h.db.InsertTWAPObservation(ctx, observation); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.UpdateLatestTWAPObservation(ctx, observation); err != nil {
			lgr.Warn("cannot cache TWAP observation", zap.Error(err))
		}
	}
	return nil
}

func (h *handler) RecordPrice(ctx context.Context, p *types.Proposal) error {
	lgr := h.logger.With(zap.String("method", "RecordPrice"), zap.Uint64("proposal", p.ID))
	accounts, err := p.ConditionalAccounts()
	if err != nil {
		return err
	}
	passPool, err := h.node.PoolAccount(ctx, accounts.PassMarket)
	if err != nil {
		return err
	}
	failPool, err := h.node.PoolAccount(ctx, accounts.FailMarket)
	if err != nil {
		return err
	}
	point := &types.PricePoint{
		ProposalID: p.ID,
		PassPrice:  passPool.Price(),
		FailPrice:  failPool.Price(),
		Time:       time.Now().Unix(),
	}
	if err := h.db.InsertPricePoint(ctx, point); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.UpdateLatestPricePoint(ctx, point); err != nil {
			lgr.Warn("cannot cache price point", zap.Error(err))
		}
	}
	return nil
}

func (h *handler) RecordSpotPrice(ctx context.Context, p *types.Proposal) error {
	if p.SpotPool == "" {
		return nil
	}
	pool, err := h.node.PoolAccount(ctx, p.SpotPool)
	if err != nil {
		return err
	}
	point := &types.PricePoint{
		ProposalID: p.ID,
		PassPrice:  pool.Price(),
		FailPrice:  pool.Price(),
		Spot:       true,
		Time:       time.Now().Unix(),
	}
	return h.db.InsertPricePoint(ctx, point)
}

// FinalizeProposal satisfies the scheduler Runner; the one-shot finalize task
// lands here.
func (h *handler) FinalizeProposal(ctx context.Context, proposalID uint64) error {
	_, err := h.FinalizeProposalByID(ctx, proposalID)
	return err
}
