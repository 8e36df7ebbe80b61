// Package handler
package handler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/chain"
	"github.com/futarchyhub/coordinator-backend/types"
)

// CreateProposal assigns the next sequential id, initializes the on-chain
// accounts, persists the proposal, and only then advances the durable
// counter. A crash between the two writes leaves a persisted proposal whose
// id the counter recovery logic will skip on restart.
func (h *handler) CreateProposal(ctx context.Context, params CreateProposalParams) (*types.Proposal, error) {
	lgr := h.logger.With(zap.String("method", "CreateProposal"))

	counter, err := h.db.ProposalIDCounter(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	proposal := types.NewProposal(counter, h.moderator.Address, params.Description, params.Payload, now, h.proposalLength)

	account, err := h.node.InitializeProposal(ctx, chain.InitializeParams{
		ID:          proposal.ID,
		Moderator:   h.moderator.Address,
		Description: params.Description,
		Payload:     params.Payload,
		Length:      h.proposalLength,
	})
	if err != nil {
		return nil, err
	}
	proposal.Address = account.Address
	proposal.SetConditionalAccounts(types.ConditionalAccounts{
		PassMarket: account.PassPool,
		FailMarket: account.FailPool,
		PassVault:  account.PassVault,
		FailVault:  account.FailVault,
	})

	dao, err := h.node.DAOByModerator(ctx, h.moderator.Address)
	if err != nil {
		lgr.Warn("cannot resolve DAO for spot pool", zap.Error(err))
	} else if dao != nil && !dao.IsChild() {
		proposal.SpotPool = dao.SpotPool
	}

	// Write-ahead: the id is consumed only once the proposal is durable.
	if err := h.db.UpsertProposal(ctx, proposal); err != nil {
		return nil, err
	}
	h.moderator.ProposalIDCounter = counter + 1
	state := h.moderator
	if err := h.db.UpsertModeratorState(ctx, &state); err != nil {
		return nil, err
	}

	h.registerTasks(proposal)
	lgr.Info("Proposal created",
		zap.Uint64("id", proposal.ID),
		zap.String("address", proposal.Address),
		zap.Int64("finalizedAt", proposal.FinalizedAt))
	return proposal, nil
}

func (h *handler) registerTasks(p *types.Proposal) {
	h.sched.ScheduleTWAPCranking(p.ID)
	if p.SpotPool != "" {
		h.sched.ScheduleSpotPriceRecording(p.ID)
	}
	// The grace buffer keeps finalize from racing the last crank's write.
	h.sched.ScheduleProposalFinalization(p.ID, p.FinalizedAt+h.finalizeGrace)
}

// RestoreTasks re-registers scheduler tasks for every pending proposal in
// storage. Registration is idempotent, so running this against an already
// populated scheduler is safe.
func (h *handler) RestoreTasks(ctx context.Context) error {
	proposals, err := h.db.Proposals(ctx)
	if err != nil {
		return err
	}
	for _, p := range proposals {
		if p.Status != types.StatusPending {
			continue
		}
		h.registerTasks(p)
	}
	return nil
}

// GetProposal always reloads from storage; there is no in-process cache of
// proposal state.
func (h *handler) GetProposal(ctx context.Context, id uint64) (*types.Proposal, error) {
	return h.db.ProposalByID(ctx, id)
}

// FinalizeProposalByID reloads the proposal, applies the oracle decision if
// due, and persists the result. Calling it early returns Pending unchanged.
func (h *handler) FinalizeProposalByID(ctx context.Context, id uint64) (types.ProposalStatus, error) {
	proposal, err := h.db.ProposalByID(ctx, id)
	if err != nil {
		return types.StatusUninitialized, err
	}
	before := proposal.Status
	status, err := proposal.Finalize(time.Now().Unix(), func() (bool, error) {
		oracle, err := h.node.OracleAccount(ctx, proposal.Address)
		if err != nil {
			return false, err
		}
		return oracle.PassValue > oracle.FailValue, nil
	})
	if err != nil {
		return before, err
	}
	if status != before {
		if err := h.db.UpsertProposal(ctx, proposal); err != nil {
			return before, err
		}
		h.logger.Info("Proposal finalized",
			zap.Uint64("id", id),
			zap.String("status", status.String()))
	}
	return status, nil
}

// ExecuteProposal runs the pass payload through the execution collaborator.
// State preconditions are validated against freshly loaded storage state.
func (h *handler) ExecuteProposal(ctx context.Context, id uint64, signer string) (*types.Proposal, error) {
	proposal, err := h.db.ProposalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = proposal.Execute(func() (string, error) {
		return h.node.ExecuteProposal(ctx, proposal.Address, proposal.Payload, signer)
	})
	if err != nil {
		return nil, err
	}
	if err := h.db.UpsertProposal(ctx, proposal); err != nil {
		return nil, err
	}
	h.logger.Info("Proposal executed",
		zap.Uint64("id", id),
		zap.String("signature", proposal.ExecutedSignature))
	return proposal, nil
}
