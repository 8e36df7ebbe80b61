// Package db
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/types"
)

// memDB is the in-memory adapter. It honors the same contract as the mongo
// adapter (load returns the latest durable write, save is the only visible
// mutation path) and backs unit tests and local runs without a mongo URI.
type memDB struct {
	logger *zap.Logger

	mu           sync.RWMutex
	proposals    map[uint64]types.Proposal
	moderator    *types.ModeratorState
	observations []types.TWAPObservation
	pricePoints  []types.PricePoint
}

func newMemDB(cfg Config) *memDB {
	return &memDB{
		logger:    cfg.Logger,
		proposals: make(map[uint64]types.Proposal),
	}
}

func (m *memDB) ping(ctx context.Context) error {
	return nil
}

func (m *memDB) dropDatabase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals = make(map[uint64]types.Proposal)
	m.moderator = nil
	m.observations = nil
	m.pricePoints = nil
	return nil
}

func (m *memDB) UpsertProposal(ctx context.Context, p *types.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdateTime = time.Now().Unix()
	stored := *p
	if p.Accounts != nil {
		accounts := *p.Accounts
		stored.Accounts = &accounts
	}
	m.proposals[p.ID] = stored
	return nil
}

func (m *memDB) ProposalByID(ctx context.Context, id uint64) (*types.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", types.ErrProposalNotFound, id)
	}
	p := stored
	if stored.Accounts != nil {
		accounts := *stored.Accounts
		p.Accounts = &accounts
	}
	return &p, nil
}

func (m *memDB) Proposals(ctx context.Context) ([]*types.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var proposals []*types.Proposal
	for id := range m.proposals {
		stored := m.proposals[id]
		p := stored
		proposals = append(proposals, &p)
	}
	return proposals, nil
}

func (m *memDB) ModeratorState(ctx context.Context) (*types.ModeratorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.moderator == nil {
		return nil, types.ErrModeratorNotFound
	}
	state := *m.moderator
	return &state, nil
}

func (m *memDB) UpsertModeratorState(ctx context.Context, s *types.ModeratorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdateTime = time.Now().Unix()
	state := *s
	m.moderator = &state
	return nil
}

func (m *memDB) ProposalIDCounter(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var counter uint64
	if m.moderator != nil {
		counter = m.moderator.ProposalIDCounter
	}
	for id := range m.proposals {
		if id+1 > counter {
			counter = id + 1
		}
	}
	return counter, nil
}

func (m *memDB) InsertTWAPObservation(ctx context.Context, o *types.TWAPObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, *o)
	return nil
}

func (m *memDB) TWAPObservations(ctx context.Context, proposalID uint64, limit int64) ([]*types.TWAPObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var observations []*types.TWAPObservation
	for i := len(m.observations) - 1; i >= 0; i-- {
		if m.observations[i].ProposalID != proposalID {
			continue
		}
		observation := m.observations[i]
		observations = append(observations, &observation)
		if limit > 0 && int64(len(observations)) >= limit {
			break
		}
	}
	return observations, nil
}

func (m *memDB) InsertPricePoint(ctx context.Context, p *types.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pricePoints = append(m.pricePoints, *p)
	return nil
}

func (m *memDB) PricePoints(ctx context.Context, proposalID uint64, limit int64) ([]*types.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var points []*types.PricePoint
	for i := len(m.pricePoints) - 1; i >= 0; i-- {
		if m.pricePoints[i].ProposalID != proposalID {
			continue
		}
		point := m.pricePoints[i]
		points = append(points, &point)
		if limit > 0 && int64(len(points)) >= limit {
			break
		}
	}
	return points, nil
}
