// Package monitor
package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/cache"
	"github.com/futarchyhub/coordinator-backend/chain"
	"github.com/futarchyhub/coordinator-backend/external"
	"github.com/futarchyhub/coordinator-backend/metrics"
	"github.com/futarchyhub/coordinator-backend/types"
)

type Config struct {
	Node    chain.Node
	Listing external.ListingClient
	Cache   cache.Client
	Metrics *metrics.Provider

	AutocratProgram string
	AmmProgram      string

	// TrackedModerators is the allow-list. Moderators are explicitly opted
	// in; everything else on the ledger is ignored. This is a security
	// boundary, not a convenience filter.
	TrackedModerators []string

	PollInterval time.Duration

	Logger *zap.Logger
}

// Monitor rebuilds the tracked-proposal index from ledger logs and a startup
// backfill, and emits added/removed/swap events for downstream consumers.
type Monitor struct {
	cfg    Config
	node   chain.Node
	logger *zap.Logger
	bus    *Bus

	mu        sync.RWMutex
	allow     map[string]bool
	tracked   map[string]*types.MonitoredProposal
	poolIndex map[string]string
}

func New(cfg Config) *Monitor {
	allow := make(map[string]bool)
	for _, moderator := range cfg.TrackedModerators {
		moderator = strings.TrimSpace(moderator)
		if moderator != "" {
			allow[moderator] = true
		}
	}
	return &Monitor{
		cfg:       cfg,
		node:      cfg.Node,
		logger:    cfg.Logger,
		bus:       newBus(cfg.Logger),
		allow:     allow,
		tracked:   make(map[string]*types.MonitoredProposal),
		poolIndex: make(map[string]string),
	}
}

func (m *Monitor) Bus() *Bus {
	return m.bus
}

// AddModerator opts a moderator into tracking at runtime.
func (m *Monitor) AddModerator(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allow[address] = true
}

func (m *Monitor) RemoveModerator(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allow, address)
}

func (m *Monitor) isAllowed(moderator string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allow[moderator]
}

// TrackedProposals snapshots the primary index.
func (m *Monitor) TrackedProposals() []*types.MonitoredProposal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	proposals := make([]*types.MonitoredProposal, 0, len(m.tracked))
	for _, p := range m.tracked {
		copied := *p
		proposals = append(proposals, &copied)
	}
	return proposals
}

// ProposalByPool routes a pool address to its owning proposal through the
// reverse index.
func (m *Monitor) ProposalByPool(pool string) (*types.MonitoredProposal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	address, ok := m.poolIndex[pool]
	if !ok {
		return nil, false
	}
	p, ok := m.tracked[address]
	if !ok {
		return nil, false
	}
	copied := *p
	return &copied, true
}

// Backfill reconstructs the index from the external listing on startup. Only
// Pending proposals owned by allow-listed moderators are considered.
func (m *Monitor) Backfill(ctx context.Context) error {
	lgr := m.logger.With(zap.String("method", "Backfill"))
	listed, err := m.cfg.Listing.Proposals(ctx)
	if err != nil {
		return err
	}
	for _, candidate := range listed {
		if candidate.Status != "Pending" {
			continue
		}
		if !m.isAllowed(candidate.Moderator) {
			continue
		}
		account, err := m.node.ProposalAccount(ctx, candidate.Address)
		if err != nil {
			lgr.Warn("cannot read proposal account, skipping",
				zap.String("address", candidate.Address), zap.Error(err))
			continue
		}
		m.track(ctx, &chain.ProposalLaunchedEvent{
			Proposal:  account.Address,
			ID:        account.ID,
			Moderator: account.Moderator,
			PassPool:  account.PassPool,
			FailPool:  account.FailPool,
			EndTime:   account.EndTime,
		})
	}
	lgr.Info("Backfill done", zap.Int("tracked", len(m.TrackedProposals())))
	return nil
}

// Run polls program logs until the context is cancelled. The last processed
// slot is kept in cache so a restart resumes instead of replaying.
func (m *Monitor) Run(ctx context.Context) {
	lgr := m.logger.With(zap.String("method", "Run"))
	lgr.Info("Start monitoring...")
	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	lgr := m.logger.With(zap.String("method", "poll"))
	latest, err := m.node.LatestSlot(ctx)
	if err != nil {
		lgr.Error("cannot get latest slot", zap.Error(err))
		return
	}
	var from uint64
	if m.cfg.Cache != nil {
		from = m.cfg.Cache.LastProcessedSlot(ctx)
	}
	if from >= latest {
		return
	}
	for _, program := range []string{m.cfg.AutocratProgram, m.cfg.AmmProgram} {
		logs, err := m.node.LogsInRange(ctx, program, from+1, latest)
		if err != nil {
			lgr.Error("cannot fetch program logs",
				zap.String("program", program), zap.Error(err))
			return
		}
		for _, l := range logs {
			m.HandleLog(ctx, l)
		}
	}
	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.UpdateLastProcessedSlot(ctx, latest); err != nil {
			lgr.Warn("cannot persist last processed slot", zap.Error(err))
		}
	}
}

// HandleLog decodes and applies one program log. Logs that are not events of
// interest are skipped silently.
func (m *Monitor) HandleLog(ctx context.Context, l chain.Log) {
	decoded, err := chain.DecodeEvent(l)
	if err != nil {
		if errors.Is(err, chain.ErrNotEvent) {
			return
		}
		m.logger.Warn("cannot decode log", zap.Error(err))
		return
	}
	switch ev := decoded.(type) {
	case *chain.ProposalLaunchedEvent:
		if !m.isAllowed(ev.Moderator) {
			return
		}
		m.track(ctx, ev)
	case *chain.ProposalFinalizedEvent:
		m.Remove(ev.Proposal)
	case *chain.ConditionalSwapEvent:
		proposal, ok := m.ProposalByPool(ev.Pool)
		if !ok {
			return
		}
		m.bus.publish(Event{Type: EventSwap, Proposal: proposal, Swap: ev})
	}
}

// track builds the MonitoredProposal for a launch event and indexes it. The
// moderator is already allow-listed at this point.
func (m *Monitor) track(ctx context.Context, ev *chain.ProposalLaunchedEvent) {
	lgr := m.logger.With(zap.String("method", "track"), zap.String("proposal", ev.Proposal))

	m.mu.RLock()
	_, exists := m.tracked[ev.Proposal]
	m.mu.RUnlock()
	if exists {
		return
	}

	moderator, err := m.node.ModeratorAccount(ctx, ev.Moderator)
	if err != nil {
		lgr.Error("cannot read moderator account", zap.Error(err))
		return
	}

	p := &types.MonitoredProposal{
		Address:   ev.Proposal,
		ID:        ev.ID,
		Moderator: ev.Moderator,
		BaseMint:  moderator.BaseMint,
		QuoteMint: moderator.QuoteMint,
		PassPool:  ev.PassPool,
		FailPool:  ev.FailPool,
		EndTime:   ev.EndTime,
	}

	dao, err := m.node.DAOByModerator(ctx, ev.Moderator)
	if err != nil {
		lgr.Warn("cannot resolve DAO linkage", zap.Error(err))
	} else if dao != nil {
		if dao.Moderator != ev.Moderator {
			// Inconsistent provenance: prefer missing a proposal over
			// tracking one whose linkage disagrees with itself.
			lgr.Error("DAO moderator mismatch, not tracking",
				zap.String("daoModerator", dao.Moderator),
				zap.String("proposalModerator", ev.Moderator),
				zap.Error(types.ErrDataIntegrity))
			return
		}
		if dao.IsChild() {
			lgr.Warn("child DAO, tracking without spot pool",
				zap.String("dao", dao.Address))
		} else {
			p.DAO = dao.Address
			p.SpotPool = dao.SpotPool
		}
	}

	m.mu.Lock()
	m.tracked[p.Address] = p
	// Only the conditional pools are proposal-owned; the spot pool belongs
	// to the DAO and may be shared across proposals.
	m.poolIndex[p.PassPool] = p.Address
	m.poolIndex[p.FailPool] = p.Address
	trackedCount := len(m.tracked)
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SetTrackedProposals(trackedCount)
	}
	lgr.Info("Proposal tracked", zap.Uint64("id", p.ID))
	m.bus.publish(Event{Type: EventProposalAdded, Proposal: p})
}

// Remove drops a proposal from the primary index and prunes every pool it
// owned from the reverse index.
func (m *Monitor) Remove(address string) {
	m.mu.Lock()
	p, ok := m.tracked[address]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.tracked, address)
	for _, pool := range p.Pools() {
		if m.poolIndex[pool] == address {
			delete(m.poolIndex, pool)
		}
	}
	trackedCount := len(m.tracked)
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SetTrackedProposals(trackedCount)
	}
	m.logger.Info("Proposal removed", zap.String("proposal", address))
	m.bus.publish(Event{Type: EventProposalRemoved, Proposal: p})
}
