// Package monitor
package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/chain"
	"github.com/futarchyhub/coordinator-backend/types"
)

type stubNode struct {
	proposals  map[string]*chain.ProposalAccount
	moderators map[string]*chain.ModeratorAccount
	daos       map[string]*chain.DAOAccount
}

func newStubNode() *stubNode {
	return &stubNode{
		proposals:  make(map[string]*chain.ProposalAccount),
		moderators: make(map[string]*chain.ModeratorAccount),
		daos:       make(map[string]*chain.DAOAccount),
	}
}

func (n *stubNode) LatestSlot(ctx context.Context) (uint64, error) { return 100, nil }

func (n *stubNode) LogsInRange(ctx context.Context, program string, fromSlot, toSlot uint64) ([]chain.Log, error) {
	return nil, nil
}

func (n *stubNode) ProposalAccount(ctx context.Context, address string) (*chain.ProposalAccount, error) {
	account, ok := n.proposals[address]
	if !ok {
		return nil, fmt.Errorf("proposal account %s not found", address)
	}
	return account, nil
}

func (n *stubNode) ModeratorAccount(ctx context.Context, address string) (*chain.ModeratorAccount, error) {
	account, ok := n.moderators[address]
	if !ok {
		return nil, fmt.Errorf("moderator account %s not found", address)
	}
	return account, nil
}

func (n *stubNode) PoolAccount(ctx context.Context, address string) (*chain.PoolAccount, error) {
	return nil, fmt.Errorf("pool account %s not found", address)
}

func (n *stubNode) DAOByModerator(ctx context.Context, moderator string) (*chain.DAOAccount, error) {
	return n.daos[moderator], nil
}

func (n *stubNode) OracleAccount(ctx context.Context, proposal string) (*chain.OracleAccount, error) {
	return nil, fmt.Errorf("oracle account for proposal %s not found", proposal)
}

func (n *stubNode) InitializeProposal(ctx context.Context, params chain.InitializeParams) (*chain.ProposalAccount, error) {
	return nil, fmt.Errorf("not implemented")
}

func (n *stubNode) CrankTWAP(ctx context.Context, proposal string) error { return nil }

func (n *stubNode) ExecuteProposal(ctx context.Context, proposal, payload, signer string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

type stubListing struct {
	listed []types.ListedProposal
}

func (l *stubListing) Proposals(ctx context.Context) ([]types.ListedProposal, error) {
	return l.listed, nil
}

func newTestMonitor(t *testing.T, node *stubNode, listing *stubListing) *Monitor {
	logger, err := zap.NewDevelopment()
	assert.Nil(t, err)
	return New(Config{
		Node:              node,
		Listing:           listing,
		AutocratProgram:   "autocrat",
		AmmProgram:        "amm",
		TrackedModerators: []string{"mod-1", "mod-2"},
		PollInterval:      time.Second,
		Logger:            logger,
	})
}

func launchedLog(t *testing.T, ev *chain.ProposalLaunchedEvent) chain.Log {
	data, err := chain.EncodeEvent(chain.EventProposalLaunched, ev)
	assert.Nil(t, err)
	return chain.Log{Program: "autocrat", Data: data}
}

func TestMonitor_TrackLaunchedProposal(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1", BaseMint: "base", QuoteMint: "quote"}
	m := newTestMonitor(t, node, &stubListing{})
	_, events := m.Bus().Subscribe(4)
	ctx := context.Background()

	m.HandleLog(ctx, launchedLog(t, &chain.ProposalLaunchedEvent{
		Proposal:  "prop-a",
		ID:        1,
		Moderator: "mod-1",
		PassPool:  "pool-pass",
		FailPool:  "pool-fail",
		EndTime:   5000,
	}))

	tracked := m.TrackedProposals()
	assert.Len(t, tracked, 1)
	assert.Equal(t, "base", tracked[0].BaseMint)

	routed, ok := m.ProposalByPool("pool-pass")
	assert.True(t, ok)
	assert.Equal(t, "prop-a", routed.Address)

	ev := <-events
	assert.Equal(t, EventProposalAdded, ev.Type)
	assert.Equal(t, uint64(1), ev.Proposal.ID)
}

func TestMonitor_IgnoresUnknownModerator(t *testing.T) {
	node := newStubNode()
	m := newTestMonitor(t, node, &stubListing{})

	m.HandleLog(context.Background(), launchedLog(t, &chain.ProposalLaunchedEvent{
		Proposal:  "prop-x",
		Moderator: "mod-unknown",
		PassPool:  "p",
		FailPool:  "f",
	}))

	assert.Len(t, m.TrackedProposals(), 0)
}

func TestMonitor_DuplicateLaunchIsNoop(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1"}
	m := newTestMonitor(t, node, &stubListing{})
	ctx := context.Background()

	l := launchedLog(t, &chain.ProposalLaunchedEvent{Proposal: "prop-a", Moderator: "mod-1", PassPool: "p", FailPool: "f"})
	m.HandleLog(ctx, l)
	m.HandleLog(ctx, l)

	assert.Len(t, m.TrackedProposals(), 1)
}

func TestMonitor_FinalizedPrunesIndexes(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1"}
	m := newTestMonitor(t, node, &stubListing{})
	ctx := context.Background()

	m.HandleLog(ctx, launchedLog(t, &chain.ProposalLaunchedEvent{
		Proposal: "prop-a", Moderator: "mod-1", PassPool: "pool-pass", FailPool: "pool-fail",
	}))
	id, events := m.Bus().Subscribe(4)
	defer m.Bus().Unsubscribe(id)

	data, err := chain.EncodeEvent(chain.EventProposalFinalized, &chain.ProposalFinalizedEvent{Proposal: "prop-a", Passed: true})
	assert.Nil(t, err)
	m.HandleLog(ctx, chain.Log{Program: "autocrat", Data: data})

	assert.Len(t, m.TrackedProposals(), 0)
	_, ok := m.ProposalByPool("pool-pass")
	assert.False(t, ok)
	_, ok = m.ProposalByPool("pool-fail")
	assert.False(t, ok)

	ev := <-events
	assert.Equal(t, EventProposalRemoved, ev.Type)
	assert.Equal(t, "prop-a", ev.Proposal.Address)
}

func TestMonitor_SwapRouting(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1"}
	m := newTestMonitor(t, node, &stubListing{})
	ctx := context.Background()

	m.HandleLog(ctx, launchedLog(t, &chain.ProposalLaunchedEvent{
		Proposal: "prop-a", Moderator: "mod-1", PassPool: "pool-pass", FailPool: "pool-fail",
	}))
	id, events := m.Bus().Subscribe(4)
	defer m.Bus().Unsubscribe(id)

	swap := func(pool string) chain.Log {
		data, err := chain.EncodeEvent(chain.EventConditionalSwap, &chain.ConditionalSwapEvent{Pool: pool, Side: "buy", BaseAmount: 7})
		assert.Nil(t, err)
		return chain.Log{Program: "amm", Data: data}
	}

	// Untracked pool: ignored.
	m.HandleLog(ctx, swap("pool-other"))
	// Tracked pool: routed to its proposal.
	m.HandleLog(ctx, swap("pool-fail"))

	ev := <-events
	assert.Equal(t, EventSwap, ev.Type)
	assert.Equal(t, "prop-a", ev.Proposal.Address)
	assert.Equal(t, uint64(7), ev.Swap.BaseAmount)
	assert.Len(t, events, 0)
}

func TestMonitor_NonEventLogsAreSwallowed(t *testing.T) {
	node := newStubNode()
	m := newTestMonitor(t, node, &stubListing{})

	m.HandleLog(context.Background(), chain.Log{Program: "autocrat", Data: "bm90IGFuIGV2ZW50"})
	assert.Len(t, m.TrackedProposals(), 0)
}

func TestMonitor_DAOMismatchNotTracked(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1"}
	node.daos["mod-1"] = &chain.DAOAccount{Address: "dao-1", Moderator: "mod-other", SpotPool: "spot"}
	m := newTestMonitor(t, node, &stubListing{})

	m.HandleLog(context.Background(), launchedLog(t, &chain.ProposalLaunchedEvent{
		Proposal: "prop-a", Moderator: "mod-1", PassPool: "p", FailPool: "f",
	}))

	assert.Len(t, m.TrackedProposals(), 0)
}

func TestMonitor_ChildDAOTrackedWithoutSpotPool(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1"}
	node.daos["mod-1"] = &chain.DAOAccount{Address: "dao-child", Moderator: "mod-1", SpotPool: "spot", Parent: "dao-root"}
	m := newTestMonitor(t, node, &stubListing{})

	m.HandleLog(context.Background(), launchedLog(t, &chain.ProposalLaunchedEvent{
		Proposal: "prop-a", Moderator: "mod-1", PassPool: "p", FailPool: "f",
	}))

	tracked := m.TrackedProposals()
	assert.Len(t, tracked, 1)
	assert.Equal(t, "", tracked[0].SpotPool)
	assert.Equal(t, "", tracked[0].DAO)
}

func TestMonitor_DAOLinkageEnriches(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1"}
	node.daos["mod-1"] = &chain.DAOAccount{Address: "dao-1", Moderator: "mod-1", SpotPool: "spot-pool"}
	m := newTestMonitor(t, node, &stubListing{})

	m.HandleLog(context.Background(), launchedLog(t, &chain.ProposalLaunchedEvent{
		Proposal: "prop-a", Moderator: "mod-1", PassPool: "p", FailPool: "f",
	}))

	tracked := m.TrackedProposals()
	assert.Len(t, tracked, 1)
	assert.Equal(t, "dao-1", tracked[0].DAO)
	assert.Equal(t, "spot-pool", tracked[0].SpotPool)
}

func TestMonitor_Backfill(t *testing.T) {
	node := newStubNode()
	node.moderators["mod-1"] = &chain.ModeratorAccount{Address: "mod-1"}
	node.proposals["prop-a"] = &chain.ProposalAccount{
		Address: "prop-a", ID: 1, Moderator: "mod-1", PassPool: "p1", FailPool: "f1", EndTime: 9000,
	}
	node.proposals["prop-b"] = &chain.ProposalAccount{
		Address: "prop-b", ID: 2, Moderator: "mod-evil", PassPool: "p2", FailPool: "f2",
	}
	listing := &stubListing{listed: []types.ListedProposal{
		{Address: "prop-a", Status: "Pending", Moderator: "mod-1"},
		{Address: "prop-b", Status: "Pending", Moderator: "mod-evil"},
		{Address: "prop-c", Status: "Failed", Moderator: "mod-1"},
	}}
	m := newTestMonitor(t, node, listing)

	assert.Nil(t, m.Backfill(context.Background()))

	tracked := m.TrackedProposals()
	assert.Len(t, tracked, 1)
	assert.Equal(t, "prop-a", tracked[0].Address)
	assert.Equal(t, int64(9000), tracked[0].EndTime)
}
