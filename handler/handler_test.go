// Package handler
package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/chain"
	"github.com/futarchyhub/coordinator-backend/db"
	"github.com/futarchyhub/coordinator-backend/scheduler"
	"github.com/futarchyhub/coordinator-backend/types"
)

type stubNode struct {
	mu sync.Mutex

	oracle     *chain.OracleAccount
	oracleErr  error
	pools      map[string]*chain.PoolAccount
	dao        *chain.DAOAccount
	crankCalls int
	execErr    error
	execCalls  int
}

func (n *stubNode) LatestSlot(ctx context.Context) (uint64, error) { return 0, nil }

func (n *stubNode) LogsInRange(ctx context.Context, program string, fromSlot, toSlot uint64) ([]chain.Log, error) {
	return nil, nil
}

func (n *stubNode) ProposalAccount(ctx context.Context, address string) (*chain.ProposalAccount, error) {
	return nil, errors.New("not implemented")
}

func (n *stubNode) ModeratorAccount(ctx context.Context, address string) (*chain.ModeratorAccount, error) {
	return &chain.ModeratorAccount{Address: address, BaseMint: "base", QuoteMint: "quote"}, nil
}

func (n *stubNode) PoolAccount(ctx context.Context, address string) (*chain.PoolAccount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pool, ok := n.pools[address]
	if !ok {
		return nil, fmt.Errorf("pool account %s not found", address)
	}
	return pool, nil
}

func (n *stubNode) DAOByModerator(ctx context.Context, moderator string) (*chain.DAOAccount, error) {
	return n.dao, nil
}

func (n *stubNode) OracleAccount(ctx context.Context, proposal string) (*chain.OracleAccount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.oracleErr != nil {
		return nil, n.oracleErr
	}
	return n.oracle, nil
}

func (n *stubNode) InitializeProposal(ctx context.Context, params chain.InitializeParams) (*chain.ProposalAccount, error) {
	return &chain.ProposalAccount{
		Address:   fmt.Sprintf("prop-%d", params.ID),
		ID:        params.ID,
		Moderator: params.Moderator,
		PassPool:  fmt.Sprintf("pass-pool-%d", params.ID),
		FailPool:  fmt.Sprintf("fail-pool-%d", params.ID),
		PassVault: fmt.Sprintf("pass-vault-%d", params.ID),
		FailVault: fmt.Sprintf("fail-vault-%d", params.ID),
	}, nil
}

func (n *stubNode) CrankTWAP(ctx context.Context, proposal string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.crankCalls++
	return nil
}

func (n *stubNode) ExecuteProposal(ctx context.Context, proposal, payload, signer string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.execCalls++
	if n.execErr != nil {
		return "", n.execErr
	}
	return "exec-sig-" + proposal, nil
}

type testEnv struct {
	handler Handler
	node    *stubNode
	db      db.Client
	sched   *scheduler.Scheduler
}

func newTestEnv(t *testing.T, proposalLength time.Duration) *testEnv {
	logger, err := zap.NewDevelopment()
	assert.Nil(t, err)
	dbClient, err := db.NewClient(db.Config{DbAdapter: db.Mem, Logger: logger})
	assert.Nil(t, err)
	sched := scheduler.New(scheduler.Config{
		DB:            dbClient,
		Logger:        logger,
		CrankInterval: time.Minute,
		PriceInterval: time.Minute,
		SpotInterval:  time.Minute,
	})
	node := &stubNode{
		oracle: &chain.OracleAccount{PassValue: 10, FailValue: 5, PassAggregation: "100", FailAggregation: "50"},
		pools:  make(map[string]*chain.PoolAccount),
	}
	h, err := New(Config{
		Node:             node,
		DB:               dbClient,
		Scheduler:        sched,
		ModeratorAddress: "moderator-1",
		BaseMint:         "base",
		QuoteMint:        "quote",
		ProposalLength:   proposalLength,
		FinalizeGrace:    time.Second,
		Logger:           logger,
	})
	assert.Nil(t, err)
	sched.SetRunner(h)
	return &testEnv{handler: h, node: node, db: dbClient, sched: sched}
}

func TestModerator_SequentialIDs(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()
	ctx := context.Background()

	for want := uint64(0); want < 3; want++ {
		p, err := env.handler.CreateProposal(ctx, CreateProposalParams{Description: "p"})
		assert.Nil(t, err)
		assert.Equal(t, want, p.ID)
	}
}

func TestModerator_CounterSurvivesCrash(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()
	ctx := context.Background()

	p, err := env.handler.CreateProposal(ctx, CreateProposalParams{Description: "first"})
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), p.ID)

	// Simulate a crash between "persist proposal" and "persist counter": the
	// proposal with id 1 exists but the stored counter still says 1 is free.
	orphan := types.NewProposal(1, "moderator-1", "orphan", "", time.Now().Unix(), 3600)
	assert.Nil(t, env.db.UpsertProposal(ctx, orphan))

	p, err = env.handler.CreateProposal(ctx, CreateProposalParams{Description: "after crash"})
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), p.ID)
}

func TestModerator_CreateRegistersTasks(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()
	env.node.dao = &chain.DAOAccount{Address: "dao-1", Moderator: "moderator-1", SpotPool: "spot-pool"}

	p, err := env.handler.CreateProposal(context.Background(), CreateProposalParams{Description: "p"})
	assert.Nil(t, err)
	assert.Equal(t, "spot-pool", p.SpotPool)

	var ids []string
	for _, info := range env.sched.ActiveTasks() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{"PriceRecord-0", "ProposalFinalize-0", "SpotPriceRecord-0", "TWAPCrank-0"}, ids)
}

func TestModerator_ChildDAOSkipsSpotPool(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()
	env.node.dao = &chain.DAOAccount{Address: "dao-2", Moderator: "moderator-1", SpotPool: "spot-pool", Parent: "dao-1"}

	p, err := env.handler.CreateProposal(context.Background(), CreateProposalParams{Description: "p"})
	assert.Nil(t, err)
	assert.Equal(t, "", p.SpotPool)
}

func TestModerator_Lifecycle(t *testing.T) {
	env := newTestEnv(t, time.Second)
	defer env.sched.StopAll()
	ctx := context.Background()

	p, err := env.handler.CreateProposal(ctx, CreateProposalParams{Description: "fast one"})
	assert.Nil(t, err)

	// Not due yet.
	status, err := env.handler.FinalizeProposalByID(ctx, p.ID)
	assert.Nil(t, err)
	assert.Equal(t, types.StatusPending, status)

	time.Sleep(1100 * time.Millisecond)

	status, err = env.handler.FinalizeProposalByID(ctx, p.ID)
	assert.Nil(t, err)
	assert.Equal(t, types.StatusPassed, status)

	executed, err := env.handler.ExecuteProposal(ctx, p.ID, "signer-key")
	assert.Nil(t, err)
	assert.Equal(t, types.StatusExecuted, executed.Status)
	assert.Equal(t, "exec-sig-prop-0", executed.ExecutedSignature)

	_, err = env.handler.ExecuteProposal(ctx, p.ID, "signer-key")
	assert.True(t, errors.Is(err, types.ErrInvalidState))
	assert.Contains(t, err.Error(), "already executed")
}

func TestModerator_FinalizeUnknownProposal(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()

	_, err := env.handler.FinalizeProposalByID(context.Background(), 404)
	assert.True(t, errors.Is(err, types.ErrProposalNotFound))
}

func TestModerator_RestoreTasks(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()
	ctx := context.Background()

	pending := types.NewProposal(3, "moderator-1", "pending", "", time.Now().Unix(), 3600)
	done := types.NewProposal(4, "moderator-1", "done", "", time.Now().Unix()-7200, 3600)
	done.Status = types.StatusFailed
	assert.Nil(t, env.db.UpsertProposal(ctx, pending))
	assert.Nil(t, env.db.UpsertProposal(ctx, done))

	assert.Nil(t, env.handler.RestoreTasks(ctx))

	var ids []string
	for _, info := range env.sched.ActiveTasks() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{"PriceRecord-3", "ProposalFinalize-3", "TWAPCrank-3"}, ids)
}

func TestTicks_CrankPersistsObservation(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()
	ctx := context.Background()

	p, err := env.handler.CreateProposal(ctx, CreateProposalParams{Description: "p"})
	assert.Nil(t, err)

	assert.Nil(t, env.handler.CrankTWAP(ctx, p))
	observations, err := env.db.TWAPObservations(ctx, p.ID, 0)
	assert.Nil(t, err)
	assert.Len(t, observations, 1)
	assert.Equal(t, float64(10), observations[0].PassValue)
	assert.Equal(t, "100", observations[0].PassAggregation)
}

func TestTicks_RecordPrice(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	defer env.sched.StopAll()
	ctx := context.Background()

	p, err := env.handler.CreateProposal(ctx, CreateProposalParams{Description: "p"})
	assert.Nil(t, err)
	env.node.pools["pass-pool-0"] = &chain.PoolAccount{BaseReserve: 100, QuoteReserve: 150, State: chain.PoolStateTrading}
	env.node.pools["fail-pool-0"] = &chain.PoolAccount{BaseReserve: 100, QuoteReserve: 50, State: chain.PoolStateTrading}

	assert.Nil(t, env.handler.RecordPrice(ctx, p))
	points, err := env.db.PricePoints(ctx, p.ID, 0)
	assert.Nil(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, 1.5, points[0].PassPrice)
	assert.Equal(t, 0.5, points[0].FailPrice)
}
