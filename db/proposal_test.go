// Package db
package db

import (
	"context"
	"errors"
	"testing"

	"github.com/bxcodec/faker/v3"
	"go.uber.org/zap"
	"gotest.tools/assert"

	"github.com/futarchyhub/coordinator-backend/types"
)

func newTestClient(t *testing.T) Client {
	logger, err := zap.NewDevelopment()
	assert.NilError(t, err)
	client, err := NewClient(Config{DbAdapter: Mem, Logger: logger})
	assert.NilError(t, err)
	return client
}

func fakeProposal(t *testing.T, id uint64) *types.Proposal {
	var description string
	assert.NilError(t, faker.FakeData(&description))
	p := types.NewProposal(id, "moderator-1", description, "cGF5bG9hZA==", 1000, 300)
	return p
}

func Test_memDB_UpsertProposal(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	p := fakeProposal(t, 0)
	assert.NilError(t, client.UpsertProposal(ctx, p))

	loaded, err := client.ProposalByID(ctx, 0)
	assert.NilError(t, err)
	assert.Equal(t, p.Description, loaded.Description)
	assert.Equal(t, types.StatusPending, loaded.Status)

	// Mutating the loaded copy must not leak back into storage.
	loaded.Status = types.StatusPassed
	reloaded, err := client.ProposalByID(ctx, 0)
	assert.NilError(t, err)
	assert.Equal(t, types.StatusPending, reloaded.Status)
}

func Test_memDB_ProposalNotFound(t *testing.T) {
	client := newTestClient(t)
	_, err := client.ProposalByID(context.Background(), 99)
	assert.Assert(t, errors.Is(err, types.ErrProposalNotFound))
}

func Test_memDB_ProposalIDCounter(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	counter, err := client.ProposalIDCounter(ctx)
	assert.NilError(t, err)
	assert.Equal(t, uint64(0), counter)

	// Proposal persisted but counter never advanced: simulates a crash between
	// the two writes. The recovered counter must skip the consumed id.
	assert.NilError(t, client.UpsertProposal(ctx, fakeProposal(t, 0)))
	counter, err = client.ProposalIDCounter(ctx)
	assert.NilError(t, err)
	assert.Equal(t, uint64(1), counter)

	// Counter ahead of proposals wins.
	assert.NilError(t, client.UpsertModeratorState(ctx, &types.ModeratorState{
		Address:           "moderator-1",
		ProposalIDCounter: 5,
	}))
	counter, err = client.ProposalIDCounter(ctx)
	assert.NilError(t, err)
	assert.Equal(t, uint64(5), counter)
}

func Test_memDB_ModeratorState(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.ModeratorState(ctx)
	assert.Assert(t, errors.Is(err, types.ErrModeratorNotFound))

	state := &types.ModeratorState{Address: "moderator-1", BaseMint: "base", QuoteMint: "quote"}
	assert.NilError(t, client.UpsertModeratorState(ctx, state))

	loaded, err := client.ModeratorState(ctx)
	assert.NilError(t, err)
	assert.Equal(t, "base", loaded.BaseMint)
}

func Test_memDB_PricePoints(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.NilError(t, client.InsertPricePoint(ctx, &types.PricePoint{
			ProposalID: 1,
			PassPrice:  float64(i),
			FailPrice:  float64(i) / 2,
			Time:       int64(1000 + i),
		}))
	}
	assert.NilError(t, client.InsertPricePoint(ctx, &types.PricePoint{ProposalID: 2, Time: 2000}))

	points, err := client.PricePoints(ctx, 1, 3)
	assert.NilError(t, err)
	assert.Equal(t, 3, len(points))
	// Most recent first.
	assert.Equal(t, int64(1004), points[0].Time)

	points, err = client.PricePoints(ctx, 1, 0)
	assert.NilError(t, err)
	assert.Equal(t, 5, len(points))
}
