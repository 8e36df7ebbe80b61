// Package db
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/types"
)

const (
	cProposals        = "Proposals"
	cModeratorState   = "ModeratorState"
	cTWAPObservations = "TWAPObservations"
	cPricePoints      = "PricePoints"
)

type mongoDB struct {
	logger *zap.Logger
	client *mongo.Client
	db     *mongo.Database
}

func newMongoDB(cfg Config) (*mongoDB, error) {
	ctx := context.Background()
	mgoOptions := options.Client()
	mgoOptions.ApplyURI(cfg.URL)
	mgoOptions.SetMinPoolSize(uint64(cfg.MinConn))
	mgoOptions.SetMaxPoolSize(uint64(cfg.MaxConn))
	mgoClient, err := mongo.NewClient(mgoOptions)
	if err != nil {
		return nil, err
	}
	if err := mgoClient.Connect(ctx); err != nil {
		return nil, err
	}

	dbClient := &mongoDB{
		logger: cfg.Logger,
		client: mgoClient,
		db:     mgoClient.Database(cfg.DbName),
	}

	if cfg.FlushDB {
		cfg.Logger.Info("Start flush database")
		if err := dbClient.dropDatabase(ctx); err != nil {
			return nil, err
		}
	}
	if err := createIndexes(ctx, dbClient); err != nil {
		cfg.Logger.Warn("Cannot create indexes", zap.Error(err))
	}

	return dbClient, nil
}

func createIndexes(ctx context.Context, dbClient *mongoDB) error {
	type cIndex struct {
		c     string
		model mongo.IndexModel
	}

	indexes := []cIndex{
		{c: cProposals, model: mongo.IndexModel{Keys: bson.M{"id": -1}, Options: options.Index().SetUnique(true).SetSparse(true)}},
		{c: cProposals, model: mongo.IndexModel{Keys: bson.M{"status": 1}, Options: options.Index().SetSparse(true)}},
		{c: cTWAPObservations, model: mongo.IndexModel{Keys: bson.D{{Key: "proposalId", Value: 1}, {Key: "time", Value: -1}}, Options: options.Index().SetSparse(true)}},
		{c: cPricePoints, model: mongo.IndexModel{Keys: bson.D{{Key: "proposalId", Value: 1}, {Key: "time", Value: -1}}, Options: options.Index().SetSparse(true)}},
	}
	for _, cIdx := range indexes {
		if _, err := dbClient.db.Collection(cIdx.c).Indexes().CreateOne(ctx, cIdx.model); err != nil {
			return err
		}
	}
	return nil
}

func (m *mongoDB) ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *mongoDB) dropDatabase(ctx context.Context) error {
	return m.db.Drop(ctx)
}

//region Proposal

func (m *mongoDB) UpsertProposal(ctx context.Context, p *types.Proposal) error {
	p.UpdateTime = time.Now().Unix()
	model := []mongo.WriteModel{
		mongo.NewUpdateOneModel().SetUpsert(true).SetFilter(bson.M{"id": p.ID}).SetUpdate(bson.M{"$set": p}),
	}
	if _, err := m.db.Collection(cProposals).BulkWrite(ctx, model); err != nil {
		return fmt.Errorf("failed to upsert proposal %d: %v", p.ID, err)
	}
	return nil
}

func (m *mongoDB) ProposalByID(ctx context.Context, id uint64) (*types.Proposal, error) {
	var result *types.Proposal
	err := m.db.Collection(cProposals).FindOne(ctx, bson.M{"id": id}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: id %d", types.ErrProposalNotFound, id)
		}
		return nil, err
	}
	return result, nil
}

func (m *mongoDB) Proposals(ctx context.Context) ([]*types.Proposal, error) {
	opts := options.Find().SetSort(bson.M{"id": 1})
	cursor, err := m.db.Collection(cProposals).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposals: %v", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			m.logger.Warn("Error when close cursor", zap.Error(err))
		}
	}()
	var proposals []*types.Proposal
	for cursor.Next(ctx) {
		proposal := &types.Proposal{}
		if err := cursor.Decode(proposal); err != nil {
			return nil, err
		}
		proposals = append(proposals, proposal)
	}
	return proposals, nil
}

//endregion Proposal

//region Moderator

func (m *mongoDB) ModeratorState(ctx context.Context) (*types.ModeratorState, error) {
	var result *types.ModeratorState
	err := m.db.Collection(cModeratorState).FindOne(ctx, bson.M{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, types.ErrModeratorNotFound
		}
		return nil, err
	}
	return result, nil
}

func (m *mongoDB) UpsertModeratorState(ctx context.Context, s *types.ModeratorState) error {
	s.UpdateTime = time.Now().Unix()
	model := []mongo.WriteModel{
		mongo.NewUpdateOneModel().SetUpsert(true).SetFilter(bson.M{"address": s.Address}).SetUpdate(bson.M{"$set": s}),
	}
	if _, err := m.db.Collection(cModeratorState).BulkWrite(ctx, model); err != nil {
		return fmt.Errorf("failed to upsert moderator state: %v", err)
	}
	return nil
}

func (m *mongoDB) ProposalIDCounter(ctx context.Context) (uint64, error) {
	var counter uint64
	state, err := m.ModeratorState(ctx)
	if err == nil {
		counter = state.ProposalIDCounter
	} else if err != types.ErrModeratorNotFound {
		return 0, err
	}

	opts := options.FindOne().SetSort(bson.M{"id": -1})
	var latest *types.Proposal
	err = m.db.Collection(cProposals).FindOne(ctx, bson.M{}, opts).Decode(&latest)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return counter, nil
		}
		return 0, err
	}
	if latest.ID+1 > counter {
		counter = latest.ID + 1
	}
	return counter, nil
}

//endregion Moderator

//region Observations

func (m *mongoDB) InsertTWAPObservation(ctx context.Context, o *types.TWAPObservation) error {
	if _, err := m.db.Collection(cTWAPObservations).InsertOne(ctx, o); err != nil {
		return fmt.Errorf("failed to insert TWAP observation: %v", err)
	}
	return nil
}

func (m *mongoDB) TWAPObservations(ctx context.Context, proposalID uint64, limit int64) ([]*types.TWAPObservation, error) {
	opts := options.Find().SetSort(bson.M{"time": -1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := m.db.Collection(cTWAPObservations).Find(ctx, bson.M{"proposalId": proposalID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			m.logger.Warn("Error when close cursor", zap.Error(err))
		}
	}()
	var observations []*types.TWAPObservation
	for cursor.Next(ctx) {
		observation := &types.TWAPObservation{}
		if err := cursor.Decode(observation); err != nil {
			return nil, err
		}
		observations = append(observations, observation)
	}
	return observations, nil
}

func (m *mongoDB) InsertPricePoint(ctx context.Context, p *types.PricePoint) error {
	if _, err := m.db.Collection(cPricePoints).InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to insert price point: %v", err)
	}
	return nil
}

func (m *mongoDB) PricePoints(ctx context.Context, proposalID uint64, limit int64) ([]*types.PricePoint, error) {
	opts := options.Find().SetSort(bson.M{"time": -1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := m.db.Collection(cPricePoints).Find(ctx, bson.M{"proposalId": proposalID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			m.logger.Warn("Error when close cursor", zap.Error(err))
		}
	}()
	var points []*types.PricePoint
	for cursor.Next(ctx) {
		point := &types.PricePoint{}
		if err := cursor.Decode(point); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, nil
}

//endregion Observations
