// Package types
package types

// TWAPObservation is one oracle read, persisted on every crank tick.
type TWAPObservation struct {
	ProposalID      uint64  `json:"proposalId" bson:"proposalId"`
	PassValue       float64 `json:"passValue" bson:"passValue"`
	FailValue       float64 `json:"failValue" bson:"failValue"`
	PassAggregation string  `json:"passAggregation" bson:"passAggregation"`
	FailAggregation string  `json:"failAggregation" bson:"failAggregation"`
	Time            int64   `json:"time" bson:"time"`
}

// PricePoint is one recorded market price pair. Spot marks points taken from
// the spot pool rather than the conditional markets.
type PricePoint struct {
	ProposalID uint64  `json:"proposalId" bson:"proposalId"`
	PassPrice  float64 `json:"passPrice" bson:"passPrice"`
	FailPrice  float64 `json:"failPrice" bson:"failPrice"`
	Spot       bool    `json:"spot" bson:"spot"`
	Time       int64   `json:"time" bson:"time"`
}
