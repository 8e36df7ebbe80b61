// Package types
package types

type ModeratorState struct {
	Address   string `json:"address" bson:"address"`
	Authority string `json:"authority" bson:"authority"`
	BaseMint  string `json:"baseMint" bson:"baseMint"`
	QuoteMint string `json:"quoteMint" bson:"quoteMint"`
	// ProposalIDCounter is the next id to hand out. It is advanced in durable
	// storage only after the proposal carrying that id has been persisted.
	ProposalIDCounter uint64 `json:"proposalIdCounter" bson:"proposalIdCounter"`
	UpdateTime        int64  `json:"updateTime" bson:"updateTime"`
}
