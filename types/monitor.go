// Package types
package types

// MonitoredProposal is the monitor's view of one live on-chain proposal,
// rebuilt from ledger events or the startup backfill. It is not persisted.
type MonitoredProposal struct {
	Address   string `json:"address"`
	ID        uint64 `json:"id"`
	Moderator string `json:"moderator"`
	BaseMint  string `json:"baseMint"`
	QuoteMint string `json:"quoteMint"`
	PassPool  string `json:"passPool"`
	FailPool  string `json:"failPool"`
	// DAO and SpotPool are the optional spot linkage; both empty when the
	// owning DAO could not be resolved or is a child DAO.
	DAO      string `json:"dao,omitempty"`
	SpotPool string `json:"spotPool,omitempty"`
	EndTime  int64  `json:"endTime"`
}

// Pools lists every AMM pool owned by the proposal, for reverse indexing.
func (m *MonitoredProposal) Pools() []string {
	pools := []string{m.PassPool, m.FailPool}
	if m.SpotPool != "" {
		pools = append(pools, m.SpotPool)
	}
	return pools
}

// ListedProposal is one entry from the external proposal-listing API.
type ListedProposal struct {
	ID        uint64 `json:"id"`
	Address   string `json:"address"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	EndsAt    int64  `json:"endsAt"`
	Moderator string `json:"moderatorAddress"`
	DAO       string `json:"daoAddress,omitempty"`
}
