// Package chain
package chain

// Ledger account views. The RPC returns these as plain JSON documents; only
// the fields the coordinator reads are modeled.

type ProposalAccount struct {
	Address   string `json:"address"`
	ID        uint64 `json:"id"`
	Moderator string `json:"moderator"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	EndTime   int64  `json:"endTime"`
	PassPool  string `json:"passPool"`
	FailPool  string `json:"failPool"`
	PassVault string `json:"passVault"`
	FailVault string `json:"failVault"`
}

type ModeratorAccount struct {
	Address   string `json:"address"`
	Authority string `json:"authority"`
	BaseMint  string `json:"baseMint"`
	QuoteMint string `json:"quoteMint"`
}

const (
	PoolStateUninitialized = "Uninitialized"
	PoolStateFunding       = "Funding"
	PoolStateTrading       = "Trading"
	PoolStateSettled       = "Settled"
)

type PoolAccount struct {
	Address      string `json:"address"`
	BaseMint     string `json:"baseMint"`
	QuoteMint    string `json:"quoteMint"`
	BaseReserve  uint64 `json:"baseReserve"`
	QuoteReserve uint64 `json:"quoteReserve"`
	State        string `json:"state"`
}

// Price returns the quote-per-base pool price, zero when the pool is empty.
func (p *PoolAccount) Price() float64 {
	if p.BaseReserve == 0 {
		return 0
	}
	return float64(p.QuoteReserve) / float64(p.BaseReserve)
}

type DAOAccount struct {
	Address   string `json:"address"`
	Moderator string `json:"moderator"`
	SpotPool  string `json:"spotPool"`
	// Parent is set on child DAOs; spot-pool enrichment is unsupported for
	// those.
	Parent string `json:"parent,omitempty"`
}

func (d *DAOAccount) IsChild() bool {
	return d.Parent != ""
}

type OracleAccount struct {
	Proposal        string  `json:"proposal"`
	PassValue       float64 `json:"passValue"`
	FailValue       float64 `json:"failValue"`
	PassAggregation string  `json:"passAggregation"`
	FailAggregation string  `json:"failAggregation"`
	Status          string  `json:"status"`
	LastUpdatedSlot uint64  `json:"lastUpdatedSlot"`
}
