// Package types
package types

import (
	"fmt"
)

type ProposalStatus uint8

const (
	StatusUninitialized ProposalStatus = iota
	StatusPending
	StatusPassed
	StatusFailed
	StatusExecuted
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "Uninitialized"
	case StatusPending:
		return "Pending"
	case StatusPassed:
		return "Passed"
	case StatusFailed:
		return "Failed"
	case StatusExecuted:
		return "Executed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the proposal outcome has been decided.
func (s ProposalStatus) Terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusExecuted
}

// ConditionalAccounts holds the pass/fail market and vault addresses of one
// proposal. Both markets and both vaults are created in a single initialize
// call, so they are either all present or all absent.
type ConditionalAccounts struct {
	PassMarket string `json:"passMarket" bson:"passMarket"`
	FailMarket string `json:"failMarket" bson:"failMarket"`
	PassVault  string `json:"passVault" bson:"passVault"`
	FailVault  string `json:"failVault" bson:"failVault"`
}

type Proposal struct {
	ID          uint64 `json:"id" bson:"id"`
	Address     string `json:"address" bson:"address"`
	Moderator   string `json:"moderator" bson:"moderator"`
	Description string `json:"description" bson:"description"`
	// Payload is the base64 instruction executed if the proposal passes.
	Payload     string         `json:"payload" bson:"payload"`
	CreatedAt   int64          `json:"createdAt" bson:"createdAt"`
	FinalizedAt int64          `json:"finalizedAt" bson:"finalizedAt"`
	Status      ProposalStatus `json:"status" bson:"status"`
	// SpotPool is the optional spot AMM pool used for spot price recording.
	SpotPool string `json:"spotPool,omitempty" bson:"spotPool,omitempty"`

	// Accounts is nil until initialize completes. Read it through
	// ConditionalAccounts, which turns the nil into a typed error.
	Accounts *ConditionalAccounts `json:"accounts,omitempty" bson:"accounts,omitempty"`

	ExecutedSignature string `json:"executedSignature,omitempty" bson:"executedSignature,omitempty"`
	UpdateTime        int64  `json:"updateTime" bson:"updateTime"`
}

// NewProposal builds a Pending proposal. FinalizedAt is fixed at creation and
// never changes afterwards.
func NewProposal(id uint64, moderator, description, payload string, createdAt int64, length int64) *Proposal {
	return &Proposal{
		ID:          id,
		Moderator:   moderator,
		Description: description,
		Payload:     payload,
		CreatedAt:   createdAt,
		FinalizedAt: createdAt + length,
		Status:      StatusPending,
	}
}

// SetConditionalAccounts records the market/vault addresses created during
// initialization. The four addresses are set together.
func (p *Proposal) SetConditionalAccounts(a ConditionalAccounts) {
	p.Accounts = &a
}

// ConditionalAccounts returns the pass/fail markets and vaults, or
// ErrAccountsNotInitialized when initialize has not completed.
func (p *Proposal) ConditionalAccounts() (ConditionalAccounts, error) {
	if p.Accounts == nil {
		return ConditionalAccounts{}, fmt.Errorf("%w: proposal %d", ErrAccountsNotInitialized, p.ID)
	}
	return *p.Accounts, nil
}

// Finalize drives the Pending -> Passed/Failed transition. Before FinalizedAt
// it returns Pending without touching anything; once the proposal is terminal
// it returns the stored status without consulting the oracle again. decide is
// only invoked for the single transitioning call.
func (p *Proposal) Finalize(now int64, decide func() (bool, error)) (ProposalStatus, error) {
	if p.Status == StatusUninitialized {
		return p.Status, fmt.Errorf("%w: proposal %d is not initialized", ErrInvalidState, p.ID)
	}
	if p.Status.Terminal() {
		return p.Status, nil
	}
	if now < p.FinalizedAt {
		return StatusPending, nil
	}
	passed, err := decide()
	if err != nil {
		return p.Status, err
	}
	if passed {
		p.Status = StatusPassed
	} else {
		p.Status = StatusFailed
	}
	return p.Status, nil
}

// Execute runs the pass payload through run and moves the proposal to
// Executed. Only a Passed proposal can be executed, and only once.
func (p *Proposal) Execute(run func() (string, error)) error {
	switch p.Status {
	case StatusUninitialized:
		return fmt.Errorf("%w: proposal %d is not initialized", ErrInvalidState, p.ID)
	case StatusPending:
		return fmt.Errorf("%w: proposal %d not yet finalized", ErrInvalidState, p.ID)
	case StatusFailed:
		return fmt.Errorf("%w: proposal %d has not passed", ErrInvalidState, p.ID)
	case StatusExecuted:
		return fmt.Errorf("%w: proposal %d already executed", ErrInvalidState, p.ID)
	}
	sig, err := run()
	if err != nil {
		return err
	}
	p.Status = StatusExecuted
	p.ExecutedSignature = sig
	return nil
}

// TTL returns the seconds left until finalization, zero once due.
func (p *Proposal) TTL(now int64) int64 {
	if now >= p.FinalizedAt {
		return 0
	}
	return p.FinalizedAt - now
}
