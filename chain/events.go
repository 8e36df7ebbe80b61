// Package chain
package chain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrNotEvent marks a log batch that decodes as neither known schema. Callers
// skip these; they are not faults.
var ErrNotEvent = errors.New("not an event of interest")

// Log is one raw program log entry.
type Log struct {
	Program string `json:"program"`
	Slot    uint64 `json:"slot"`
	TxHash  string `json:"txHash"`
	Data    string `json:"data"`
}

const (
	EventProposalLaunched  = "ProposalLaunched"
	EventProposalFinalized = "ProposalFinalized"
	EventConditionalSwap   = "ConditionalSwap"
)

type ProposalLaunchedEvent struct {
	Proposal  string `json:"proposal"`
	ID        uint64 `json:"id"`
	Moderator string `json:"moderator"`
	PassPool  string `json:"passPool"`
	FailPool  string `json:"failPool"`
	EndTime   int64  `json:"endTime"`
}

type ProposalFinalizedEvent struct {
	Proposal string `json:"proposal"`
	Passed   bool   `json:"passed"`
}

type ConditionalSwapEvent struct {
	Pool        string `json:"pool"`
	Trader      string `json:"trader"`
	Side        string `json:"side"`
	BaseAmount  uint64 `json:"baseAmount"`
	QuoteAmount uint64 `json:"quoteAmount"`
}

type eventEnvelope struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// DecodeEvent turns a raw log into one of the typed events above. Anything
// that does not parse as a known envelope yields ErrNotEvent.
func DecodeEvent(l Log) (interface{}, error) {
	raw, err := base64.StdEncoding.DecodeString(l.Data)
	if err != nil {
		return nil, ErrNotEvent
	}
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ErrNotEvent
	}
	switch envelope.Name {
	case EventProposalLaunched:
		var ev ProposalLaunchedEvent
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, ErrNotEvent
		}
		return &ev, nil
	case EventProposalFinalized:
		var ev ProposalFinalizedEvent
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, ErrNotEvent
		}
		return &ev, nil
	case EventConditionalSwap:
		var ev ConditionalSwapEvent
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, ErrNotEvent
		}
		return &ev, nil
	default:
		return nil, ErrNotEvent
	}
}

// EncodeEvent is the inverse of DecodeEvent, used by tests and local tooling.
func EncodeEvent(name string, event interface{}) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(eventEnvelope{Name: name, Data: data})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(envelope), nil
}
