// Package chain
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"
)

// Node is the read/crank surface of the ledger RPC consumed by the
// coordinator. Transaction building and signing live behind the RPC service,
// not here.
type Node interface {
	LatestSlot(ctx context.Context) (uint64, error)
	LogsInRange(ctx context.Context, program string, fromSlot, toSlot uint64) ([]Log, error)

	ProposalAccount(ctx context.Context, address string) (*ProposalAccount, error)
	ModeratorAccount(ctx context.Context, address string) (*ModeratorAccount, error)
	PoolAccount(ctx context.Context, address string) (*PoolAccount, error)
	DAOByModerator(ctx context.Context, moderator string) (*DAOAccount, error)
	OracleAccount(ctx context.Context, proposal string) (*OracleAccount, error)

	InitializeProposal(ctx context.Context, params InitializeParams) (*ProposalAccount, error)
	CrankTWAP(ctx context.Context, proposal string) error
	ExecuteProposal(ctx context.Context, proposal, payload, signer string) (string, error)
}

// InitializeParams describes the proposal the signer service should set up
// on-chain: the proposal account itself plus its conditional markets, vaults
// and TWAP oracle.
type InitializeParams struct {
	ID          uint64 `json:"id"`
	Moderator   string `json:"moderator"`
	Description string `json:"description"`
	Payload     string `json:"payload"`
	Length      int64  `json:"length"`
}

type NodeConfig struct {
	URL            string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type node struct {
	url    string
	client *http.Client
	logger *zap.Logger

	requestID uint64
}

func NewNode(cfg NodeConfig) (Node, error) {
	if cfg.URL == "" {
		return nil, errors.New("missing node RPC URL")
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &node{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		logger: cfg.Logger,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

// call runs one JSON-RPC request with bounded exponential retry. Only
// transport failures are retried; an RPC-level error is final.
func (n *node) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	var raw json.RawMessage
	op := func() error {
		body, err := json.Marshal(rpcRequest{
			JSONRPC: "2.0",
			ID:      atomic.AddUint64(&n.requestID, 1),
			Method:  method,
			Params:  params,
		})
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		respBody, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("node returned status %d", resp.StatusCode)
		}
		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return err
		}
		if rpcResp.Error != nil {
			return backoff.Permanent(fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
		}
		raw = rpcResp.Result
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(raw, result)
}

func (n *node) LatestSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := n.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func (n *node) LogsInRange(ctx context.Context, program string, fromSlot, toSlot uint64) ([]Log, error) {
	var logs []Log
	params := []interface{}{program, fromSlot, toSlot}
	if err := n.call(ctx, "getProgramLogs", params, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (n *node) ProposalAccount(ctx context.Context, address string) (*ProposalAccount, error) {
	var account *ProposalAccount
	if err := n.call(ctx, "getProposal", []interface{}{address}, &account); err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("proposal account %s not found", address)
	}
	return account, nil
}

func (n *node) ModeratorAccount(ctx context.Context, address string) (*ModeratorAccount, error) {
	var account *ModeratorAccount
	if err := n.call(ctx, "getModerator", []interface{}{address}, &account); err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("moderator account %s not found", address)
	}
	return account, nil
}

func (n *node) PoolAccount(ctx context.Context, address string) (*PoolAccount, error) {
	var account *PoolAccount
	if err := n.call(ctx, "getPool", []interface{}{address}, &account); err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("pool account %s not found", address)
	}
	return account, nil
}

func (n *node) DAOByModerator(ctx context.Context, moderator string) (*DAOAccount, error) {
	var account *DAOAccount
	if err := n.call(ctx, "getDaoByModerator", []interface{}{moderator}, &account); err != nil {
		return nil, err
	}
	return account, nil
}

func (n *node) OracleAccount(ctx context.Context, proposal string) (*OracleAccount, error) {
	var account *OracleAccount
	if err := n.call(ctx, "getTwapOracle", []interface{}{proposal}, &account); err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("oracle account for proposal %s not found", proposal)
	}
	return account, nil
}

func (n *node) InitializeProposal(ctx context.Context, params InitializeParams) (*ProposalAccount, error) {
	var account *ProposalAccount
	if err := n.call(ctx, "initializeProposal", []interface{}{params}, &account); err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("initializeProposal returned no account")
	}
	return account, nil
}

func (n *node) CrankTWAP(ctx context.Context, proposal string) error {
	return n.call(ctx, "crankTwap", []interface{}{proposal}, nil)
}

func (n *node) ExecuteProposal(ctx context.Context, proposal, payload, signer string) (string, error) {
	var signature string
	if err := n.call(ctx, "executeProposal", []interface{}{proposal, payload, signer}, &signature); err != nil {
		return "", err
	}
	return signature, nil
}
