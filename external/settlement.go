// Package external
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// StepResult is the outcome of one settlement step. Skipped means the API
// declined the step (already done, nothing to redeem); it is not a failure.
type StepResult struct {
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// SettlementClient drives the externally-signed settlement flow for one
// proposal: finalize, then redeem liquidity, then deposit back.
type SettlementClient interface {
	FinalizeProposal(ctx context.Context, proposalAddress string) (*StepResult, error)
	RedeemLiquidity(ctx context.Context, proposalAddress string) (*StepResult, error)
	DepositBack(ctx context.Context, proposalAddress string) (*StepResult, error)
}

type settlementClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewSettlementClient(baseURL string, timeout time.Duration, logger *zap.Logger) SettlementClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &settlementClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *settlementClient) FinalizeProposal(ctx context.Context, proposalAddress string) (*StepResult, error) {
	return c.post(ctx, "/v1/finalize", proposalAddress)
}

func (c *settlementClient) RedeemLiquidity(ctx context.Context, proposalAddress string) (*StepResult, error) {
	return c.post(ctx, "/v1/redeem-liquidity", proposalAddress)
}

func (c *settlementClient) DepositBack(ctx context.Context, proposalAddress string) (*StepResult, error) {
	return c.post(ctx, "/v1/deposit-back", proposalAddress)
}

func (c *settlementClient) post(ctx context.Context, path, proposalAddress string) (*StepResult, error) {
	type request struct {
		Proposal string `json:"proposal"`
	}
	body, err := json.Marshal(request{Proposal: proposalAddress})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("settlement API non-OK", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("settlement API returned status %d", resp.StatusCode)
	}
	var result StepResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
