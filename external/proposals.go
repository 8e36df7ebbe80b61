// Package external
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/futarchyhub/coordinator-backend/types"
)

// ListingClient reads the external proposal-listing API the monitor backfills
// from on startup.
type ListingClient interface {
	Proposals(ctx context.Context) ([]types.ListedProposal, error)
}

type listingClient struct {
	baseURL string
	client  *http.Client
}

func NewListingClient(baseURL string, timeout time.Duration) ListingClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &listingClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *listingClient) Proposals(ctx context.Context) ([]types.ListedProposal, error) {
	type listResponse struct {
		Data []types.ListedProposal `json:"data"`
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/proposals", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing API returned status %d", resp.StatusCode)
	}
	var listed listResponse
	if err := json.Unmarshal(body, &listed); err != nil {
		return nil, err
	}
	return listed.Data, nil
}
