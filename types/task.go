// Package types
package types

import (
	"fmt"
	"time"
)

type TaskType string

const (
	TaskTWAPCrank        TaskType = "TWAPCrank"
	TaskPriceRecord      TaskType = "PriceRecord"
	TaskSpotPriceRecord  TaskType = "SpotPriceRecord"
	TaskProposalFinalize TaskType = "ProposalFinalize"
)

// TaskID builds the registry key for one proposal task.
func TaskID(t TaskType, proposalID uint64) string {
	return fmt.Sprintf("%s-%d", t, proposalID)
}

// TaskInfo is the introspection view of one scheduled task.
type TaskInfo struct {
	ID         string        `json:"id"`
	Type       TaskType      `json:"type"`
	ProposalID uint64        `json:"proposalId"`
	Periodic   bool          `json:"periodic"`
	Interval   time.Duration `json:"interval,omitempty"`
	RunAt      int64         `json:"runAt,omitempty"`
}
