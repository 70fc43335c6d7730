package history

import (
	"time"
)

// DepositStatus is the local lifecycle of a recorded deposit
type DepositStatus string

const (
	StatusPending   DepositStatus = "pending"   // Quote obtained, nothing sent yet
	StatusSubmitted DepositStatus = "submitted" // Origin transaction sent, waiting on the router
	StatusCompleted DepositStatus = "completed" // Router reported success
	StatusFailed    DepositStatus = "failed"    // Execution failed or was refunded
)

// IsTerminal returns true if the status will not change anymore
func (s DepositStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DepositRecord is one deposit attempt made from this machine
type DepositRecord struct {
	ID          string    `json:"id"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`

	Amount          string `json:"amount"`            // As entered, e.g. "10"
	AmountBaseUnits string `json:"amount_base_units"` // e.g. "10000000"

	OriginChainID      uint64 `json:"origin_chain_id"`
	DestinationChainID uint64 `json:"destination_chain_id"`
	User               string `json:"user"`
	Relayer            string `json:"relayer"`

	RequestID string   `json:"request_id,omitempty"`
	TxHashes  []string `json:"tx_hashes,omitempty"`

	Status         DepositStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	LastStatus     string        `json:"last_status,omitempty"` // Latest status from the router
	CompletionTime *time.Time    `json:"completion_time,omitempty"`
}

// Validate checks the fields every record needs
func (r *DepositRecord) Validate() error {
	if r.ID == "" {
		return errRequired("id")
	}
	if r.Amount == "" || r.Amount == "0" {
		return errRequired("amount")
	}
	if r.User == "" {
		return errRequired("user")
	}
	if r.OriginChainID == 0 || r.DestinationChainID == 0 {
		return errRequired("chain ids")
	}
	return nil
}

// DepositSummary is a record reduced to what the history list shows
type DepositSummary struct {
	ID        string        `json:"id"`
	Created   time.Time     `json:"created"`
	Amount    string        `json:"amount"`
	RequestID string        `json:"request_id,omitempty"`
	Status    DepositStatus `json:"status"`
}

// ToSummary converts a DepositRecord to a DepositSummary
func (r *DepositRecord) ToSummary() *DepositSummary {
	return &DepositSummary{
		ID:        r.ID,
		Created:   r.Created,
		Amount:    r.Amount,
		RequestID: r.RequestID,
		Status:    r.Status,
	}
}

func (r *DepositRecord) clone() *DepositRecord {
	c := *r
	c.TxHashes = append([]string(nil), r.TxHashes...)
	if r.CompletionTime != nil {
		t := *r.CompletionTime
		c.CompletionTime = &t
	}
	return &c
}
