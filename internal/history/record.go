// Package history keeps the per-address transaction log.
package history

import (
	"fmt"
	"strings"
)

// Type classifies a transaction record.
type Type string

const (
	TypePurchase Type = "purchase"
	TypeClaim    Type = "claim"
	TypeTransfer Type = "transfer"
	TypeApprove  Type = "approve"
)

// Status is the settlement state of a record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is a single logged transaction.
type Record struct {
	Hash        string  `json:"hash"`
	Type        Type    `json:"type"`
	Amount      string  `json:"amount"`
	Timestamp   int64   `json:"timestamp"`
	Status      Status  `json:"status"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	GasUsed     *string `json:"gasUsed,omitempty"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
	// Placeholder marks a hash that was generated locally and cannot be
	// looked up on-chain.
	Placeholder bool `json:"placeholder,omitempty"`
}

// ParseType validates a record type.
func ParseType(v string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(v))); t {
	case TypePurchase, TypeClaim, TypeTransfer, TypeApprove:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", v)
	}
}

// ParseStatus validates a record status.
func ParseStatus(v string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(v))); s {
	case StatusPending, StatusSuccess, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", v)
	}
}

// Terminal reports whether s is a settled state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// canMoveTo reports whether a record may go from s to next.
func (s Status) canMoveTo(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusPending && next.Terminal()
}
