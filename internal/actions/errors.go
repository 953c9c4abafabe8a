package actions

import (
	"errors"
	"fmt"

	"fluid-gateway/internal/wallet"
)

var (
	// ErrNotConnected is returned when no wallet is active.
	ErrNotConnected = wallet.ErrNotConnected
	// ErrNotEligible is returned when the airdrop contract rejects the account.
	ErrNotEligible = errors.New("address is not eligible for the airdrop")
	// ErrAlreadyClaimed is returned before submission when the airdrop was claimed.
	ErrAlreadyClaimed = errors.New("airdrop already claimed")
	// ErrBelowMinimum is returned for purchases under the minimum USD value.
	ErrBelowMinimum = errors.New("purchase below minimum")
	// ErrUnsupportedToken is returned for payment tokens without a price.
	ErrUnsupportedToken = errors.New("unsupported payment token")
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrActionInProgress is returned while another action for the same address is pending.
	ErrActionInProgress = errors.New("another action is in progress for this address")
	// ErrWrongChain is returned when the wallet is not on the contracts' chain.
	ErrWrongChain = errors.New("wallet is on the wrong chain")
	// ErrTransactionReverted is returned when a mined transaction failed.
	ErrTransactionReverted = errors.New("transaction reverted")
)

// TransactionFailedError wraps a provider error raised while submitting or
// settling a transaction.
type TransactionFailedError struct {
	Action string
	Hash   string
	Err    error
}

func (e *TransactionFailedError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s transaction %s failed: %v", e.Action, e.Hash, e.Err)
	}
	return fmt.Sprintf("%s transaction failed: %v", e.Action, e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }
