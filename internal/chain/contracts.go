package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrContractNotConfigured is returned when a contract address is empty.
var ErrContractNotConfigured = errors.New("contract address not configured")

func callOne[T any](ctx context.Context, b Caller, parsed *abi.ABI, to common.Address, method string, args ...any) (T, error) {
	var zero T
	if to == (common.Address{}) {
		return zero, ErrContractNotConfigured
	}

	payload, err := parsed.Pack(method, args...)
	if err != nil {
		return zero, err
	}

	res, err := b.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return zero, fmt.Errorf("call %s: %w", method, err)
	}

	outputs, err := parsed.Unpack(method, res)
	if err != nil {
		return zero, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) != 1 {
		return zero, fmt.Errorf("unexpected %s response", method)
	}

	value, ok := outputs[0].(T)
	if !ok {
		return zero, fmt.Errorf("failed to decode %s output", method)
	}
	return value, nil
}

// ERC20 reads token balances and metadata.
type ERC20 struct {
	backend Caller
}

// NewERC20 binds the ERC-20 read surface to a caller.
func NewERC20(backend Caller) *ERC20 {
	return &ERC20{backend: backend}
}

// BalanceOf returns owner's raw balance of token.
func (e *ERC20) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, e.backend, &erc20ABI, token, "balanceOf", owner)
}

// Decimals returns the token's decimals.
func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	return callOne[uint8](ctx, e.backend, &erc20ABI, token, "decimals")
}

// Airdrop binds the airdrop contract.
type Airdrop struct {
	address common.Address
	backend Transactor
}

// NewAirdrop binds the airdrop contract at address.
func NewAirdrop(address common.Address, backend Transactor) *Airdrop {
	return &Airdrop{address: address, backend: backend}
}

// Address returns the bound contract address.
func (a *Airdrop) Address() common.Address { return a.address }

func (a *Airdrop) IsEligible(ctx context.Context, account common.Address) (bool, error) {
	return callOne[bool](ctx, a.backend, &airdropABI, a.address, "isEligible", account)
}

func (a *Airdrop) HasClaimed(ctx context.Context, account common.Address) (bool, error) {
	return callOne[bool](ctx, a.backend, &airdropABI, a.address, "hasClaimed", account)
}

func (a *Airdrop) ClaimableAmount(ctx context.Context, account common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, a.backend, &airdropABI, a.address, "claimableAmount", account)
}

func (a *Airdrop) TotalAllocation(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, a.backend, &airdropABI, a.address, "totalAllocation")
}

func (a *Airdrop) TotalClaimed(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, a.backend, &airdropABI, a.address, "totalClaimed")
}

func (a *Airdrop) RemainingAllocation(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, a.backend, &airdropABI, a.address, "getRemainingAllocation")
}

// ClaimProgress is the claimed share as reported by the contract.
func (a *Airdrop) ClaimProgress(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, a.backend, &airdropABI, a.address, "getClaimProgress")
}

// Claim signs and broadcasts claim(). A zero hash means nothing was broadcast.
func (a *Airdrop) Claim(ctx context.Context, signer Signer) (common.Hash, error) {
	if a.address == (common.Address{}) {
		return common.Hash{}, ErrContractNotConfigured
	}
	payload, err := airdropABI.Pack("claim")
	if err != nil {
		return common.Hash{}, err
	}
	return SendCall(ctx, a.backend, signer, a.address, payload)
}

// Presale binds the presale contract's read surface.
type Presale struct {
	address common.Address
	backend Caller
}

// NewPresale binds the presale contract at address.
func NewPresale(address common.Address, backend Caller) *Presale {
	return &Presale{address: address, backend: backend}
}

func (p *Presale) TotalUSDTRaised(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, p.backend, &presaleABI, p.address, "totalUSDTRaised")
}

func (p *Presale) TotalFLDSold(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, p.backend, &presaleABI, p.address, "totalFLDSold")
}

func (p *Presale) HardCap(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, p.backend, &presaleABI, p.address, "hardCap")
}

func (p *Presale) SoftCap(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, p.backend, &presaleABI, p.address, "softCap")
}

func (p *Presale) SaleActive(ctx context.Context) (bool, error) {
	return callOne[bool](ctx, p.backend, &presaleABI, p.address, "saleActive")
}
