// Package wallet tracks the active account and chain.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"fluid-gateway/internal/chain"
)

var (
	// ErrNotConnected is returned when no account is active.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrReadOnly is returned when the active account has no signing key.
	ErrReadOnly = errors.New("wallet cannot sign")
	// ErrInvalidAddress is returned for malformed hex addresses.
	ErrInvalidAddress = errors.New("invalid wallet address")
)

var chainNames = map[int64]string{
	1:        "Ethereum",
	56:       "BNB Smart Chain",
	137:      "Polygon",
	80002:    "Polygon Amoy",
	11155111: "Sepolia",
}

// ChainName returns the display name for id, or "Chain <id>" when unknown.
func ChainName(id int64) string {
	if name, ok := chainNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Chain %d", id)
}

// Status is a read-only projection of the session.
type Status struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	ChainID   int64  `json:"chainId"`
	ChainName string `json:"chainName"`
	CanSign   bool   `json:"canSign"`
}

// Session holds the active account and chain.
type Session struct {
	mu      sync.RWMutex
	address common.Address
	key     *ecdsa.PrivateKey
	chainID int64
	chains  map[int64]struct{}
}

// NewSession starts a disconnected session on chainID. SwitchChain only
// accepts chainID and the listed others.
func NewSession(chainID int64, others ...int64) *Session {
	chains := map[int64]struct{}{chainID: {}}
	for _, id := range others {
		chains[id] = struct{}{}
	}
	return &Session{chainID: chainID, chains: chains}
}

// Connect activates a watch-only account.
func (s *Session) Connect(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = common.HexToAddress(address)
	s.key = nil
	return nil
}

// ConnectWithKey activates the account controlled by a hex private key.
func (s *Session) ConnectWithKey(hexKey string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.address = crypto.PubkeyToAddress(key.PublicKey)
	return nil
}

// Disconnect clears the active account.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = common.Address{}
	s.key = nil
}

// SwitchChain changes the active chain. Chains without an endpoint are
// rejected with chain.ErrUnsupportedChain.
func (s *Session) SwitchChain(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chains[id]; !ok {
		return fmt.Errorf("%w: %d", chain.ErrUnsupportedChain, id)
	}
	s.chainID = id
	return nil
}

// Chains lists the chain ids the session can switch to, ascending.
func (s *Session) Chains() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Address returns the active account.
func (s *Session) Address() (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.address == (common.Address{}) {
		return common.Address{}, ErrNotConnected
	}
	return s.address, nil
}

// ChainID returns the active chain.
func (s *Session) ChainID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

// Signer returns the signing key bound to the active chain.
func (s *Session) Signer() (chain.Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.address == (common.Address{}) {
		return chain.Signer{}, ErrNotConnected
	}
	if s.key == nil {
		return chain.Signer{}, ErrReadOnly
	}
	return chain.Signer{Key: s.key, ChainID: big.NewInt(s.chainID)}, nil
}

// Status projects the current session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{ChainID: s.chainID, ChainName: ChainName(s.chainID)}
	if s.address != (common.Address{}) {
		st.Connected = true
		st.Address = s.address.Hex()
		st.CanSign = s.key != nil
	}
	return st
}
