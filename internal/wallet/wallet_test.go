package wallet

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"fluid-gateway/internal/chain"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession(137, 11155111)
	if st := s.Status(); st.Connected || st.ChainName != "Polygon" {
		t.Fatalf("unexpected initial status %#v", st)
	}
	if _, err := s.Address(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := s.Connect("not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := s.Connect("0x00000000000000000000000000000000000000d4"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	st := s.Status()
	if !st.Connected || st.CanSign {
		t.Fatalf("watch-only account should be connected without signing, got %#v", st)
	}
	if _, err := s.Signer(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}

	if err := s.SwitchChain(11155111); err != nil {
		t.Fatalf("switch chain: %v", err)
	}
	if s.Status().ChainName != "Sepolia" {
		t.Fatalf("unexpected chain name %q", s.Status().ChainName)
	}
	if ChainName(999) != "Chain 999" {
		t.Fatalf("unexpected unknown chain name %q", ChainName(999))
	}

	s.Disconnect()
	if s.Status().Connected {
		t.Fatal("disconnect should clear the account")
	}
}

func TestConnectWithKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s := NewSession(137)
	if err := s.ConnectWithKey("0x" + hex.EncodeToString(crypto.FromECDSA(key))); err != nil {
		t.Fatalf("connect with key: %v", err)
	}

	st := s.Status()
	if !st.CanSign || st.Address != crypto.PubkeyToAddress(key.PublicKey).Hex() {
		t.Fatalf("unexpected status %#v", st)
	}
	signer, err := s.Signer()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if signer.ChainID.Int64() != 137 {
		t.Fatalf("signer chain id %s", signer.ChainID)
	}

	if err := s.ConnectWithKey("zz"); err == nil {
		t.Fatal("malformed key should fail")
	}
}

func TestSwitchChainRejectsChainWithoutEndpoint(t *testing.T) {
	s := NewSession(137, 1)
	if err := s.SwitchChain(56); !errors.Is(err, chain.ErrUnsupportedChain) {
		t.Fatalf("expected ErrUnsupportedChain, got %v", err)
	}
	if s.ChainID() != 137 {
		t.Fatalf("rejected switch changed the chain to %d", s.ChainID())
	}
	if got := s.Chains(); len(got) != 2 || got[0] != 1 || got[1] != 137 {
		t.Fatalf("unexpected chains %v", got)
	}

	if err := s.SwitchChain(1); err != nil {
		t.Fatalf("switch to configured chain: %v", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ConnectWithKey(hex.EncodeToString(crypto.FromECDSA(key))); err != nil {
		t.Fatal(err)
	}
	signer, err := s.Signer()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if signer.ChainID.Int64() != 1 {
		t.Fatalf("signer should follow the active chain, got %s", signer.ChainID)
	}
}
