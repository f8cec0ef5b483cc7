package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/state/bank"
)

var (
	trancheAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	minter      = common.HexToAddress("0x0000000000000000000000000000000000000c00")
	holder      = common.HexToAddress("0x0000000000000000000000000000000000000d01")
)

func TestFirstMintLocksDeadShares(t *testing.T) {
	tr := NewTranche(bank.New(), trancheAddr, "AA", minter)
	minted := big.NewInt(1_000_000)

	if err := tr.Mint(minter, holder, minted); err != nil {
		t.Fatalf("mint: %v", err)
	}
	want := new(big.Int).Sub(minted, DeadShares)
	if got := tr.BalanceOf(holder); got.Cmp(want) != 0 {
		t.Fatalf("unexpected holder balance: got %s want %s", got, want)
	}
	if got := tr.BalanceOf(DeadSharesAddress); got.Cmp(DeadShares) != 0 {
		t.Fatalf("unexpected dead shares: %s", got)
	}
	if got := tr.TotalSupply(); got.Cmp(minted) != 0 {
		t.Fatalf("unexpected supply: %s", got)
	}

	if err := tr.Mint(minter, holder, big.NewInt(500)); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	want.Add(want, big.NewInt(500))
	if got := tr.BalanceOf(holder); got.Cmp(want) != 0 {
		t.Fatalf("second mint burned shares: got %s want %s", got, want)
	}
	if got := tr.BalanceOf(DeadSharesAddress); got.Cmp(DeadShares) != 0 {
		t.Fatalf("dead shares changed on second mint: %s", got)
	}
}

func TestMintRestrictedToMinter(t *testing.T) {
	tr := NewTranche(bank.New(), trancheAddr, "BB", minter)
	if err := tr.Mint(holder, holder, big.NewInt(5000)); !errors.Is(err, ErrNotMinter) {
		t.Fatalf("expected ErrNotMinter, got %v", err)
	}
	if err := tr.Mint(minter, holder, big.NewInt(1000)); !errors.Is(err, ErrMintTooSmall) {
		t.Fatalf("expected ErrMintTooSmall, got %v", err)
	}
	if err := tr.Mint(minter, holder, big.NewInt(5000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tr.Burn(holder, holder, big.NewInt(1)); !errors.Is(err, ErrNotMinter) {
		t.Fatalf("expected ErrNotMinter on burn, got %v", err)
	}
	if err := tr.Burn(minter, holder, big.NewInt(4000)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := tr.TotalSupply(); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected supply after burn: %s", got)
	}
}
