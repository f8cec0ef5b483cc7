package swap

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/state/bank"
)

var (
	rewardToken = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	usdToken    = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	reserve     = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	seller      = common.HexToAddress("0x0000000000000000000000000000000000000f02")
)

func newTestRouter(t *testing.T) (*bank.Bank, *OracleRouter) {
	t.Helper()
	b := bank.New()
	if err := b.Mint(usdToken, reserve, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}
	if err := b.Mint(rewardToken, seller, big.NewInt(1_000)); err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	r := NewOracleRouter(b, reserve)
	if err := r.SetRoute(Route{TokenIn: rewardToken, TokenOut: usdToken, Rate: big.NewRat(3, 1), FeeBps: 100}); err != nil {
		t.Fatalf("set route: %v", err)
	}
	return b, r
}

func TestSwapPaysQuotedAmount(t *testing.T) {
	b, r := newTestRouter(t)
	out, err := r.Swap(seller, rewardToken, usdToken, big.NewInt(1_000), big.NewInt(2_970))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Cmp(big.NewInt(2_970)) != 0 {
		t.Fatalf("unexpected output: %s", out)
	}
	if got := b.BalanceOf(usdToken, seller); got.Cmp(big.NewInt(2_970)) != 0 {
		t.Fatalf("unexpected seller balance: %s", got)
	}
	if got := b.BalanceOf(rewardToken, reserve); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected reserve reward balance: %s", got)
	}
}

func TestSwapBelowFloorMovesNothing(t *testing.T) {
	b, r := newTestRouter(t)
	if _, err := r.Swap(seller, rewardToken, usdToken, big.NewInt(1_000), big.NewInt(2_971)); !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	if got := b.BalanceOf(rewardToken, seller); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("seller balance changed: %s", got)
	}
	if _, err := r.Swap(seller, usdToken, rewardToken, big.NewInt(1), nil); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}
