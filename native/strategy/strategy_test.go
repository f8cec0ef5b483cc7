package strategy

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/state/bank"
)

var (
	underlying = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	shareToken = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	rewardTok  = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	custody    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	depositor  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func newTestVault(t *testing.T) (*bank.Bank, *Vault) {
	t.Helper()
	b := bank.New()
	if err := b.Mint(underlying, depositor, e18(1000)); err != nil {
		t.Fatalf("seed depositor: %v", err)
	}
	v := NewVault(b, VaultConfig{
		Address:      custody,
		ShareToken:   shareToken,
		Underlying:   underlying,
		Decimals:     18,
		RewardTokens: []common.Address{rewardTok},
	})
	return b, v
}

func TestVaultPriceFollowsAssets(t *testing.T) {
	b, v := newTestVault(t)
	if got := v.Price(); got.Cmp(e18(1)) != 0 {
		t.Fatalf("empty vault should price at par, got %s", got)
	}
	shares, err := v.Deposit(depositor, e18(100))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Cmp(e18(100)) != 0 {
		t.Fatalf("unexpected shares: %s", shares)
	}
	if err := v.Accrue(e18(100)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if got := v.Price(); got.Cmp(e18(2)) != 0 {
		t.Fatalf("expected price 2, got %s", got)
	}
	if err := v.Slash(e18(50)); err != nil {
		t.Fatalf("slash: %v", err)
	}
	want := new(big.Int).Quo(e18(3), big.NewInt(2))
	if got := v.Price(); got.Cmp(want) != 0 {
		t.Fatalf("expected price 1.5, got %s", got)
	}

	redeemed, err := v.RedeemUnderlying(depositor, e18(30))
	if err != nil {
		t.Fatalf("redeem underlying: %v", err)
	}
	if redeemed.Cmp(e18(30)) != 0 {
		t.Fatalf("unexpected redeemed amount: %s", redeemed)
	}
	if got := b.BalanceOf(shareToken, depositor); got.Cmp(e18(80)) != 0 {
		t.Fatalf("unexpected remaining shares: %s", got)
	}
}

func TestVaultRedeemUnderlyingCapsAtBalance(t *testing.T) {
	_, v := newTestVault(t)
	if _, err := v.Deposit(depositor, e18(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	redeemed, err := v.RedeemUnderlying(depositor, e18(50))
	if err != nil {
		t.Fatalf("redeem underlying: %v", err)
	}
	if redeemed.Cmp(e18(10)) != 0 {
		t.Fatalf("expected capped redemption of 10, got %s", redeemed)
	}
	if _, err := v.Deposit(depositor, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestVaultRedeemRewards(t *testing.T) {
	b, v := newTestVault(t)
	if err := v.EmitRewards(rewardTok, e18(7)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	tokens, amounts, err := v.RedeemRewards(depositor, nil)
	if err != nil {
		t.Fatalf("redeem rewards: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != rewardTok || amounts[0].Cmp(e18(7)) != 0 {
		t.Fatalf("unexpected rewards: %v %v", tokens, amounts)
	}
	if got := b.BalanceOf(rewardTok, depositor); got.Cmp(e18(7)) != 0 {
		t.Fatalf("rewards not transferred: %s", got)
	}
}

func TestLendingMarketAccrual(t *testing.T) {
	b := bank.New()
	if err := b.Mint(underlying, depositor, e18(1000)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	lm, err := NewLendingMarket(b, LendingConfig{
		Vault:          VaultConfig{Address: custody, ShareToken: shareToken, Underlying: underlying, Decimals: 18},
		Model:          NewInterestModel(0, 1, 0, 1),
		UtilisationBps: 5_000,
	}, 0)
	if err != nil {
		t.Fatalf("new lending market: %v", err)
	}
	if _, err := lm.Deposit(depositor, e18(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Borrow APR at 50% utilisation is 0.5, supply APY 0.25.
	if got := lm.GetApr(); got.Cmp(e18(25)) != 0 {
		t.Fatalf("unexpected apr: %s", got)
	}
	interest, err := lm.AccrueTo(blocksPerYear)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if interest.Cmp(e18(250)) != 0 {
		t.Fatalf("unexpected interest: %s", interest)
	}
	want := new(big.Int).Quo(e18(5), big.NewInt(4))
	if got := lm.Price(); got.Cmp(want) != 0 {
		t.Fatalf("unexpected price: got %s want %s", got, want)
	}
	again, err := lm.AccrueTo(blocksPerYear)
	if err != nil || again.Sign() != 0 {
		t.Fatalf("expected no-op accrual, got %v %v", again, err)
	}
}

func TestRegistryLookup(t *testing.T) {
	_, v := newTestVault(t)
	reg := NewRegistry()
	if err := reg.Register("main", KindVault, v); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("main", KindVault, v); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	got, kind, err := reg.Lookup("main")
	if err != nil || got != Strategy(v) || kind != KindVault {
		t.Fatalf("unexpected lookup result: %v %v %v", got, kind, err)
	}
	if _, _, err := reg.Lookup("missing"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if _, err := ParseKind("Lending"); err != nil {
		t.Fatalf("parse kind: %v", err)
	}
}
