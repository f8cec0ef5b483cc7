package tranche

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/core/events"
	"trancheledger/native/strategy"
	"trancheledger/native/swap"
	"trancheledger/state/bank"
	"trancheledger/storage"
)

var (
	ledgerAddr     = common.HexToAddress("0x0000000000000000000000000000000000000010")
	underlying     = common.HexToAddress("0x0000000000000000000000000000000000000020")
	vaultAddr      = common.HexToAddress("0x0000000000000000000000000000000000000030")
	vaultShare     = common.HexToAddress("0x0000000000000000000000000000000000000031")
	altVaultAddr   = common.HexToAddress("0x0000000000000000000000000000000000000032")
	altVaultShare  = common.HexToAddress("0x0000000000000000000000000000000000000033")
	trancheAAToken = common.HexToAddress("0x0000000000000000000000000000000000000040")
	trancheBBToken = common.HexToAddress("0x0000000000000000000000000000000000000041")
	owner          = common.HexToAddress("0x0000000000000000000000000000000000000050")
	guardian       = common.HexToAddress("0x0000000000000000000000000000000000000051")
	rebalancer     = common.HexToAddress("0x0000000000000000000000000000000000000052")
	feeReceiver    = common.HexToAddress("0x0000000000000000000000000000000000000053")
	stakingAA      = common.HexToAddress("0x0000000000000000000000000000000000000054")
	stakingBB      = common.HexToAddress("0x0000000000000000000000000000000000000055")
	alice          = common.HexToAddress("0x0000000000000000000000000000000000000060")
	bob            = common.HexToAddress("0x0000000000000000000000000000000000000061")
	rewardToken    = common.HexToAddress("0x0000000000000000000000000000000000000070")
	incentiveToken = common.HexToAddress("0x0000000000000000000000000000000000000071")
	swapReserve    = common.HexToAddress("0x0000000000000000000000000000000000000072")
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// hookStrategy runs a callback before delegating deposits to the vault and
// can charge an exit fee on underlying redemptions.
type hookStrategy struct {
	*strategy.Vault
	bank       *bank.Bank
	onDeposit  func()
	exitFeeBps int64
}

func (h *hookStrategy) Deposit(from common.Address, amount *big.Int) (*big.Int, error) {
	if h.onDeposit != nil {
		h.onDeposit()
	}
	return h.Vault.Deposit(from, amount)
}

func (h *hookStrategy) RedeemUnderlying(from common.Address, amount *big.Int) (*big.Int, error) {
	got, err := h.Vault.RedeemUnderlying(from, amount)
	if err != nil || h.exitFeeBps == 0 {
		return got, err
	}
	fee := new(big.Int).Mul(got, big.NewInt(h.exitFeeBps))
	fee.Quo(fee, big.NewInt(10_000))
	if err := h.bank.Transfer(underlying, from, h.Address(), fee); err != nil {
		return nil, err
	}
	return got.Sub(got, fee), nil
}

type fixture struct {
	t        *testing.T
	bank     *bank.Bank
	vault    *strategy.Vault
	alt      *hookStrategy
	router   *swap.OracleRouter
	store    *Store
	engine   *Engine
	recorder *events.Recorder
}

func testConfig() Config {
	return Config{
		Address:                 ledgerAddr.Hex(),
		Underlying:              underlying.Hex(),
		UnderlyingDecimals:      18,
		Strategy:                "vault",
		TrancheAA:               trancheAAToken.Hex(),
		TrancheBB:               trancheBBToken.Hex(),
		Owner:                   owner.Hex(),
		Guardian:                guardian.Hex(),
		Rebalancer:              rebalancer.Hex(),
		FeeReceiver:             feeReceiver.Hex(),
		TrancheAPRSplitRatio:    20_000,
		TrancheIdealWeightRatio: 50_000,
		IdealRange:              10_000,
		Fee:                     10_000,
	}
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	b := bank.New()
	vault := strategy.NewVault(b, strategy.VaultConfig{
		Address:      vaultAddr,
		ShareToken:   vaultShare,
		Underlying:   underlying,
		Decimals:     18,
		RewardTokens: []common.Address{rewardToken, incentiveToken},
		AprPercent:   units(10),
	})
	alt := &hookStrategy{bank: b, Vault: strategy.NewVault(b, strategy.VaultConfig{
		Address:    altVaultAddr,
		ShareToken: altVaultShare,
		Underlying: underlying,
		Decimals:   18,
	})}
	registry := strategy.NewRegistry()
	if err := registry.Register("vault", strategy.KindVault, vault); err != nil {
		t.Fatalf("register vault: %v", err)
	}
	if err := registry.Register("alt", strategy.KindVault, alt); err != nil {
		t.Fatalf("register alt: %v", err)
	}
	router := swap.NewOracleRouter(b, swapReserve)
	if err := router.SetRoute(swap.Route{TokenIn: rewardToken, TokenOut: underlying, Rate: big.NewRat(2, 1)}); err != nil {
		t.Fatalf("set route: %v", err)
	}
	for holder, amount := range map[common.Address]*big.Int{
		swapReserve: units(1_000_000),
		alice:       units(10_000),
		bob:         units(10_000),
	} {
		if err := b.Mint(underlying, holder, amount); err != nil {
			t.Fatalf("seed %s: %v", holder.Hex(), err)
		}
	}
	b.Commit()

	f := &fixture{
		t:        t,
		bank:     b,
		vault:    vault,
		alt:      alt,
		router:   router,
		store:    NewStore(storage.NewMemDB()),
		recorder: &events.Recorder{},
	}
	f.engine = NewEngine(b, registry)
	f.engine.SetState(f.store)
	f.engine.SetRouter(router)
	f.engine.SetEmitter(f.recorder)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	if err := f.engine.Initialize(cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

func (f *fixture) ledger() *Ledger {
	f.t.Helper()
	l, err := f.engine.Snapshot()
	if err != nil {
		f.t.Fatalf("snapshot: %v", err)
	}
	return l
}

func (f *fixture) balance(asset, holder common.Address) *big.Int {
	return f.bank.BalanceOf(asset, holder)
}

func (f *fixture) deposit(t Tranche, who common.Address, amount *big.Int) *big.Int {
	f.t.Helper()
	var (
		shares *big.Int
		err    error
	)
	if t == AA {
		shares, err = f.engine.DepositAA(who, amount)
	} else {
		shares, err = f.engine.DepositBB(who, amount)
	}
	if err != nil {
		f.t.Fatalf("deposit %s: %v", t, err)
	}
	return shares
}

func (f *fixture) harvest(params HarvestParams) *HarvestReport {
	f.t.Helper()
	report, err := f.engine.Harvest(owner, params)
	if err != nil {
		f.t.Fatalf("harvest: %v", err)
	}
	return report
}

// seedPool deposits 1000 in each tranche and lends everything to the vault.
func (f *fixture) seedPool() {
	f.t.Helper()
	f.deposit(AA, alice, units(1000))
	f.deposit(BB, bob, units(1000))
	f.harvest(HarvestParams{})
}

func expectInt(t *testing.T, name string, got, want *big.Int) {
	t.Helper()
	if got == nil || got.Cmp(want) != 0 {
		t.Fatalf("%s: got %v want %s", name, got, want)
	}
}

func TestInitializeSetsStartingPrices(t *testing.T) {
	f := newFixture(t, nil)
	l := f.ledger()
	one := units(1)
	expectInt(t, "priceAA", l.PriceAA, one)
	expectInt(t, "priceBB", l.PriceBB, one)
	expectInt(t, "lastTranchePriceAA", l.LastTranchePriceAA, one)
	expectInt(t, "lastStrategyPrice", l.LastStrategyPrice, one)
	if l.StrategyToken != vaultShare {
		t.Fatalf("unexpected strategy token %s", l.StrategyToken.Hex())
	}
	if !l.AllowAAWithdraw || !l.AllowBBWithdraw || !l.RevertIfTooLow || l.LiquidationTolerance != DefaultLiquidationTolerance {
		t.Fatalf("unexpected default flags: %+v", l)
	}
	if err := f.engine.Initialize(testConfig()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestDepositMintsAtPriceAndBurnsDeadShares(t *testing.T) {
	f := newFixture(t, nil)
	first := f.deposit(AA, alice, units(1000))
	expectInt(t, "first credit", first, new(big.Int).Sub(units(1000), big.NewInt(1000)))
	second := f.deposit(AA, alice, units(10))
	expectInt(t, "second credit", second, units(10))

	l := f.ledger()
	expectInt(t, "lastNAVAA", l.LastNAVAA, units(1010))
	expectInt(t, "custody", f.balance(underlying, ledgerAddr), units(1010))
	expectInt(t, "alice underlying", f.balance(underlying, alice), units(8990))
	if got := f.recorder.Types(); len(got) != 2 || got[0] != events.TypeTrancheDeposit {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestNAVConservationWithoutHarvest(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit(AA, alice, units(1000))
	f.deposit(BB, bob, units(500))
	paid, err := f.engine.WithdrawAA(alice, units(300))
	if err != nil {
		t.Fatalf("withdraw AA: %v", err)
	}
	expectInt(t, "paid AA", paid, units(300))
	paidBB, err := f.engine.WithdrawBB(bob, big.NewInt(0))
	if err != nil {
		t.Fatalf("withdraw BB: %v", err)
	}
	expectInt(t, "paid BB", paidBB, new(big.Int).Sub(units(500), big.NewInt(1000)))

	l := f.ledger()
	total := new(big.Int).Add(l.LastNAVAA, l.LastNAVBB)
	want := new(big.Int).Add(units(700), big.NewInt(1000))
	expectInt(t, "total NAV", total, want)
	value, err := f.engine.ContractValue()
	if err != nil {
		t.Fatalf("contract value: %v", err)
	}
	expectInt(t, "contract value", value, want)
}

func TestWithdrawAllAtLockedPrice(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPool()
	if err := f.vault.Accrue(units(2000)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	f.harvest(HarvestParams{})
	before := f.ledger().LastNAVAA

	paid, err := f.engine.WithdrawAA(alice, big.NewInt(0))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	shares := new(big.Int).Sub(units(1000), big.NewInt(1000))
	want := mulDiv(shares, big.NewInt(1_360_000_000_000_000_000), oneTrancheToken)
	expectInt(t, "paid", paid, want)
	expectInt(t, "alice shares", f.balance(trancheAAToken, alice), big.NewInt(0))
	expectInt(t, "NAV reduction", new(big.Int).Sub(before, f.ledger().LastNAVAA), want)
}

func TestWithdrawRejectsMoreThanBalance(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit(AA, alice, units(10))
	if _, err := f.engine.WithdrawAA(alice, units(11)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := f.engine.WithdrawBB(alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestWithdrawBeforeHarvestPaysLockedPrice(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPool()
	if err := f.vault.Accrue(units(2000)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	virtualAA, err := f.engine.VirtualPrice(AA)
	if err != nil {
		t.Fatalf("virtual price: %v", err)
	}
	expectInt(t, "virtual AA", virtualAA, big.NewInt(1_360_000_000_000_000_000))

	paid, err := f.engine.WithdrawAA(alice, big.NewInt(0))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// The unharvested gain is not paid out; it stays in the pool.
	want := new(big.Int).Sub(units(1000), big.NewInt(1000))
	expectInt(t, "paid", paid, want)
	expectInt(t, "alice underlying", f.balance(underlying, alice), new(big.Int).Add(units(9000), want))

	l := f.ledger()
	expectInt(t, "lastNAVAA", l.LastNAVAA, new(big.Int).Add(units(360), big.NewInt(1000)))
	expectInt(t, "lastNAVBB", l.LastNAVBB, units(2440))
	expectInt(t, "unclaimed fees", l.UnclaimedFees, units(200))
	value, err := f.engine.ContractValue()
	if err != nil {
		t.Fatalf("contract value: %v", err)
	}
	expectInt(t, "contract value", value, new(big.Int).Add(units(2800), big.NewInt(1000)))
	virtualBB, _ := f.engine.VirtualPrice(BB)
	expectInt(t, "virtual BB", virtualBB, big.NewInt(2_440_000_000_000_000_000))
}

func TestTooLowRevertsAtomically(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.Strategy = "alt" })
	f.alt.exitFeeBps = 1_000
	f.seedPool()
	before := f.ledger()
	shares := f.balance(trancheAAToken, alice)

	_, err := f.engine.WithdrawAA(alice, big.NewInt(0))
	if !errors.Is(err, ErrTooLow) || Reason(err) != ReasonTooLow {
		t.Fatalf("expected ErrTooLow, got %v", err)
	}
	expectInt(t, "alice shares", f.balance(trancheAAToken, alice), shares)
	expectInt(t, "strategy shares", f.balance(altVaultShare, ledgerAddr), units(2000))
	expectInt(t, "alice underlying", f.balance(underlying, alice), units(9000))
	after := f.ledger()
	expectInt(t, "lastNAVAA", after.LastNAVAA, before.LastNAVAA)
	expectInt(t, "lastNAVBB", after.LastNAVBB, before.LastNAVBB)

	if err := f.engine.SetRevertIfTooLow(owner, false); err != nil {
		t.Fatalf("revert flag: %v", err)
	}
	paid, err := f.engine.WithdrawAA(alice, big.NewInt(0))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	requested := new(big.Int).Sub(units(1000), big.NewInt(1000))
	want := new(big.Int).Sub(requested, new(big.Int).Quo(requested, big.NewInt(10)))
	expectInt(t, "paid", paid, want)
	expectInt(t, "alice underlying", f.balance(underlying, alice), new(big.Int).Add(units(9000), want))
}

func TestVirtualPriceTracksUnrealisedGain(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPool()
	if err := f.vault.Accrue(units(2000)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	virtualAA, err := f.engine.VirtualPrice(AA)
	if err != nil {
		t.Fatalf("virtual price: %v", err)
	}
	expectInt(t, "virtual AA", virtualAA, big.NewInt(1_360_000_000_000_000_000))
	virtualBB, _ := f.engine.VirtualPrice(BB)
	expectInt(t, "virtual BB", virtualBB, big.NewInt(2_440_000_000_000_000_000))
	stored, _ := f.engine.TranchePrice(AA)
	expectInt(t, "stored AA", stored, units(1))
	locked, _ := f.engine.LastTranchePrice(AA)
	if virtualAA.Cmp(locked) < 0 {
		t.Fatalf("virtual price %s below locked price %s", virtualAA, locked)
	}
}

func TestAprFollowsSplitAndRatio(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPool()
	ratio, err := f.engine.CurrentAARatio()
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	if ratio != 50_000 {
		t.Fatalf("unexpected ratio %d", ratio)
	}
	aprAA, _ := f.engine.Apr(AA)
	aprBB, _ := f.engine.Apr(BB)
	expectInt(t, "apr AA", aprAA, big.NewInt(3_600_000_000_000_000_000))
	expectInt(t, "apr BB", aprBB, new(big.Int).Mul(big.NewInt(144), big.NewInt(100_000_000_000_000_000)))
	idealAA, _ := f.engine.IdealApr(AA)
	expectInt(t, "ideal AA", idealAA, aprAA)
}
