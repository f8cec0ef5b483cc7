package tranche

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/core/events"
)

func TestSettersRejectOutOfRangeValues(t *testing.T) {
	f := newFixture(t, nil)
	cases := map[string]func() error{
		"fee":          func() error { return f.engine.SetFee(owner, MaxFee+1) },
		"unlent":       func() error { return f.engine.SetUnlentPerc(owner, FullAlloc+1) },
		"split":        func() error { return f.engine.SetTrancheAPRSplitRatio(owner, FullAlloc+1) },
		"ideal":        func() error { return f.engine.SetTrancheIdealWeightRatio(owner, FullAlloc+1) },
		"range":        func() error { return f.engine.SetIdealRange(owner, FullAlloc+1) },
		"tolerance":    func() error { return f.engine.SetLiquidationTolerance(owner, FullAlloc+1) },
		"limit":        func() error { return f.engine.SetLimit(owner, big.NewInt(-1)) },
		"guardian":     func() error { return f.engine.SetGuardian(owner, common.Address{}) },
		"fee receiver": func() error { return f.engine.SetFeeReceiver(owner, common.Address{}) },
		"incentives":   func() error { return f.engine.SetIncentiveTokens(owner, []common.Address{underlying}) },
		"strategy":     func() error { return f.engine.SetStrategy(owner, "missing") },
	}
	before := f.ledger()
	for name, call := range cases {
		err := call()
		if !errors.Is(err, ErrInvalidParam) || Reason(err) != ReasonInvalidParam {
			t.Fatalf("%s: expected ErrInvalidParam, got %v", name, err)
		}
	}
	after := f.ledger()
	if after.Fee != before.Fee || after.UnlentPerc != before.UnlentPerc || after.TrancheAPRSplitRatio != before.TrancheAPRSplitRatio {
		t.Fatalf("rejected setters mutated the ledger")
	}
	if len(f.recorder.Events) != 0 {
		t.Fatalf("rejected setters emitted events: %v", f.recorder.Types())
	}
}

func TestSettersRequireOwner(t *testing.T) {
	f := newFixture(t, nil)
	for _, caller := range []common.Address{alice, guardian, rebalancer} {
		if err := f.engine.SetFee(caller, 1); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %s, got %v", caller.Hex(), err)
		}
	}
	if err := f.engine.Pause(rebalancer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("rebalancer must not pause, got %v", err)
	}
}

func TestSettersApplyAndEmit(t *testing.T) {
	f := newFixture(t, nil)
	newGuardian := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	newRebalancer := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	steps := []error{
		f.engine.SetFee(owner, MaxFee),
		f.engine.SetUnlentPerc(owner, 5_000),
		f.engine.SetTrancheIdealWeightRatio(owner, 70_000),
		f.engine.SetIdealRange(owner, 5_000),
		f.engine.SetGuardian(owner, newGuardian),
		f.engine.SetRebalancer(owner, newRebalancer),
		f.engine.SetLimit(owner, units(5)),
		f.engine.SetStakingRewards(owner, stakingAA, stakingBB),
		f.engine.SetIncentiveTokens(owner, []common.Address{incentiveToken}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	l := f.ledger()
	if l.Fee != MaxFee || l.UnlentPerc != 5_000 || l.TrancheIdealWeightRatio != 70_000 || l.IdealRange != 5_000 {
		t.Fatalf("unexpected ratios: %+v", l)
	}
	if l.Access.Guardian != newGuardian || l.Access.Rebalancer != newRebalancer {
		t.Fatalf("unexpected roles: %+v", l.Access)
	}
	if l.StakingAA != stakingAA || l.StakingBB != stakingBB || len(l.IncentiveTokens) != 1 {
		t.Fatalf("unexpected incentive wiring: %+v", l)
	}
	expectInt(t, "limit", l.Limit, units(5))
	if len(f.recorder.Events) != len(steps) {
		t.Fatalf("expected one event per setter, got %d", len(f.recorder.Events))
	}
	last := f.recorder.Events[len(f.recorder.Events)-1].(events.TrancheParamUpdated)
	if last.Param != "incentiveTokens" || last.Value != incentiveToken.Hex() {
		t.Fatalf("unexpected event: %+v", last)
	}
}

func TestSplitRatioChangeRealisesPendingGain(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPool()
	if err := f.vault.Accrue(units(2000)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := f.engine.SetTrancheAPRSplitRatio(owner, 50_000); err != nil {
		t.Fatalf("set split: %v", err)
	}
	l := f.ledger()
	expectInt(t, "lastNAVAA", l.LastNAVAA, units(1360))
	expectInt(t, "lastNAVBB", l.LastNAVBB, units(2440))
	expectInt(t, "unclaimed", l.UnclaimedFees, units(200))
	if l.TrancheAPRSplitRatio != 50_000 {
		t.Fatalf("split not applied")
	}
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.engine.TransferOwnership(owner, alice); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := f.engine.SetFee(owner, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous owner kept rights: %v", err)
	}
	if err := f.engine.SetFee(alice, 1); err != nil {
		t.Fatalf("new owner: %v", err)
	}
}

func TestSetStrategyMovesPosition(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPool()
	if err := f.vault.Accrue(units(200)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := f.engine.SetStrategy(owner, "alt"); err != nil {
		t.Fatalf("set strategy: %v", err)
	}
	l := f.ledger()
	if l.Strategy != "alt" || l.StrategyToken != altVaultShare {
		t.Fatalf("strategy not switched: %s %s", l.Strategy, l.StrategyToken.Hex())
	}
	expectInt(t, "lastStrategyPrice", l.LastStrategyPrice, units(1))
	expectInt(t, "old shares", f.balance(vaultShare, ledgerAddr), big.NewInt(0))
	expectInt(t, "idle", f.balance(underlying, ledgerAddr), units(2200))
	expectInt(t, "unclaimed", l.UnclaimedFees, units(20))

	f.harvest(HarvestParams{})
	expectInt(t, "alt assets", f.alt.TotalAssets(), units(2200))
	if err := f.engine.SetStrategy(owner, "alt"); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam for same strategy, got %v", err)
	}
}
