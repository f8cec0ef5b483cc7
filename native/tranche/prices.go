package tranche

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// accounting is one evaluation of the pool against the strategy. Nothing in it
// is persisted until updatePrices copies it into the ledger.
type accounting struct {
	strategyPrice *big.Int
	// value is idle underlying plus the strategy position, net of unclaimed
	// fees.
	value *big.Int
	// gain is value minus the last recorded NAVs. It is negative after a loss.
	gain   *big.Int
	gainAA *big.Int
	gainBB *big.Int
	fees   *big.Int

	navAA    *big.Int
	navBB    *big.Int
	supplyAA *big.Int
	supplyBB *big.Int
	priceAA  *big.Int
	priceBB  *big.Int
}

func (a *accounting) price(t Tranche) *big.Int {
	if t == AA {
		return cloneInt(a.priceAA)
	}
	return cloneInt(a.priceBB)
}

func (a *accounting) nav(t Tranche) *big.Int {
	if t == AA {
		return cloneInt(a.navAA)
	}
	return cloneInt(a.navBB)
}

// strategyValue converts the ledger's strategy token balance into underlying.
func (tx *txn) strategyValue(strategyPrice *big.Int) *big.Int {
	l := tx.ledger
	held := tx.bank.BalanceOf(l.StrategyToken, l.Address)
	return mulDiv(held, strategyPrice, tx.strategy.OneToken())
}

func (tx *txn) account() *accounting {
	l := tx.ledger
	acc := &accounting{
		strategyPrice: tx.strategy.Price(),
		gainAA:        big.NewInt(0),
		gainBB:        big.NewInt(0),
		fees:          big.NewInt(0),
		supplyAA:      tx.aa.TotalSupply(),
		supplyBB:      tx.bb.TotalSupply(),
	}
	gross := new(big.Int).Add(tx.underlying.BalanceOf(l.Address), tx.strategyValue(acc.strategyPrice))
	acc.value = subFloor(gross, cloneInt(l.UnclaimedFees))
	navAA, navBB := cloneInt(l.LastNAVAA), cloneInt(l.LastNAVBB)
	acc.gain = new(big.Int).Sub(acc.value, navAA)
	acc.gain.Sub(acc.gain, navBB)

	switch acc.gain.Sign() {
	case 1:
		switch {
		case acc.supplyAA.Sign() == 0 && acc.supplyBB.Sign() == 0:
			acc.fees = new(big.Int).Set(acc.gain)
		case acc.supplyAA.Sign() == 0:
			acc.gainAA, acc.gainBB, acc.fees = splitGain(acc.gain, 0, l.Fee)
		case acc.supplyBB.Sign() == 0:
			acc.gainAA, acc.gainBB, acc.fees = splitGain(acc.gain, FullAlloc, l.Fee)
		default:
			acc.gainAA, acc.gainBB, acc.fees = splitGain(acc.gain, l.TrancheAPRSplitRatio, l.Fee)
		}
	case -1:
		// Losses hit the junior tranche first.
		loss := new(big.Int).Neg(acc.gain)
		lossBB := minInt(loss, navBB)
		lossAA := minInt(new(big.Int).Sub(loss, lossBB), navAA)
		acc.gainBB = lossBB.Neg(lossBB)
		acc.gainAA = lossAA.Neg(lossAA)
	}

	acc.navAA = navAA.Add(navAA, acc.gainAA)
	acc.navBB = navBB.Add(navBB, acc.gainBB)
	acc.priceAA = sharePrice(acc.navAA, acc.supplyAA, l.OneToken)
	acc.priceBB = sharePrice(acc.navBB, acc.supplyBB, l.OneToken)
	return acc
}

// accrue evaluates the pool, applies the default check and persists the
// result.
func (tx *txn) accrue() (*accounting, error) {
	acc := tx.account()
	if err := checkDefault(tx.ledger, acc.strategyPrice); err != nil {
		tx.defaulted = true
		return nil, err
	}
	tx.updatePrices(acc)
	return acc, nil
}

func (tx *txn) updatePrices(acc *accounting) {
	l := tx.ledger
	l.PriceAA = cloneInt(acc.priceAA)
	l.PriceBB = cloneInt(acc.priceBB)
	l.UnclaimedFees = new(big.Int).Add(cloneInt(l.UnclaimedFees), acc.fees)
	l.LastNAVAA = cloneInt(acc.navAA)
	l.LastNAVBB = cloneInt(acc.navBB)
}

// updateLastTranchePrices locks the current mint prices as the redemption
// prices until the next harvest.
func (tx *txn) updateLastTranchePrices() {
	l := tx.ledger
	l.LastTranchePriceAA = cloneInt(l.PriceAA)
	l.LastTranchePriceBB = cloneInt(l.PriceBB)
	l.LastStrategyPrice = tx.strategy.Price()
}

// aaRatio returns navAA / (navAA + navBB) in FullAlloc units.
func aaRatio(navAA, navBB *big.Int) uint64 {
	total := new(big.Int).Add(navAA, navBB)
	if total.Sign() <= 0 {
		return 0
	}
	return mulDiv(navAA, fullAlloc, total).Uint64()
}

// trancheApr scales the strategy APR, net of fee, to one tranche given the AA
// share of the pool.
func trancheApr(l *Ledger, strategyApr *big.Int, t Tranche, ratio uint64) *big.Int {
	net := portion(strategyApr, FullAlloc-l.Fee)
	switch ratio {
	case 0:
		if t == AA {
			return big.NewInt(0)
		}
		return net
	case FullAlloc:
		if t == AA {
			return net
		}
		return big.NewInt(0)
	}
	if t == AA {
		return mulDiv(net, new(big.Int).SetUint64(l.TrancheAPRSplitRatio), new(big.Int).SetUint64(ratio))
	}
	return mulDiv(net, new(big.Int).SetUint64(FullAlloc-l.TrancheAPRSplitRatio), new(big.Int).SetUint64(FullAlloc-ratio))
}

// TranchePrice returns the mint price persisted by the last update.
func (e *Engine) TranchePrice(t Tranche) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		out = tx.ledger.price(t)
		return nil
	})
	return out, err
}

// LastTranchePrice returns the redemption price locked at the last harvest.
func (e *Engine) LastTranchePrice(t Tranche) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		out = tx.ledger.lastPrice(t)
		return nil
	})
	return out, err
}

// VirtualPrice returns the live price including gain not yet persisted.
func (e *Engine) VirtualPrice(t Tranche) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		out = tx.account().price(t)
		return nil
	})
	return out, err
}

// ContractValue returns idle underlying plus the strategy position, net of
// unclaimed fees.
func (e *Engine) ContractValue() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		out = tx.account().value
		return nil
	})
	return out, err
}

// CurrentAARatio returns the AA share of the live NAV in FullAlloc units.
func (e *Engine) CurrentAARatio() (uint64, error) {
	var out uint64
	err := e.view(func(tx *txn) error {
		acc := tx.account()
		out = aaRatio(acc.navAA, acc.navBB)
		return nil
	})
	return out, err
}

// Apr returns the APR of a tranche at the current AA ratio, 18 decimals with
// 1e18 being 1%.
func (e *Engine) Apr(t Tranche) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		acc := tx.account()
		out = trancheApr(tx.ledger, tx.strategy.GetApr(), t, aaRatio(acc.navAA, acc.navBB))
		return nil
	})
	return out, err
}

// IdealApr returns the APR a tranche would earn at the ideal AA ratio.
func (e *Engine) IdealApr(t Tranche) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		out = trancheApr(tx.ledger, tx.strategy.GetApr(), t, tx.ledger.TrancheIdealWeightRatio)
		return nil
	})
	return out, err
}

// SharesOf returns the tranche shares held by holder.
func (e *Engine) SharesOf(t Tranche, holder common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		out = tx.tranche(t).BalanceOf(holder)
		return nil
	})
	return out, err
}

// Snapshot returns a copy of the persisted ledger record.
func (e *Engine) Snapshot() (*Ledger, error) {
	var out *Ledger
	err := e.view(func(tx *txn) error {
		out = tx.ledger.Clone()
		return nil
	})
	return out, err
}
