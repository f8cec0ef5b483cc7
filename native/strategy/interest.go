package strategy

import (
	"errors"
	"math/big"
)

var errInvalidKink = errors.New("strategy: interest model kink must be within (0, 1]")

// InterestModel is the kinked rate curve of the lending market a
// LendingMarket strategy supplies into.
type InterestModel struct {
	// BaseRate is the borrow APR at zero utilisation.
	BaseRate *big.Rat
	// Slope1 applies per unit of utilisation below the kink.
	Slope1 *big.Rat
	// Slope2 applies per unit of utilisation above the kink.
	Slope2 *big.Rat
	// Kink is the utilisation where Slope2 takes over.
	Kink *big.Rat
}

// NewInterestModel builds a model from decimal inputs, e.g. 0.02 for a 2%
// base rate and 0.8 for an 80% kink.
func NewInterestModel(baseRate, slope1, slope2, kink float64) *InterestModel {
	return &InterestModel{
		BaseRate: new(big.Rat).SetFloat64(baseRate),
		Slope1:   new(big.Rat).SetFloat64(slope1),
		Slope2:   new(big.Rat).SetFloat64(slope2),
		Kink:     new(big.Rat).SetFloat64(kink),
	}
}

// DefaultInterestModel mirrors a conservative stablecoin market.
var DefaultInterestModel = NewInterestModel(0.02, 0.15, 0.6, 0.8)

// Clone returns a deep copy of the model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	return &InterestModel{
		BaseRate: cloneRat(m.BaseRate),
		Slope1:   cloneRat(m.Slope1),
		Slope2:   cloneRat(m.Slope2),
		Kink:     cloneRat(m.Kink),
	}
}

// Validate rejects curves that cannot be evaluated.
func (m *InterestModel) Validate() error {
	if m == nil {
		return nil
	}
	kink := cloneRat(m.Kink)
	if kink.Sign() <= 0 || kink.Cmp(big.NewRat(1, 1)) > 0 {
		return errInvalidKink
	}
	return nil
}

// Utilisation is borrowed / supplied, zero for an empty market.
func (m *InterestModel) Utilisation(borrowed, supplied *big.Int) *big.Rat {
	if borrowed == nil || borrowed.Sign() == 0 || supplied == nil || supplied.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(borrowed, supplied)
}

// BorrowAPR evaluates the curve at the current utilisation.
func (m *InterestModel) BorrowAPR(borrowed, supplied *big.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	u := m.Utilisation(borrowed, supplied)
	if u.Sign() == 0 {
		return rate
	}
	kink := cloneRat(m.Kink)
	if kink.Sign() == 0 || u.Cmp(kink) <= 0 {
		return rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope1), u))
	}
	rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope1), kink))
	excess := new(big.Rat).Sub(u, kink)
	return rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope2), excess))
}

// SupplyAPY is the rate earned by suppliers: borrow APR × utilisation, net of
// the market reserve factor in basis points.
func (m *InterestModel) SupplyAPY(borrowed, supplied *big.Int, reserveFactorBps uint64) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	borrowAPR := m.BorrowAPR(borrowed, supplied)
	u := m.Utilisation(borrowed, supplied)
	if borrowAPR.Sign() == 0 || u.Sign() == 0 {
		return new(big.Rat)
	}
	if reserveFactorBps > 10_000 {
		reserveFactorBps = 10_000
	}
	keep := new(big.Rat).SetFrac(new(big.Int).SetUint64(10_000-reserveFactorBps), basisPoints)
	apy := new(big.Rat).Mul(borrowAPR, u)
	return apy.Mul(apy, keep)
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}
