package tranche

import "math/big"

const (
	// FullAlloc is the denominator of every ratio, fee and percentage.
	FullAlloc = 100_000
	// MaxFee caps the protocol fee at 20% of the gain.
	MaxFee = 20_000
	// DefaultLiquidationTolerance accepts strategy redemptions 0.1% short of
	// the requested amount.
	DefaultLiquidationTolerance = 100
)

var (
	fullAlloc = big.NewInt(FullAlloc)
	// oneTrancheToken is one whole tranche share; tranche tokens have 18
	// decimals regardless of the underlying.
	oneTrancheToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// mulDiv returns a*b/c rounded down. A zero divisor yields zero.
func mulDiv(a, b, c *big.Int) *big.Int {
	if c == nil || c.Sign() == 0 || a == nil || b == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// portion returns amount*ratio/FullAlloc.
func portion(amount *big.Int, ratio uint64) *big.Int {
	return mulDiv(amount, new(big.Int).SetUint64(ratio), fullAlloc)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func subFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// splitGain divides a positive gain between the tranches. AA receives ratio
// of the gain and each side pays fee on its own slice. The remainder is the
// fee, so gainAA + gainBB + fees == gain exactly.
func splitGain(gain *big.Int, ratio, fee uint64) (gainAA, gainBB, fees *big.Int) {
	aaSplit := portion(gain, ratio)
	gainAA = new(big.Int).Sub(aaSplit, portion(aaSplit, fee))
	bbSplit := new(big.Int).Sub(gain, aaSplit)
	gainBB = new(big.Int).Sub(bbSplit, portion(bbSplit, fee))
	fees = new(big.Int).Sub(gain, gainAA)
	fees.Sub(fees, gainBB)
	return gainAA, gainBB, fees
}

// sharePrice returns nav per whole tranche share, or one when the tranche has
// no supply.
func sharePrice(nav, supply, one *big.Int) *big.Int {
	if supply == nil || supply.Sign() == 0 {
		return cloneInt(one)
	}
	return mulDiv(nav, oneTrancheToken, supply)
}
