package strategy

import "math/big"

// Seconds-based block cadence used to annualise interest.
const blocksPerYear = 31_536_000

var (
	basisPoints = big.NewInt(10_000)
	// aprScale expresses 1% as 1e18.
	aprScale = mustBigInt("1000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func computeInterest(principal *big.Int, rate *big.Rat, delta uint64) *big.Int {
	if principal == nil || principal.Sign() == 0 || rate == nil || rate.Sign() == 0 || delta == 0 {
		return big.NewInt(0)
	}
	perBlock := new(big.Rat).Set(rate)
	perBlock.Quo(perBlock, new(big.Rat).SetUint64(blocksPerYear))
	perBlock.Mul(perBlock, new(big.Rat).SetUint64(delta))
	interest := new(big.Rat).Mul(perBlock, new(big.Rat).SetInt(principal))
	if interest.Sign() <= 0 {
		return big.NewInt(0)
	}
	// Truncate so the vault never credits more than it earned.
	return new(big.Int).Quo(interest.Num(), interest.Denom())
}

// ratToApr converts a decimal rate (0.05 = 5%) into the 1e18 = 1% scale.
func ratToApr(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt64(100))
	scaled.Mul(scaled, new(big.Rat).SetInt(aprScale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

func ceilDiv(a, b *big.Int) *big.Int {
	if b.Sign() == 0 {
		return big.NewInt(0)
	}
	q, m := new(big.Int).QuoRem(a, b, new(big.Int))
	if m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
