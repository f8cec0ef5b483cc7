package swap

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/state/bank"
)

var (
	ErrSlippage      = errors.New("swap: output below minimum")
	ErrNoRoute       = errors.New("swap: no route for pair")
	ErrInvalidAmount = errors.New("swap: amount must be positive")
	ErrInvalidRate   = errors.New("swap: rate must be positive")
	ErrNoLiquidity   = errors.New("swap: insufficient reserve liquidity")
	errNilBank       = errors.New("swap: bank not configured")
)

// Router sells one asset for another on behalf of seller.
type Router interface {
	Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
	Swap(seller, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int) (*big.Int, error)
}

type pair struct {
	in  common.Address
	out common.Address
}

// Route is a configured conversion rate: one unit of TokenIn buys Rate units
// of TokenOut, before the route fee.
type Route struct {
	TokenIn  common.Address
	TokenOut common.Address
	Rate     *big.Rat
	FeeBps   uint64
}

// OracleRouter fills swaps at oracle-fed rates out of a reserve account. The
// reserve receives the sold asset and pays out the bought one.
type OracleRouter struct {
	bank    *bank.Bank
	reserve common.Address

	mu     sync.RWMutex
	routes map[pair]Route
}

// NewOracleRouter returns a router paying from reserve.
func NewOracleRouter(b *bank.Bank, reserve common.Address) *OracleRouter {
	return &OracleRouter{bank: b, reserve: reserve, routes: make(map[pair]Route)}
}

// Reserve returns the account providing liquidity.
func (r *OracleRouter) Reserve() common.Address { return r.reserve }

// SetRoute installs or replaces the rate for a pair.
func (r *OracleRouter) SetRoute(route Route) error {
	if route.Rate == nil || route.Rate.Sign() <= 0 {
		return ErrInvalidRate
	}
	if route.FeeBps > 10_000 {
		return fmt.Errorf("swap: fee %d bps exceeds 100%%", route.FeeBps)
	}
	route.Rate = new(big.Rat).Set(route.Rate)
	r.mu.Lock()
	r.routes[pair{in: route.TokenIn, out: route.TokenOut}] = route
	r.mu.Unlock()
	return nil
}

// Quote returns the output for amountIn net of the route fee.
func (r *OracleRouter) Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	r.mu.RLock()
	route, ok := r.routes[pair{in: tokenIn, out: tokenOut}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, tokenIn.Hex(), tokenOut.Hex())
	}
	out := new(big.Rat).Mul(new(big.Rat).SetInt(amountIn), route.Rate)
	out.Mul(out, new(big.Rat).SetFrac(new(big.Int).SetUint64(10_000-route.FeeBps), big.NewInt(10_000)))
	return new(big.Int).Quo(out.Num(), out.Denom()), nil
}

// Swap sells amountIn of tokenIn held by seller and pays tokenOut back. The
// swap fails without moving funds when the output is below minOut.
func (r *OracleRouter) Swap(seller, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int) (*big.Int, error) {
	if r == nil || r.bank == nil {
		return nil, errNilBank
	}
	out, err := r.Quote(tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: got %s want %s", ErrSlippage, out, minOut)
	}
	if r.bank.BalanceOf(tokenOut, r.reserve).Cmp(out) < 0 {
		return nil, ErrNoLiquidity
	}
	if err := r.bank.Transfer(tokenIn, seller, r.reserve, amountIn); err != nil {
		return nil, err
	}
	if err := r.bank.Transfer(tokenOut, r.reserve, seller, out); err != nil {
		return nil, err
	}
	return out, nil
}
