package strategy

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errNilBank         = errors.New("strategy: bank not configured")
	ErrInvalidAmount   = errors.New("strategy: amount must be positive")
	ErrZeroShares      = errors.New("strategy: deposit too small to mint shares")
	ErrUnknownStrategy = errors.New("strategy: unknown strategy")
	ErrDuplicateName   = errors.New("strategy: name already registered")
)

// Strategy is the yield source a tranche ledger deposits into. Prices are
// quoted in underlying units per OneToken strategy tokens.
type Strategy interface {
	// StrategyToken is the share asset issued to depositors.
	StrategyToken() common.Address
	// Token is the underlying asset accepted by Deposit.
	Token() common.Address
	// OneToken is one whole strategy token.
	OneToken() *big.Int
	Price() *big.Int
	Deposit(from common.Address, amount *big.Int) (*big.Int, error)
	Redeem(from common.Address, shares *big.Int) (*big.Int, error)
	RedeemUnderlying(from common.Address, amount *big.Int) (*big.Int, error)
	RedeemRewards(from common.Address, extraData []byte) ([]common.Address, []*big.Int, error)
	// GetApr returns the current APR with 18 decimals, 1e18 being 1%.
	GetApr() *big.Int
	GetRewardTokens() []common.Address
}
