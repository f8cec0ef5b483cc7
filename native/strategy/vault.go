package strategy

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/state/bank"
)

// VaultConfig describes the assets a Vault strategy operates on.
type VaultConfig struct {
	// Address is the custody account holding the vault's underlying.
	Address common.Address
	// ShareToken is the asset minted to depositors.
	ShareToken common.Address
	// Underlying is the asset accepted on deposit.
	Underlying common.Address
	// Decimals of both the underlying and the share token.
	Decimals     uint8
	RewardTokens []common.Address
	// AprPercent is the reported APR with 18 decimals (1e18 = 1%).
	AprPercent *big.Int
}

// Vault is a share-based yield source: its price is the underlying held in
// custody divided by the outstanding share supply. Yield arrives through
// Accrue, losses through Slash and incentive emissions through EmitRewards.
type Vault struct {
	bank *bank.Bank
	cfg  VaultConfig
	one  *big.Int

	mu  sync.RWMutex
	apr *big.Int
}

// NewVault returns a vault over the bank.
func NewVault(b *bank.Bank, cfg VaultConfig) *Vault {
	apr := big.NewInt(0)
	if cfg.AprPercent != nil {
		apr = new(big.Int).Set(cfg.AprPercent)
	}
	cfg.RewardTokens = append([]common.Address(nil), cfg.RewardTokens...)
	return &Vault{
		bank: b,
		cfg:  cfg,
		one:  new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.Decimals)), nil),
		apr:  apr,
	}
}

func (v *Vault) StrategyToken() common.Address { return v.cfg.ShareToken }

func (v *Vault) Token() common.Address { return v.cfg.Underlying }

func (v *Vault) OneToken() *big.Int { return new(big.Int).Set(v.one) }

// Address returns the custody account.
func (v *Vault) Address() common.Address { return v.cfg.Address }

// TotalAssets is the underlying held in custody.
func (v *Vault) TotalAssets() *big.Int {
	return v.bank.BalanceOf(v.cfg.Underlying, v.cfg.Address)
}

// Price returns underlying per OneToken shares. An empty vault prices at par.
func (v *Vault) Price() *big.Int {
	if v == nil || v.bank == nil {
		return big.NewInt(0)
	}
	shares := v.bank.TotalSupply(v.cfg.ShareToken)
	if shares.Sign() == 0 {
		return new(big.Int).Set(v.one)
	}
	price := new(big.Int).Mul(v.TotalAssets(), v.one)
	return price.Quo(price, shares)
}

// Deposit pulls amount of underlying from the depositor and mints shares at
// the current price.
func (v *Vault) Deposit(from common.Address, amount *big.Int) (*big.Int, error) {
	if v == nil || v.bank == nil {
		return nil, errNilBank
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	price := v.Price()
	if price.Sign() == 0 {
		return nil, ErrZeroShares
	}
	shares := new(big.Int).Mul(amount, v.one)
	shares.Quo(shares, price)
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}
	if err := v.bank.Transfer(v.cfg.Underlying, from, v.cfg.Address, amount); err != nil {
		return nil, err
	}
	if err := v.bank.Mint(v.cfg.ShareToken, from, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns shares and returns the underlying they are worth.
func (v *Vault) Redeem(from common.Address, shares *big.Int) (*big.Int, error) {
	if v == nil || v.bank == nil {
		return nil, errNilBank
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amount := new(big.Int).Mul(shares, v.Price())
	amount.Quo(amount, v.one)
	if err := v.bank.Burn(v.cfg.ShareToken, from, shares); err != nil {
		return nil, err
	}
	if err := v.bank.Transfer(v.cfg.Underlying, v.cfg.Address, from, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// RedeemUnderlying burns the shares needed to release amount of underlying,
// capped at the caller's share balance. The amount actually released is
// returned and may be lower than requested.
func (v *Vault) RedeemUnderlying(from common.Address, amount *big.Int) (*big.Int, error) {
	if v == nil || v.bank == nil {
		return nil, errNilBank
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	price := v.Price()
	if price.Sign() == 0 {
		return big.NewInt(0), nil
	}
	shares := ceilDiv(new(big.Int).Mul(amount, v.one), price)
	if held := v.bank.BalanceOf(v.cfg.ShareToken, from); shares.Cmp(held) > 0 {
		shares = held
	}
	if shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return v.Redeem(from, shares)
}

// RedeemRewards forwards every accumulated reward token to the caller.
func (v *Vault) RedeemRewards(from common.Address, _ []byte) ([]common.Address, []*big.Int, error) {
	if v == nil || v.bank == nil {
		return nil, nil, errNilBank
	}
	tokens := v.GetRewardTokens()
	amounts := make([]*big.Int, len(tokens))
	for i, token := range tokens {
		bal := v.bank.BalanceOf(token, v.cfg.Address)
		amounts[i] = bal
		if bal.Sign() == 0 {
			continue
		}
		if err := v.bank.Transfer(token, v.cfg.Address, from, bal); err != nil {
			return nil, nil, err
		}
	}
	return tokens, amounts, nil
}

func (v *Vault) GetApr() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.apr)
}

// SetApr updates the reported APR.
func (v *Vault) SetApr(apr *big.Int) {
	if apr == nil {
		apr = big.NewInt(0)
	}
	v.mu.Lock()
	v.apr = new(big.Int).Set(apr)
	v.mu.Unlock()
}

func (v *Vault) GetRewardTokens() []common.Address {
	return append([]common.Address(nil), v.cfg.RewardTokens...)
}

// Accrue credits yield earned by the vault's position, raising the price.
func (v *Vault) Accrue(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return v.bank.Mint(v.cfg.Underlying, v.cfg.Address, amount)
}

// Slash removes underlying from custody, lowering the price.
func (v *Vault) Slash(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return v.bank.Burn(v.cfg.Underlying, v.cfg.Address, amount)
}

// EmitRewards credits incentive tokens claimable through RedeemRewards.
func (v *Vault) EmitRewards(token common.Address, amount *big.Int) error {
	return v.bank.Mint(token, v.cfg.Address, amount)
}
