package strategy

import (
	"math/big"
	"sync"

	"trancheledger/state/bank"
)

// LendingConfig extends the vault configuration with the market curve.
type LendingConfig struct {
	Vault VaultConfig
	Model *InterestModel
	// UtilisationBps is the share of supplied liquidity lent out.
	UtilisationBps uint64
	// ReserveFactorBps is the share of interest kept by the market.
	ReserveFactorBps uint64
}

// LendingMarket supplies into a money market. Interest accrues per block on
// the supplied assets at the model's supply APY and is credited to the vault
// custody, so the strategy price grows monotonically.
type LendingMarket struct {
	*Vault

	model          *InterestModel
	utilisationBps uint64
	reserveBps     uint64

	mu        sync.Mutex
	lastBlock uint64
}

// NewLendingMarket returns a lending-market strategy starting at startBlock.
func NewLendingMarket(b *bank.Bank, cfg LendingConfig, startBlock uint64) (*LendingMarket, error) {
	model := cfg.Model
	if model == nil {
		model = DefaultInterestModel
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	utilisation := cfg.UtilisationBps
	if utilisation > 10_000 {
		utilisation = 10_000
	}
	return &LendingMarket{
		Vault:          NewVault(b, cfg.Vault),
		model:          model.Clone(),
		utilisationBps: utilisation,
		reserveBps:     cfg.ReserveFactorBps,
		lastBlock:      startBlock,
	}, nil
}

func (m *LendingMarket) borrowed(supplied *big.Int) *big.Int {
	out := new(big.Int).Mul(supplied, new(big.Int).SetUint64(m.utilisationBps))
	return out.Quo(out, basisPoints)
}

// SupplyRate returns the current supply APY as a decimal rate.
func (m *LendingMarket) SupplyRate() *big.Rat {
	supplied := m.TotalAssets()
	if supplied.Sign() == 0 {
		// Quote the rate the market would pay on a marginal deposit.
		supplied = m.OneToken()
	}
	return m.model.SupplyAPY(m.borrowed(supplied), supplied, m.reserveBps)
}

// GetApr reports the supply APY with 18 decimals (1e18 = 1%).
func (m *LendingMarket) GetApr() *big.Int {
	return ratToApr(m.SupplyRate())
}

// AccrueTo credits interest for the blocks elapsed since the previous
// accrual and returns the amount credited.
func (m *LendingMarket) AccrueTo(height uint64) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height <= m.lastBlock {
		return big.NewInt(0), nil
	}
	delta := height - m.lastBlock
	interest := computeInterest(m.TotalAssets(), m.SupplyRate(), delta)
	if err := m.Accrue(interest); err != nil {
		return nil, err
	}
	m.lastBlock = height
	return interest, nil
}

// LastBlock returns the height of the last accrual.
func (m *LendingMarket) LastBlock() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBlock
}
