package tranche

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Tranche identifies one of the two claim classes on the pooled NAV.
type Tranche uint8

const (
	// AA is the senior tranche receiving the capped share of the gain.
	AA Tranche = iota
	// BB is the junior tranche absorbing losses first.
	BB
)

func (t Tranche) String() string {
	switch t {
	case AA:
		return "AA"
	case BB:
		return "BB"
	default:
		return fmt.Sprintf("tranche(%d)", uint8(t))
	}
}

func (t Tranche) other() Tranche {
	if t == AA {
		return BB
	}
	return AA
}

// ParseTranche resolves "aa"/"bb" in any case.
func ParseTranche(raw string) (Tranche, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "AA":
		return AA, nil
	case "BB":
		return BB, nil
	default:
		return 0, fmt.Errorf("%w: unknown tranche %q", ErrInvalidParam, raw)
	}
}

// Ledger is the persisted accounting record of one deployment. Amounts are in
// underlying units, prices in underlying units per 1e18 tranche shares and
// ratios in FullAlloc units.
type Ledger struct {
	// Address is the custody account that holds pooled funds and mints
	// tranche shares.
	Address       common.Address
	Underlying    common.Address
	Strategy      string
	StrategyToken common.Address
	TrancheAA     common.Address
	TrancheBB     common.Address
	OneToken      *big.Int

	PriceAA            *big.Int
	PriceBB            *big.Int
	LastTranchePriceAA *big.Int
	LastTranchePriceBB *big.Int
	LastNAVAA          *big.Int
	LastNAVBB          *big.Int
	LastStrategyPrice  *big.Int
	UnclaimedFees      *big.Int

	TrancheAPRSplitRatio    uint64
	TrancheIdealWeightRatio uint64
	IdealRange              uint64
	Fee                     uint64
	UnlentPerc              uint64
	LiquidationTolerance    uint64
	Limit                   *big.Int

	Paused           bool
	Shutdown         bool
	AllowAAWithdraw  bool
	AllowBBWithdraw  bool
	SkipDefaultCheck bool
	RevertIfTooLow   bool

	FeeReceiver     common.Address
	StakingAA       common.Address
	StakingBB       common.Address
	IncentiveTokens []common.Address
	Access          AccessControl
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := *l
	clone.OneToken = cloneInt(l.OneToken)
	clone.PriceAA = cloneInt(l.PriceAA)
	clone.PriceBB = cloneInt(l.PriceBB)
	clone.LastTranchePriceAA = cloneInt(l.LastTranchePriceAA)
	clone.LastTranchePriceBB = cloneInt(l.LastTranchePriceBB)
	clone.LastNAVAA = cloneInt(l.LastNAVAA)
	clone.LastNAVBB = cloneInt(l.LastNAVBB)
	clone.LastStrategyPrice = cloneInt(l.LastStrategyPrice)
	clone.UnclaimedFees = cloneInt(l.UnclaimedFees)
	clone.Limit = cloneInt(l.Limit)
	clone.IncentiveTokens = append([]common.Address(nil), l.IncentiveTokens...)
	return &clone
}

// State reports the guard state machine position.
func (l *Ledger) State() string {
	switch {
	case l.Shutdown:
		return "shutdown"
	case l.Paused:
		return "paused"
	default:
		return "active"
	}
}

func (l *Ledger) price(t Tranche) *big.Int {
	if t == AA {
		return cloneInt(l.PriceAA)
	}
	return cloneInt(l.PriceBB)
}

func (l *Ledger) lastPrice(t Tranche) *big.Int {
	if t == AA {
		return cloneInt(l.LastTranchePriceAA)
	}
	return cloneInt(l.LastTranchePriceBB)
}

func (l *Ledger) lastNAV(t Tranche) *big.Int {
	if t == AA {
		return cloneInt(l.LastNAVAA)
	}
	return cloneInt(l.LastNAVBB)
}

func (l *Ledger) setLastNAV(t Tranche, v *big.Int) {
	if t == AA {
		l.LastNAVAA = cloneInt(v)
		return
	}
	l.LastNAVBB = cloneInt(v)
}

func (l *Ledger) allowWithdraw(t Tranche) bool {
	if t == AA {
		return l.AllowAAWithdraw
	}
	return l.AllowBBWithdraw
}

func (l *Ledger) isIncentiveToken(token common.Address) bool {
	for _, candidate := range l.IncentiveTokens {
		if candidate == token {
			return true
		}
	}
	return false
}

// HarvestParams tunes one harvest. Per-reward slices are indexed like the
// strategy's reward token list; missing entries take the zero value.
type HarvestParams struct {
	SkipRedeem           bool
	SkipIncentivesUpdate bool
	SkipFeeDeposit       bool
	SkipStrategyDeposit  bool
	// SkipRewardSelling keeps the reward at index i unsold.
	SkipRewardSelling []bool
	// MinAmounts is the minimum underlying accepted for reward i.
	MinAmounts []*big.Int
	// SellAmounts caps the amount of reward i sold. Zero sells the whole
	// balance.
	SellAmounts []*big.Int
	ExtraData   []byte
}

func (p HarvestParams) skipSelling(i int) bool {
	return i < len(p.SkipRewardSelling) && p.SkipRewardSelling[i]
}

func (p HarvestParams) minAmount(i int) *big.Int {
	if i < len(p.MinAmounts) && p.MinAmounts[i] != nil {
		return new(big.Int).Set(p.MinAmounts[i])
	}
	return big.NewInt(0)
}

func (p HarvestParams) sellAmount(i int) *big.Int {
	if i < len(p.SellAmounts) && p.SellAmounts[i] != nil {
		return new(big.Int).Set(p.SellAmounts[i])
	}
	return big.NewInt(0)
}

// HarvestReport summarises a completed harvest.
type HarvestReport struct {
	ID           uuid.UUID
	RewardTokens []common.Address
	// Sold is the amount of each reward token sold, zero when kept.
	Sold []*big.Int
	// Swapped is the underlying received from all reward sales.
	Swapped    *big.Int
	Deposited  *big.Int
	Gain       *big.Int
	Fees       *big.Int
	FeeTranche Tranche
	PriceAA    *big.Int
	PriceBB    *big.Int
}
