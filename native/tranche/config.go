package tranche

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Config captures the parameters a ledger is initialised with.
type Config struct {
	Address            string   `toml:"Address"`
	Underlying         string   `toml:"Underlying"`
	UnderlyingDecimals uint8    `toml:"UnderlyingDecimals"`
	Strategy           string   `toml:"Strategy"`
	TrancheAA          string   `toml:"TrancheAA"`
	TrancheBB          string   `toml:"TrancheBB"`
	Owner              string   `toml:"Owner"`
	Guardian           string   `toml:"Guardian"`
	Rebalancer         string   `toml:"Rebalancer"`
	FeeReceiver        string   `toml:"FeeReceiver"`
	StakingAA          string   `toml:"StakingAA"`
	StakingBB          string   `toml:"StakingBB"`
	IncentiveTokens    []string `toml:"IncentiveTokens"`

	TrancheAPRSplitRatio    uint64   `toml:"TrancheAPRSplitRatio"`
	TrancheIdealWeightRatio uint64   `toml:"TrancheIdealWeightRatio"`
	IdealRange              uint64   `toml:"IdealRange"`
	Fee                     uint64   `toml:"Fee"`
	UnlentPerc              uint64   `toml:"UnlentPerc"`
	LiquidationTolerance    uint64   `toml:"LiquidationTolerance"`
	Limit                   *big.Int `toml:"Limit"`
	SkipDefaultCheck        bool     `toml:"SkipDefaultCheck"`
	RevertIfTooLow          *bool    `toml:"RevertIfTooLow"`
}

// EnsureDefaults fills the optional fields.
func (c *Config) EnsureDefaults() {
	if c.LiquidationTolerance == 0 {
		c.LiquidationTolerance = DefaultLiquidationTolerance
	}
	if c.Limit == nil {
		c.Limit = big.NewInt(0)
	}
	if c.RevertIfTooLow == nil {
		revert := true
		c.RevertIfTooLow = &revert
	}
	if strings.TrimSpace(c.Rebalancer) == "" {
		c.Rebalancer = c.Owner
	}
	if strings.TrimSpace(c.Guardian) == "" {
		c.Guardian = c.Owner
	}
	if strings.TrimSpace(c.FeeReceiver) == "" {
		c.FeeReceiver = c.Owner
	}
}

// Validate checks addresses and ranges.
func (c Config) Validate() error {
	_, err := c.Ledger()
	return err
}

// Ledger converts the configuration into an uninitialised ledger record.
func (c Config) Ledger() (*Ledger, error) {
	c.EnsureDefaults()
	var err error
	required := func(field, raw string) common.Address {
		if err != nil {
			return common.Address{}
		}
		addr, parseErr := parseAddress(field, raw, true)
		if parseErr != nil {
			err = parseErr
		}
		return addr
	}
	optional := func(field, raw string) common.Address {
		if err != nil {
			return common.Address{}
		}
		addr, parseErr := parseAddress(field, raw, false)
		if parseErr != nil {
			err = parseErr
		}
		return addr
	}
	ledger := &Ledger{
		Address:     required("Address", c.Address),
		Underlying:  required("Underlying", c.Underlying),
		TrancheAA:   required("TrancheAA", c.TrancheAA),
		TrancheBB:   required("TrancheBB", c.TrancheBB),
		FeeReceiver: required("FeeReceiver", c.FeeReceiver),
		StakingAA:   optional("StakingAA", c.StakingAA),
		StakingBB:   optional("StakingBB", c.StakingBB),
		Access: AccessControl{
			Owner:      required("Owner", c.Owner),
			Guardian:   required("Guardian", c.Guardian),
			Rebalancer: required("Rebalancer", c.Rebalancer),
		},
	}
	for i, raw := range c.IncentiveTokens {
		ledger.IncentiveTokens = append(ledger.IncentiveTokens, required(fmt.Sprintf("IncentiveTokens[%d]", i), raw))
	}
	if err != nil {
		return nil, err
	}
	if ledger.TrancheAA == ledger.TrancheBB {
		return nil, fmt.Errorf("%w: tranche tokens must differ", ErrInvalidParam)
	}
	ledger.Strategy = strings.TrimSpace(c.Strategy)
	if ledger.Strategy == "" {
		return nil, fmt.Errorf("%w: Strategy is required", ErrInvalidParam)
	}
	if c.UnderlyingDecimals > 36 {
		return nil, fmt.Errorf("%w: UnderlyingDecimals %d too large", ErrInvalidParam, c.UnderlyingDecimals)
	}
	checks := []struct {
		name  string
		value uint64
		max   uint64
	}{
		{"TrancheAPRSplitRatio", c.TrancheAPRSplitRatio, FullAlloc},
		{"TrancheIdealWeightRatio", c.TrancheIdealWeightRatio, FullAlloc},
		{"IdealRange", c.IdealRange, FullAlloc},
		{"Fee", c.Fee, MaxFee},
		{"UnlentPerc", c.UnlentPerc, FullAlloc},
		{"LiquidationTolerance", c.LiquidationTolerance, FullAlloc},
	}
	for _, check := range checks {
		if err := checkRatio(check.name, check.value, check.max); err != nil {
			return nil, err
		}
	}
	if c.Limit.Sign() < 0 {
		return nil, fmt.Errorf("%w: Limit must not be negative", ErrInvalidParam)
	}

	ledger.OneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.UnderlyingDecimals)), nil)
	ledger.TrancheAPRSplitRatio = c.TrancheAPRSplitRatio
	ledger.TrancheIdealWeightRatio = c.TrancheIdealWeightRatio
	ledger.IdealRange = c.IdealRange
	ledger.Fee = c.Fee
	ledger.UnlentPerc = c.UnlentPerc
	ledger.LiquidationTolerance = c.LiquidationTolerance
	ledger.Limit = new(big.Int).Set(c.Limit)
	ledger.SkipDefaultCheck = c.SkipDefaultCheck
	ledger.RevertIfTooLow = *c.RevertIfTooLow
	ledger.AllowAAWithdraw = true
	ledger.AllowBBWithdraw = true
	return ledger, nil
}

func parseAddress(field, raw string, required bool) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return common.Address{}, fmt.Errorf("%w: %s is required", ErrInvalidParam, field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not a hex address", ErrInvalidParam, field, raw)
	}
	addr := common.HexToAddress(trimmed)
	if required && addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s is the zero address", ErrInvalidParam, field)
	}
	return addr, nil
}
