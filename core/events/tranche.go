package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/core/types"
)

const (
	// TypeTrancheDeposit is emitted after underlying is pooled and tranche
	// shares are minted to the depositor.
	TypeTrancheDeposit = "tranche.deposit"
	// TypeTrancheWithdraw is emitted after shares are burned and underlying
	// is paid out.
	TypeTrancheWithdraw = "tranche.withdraw"
	// TypeTrancheHarvest is emitted when a harvest re-locks tranche prices.
	TypeTrancheHarvest = "tranche.harvest"
	// TypeTrancheFeeMinted is emitted when unclaimed fees are converted into
	// tranche shares for the fee receiver.
	TypeTrancheFeeMinted = "tranche.fee_minted"
	// TypeTrancheShutdown is emitted on an emergency shutdown.
	TypeTrancheShutdown = "tranche.shutdown"
	// TypeTrancheParamUpdated is emitted by every successful admin setter.
	TypeTrancheParamUpdated = "tranche.param_updated"
	// TypeTrancheStrategyChanged is emitted when the yield source is swapped.
	TypeTrancheStrategyChanged = "tranche.strategy_changed"
)

type TrancheDeposit struct {
	Tranche string
	Account common.Address
	Amount  *big.Int
	Shares  *big.Int
	Price   *big.Int
}

func (TrancheDeposit) EventType() string { return TypeTrancheDeposit }

func (e TrancheDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheDeposit,
		Attributes: map[string]string{
			"tranche": normalizeTranche(e.Tranche),
			"account": addressString(e.Account),
			"amount":  amountString(e.Amount),
			"shares":  amountString(e.Shares),
			"price":   amountString(e.Price),
		},
	}
}

type TrancheWithdraw struct {
	Tranche  string
	Account  common.Address
	Shares   *big.Int
	Redeemed *big.Int
	Paid     *big.Int
	Price    *big.Int
}

func (TrancheWithdraw) EventType() string { return TypeTrancheWithdraw }

func (e TrancheWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheWithdraw,
		Attributes: map[string]string{
			"tranche":  normalizeTranche(e.Tranche),
			"account":  addressString(e.Account),
			"shares":   amountString(e.Shares),
			"redeemed": amountString(e.Redeemed),
			"paid":     amountString(e.Paid),
			"price":    amountString(e.Price),
		},
	}
}

type TrancheHarvest struct {
	ID        string
	Caller    common.Address
	Gain      *big.Int
	Fees      *big.Int
	Swapped   *big.Int
	Deposited *big.Int
	PriceAA   *big.Int
	PriceBB   *big.Int
}

func (TrancheHarvest) EventType() string { return TypeTrancheHarvest }

func (e TrancheHarvest) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheHarvest,
		Attributes: map[string]string{
			"id":        strings.TrimSpace(e.ID),
			"caller":    addressString(e.Caller),
			"gain":      amountString(e.Gain),
			"fees":      amountString(e.Fees),
			"swapped":   amountString(e.Swapped),
			"deposited": amountString(e.Deposited),
			"priceAA":   amountString(e.PriceAA),
			"priceBB":   amountString(e.PriceBB),
		},
	}
}

type TrancheFeeMinted struct {
	Tranche  string
	Receiver common.Address
	Fees     *big.Int
	Shares   *big.Int
}

func (TrancheFeeMinted) EventType() string { return TypeTrancheFeeMinted }

func (e TrancheFeeMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheFeeMinted,
		Attributes: map[string]string{
			"tranche":  normalizeTranche(e.Tranche),
			"receiver": addressString(e.Receiver),
			"fees":     amountString(e.Fees),
			"shares":   amountString(e.Shares),
		},
	}
}

type TrancheShutdown struct {
	Caller common.Address
}

func (TrancheShutdown) EventType() string { return TypeTrancheShutdown }

func (e TrancheShutdown) Event() *types.Event {
	return &types.Event{
		Type:       TypeTrancheShutdown,
		Attributes: map[string]string{"caller": addressString(e.Caller)},
	}
}

// TrancheParamUpdated records an admin change. Value is the rendered new value.
type TrancheParamUpdated struct {
	Caller common.Address
	Param  string
	Value  string
}

func (TrancheParamUpdated) EventType() string { return TypeTrancheParamUpdated }

func (e TrancheParamUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheParamUpdated,
		Attributes: map[string]string{
			"caller": addressString(e.Caller),
			"param":  strings.TrimSpace(e.Param),
			"value":  strings.TrimSpace(e.Value),
		},
	}
}

type TrancheStrategyChanged struct {
	Previous  string
	Current   string
	Recovered *big.Int
}

func (TrancheStrategyChanged) EventType() string { return TypeTrancheStrategyChanged }

func (e TrancheStrategyChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeTrancheStrategyChanged,
		Attributes: map[string]string{
			"previous":  strings.TrimSpace(e.Previous),
			"current":   strings.TrimSpace(e.Current),
			"recovered": amountString(e.Recovered),
		},
	}
}

// BoolValue renders a flag for TrancheParamUpdated.
func BoolValue(v bool) string { return strconv.FormatBool(v) }
