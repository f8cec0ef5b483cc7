package tranche

import (
	"errors"
	"math/big"

	nativecommon "trancheledger/native/common"
	"trancheledger/native/swap"
	"trancheledger/native/token"
	"trancheledger/state/bank"
)

var (
	errNilState     = errors.New("tranche: state not configured")
	errNilBank      = errors.New("tranche: bank not configured")
	errNilRegistry  = errors.New("tranche: strategy registry not configured")
	errNilRouter    = errors.New("tranche: swap router not configured")
	errZeroPrice    = errors.New("tranche: tranche price is zero")
	errZeroShares   = errors.New("tranche: deposit too small to mint shares")
	errUnderlying   = errors.New("tranche: strategy underlying does not match ledger")
	errSameStrategy = errors.New("tranche: strategy already active")

	ErrNotInitialized     = errors.New("tranche: ledger not initialised")
	ErrAlreadyInitialized = errors.New("tranche: ledger already initialised")
	ErrPaused             = errors.New("tranche: paused")
	ErrContractLimit      = errors.New("tranche: contract limit")
	ErrDefault            = errors.New("tranche: strategy default, wait shutdown")
	ErrTooLow             = errors.New("tranche: redeemed amount too low")
	ErrWithdrawDisabled   = errors.New("tranche: withdraw disabled")
	ErrUnauthorized       = errors.New("tranche: caller not authorised")
	ErrInvalidParam       = errors.New("tranche: invalid parameter")
	ErrInvalidAmount      = errors.New("tranche: amount must be positive")
	ErrInsufficientShares = errors.New("tranche: insufficient tranche shares")
	ErrReentrant          = errors.New("tranche: reentrant call")
)

// Reason codes reported to callers for failed entry points.
const (
	ReasonPaused           = "PAUSED"
	ReasonContractLimit    = "CONTRACT_LIMIT"
	ReasonDefault          = "DEFAULT_WAIT_SHUTDOWN"
	ReasonTooLow           = "TOO_LOW"
	ReasonWithdrawDisabled = "WITHDRAW_DISABLED"
	ReasonUnauthorized     = "UNAUTHORIZED"
	ReasonInvalidParam     = "INVALID_PARAM"
	ReasonSlippage         = "SLIPPAGE"
	ReasonReentrant        = "REENTRANT"
	ReasonInternal         = "INTERNAL"
)

// Reason maps an error returned by the engine to its stable reason code. A
// nil error yields "".
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPaused), errors.Is(err, nativecommon.ErrModulePaused):
		return ReasonPaused
	case errors.Is(err, ErrContractLimit):
		return ReasonContractLimit
	case errors.Is(err, ErrDefault):
		return ReasonDefault
	case errors.Is(err, ErrTooLow):
		return ReasonTooLow
	case errors.Is(err, ErrWithdrawDisabled):
		return ReasonWithdrawDisabled
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrInvalidParam), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInsufficientShares),
		errors.Is(err, errZeroShares), errors.Is(err, token.ErrMintTooSmall), errors.Is(err, bank.ErrInsufficientBalance):
		return ReasonInvalidParam
	case errors.Is(err, swap.ErrSlippage):
		return ReasonSlippage
	case errors.Is(err, ErrReentrant):
		return ReasonReentrant
	default:
		return ReasonInternal
	}
}

// checkDefault trips when the strategy price fell below the price captured at
// the last harvest.
func checkDefault(l *Ledger, strategyPrice *big.Int) error {
	if l.SkipDefaultCheck || l.LastStrategyPrice == nil {
		return nil
	}
	if strategyPrice.Cmp(l.LastStrategyPrice) < 0 {
		return ErrDefault
	}
	return nil
}

func checkDeposit(l *Ledger) error {
	if l.Paused || l.Shutdown {
		return ErrPaused
	}
	return nil
}

// checkLimit enforces value + amount <= limit. A zero limit is unlimited.
func checkLimit(l *Ledger, value, amount *big.Int) error {
	if l.Limit == nil || l.Limit.Sign() == 0 {
		return nil
	}
	if new(big.Int).Add(value, amount).Cmp(l.Limit) > 0 {
		return ErrContractLimit
	}
	return nil
}

// checkWithdraw allows withdrawals while active, and during shutdown only for
// tranches whose withdraw flag was re-enabled.
func checkWithdraw(l *Ledger, t Tranche) error {
	if !l.allowWithdraw(t) {
		return ErrWithdrawDisabled
	}
	if l.Paused && !l.Shutdown {
		return ErrPaused
	}
	return nil
}

// enterShutdown moves the ledger into the ShutDown state in one step.
func enterShutdown(l *Ledger) {
	l.Paused = true
	l.Shutdown = true
	l.AllowAAWithdraw = false
	l.AllowBBWithdraw = false
	l.SkipDefaultCheck = true
	l.RevertIfTooLow = true
}

// checkTooLow rejects a redemption that realised less than the requested
// amount minus the liquidation tolerance.
func checkTooLow(l *Ledger, requested, received *big.Int) error {
	if !l.RevertIfTooLow {
		return nil
	}
	floor := portion(requested, FullAlloc-l.LiquidationTolerance)
	if received.Cmp(floor) < 0 {
		return ErrTooLow
	}
	return nil
}
