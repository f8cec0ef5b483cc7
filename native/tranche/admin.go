package tranche

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/core/events"
)

type roleCheck func(AccessControl, common.Address) bool

func ownerOnly(a AccessControl, caller common.Address) bool { return a.IsOwner(caller) }

func ownerOrGuardian(a AccessControl, caller common.Address) bool {
	return a.IsOwnerOrGuardian(caller)
}

// configure runs an admin mutation after the role check. Admin calls bypass
// the module pause so operators can always recover the ledger.
func (e *Engine) configure(op string, caller common.Address, allowed roleCheck, fn func(tx *txn) error) error {
	return e.execute(op, func(tx *txn) error {
		if !allowed(tx.ledger.Access, caller) {
			return ErrUnauthorized
		}
		return fn(tx)
	})
}

func (tx *txn) paramUpdated(caller common.Address, param, value string) {
	tx.emit(events.TrancheParamUpdated{Caller: caller, Param: param, Value: value})
}

func checkRatio(name string, value uint64, max uint64) error {
	if value > max {
		return fmt.Errorf("%w: %s %d exceeds %d", ErrInvalidParam, name, value, max)
	}
	return nil
}

func (e *Engine) SetFee(caller common.Address, fee uint64) error {
	return e.configure("set_fee", caller, ownerOnly, func(tx *txn) error {
		if err := checkRatio("fee", fee, MaxFee); err != nil {
			return err
		}
		tx.ledger.Fee = fee
		tx.paramUpdated(caller, "fee", strconv.FormatUint(fee, 10))
		return nil
	})
}

func (e *Engine) SetUnlentPerc(caller common.Address, perc uint64) error {
	return e.configure("set_unlent_perc", caller, ownerOnly, func(tx *txn) error {
		if err := checkRatio("unlentPerc", perc, FullAlloc); err != nil {
			return err
		}
		tx.ledger.UnlentPerc = perc
		tx.paramUpdated(caller, "unlentPerc", strconv.FormatUint(perc, 10))
		return nil
	})
}

// SetTrancheAPRSplitRatio changes the AA share of future gain. Gain accrued
// so far is realised at the previous ratio first.
func (e *Engine) SetTrancheAPRSplitRatio(caller common.Address, ratio uint64) error {
	return e.configure("set_apr_split_ratio", caller, ownerOnly, func(tx *txn) error {
		if err := checkRatio("trancheAPRSplitRatio", ratio, FullAlloc); err != nil {
			return err
		}
		if _, err := tx.accrue(); err != nil {
			return err
		}
		tx.ledger.TrancheAPRSplitRatio = ratio
		tx.paramUpdated(caller, "trancheAPRSplitRatio", strconv.FormatUint(ratio, 10))
		return nil
	})
}

func (e *Engine) SetTrancheIdealWeightRatio(caller common.Address, ratio uint64) error {
	return e.configure("set_ideal_weight_ratio", caller, ownerOnly, func(tx *txn) error {
		if err := checkRatio("trancheIdealWeightRatio", ratio, FullAlloc); err != nil {
			return err
		}
		tx.ledger.TrancheIdealWeightRatio = ratio
		tx.paramUpdated(caller, "trancheIdealWeightRatio", strconv.FormatUint(ratio, 10))
		return nil
	})
}

func (e *Engine) SetIdealRange(caller common.Address, idealRange uint64) error {
	return e.configure("set_ideal_range", caller, ownerOnly, func(tx *txn) error {
		if err := checkRatio("idealRange", idealRange, FullAlloc); err != nil {
			return err
		}
		tx.ledger.IdealRange = idealRange
		tx.paramUpdated(caller, "idealRange", strconv.FormatUint(idealRange, 10))
		return nil
	})
}

func (e *Engine) SetLiquidationTolerance(caller common.Address, tolerance uint64) error {
	return e.configure("set_liquidation_tolerance", caller, ownerOnly, func(tx *txn) error {
		if err := checkRatio("liquidationTolerance", tolerance, FullAlloc); err != nil {
			return err
		}
		tx.ledger.LiquidationTolerance = tolerance
		tx.paramUpdated(caller, "liquidationTolerance", strconv.FormatUint(tolerance, 10))
		return nil
	})
}

// SetLimit caps the pooled NAV accepted by deposits. Zero removes the cap.
func (e *Engine) SetLimit(caller common.Address, limit *big.Int) error {
	return e.configure("set_limit", caller, ownerOnly, func(tx *txn) error {
		if limit == nil || limit.Sign() < 0 {
			return fmt.Errorf("%w: limit must not be negative", ErrInvalidParam)
		}
		tx.ledger.Limit = new(big.Int).Set(limit)
		tx.paramUpdated(caller, "limit", limit.String())
		return nil
	})
}

func (e *Engine) SetGuardian(caller, guardian common.Address) error {
	return e.configure("set_guardian", caller, ownerOnly, func(tx *txn) error {
		if guardian == (common.Address{}) {
			return fmt.Errorf("%w: guardian is the zero address", ErrInvalidParam)
		}
		tx.ledger.Access.Guardian = guardian
		tx.paramUpdated(caller, "guardian", guardian.Hex())
		return nil
	})
}

func (e *Engine) SetRebalancer(caller, rebalancer common.Address) error {
	return e.configure("set_rebalancer", caller, ownerOnly, func(tx *txn) error {
		if rebalancer == (common.Address{}) {
			return fmt.Errorf("%w: rebalancer is the zero address", ErrInvalidParam)
		}
		tx.ledger.Access.Rebalancer = rebalancer
		tx.paramUpdated(caller, "rebalancer", rebalancer.Hex())
		return nil
	})
}

func (e *Engine) SetFeeReceiver(caller, receiver common.Address) error {
	return e.configure("set_fee_receiver", caller, ownerOnly, func(tx *txn) error {
		if receiver == (common.Address{}) {
			return fmt.Errorf("%w: fee receiver is the zero address", ErrInvalidParam)
		}
		tx.ledger.FeeReceiver = receiver
		tx.paramUpdated(caller, "feeReceiver", receiver.Hex())
		return nil
	})
}

// SetStakingRewards sets the contracts receiving incentive tokens. A zero
// address leaves that side's share in custody.
func (e *Engine) SetStakingRewards(caller, stakingAA, stakingBB common.Address) error {
	return e.configure("set_staking_rewards", caller, ownerOnly, func(tx *txn) error {
		tx.ledger.StakingAA = stakingAA
		tx.ledger.StakingBB = stakingBB
		tx.paramUpdated(caller, "stakingRewards", stakingAA.Hex()+","+stakingBB.Hex())
		return nil
	})
}

// SetIncentiveTokens replaces the list of rewards that are distributed to
// stakers instead of being sold.
func (e *Engine) SetIncentiveTokens(caller common.Address, tokens []common.Address) error {
	return e.configure("set_incentive_tokens", caller, ownerOnly, func(tx *txn) error {
		seen := make(map[common.Address]struct{}, len(tokens))
		rendered := make([]string, 0, len(tokens))
		for _, token := range tokens {
			if token == (common.Address{}) || token == tx.ledger.Underlying {
				return fmt.Errorf("%w: incentive token %s", ErrInvalidParam, token.Hex())
			}
			if _, dup := seen[token]; dup {
				return fmt.Errorf("%w: duplicate incentive token %s", ErrInvalidParam, token.Hex())
			}
			seen[token] = struct{}{}
			rendered = append(rendered, token.Hex())
		}
		tx.ledger.IncentiveTokens = append([]common.Address(nil), tokens...)
		tx.paramUpdated(caller, "incentiveTokens", strings.Join(rendered, ","))
		return nil
	})
}

func (e *Engine) SetSkipDefaultCheck(caller common.Address, skip bool) error {
	return e.configure("set_skip_default_check", caller, ownerOnly, func(tx *txn) error {
		tx.ledger.SkipDefaultCheck = skip
		tx.paramUpdated(caller, "skipDefaultCheck", events.BoolValue(skip))
		return nil
	})
}

func (e *Engine) SetRevertIfTooLow(caller common.Address, revert bool) error {
	return e.configure("set_revert_if_too_low", caller, ownerOnly, func(tx *txn) error {
		tx.ledger.RevertIfTooLow = revert
		tx.paramUpdated(caller, "revertIfTooLow", events.BoolValue(revert))
		return nil
	})
}

// SetAllowWithdraw toggles withdrawals for one tranche. During shutdown this
// is how the owner reopens an orderly exit without resuming deposits.
func (e *Engine) SetAllowWithdraw(caller common.Address, t Tranche, allowed bool) error {
	return e.configure("set_allow_withdraw_"+t.String(), caller, ownerOnly, func(tx *txn) error {
		if t == AA {
			tx.ledger.AllowAAWithdraw = allowed
		} else {
			tx.ledger.AllowBBWithdraw = allowed
		}
		tx.paramUpdated(caller, "allow"+t.String()+"Withdraw", events.BoolValue(allowed))
		return nil
	})
}

func (e *Engine) TransferOwnership(caller, owner common.Address) error {
	return e.configure("transfer_ownership", caller, ownerOnly, func(tx *txn) error {
		if owner == (common.Address{}) {
			return fmt.Errorf("%w: owner is the zero address", ErrInvalidParam)
		}
		tx.ledger.Access.Owner = owner
		tx.paramUpdated(caller, "owner", owner.Hex())
		return nil
	})
}

// Pause blocks deposits and withdrawals.
func (e *Engine) Pause(caller common.Address) error {
	return e.configure("pause", caller, ownerOrGuardian, func(tx *txn) error {
		tx.ledger.Paused = true
		tx.paramUpdated(caller, "paused", events.BoolValue(true))
		return nil
	})
}

// Unpause returns the ledger to Active. Leaving ShutDown is reserved to the
// owner, re-arms the default check that shutdown disabled and does not
// re-enable withdrawals by itself. After a default the owner skips the check
// explicitly for the harvest that moves the strategy price baseline.
func (e *Engine) Unpause(caller common.Address) error {
	leftShutdown := false
	err := e.configure("unpause", caller, ownerOrGuardian, func(tx *txn) error {
		l := tx.ledger
		if l.Shutdown {
			if !l.Access.IsOwner(caller) {
				return ErrUnauthorized
			}
			l.Shutdown = false
			leftShutdown = true
			if l.SkipDefaultCheck {
				l.SkipDefaultCheck = false
				tx.paramUpdated(caller, "skipDefaultCheck", events.BoolValue(false))
			}
		}
		l.Paused = false
		tx.paramUpdated(caller, "paused", events.BoolValue(false))
		return nil
	})
	if err == nil && leftShutdown {
		e.logger.Warn("tranche left shutdown, default check re-armed", "caller", caller.Hex())
	}
	return err
}

// EmergencyShutdown halts the ledger: deposits and withdrawals stop, the
// default check is skipped and short redemptions revert.
func (e *Engine) EmergencyShutdown(caller common.Address) error {
	err := e.configure("emergency_shutdown", caller, ownerOrGuardian, func(tx *txn) error {
		enterShutdown(tx.ledger)
		tx.emit(events.TrancheShutdown{Caller: caller})
		return nil
	})
	if err == nil {
		e.logger.Warn("tranche emergency shutdown", "caller", caller.Hex())
	}
	return err
}

// SetStrategy moves the pool to another registered strategy. Pending gain is
// realised against the old strategy, its whole position is redeemed, and the
// default check baseline restarts from the new strategy's price.
func (e *Engine) SetStrategy(caller common.Address, name string) error {
	return e.configure("set_strategy", caller, ownerOnly, func(tx *txn) error {
		l := tx.ledger
		name = strings.TrimSpace(name)
		if name == l.Strategy {
			return fmt.Errorf("%w: %v", ErrInvalidParam, errSameStrategy)
		}
		next, _, err := e.registry.Lookup(name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParam, err)
		}
		if next.Token() != l.Underlying {
			return fmt.Errorf("%w: %v", ErrInvalidParam, errUnderlying)
		}
		if _, err := tx.accrue(); err != nil {
			return err
		}
		recovered := big.NewInt(0)
		if held := tx.bank.BalanceOf(l.StrategyToken, l.Address); held.Sign() > 0 {
			out, err := tx.strategy.Redeem(l.Address, held)
			if err != nil {
				return fmt.Errorf("tranche: redeem old strategy: %w", err)
			}
			recovered = out
		}
		previous := l.Strategy
		l.Strategy = name
		l.StrategyToken = next.StrategyToken()
		tx.strategy = next
		l.LastStrategyPrice = next.Price()
		tx.emit(events.TrancheStrategyChanged{Previous: previous, Current: name, Recovered: recovered})
		return nil
	})
}
