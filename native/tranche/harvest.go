package tranche

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"trancheledger/core/events"
	nativecommon "trancheledger/native/common"
	"trancheledger/native/strategy"
	"trancheledger/native/swap"
)

// Harvest realises strategy rewards and gain, then locks the tranche prices
// used by withdrawals until the next harvest. The steps run in a fixed order:
// redeem rewards, sell rewards, redeposit, update prices, mint fees,
// distribute incentives, lock prices. Fees are therefore always computed on
// gain that was realised in the same call.
func (e *Engine) Harvest(caller common.Address, params HarvestParams) (*HarvestReport, error) {
	var (
		report *HarvestReport
		one    *big.Int
	)
	err := e.execute("harvest", func(tx *txn) error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		l := tx.ledger
		if !l.Access.IsOwnerOrRebalancer(caller) {
			return ErrUnauthorized
		}
		report = &HarvestReport{
			ID:         uuid.New(),
			Swapped:    big.NewInt(0),
			Deposited:  big.NewInt(0),
			Fees:       big.NewInt(0),
			FeeTranche: AA,
		}

		if params.SkipRedeem {
			report.RewardTokens = tx.strategy.GetRewardTokens()
		} else {
			tokens, _, err := tx.strategy.RedeemRewards(l.Address, params.ExtraData)
			if err != nil {
				return fmt.Errorf("tranche: redeem rewards: %w", err)
			}
			report.RewardTokens = tokens
		}

		sold, swapped, err := e.sellRewards(tx, report.RewardTokens, params)
		if err != nil {
			return err
		}
		report.Sold, report.Swapped = sold, swapped

		if !params.SkipStrategyDeposit {
			deposited, err := tx.depositToStrategy()
			if err != nil {
				return err
			}
			report.Deposited = deposited
		}

		acc, err := tx.accrue()
		if err != nil {
			return err
		}
		report.Gain = acc.gain
		report.Fees = cloneInt(l.UnclaimedFees)

		if !params.SkipFeeDeposit && l.UnclaimedFees.Sign() > 0 {
			target, err := tx.depositFees()
			if err != nil {
				return err
			}
			report.FeeTranche = target
		}
		if !params.SkipIncentivesUpdate {
			if err := tx.updateIncentives(); err != nil {
				return err
			}
		}
		tx.updateLastTranchePrices()
		one = cloneInt(l.OneToken)
		report.PriceAA = cloneInt(l.PriceAA)
		report.PriceBB = cloneInt(l.PriceBB)
		tx.emit(events.TrancheHarvest{
			ID:        report.ID.String(),
			Caller:    caller,
			Gain:      report.Gain,
			Fees:      report.Fees,
			Swapped:   report.Swapped,
			Deposited: report.Deposited,
			PriceAA:   report.PriceAA,
			PriceBB:   report.PriceBB,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("tranche harvest",
		"id", report.ID.String(),
		"gain", report.Gain.String(),
		"fees", report.Fees.String(),
		"swapped", report.Swapped.String(),
		"priceAA", report.PriceAA.String(),
		"priceBB", report.PriceBB.String())
	e.metrics.RecordHarvest(report.Gain, report.Fees, one)
	return report, nil
}

// sellRewards swaps every reward token into underlying except incentive
// tokens, the underlying itself and rewards the caller asked to keep. A fill
// below the caller's floor aborts the harvest.
func (e *Engine) sellRewards(tx *txn, rewards []common.Address, params HarvestParams) ([]*big.Int, *big.Int, error) {
	l := tx.ledger
	sold := make([]*big.Int, len(rewards))
	swapped := big.NewInt(0)
	for i, reward := range rewards {
		sold[i] = big.NewInt(0)
		if params.skipSelling(i) || reward == l.Underlying || l.isIncentiveToken(reward) {
			continue
		}
		amount := tx.bank.BalanceOf(reward, l.Address)
		if limit := params.sellAmount(i); limit.Sign() > 0 && limit.Cmp(amount) < 0 {
			amount = limit
		}
		if amount.Sign() == 0 {
			continue
		}
		if e.router == nil {
			return nil, nil, errNilRouter
		}
		minOut := params.minAmount(i)
		out, err := e.router.Swap(l.Address, reward, l.Underlying, amount, minOut)
		if err != nil {
			return nil, nil, fmt.Errorf("tranche: sell reward %s: %w", reward.Hex(), err)
		}
		if out.Cmp(minOut) < 0 {
			return nil, nil, fmt.Errorf("tranche: sell reward %s: %w", reward.Hex(), swap.ErrSlippage)
		}
		sold[i] = amount
		swapped.Add(swapped, out)
	}
	return sold, swapped, nil
}

// depositToStrategy lends idle underlying above the unlent reserve.
func (tx *txn) depositToStrategy() (*big.Int, error) {
	l := tx.ledger
	idle := tx.underlying.BalanceOf(l.Address)
	total := new(big.Int).Add(idle, tx.strategyValue(tx.strategy.Price()))
	amount := subFloor(idle, portion(total, l.UnlentPerc))
	if amount.Sign() == 0 {
		return amount, nil
	}
	if _, err := tx.strategy.Deposit(l.Address, amount); err != nil {
		if errors.Is(err, strategy.ErrZeroShares) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("tranche: deposit to strategy: %w", err)
	}
	return amount, nil
}

// depositFees mints shares worth the unclaimed fees to the fee receiver in the
// tranche below the ideal ratio, steering the pool back towards it. Fees stay
// unclaimed while both tranches are empty.
func (tx *txn) depositFees() (Tranche, error) {
	l := tx.ledger
	target := BB
	if aaRatio(l.LastNAVAA, l.LastNAVBB) < l.TrancheIdealWeightRatio {
		target = AA
	}
	if tx.tranche(target).TotalSupply().Sign() == 0 {
		target = target.other()
	}
	if tx.tranche(target).TotalSupply().Sign() == 0 {
		return target, nil
	}
	fees := cloneInt(l.UnclaimedFees)
	price := l.price(target)
	if price.Sign() == 0 {
		return target, errZeroPrice
	}
	shares := mulDiv(fees, oneTrancheToken, price)
	if shares.Sign() == 0 {
		return target, nil
	}
	if err := tx.tranche(target).Mint(l.Address, l.FeeReceiver, shares); err != nil {
		return target, fmt.Errorf("tranche: mint fees: %w", err)
	}
	l.setLastNAV(target, new(big.Int).Add(l.lastNAV(target), fees))
	l.UnclaimedFees = big.NewInt(0)
	tx.emit(events.TrancheFeeMinted{Tranche: target.String(), Receiver: l.FeeReceiver, Fees: fees, Shares: shares})
	return target, nil
}

// updateIncentives forwards incentive token balances to the staking
// contracts. Below the ideal band everything goes to AA stakers, above it to
// BB stakers, and inside it the APR split ratio decides.
func (tx *txn) updateIncentives() error {
	l := tx.ledger
	ratio := aaRatio(l.LastNAVAA, l.LastNAVBB)
	low := uint64(0)
	if l.TrancheIdealWeightRatio > l.IdealRange {
		low = l.TrancheIdealWeightRatio - l.IdealRange
	}
	high := l.TrancheIdealWeightRatio + l.IdealRange
	for _, incentive := range l.IncentiveTokens {
		balance := tx.bank.BalanceOf(incentive, l.Address)
		if balance.Sign() == 0 {
			continue
		}
		var toAA *big.Int
		switch {
		case ratio < low:
			toAA = new(big.Int).Set(balance)
		case ratio > high:
			toAA = big.NewInt(0)
		default:
			toAA = portion(balance, l.TrancheAPRSplitRatio)
		}
		toBB := new(big.Int).Sub(balance, toAA)
		if err := tx.payIncentive(incentive, l.StakingAA, toAA); err != nil {
			return err
		}
		if err := tx.payIncentive(incentive, l.StakingBB, toBB); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txn) payIncentive(incentive, staking common.Address, amount *big.Int) error {
	if amount.Sign() == 0 || staking == (common.Address{}) {
		return nil
	}
	if err := tx.bank.Transfer(incentive, tx.ledger.Address, staking, amount); err != nil {
		return fmt.Errorf("tranche: distribute incentive %s: %w", incentive.Hex(), err)
	}
	return nil
}
