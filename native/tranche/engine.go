package tranche

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/core/events"
	nativecommon "trancheledger/native/common"
	"trancheledger/native/strategy"
	"trancheledger/native/swap"
	"trancheledger/native/token"
	"trancheledger/observability"
	"trancheledger/state/bank"
)

const moduleName = "tranche"

type engineState interface {
	GetLedger() (*Ledger, error)
	PutLedger(ledger *Ledger) error
}

// Engine executes the ledger's entry points. Every mutating call runs to
// completion under a non-blocking guard: a nested call made while another is
// in flight fails with ErrReentrant. Callers on different goroutines must
// serialise themselves.
type Engine struct {
	mu sync.Mutex

	state    engineState
	bank     *bank.Bank
	registry *strategy.Registry
	router   swap.Router
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	logger   *slog.Logger
	metrics  *observability.TrancheMetrics
}

// NewEngine constructs an engine over the balance book and strategy registry.
func NewEngine(b *bank.Bank, registry *strategy.Registry) *Engine {
	return &Engine{
		bank:     b,
		registry: registry,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRouter configures the swap path used to sell harvested rewards.
func (e *Engine) SetRouter(router swap.Router) { e.router = router }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetMetrics enables prometheus publication of prices and outcomes.
func (e *Engine) SetMetrics(m *observability.TrancheMetrics) { e.metrics = m }

// txn is the working set of one call: a private copy of the ledger plus the
// token and strategy handles it resolves to.
type txn struct {
	bank       *bank.Bank
	ledger     *Ledger
	strategy   strategy.Strategy
	underlying *token.Token
	aa         *token.Tranche
	bb         *token.Tranche
	events     []events.Event
	defaulted  bool
}

func (tx *txn) tranche(t Tranche) *token.Tranche {
	if t == AA {
		return tx.aa
	}
	return tx.bb
}

func (tx *txn) emit(evt events.Event) { tx.events = append(tx.events, evt) }

func (e *Engine) begin(ledger *Ledger) (*txn, error) {
	if e.registry == nil {
		return nil, errNilRegistry
	}
	s, _, err := e.registry.Lookup(ledger.Strategy)
	if err != nil {
		return nil, err
	}
	return &txn{
		bank:       e.bank,
		ledger:     ledger,
		strategy:   s,
		underlying: token.New(e.bank, ledger.Underlying, "", 0),
		aa:         token.NewTranche(e.bank, ledger.TrancheAA, "AA", ledger.Address),
		bb:         token.NewTranche(e.bank, ledger.TrancheBB, "BB", ledger.Address),
	}, nil
}

func (e *Engine) load() (*txn, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	ledger, err := e.state.GetLedger()
	if err != nil {
		return nil, err
	}
	return e.begin(ledger.Clone())
}

// view runs a read-only evaluation against the persisted ledger.
func (e *Engine) view(fn func(tx *txn) error) error {
	tx, err := e.load()
	if err != nil {
		return err
	}
	return fn(tx)
}

// execute runs fn atomically: on error every bank mutation is unwound and the
// ledger record is left untouched.
func (e *Engine) execute(op string, fn func(tx *txn) error) error {
	if e == nil {
		return errNilState
	}
	if !e.mu.TryLock() {
		e.metrics.RecordOperation(op, ReasonReentrant)
		return ErrReentrant
	}
	defer e.mu.Unlock()

	tx, err := e.load()
	if err != nil {
		e.metrics.RecordOperation(op, Reason(err))
		return err
	}
	snapshot := e.bank.Snapshot()
	err = fn(tx)
	if err == nil {
		err = e.state.PutLedger(tx.ledger)
	}
	if err != nil {
		if rerr := e.bank.RevertToSnapshot(snapshot); rerr != nil {
			err = errors.Join(err, fmt.Errorf("tranche: revert balances: %w", rerr))
		}
		if tx.defaulted {
			e.metrics.RecordDefault()
			e.logger.Warn("tranche default check tripped", "operation", op, "lastStrategyPrice", tx.ledger.LastStrategyPrice.String())
		}
		e.metrics.RecordOperation(op, Reason(err))
		return err
	}
	if snapshot == 0 {
		e.bank.Commit()
	}
	for _, evt := range tx.events {
		e.emitter.Emit(evt)
	}
	e.metrics.RecordOperation(op, "")
	e.publish(tx.ledger)
	return nil
}

func (e *Engine) publish(l *Ledger) {
	if e.metrics == nil {
		return
	}
	e.metrics.SetTranche(AA.String(), l.PriceAA, l.LastTranchePriceAA, l.LastNAVAA, l.OneToken)
	e.metrics.SetTranche(BB.String(), l.PriceBB, l.LastTranchePriceBB, l.LastNAVBB, l.OneToken)
}

// Initialize creates the ledger record. Prices start at one underlying unit
// and the default check baseline is the strategy's current price.
func (e *Engine) Initialize(cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.mu.TryLock() {
		return ErrReentrant
	}
	defer e.mu.Unlock()

	if _, err := e.state.GetLedger(); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return err
	}
	ledger, err := cfg.Ledger()
	if err != nil {
		return err
	}
	if e.registry == nil {
		return errNilRegistry
	}
	s, _, err := e.registry.Lookup(ledger.Strategy)
	if err != nil {
		return err
	}
	if s.Token() != ledger.Underlying {
		return errUnderlying
	}
	ledger.StrategyToken = s.StrategyToken()
	ledger.PriceAA = cloneInt(ledger.OneToken)
	ledger.PriceBB = cloneInt(ledger.OneToken)
	ledger.LastTranchePriceAA = cloneInt(ledger.OneToken)
	ledger.LastTranchePriceBB = cloneInt(ledger.OneToken)
	ledger.LastNAVAA = big.NewInt(0)
	ledger.LastNAVBB = big.NewInt(0)
	ledger.UnclaimedFees = big.NewInt(0)
	ledger.LastStrategyPrice = s.Price()
	if err := e.state.PutLedger(ledger); err != nil {
		return err
	}
	e.logger.Info("tranche ledger initialised",
		"address", ledger.Address.Hex(),
		"strategy", ledger.Strategy,
		"underlying", ledger.Underlying.Hex())
	e.publish(ledger)
	return nil
}

func (e *Engine) DepositAA(caller common.Address, amount *big.Int) (*big.Int, error) {
	return e.deposit(AA, caller, amount)
}

func (e *Engine) DepositBB(caller common.Address, amount *big.Int) (*big.Int, error) {
	return e.deposit(BB, caller, amount)
}

// deposit pools amount of underlying and mints tranche shares at the updated
// mint price. It returns the shares credited to the caller, which on a
// tranche's first mint excludes the dead shares.
func (e *Engine) deposit(t Tranche, caller common.Address, amount *big.Int) (*big.Int, error) {
	var credited *big.Int
	err := e.execute("deposit_"+t.String(), func(tx *txn) error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		l := tx.ledger
		if err := checkDeposit(l); err != nil {
			return err
		}
		acc := tx.account()
		if err := checkDefault(l, acc.strategyPrice); err != nil {
			tx.defaulted = true
			return err
		}
		if err := checkLimit(l, new(big.Int).Add(acc.navAA, acc.navBB), amount); err != nil {
			return err
		}
		tx.updatePrices(acc)

		price := l.price(t)
		if price.Sign() == 0 {
			return errZeroPrice
		}
		shares := mulDiv(amount, oneTrancheToken, price)
		if shares.Sign() == 0 {
			return errZeroShares
		}
		if err := tx.underlying.Transfer(caller, l.Address, amount); err != nil {
			return fmt.Errorf("tranche: pull underlying: %w", err)
		}
		tranche := tx.tranche(t)
		before := tranche.BalanceOf(caller)
		if err := tranche.Mint(l.Address, caller, shares); err != nil {
			return fmt.Errorf("tranche: mint %s: %w", t, err)
		}
		credited = new(big.Int).Sub(tranche.BalanceOf(caller), before)
		l.setLastNAV(t, new(big.Int).Add(l.lastNAV(t), amount))
		tx.emit(events.TrancheDeposit{Tranche: t.String(), Account: caller, Amount: amount, Shares: credited, Price: price})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

func (e *Engine) WithdrawAA(caller common.Address, shares *big.Int) (*big.Int, error) {
	return e.withdraw(AA, caller, shares)
}

func (e *Engine) WithdrawBB(caller common.Address, shares *big.Int) (*big.Int, error) {
	return e.withdraw(BB, caller, shares)
}

// withdraw burns shares, zero meaning the caller's whole balance, and pays
// out their value at the last locked price, or at the current price when a
// loss has pushed it lower. Idle underlying is used first and the remainder
// is redeemed from the strategy.
func (e *Engine) withdraw(t Tranche, caller common.Address, shares *big.Int) (*big.Int, error) {
	var paid *big.Int
	err := e.execute("withdraw_"+t.String(), func(tx *txn) error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		l := tx.ledger
		if err := checkWithdraw(l, t); err != nil {
			return err
		}
		if _, err := tx.accrue(); err != nil {
			return err
		}

		tranche := tx.tranche(t)
		balance := tranche.BalanceOf(caller)
		burn := cloneInt(shares)
		if burn.Sign() < 0 {
			return ErrInvalidAmount
		}
		if burn.Sign() == 0 {
			burn = balance
		}
		if burn.Sign() == 0 {
			return ErrInvalidAmount
		}
		if burn.Cmp(balance) > 0 {
			return ErrInsufficientShares
		}

		// Gains stay locked until the next harvest but realised losses pass
		// through, so a junior exit cannot draw on senior assets.
		price := minInt(l.lastPrice(t), l.price(t))
		toRedeem := mulDiv(burn, price, oneTrancheToken)
		if err := tranche.Burn(l.Address, caller, burn); err != nil {
			return fmt.Errorf("tranche: burn %s: %w", t, err)
		}
		received, err := tx.liquidate(toRedeem)
		if err != nil {
			return err
		}
		if err := checkTooLow(l, toRedeem, received); err != nil {
			return fmt.Errorf("%w: requested %s received %s", err, toRedeem, received)
		}
		paid = minInt(received, toRedeem)
		if paid.Sign() > 0 {
			if err := tx.underlying.Transfer(l.Address, caller, paid); err != nil {
				return fmt.Errorf("tranche: pay underlying: %w", err)
			}
		}
		l.setLastNAV(t, subFloor(l.lastNAV(t), toRedeem))
		tx.emit(events.TrancheWithdraw{
			Tranche:  t.String(),
			Account:  caller,
			Shares:   burn,
			Redeemed: toRedeem,
			Paid:     paid,
			Price:    price,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// liquidate makes amount of underlying available in custody, drawing on the
// strategy for whatever idle funds do not cover. It returns the amount
// available, which may be short of the request.
func (tx *txn) liquidate(amount *big.Int) (*big.Int, error) {
	l := tx.ledger
	idle := tx.underlying.BalanceOf(l.Address)
	if idle.Cmp(amount) >= 0 {
		return new(big.Int).Set(amount), nil
	}
	need := new(big.Int).Sub(amount, idle)
	if tx.bank.BalanceOf(l.StrategyToken, l.Address).Sign() == 0 {
		return idle, nil
	}
	got, err := tx.strategy.RedeemUnderlying(l.Address, need)
	if err != nil {
		return nil, fmt.Errorf("tranche: redeem from strategy: %w", err)
	}
	return idle.Add(idle, got), nil
}
