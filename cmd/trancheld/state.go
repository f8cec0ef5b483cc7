package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trancheledger/native/strategy"
	"trancheledger/native/tranche"
	"trancheledger/state/bank"
	"trancheledger/storage"
)

// durableState persists the bank next to every ledger write so balances and
// accounting are saved together.
type durableState struct {
	*tranche.Store
	bank *bank.Bank
	db   storage.Database
}

func newDurableState(db storage.Database, b *bank.Bank) *durableState {
	return &durableState{Store: tranche.NewStore(db), bank: b, db: db}
}

func (s *durableState) PutLedger(ledger *tranche.Ledger) error {
	if err := s.Store.PutLedger(ledger); err != nil {
		return err
	}
	if err := s.bank.Save(s.db); err != nil {
		return fmt.Errorf("persist balances: %w", err)
	}
	return nil
}

// accrualHeight maps wall-clock time onto lending-market heights.
func accrualHeight(now time.Time, interval time.Duration) uint64 {
	if interval <= 0 {
		interval = time.Second
	}
	return uint64(now.UnixNano() / int64(interval))
}

type accruer struct {
	registry *strategy.Registry
	bank     *bank.Bank
	db       storage.Database
	lock     sync.Locker
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// tick accrues every lending market up to the current height and persists
// the resulting balances.
func (a *accruer) tick() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	height := accrualHeight(a.now(), a.interval)
	for _, market := range a.registry.Lending() {
		interest, err := market.AccrueTo(height)
		if err != nil {
			return fmt.Errorf("accrue %s: %w", market.Address().Hex(), err)
		}
		if interest.Sign() > 0 {
			a.logger.Debug("lending interest accrued",
				slog.String("market", market.Address().Hex()),
				slog.String("interest", interest.String()),
				slog.Uint64("height", height))
		}
	}
	a.bank.Commit()
	return a.bank.Save(a.db)
}

func (a *accruer) run(ctx context.Context) {
	if a.interval <= 0 || len(a.registry.Lending()) == 0 {
		return
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.tick(); err != nil {
				a.logger.Error("lending accrual failed", slog.String("error", err.Error()))
			}
		}
	}
}
