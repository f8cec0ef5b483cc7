package bank

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must not be negative")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrOverflow            = errors.New("bank: balance overflow")
	ErrInvalidSnapshot     = errors.New("bank: invalid snapshot")
)

type balanceKey struct {
	asset  common.Address
	holder common.Address
}

// journalEntry records the value a slot held before a mutation so the change
// can be unwound by RevertToSnapshot. A nil prev marks a slot that did not
// exist.
type journalEntry struct {
	supply bool
	key    balanceKey
	prev   *uint256.Int
}

// Bank is an in-memory multi-asset balance book. Every mutation is journaled
// so callers can take a snapshot before a composite operation and unwind all
// balance changes when any step fails.
type Bank struct {
	mu       sync.RWMutex
	balances map[balanceKey]*uint256.Int
	supplies map[common.Address]*uint256.Int
	journal  []journalEntry
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{
		balances: make(map[balanceKey]*uint256.Int),
		supplies: make(map[common.Address]*uint256.Int),
	}
}

// BalanceOf returns the holder balance for the asset. The result is a copy.
func (b *Bank) BalanceOf(asset, holder common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[balanceKey{asset: asset, holder: holder}]; ok {
		return bal.ToBig()
	}
	return big.NewInt(0)
}

// TotalSupply returns the circulating supply tracked for the asset.
func (b *Bank) TotalSupply(asset common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if supply, ok := b.supplies[asset]; ok {
		return supply.ToBig()
	}
	return big.NewInt(0)
}

// Mint credits the holder and increases the asset supply.
func (b *Bank) Mint(asset, to common.Address, amount *big.Int) error {
	value, err := toUint(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	supply := b.supplyLocked(asset)
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, value)
	if overflow {
		return ErrOverflow
	}
	key := balanceKey{asset: asset, holder: to}
	nextBal, overflow := new(uint256.Int).AddOverflow(b.balanceLocked(key), value)
	if overflow {
		return ErrOverflow
	}
	b.setSupplyLocked(asset, nextSupply)
	b.setBalanceLocked(key, nextBal)
	return nil
}

// Burn debits the holder and decreases the asset supply.
func (b *Bank) Burn(asset, from common.Address, amount *big.Int) error {
	value, err := toUint(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := balanceKey{asset: asset, holder: from}
	bal := b.balanceLocked(key)
	if bal.Lt(value) {
		return ErrInsufficientBalance
	}
	supply := b.supplyLocked(asset)
	if supply.Lt(value) {
		return ErrInsufficientBalance
	}
	b.setBalanceLocked(key, new(uint256.Int).Sub(bal, value))
	b.setSupplyLocked(asset, new(uint256.Int).Sub(supply, value))
	return nil
}

// Transfer moves amount of asset between two holders.
func (b *Bank) Transfer(asset, from, to common.Address, amount *big.Int) error {
	value, err := toUint(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromKey := balanceKey{asset: asset, holder: from}
	toKey := balanceKey{asset: asset, holder: to}
	fromBal := b.balanceLocked(fromKey)
	if fromBal.Lt(value) {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	nextTo, overflow := new(uint256.Int).AddOverflow(b.balanceLocked(toKey), value)
	if overflow {
		return ErrOverflow
	}
	b.setBalanceLocked(fromKey, new(uint256.Int).Sub(fromBal, value))
	b.setBalanceLocked(toKey, nextTo)
	return nil
}

// Snapshot returns an identifier for the current journal position.
func (b *Bank) Snapshot() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.journal)
}

// RevertToSnapshot unwinds every mutation recorded after the snapshot was
// taken.
func (b *Bank) RevertToSnapshot(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 0 || id > len(b.journal) {
		return ErrInvalidSnapshot
	}
	for i := len(b.journal) - 1; i >= id; i-- {
		entry := b.journal[i]
		if entry.supply {
			if entry.prev == nil {
				delete(b.supplies, entry.key.asset)
			} else {
				b.supplies[entry.key.asset] = entry.prev
			}
			continue
		}
		if entry.prev == nil {
			delete(b.balances, entry.key)
		} else {
			b.balances[entry.key] = entry.prev
		}
	}
	b.journal = b.journal[:id]
	return nil
}

// Commit drops the journal. Snapshots taken before the call become invalid.
func (b *Bank) Commit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = b.journal[:0]
}

func (b *Bank) balanceLocked(key balanceKey) *uint256.Int {
	if bal, ok := b.balances[key]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (b *Bank) supplyLocked(asset common.Address) *uint256.Int {
	if supply, ok := b.supplies[asset]; ok {
		return supply
	}
	return new(uint256.Int)
}

func (b *Bank) setBalanceLocked(key balanceKey, value *uint256.Int) {
	prev, ok := b.balances[key]
	entry := journalEntry{key: key}
	if ok {
		entry.prev = prev
	}
	b.journal = append(b.journal, entry)
	b.balances[key] = value
}

func (b *Bank) setSupplyLocked(asset common.Address, value *uint256.Int) {
	prev, ok := b.supplies[asset]
	entry := journalEntry{supply: true, key: balanceKey{asset: asset}}
	if ok {
		entry.prev = prev
	}
	b.journal = append(b.journal, entry)
	b.supplies[asset] = value
}

func toUint(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrOverflow
	}
	return value, nil
}
