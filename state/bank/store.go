package bank

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"trancheledger/storage"
)

var balancesKey = []byte("bank/balances")

// storedEntry is the RLP layout of a single balance or supply slot.
type storedEntry struct {
	Asset  common.Address
	Holder common.Address
	Supply bool
	Amount *big.Int
}

// Save writes every non-zero slot to the database. Entries are sorted so the
// encoding is deterministic.
func (b *Bank) Save(db storage.Database) error {
	if db == nil {
		return fmt.Errorf("bank: database not configured")
	}
	b.mu.RLock()
	entries := make([]storedEntry, 0, len(b.balances)+len(b.supplies))
	for key, bal := range b.balances {
		if bal.IsZero() {
			continue
		}
		entries = append(entries, storedEntry{Asset: key.asset, Holder: key.holder, Amount: bal.ToBig()})
	}
	for asset, supply := range b.supplies {
		if supply.IsZero() {
			continue
		}
		entries = append(entries, storedEntry{Asset: asset, Supply: true, Amount: supply.ToBig()})
	}
	b.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if c := bytes.Compare(entries[i].Asset.Bytes(), entries[j].Asset.Bytes()); c != 0 {
			return c < 0
		}
		if entries[i].Supply != entries[j].Supply {
			return entries[i].Supply
		}
		return bytes.Compare(entries[i].Holder.Bytes(), entries[j].Holder.Bytes()) < 0
	})
	encoded, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return fmt.Errorf("bank: encode balances: %w", err)
	}
	return db.Put(balancesKey, encoded)
}

// Load restores a bank previously written with Save. A database without saved
// balances yields an empty bank.
func Load(db storage.Database) (*Bank, error) {
	if db == nil {
		return nil, fmt.Errorf("bank: database not configured")
	}
	b := New()
	raw, err := db.Get(balancesKey)
	if errors.Is(err, storage.ErrNotFound) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bank: load balances: %w", err)
	}
	var entries []storedEntry
	if err := rlp.DecodeBytes(raw, &entries); err != nil {
		return nil, fmt.Errorf("bank: decode balances: %w", err)
	}
	for _, entry := range entries {
		value, overflow := uint256.FromBig(entry.Amount)
		if overflow {
			return nil, ErrOverflow
		}
		if entry.Supply {
			b.supplies[entry.Asset] = value
			continue
		}
		b.balances[balanceKey{asset: entry.Asset, holder: entry.Holder}] = value
	}
	return b, nil
}
