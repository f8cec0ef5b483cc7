package tranche

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"trancheledger/storage"
)

var ledgerKey = []byte("tranche/ledger")

// Store persists the ledger record as RLP in a key-value database.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// GetLedger loads the ledger record, returning ErrNotInitialized when none has
// been written.
func (s *Store) GetLedger() (*Ledger, error) {
	if s == nil || s.db == nil {
		return nil, errNilState
	}
	raw, err := s.db.Get(ledgerKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("tranche: load ledger: %w", err)
	}
	ledger := new(Ledger)
	if err := rlp.DecodeBytes(raw, ledger); err != nil {
		return nil, fmt.Errorf("tranche: decode ledger: %w", err)
	}
	return ledger, nil
}

func (s *Store) PutLedger(ledger *Ledger) error {
	if s == nil || s.db == nil {
		return errNilState
	}
	if ledger == nil {
		return fmt.Errorf("tranche: nil ledger")
	}
	encoded, err := rlp.EncodeToBytes(ledger)
	if err != nil {
		return fmt.Errorf("tranche: encode ledger: %w", err)
	}
	return s.db.Put(ledgerKey, encoded)
}
