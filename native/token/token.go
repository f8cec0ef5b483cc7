package token

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/state/bank"
)

var (
	errNilBank        = errors.New("token: bank not configured")
	ErrNotMinter      = errors.New("token: caller is not the minter")
	ErrMintTooSmall   = errors.New("token: first mint must exceed dead shares")
	ErrInvalidAmount  = errors.New("token: amount must be positive")
	errZeroTokenOwner = errors.New("token: zero address")
)

// DeadSharesAddress receives the shares burned on a tranche's first mint.
var DeadSharesAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// DeadShares is the amount locked forever on the first mint of a tranche so
// the share price of an empty pool cannot be inflated by a single depositor.
var DeadShares = big.NewInt(1000)

// Token exposes the fungible read surface and transfers of an asset held in
// the bank.
type Token struct {
	bank     *bank.Bank
	address  common.Address
	symbol   string
	decimals uint8
}

// New returns a token view for the asset address.
func New(b *bank.Bank, address common.Address, symbol string, decimals uint8) *Token {
	return &Token{bank: b, address: address, symbol: strings.TrimSpace(symbol), decimals: decimals}
}

// Address returns the asset identifier.
func (t *Token) Address() common.Address { return t.address }

// Symbol returns the ticker.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the number of decimals used by the asset.
func (t *Token) Decimals() uint8 { return t.decimals }

// OneUnit returns 10^decimals.
func (t *Token) OneUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.decimals)), nil)
}

func (t *Token) BalanceOf(holder common.Address) *big.Int {
	if t == nil || t.bank == nil {
		return big.NewInt(0)
	}
	return t.bank.BalanceOf(t.address, holder)
}

func (t *Token) TotalSupply() *big.Int {
	if t == nil || t.bank == nil {
		return big.NewInt(0)
	}
	return t.bank.TotalSupply(t.address)
}

// Transfer moves tokens between holders.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if t == nil || t.bank == nil {
		return errNilBank
	}
	if to == (common.Address{}) {
		return errZeroTokenOwner
	}
	return t.bank.Transfer(t.address, from, to, amount)
}

// Tranche is a share token whose supply can only be changed by one minter.
type Tranche struct {
	*Token
	minter common.Address
}

// NewTranche returns a tranche token with 18 decimals minted by minter.
func NewTranche(b *bank.Bank, address common.Address, symbol string, minter common.Address) *Tranche {
	return &Tranche{Token: New(b, address, symbol, 18), minter: minter}
}

// Minter returns the only address allowed to mint and burn.
func (t *Tranche) Minter() common.Address { return t.minter }

// Mint credits amount shares to the recipient. The very first mint of the
// tranche locks DeadShares at DeadSharesAddress out of the minted amount, so
// the recipient receives amount - DeadShares.
func (t *Tranche) Mint(caller, to common.Address, amount *big.Int) error {
	if t == nil || t.bank == nil {
		return errNilBank
	}
	if caller != t.minter {
		return ErrNotMinter
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return errZeroTokenOwner
	}
	if t.TotalSupply().Sign() == 0 {
		if amount.Cmp(DeadShares) <= 0 {
			return ErrMintTooSmall
		}
		if err := t.bank.Mint(t.address, DeadSharesAddress, DeadShares); err != nil {
			return err
		}
		return t.bank.Mint(t.address, to, new(big.Int).Sub(amount, DeadShares))
	}
	return t.bank.Mint(t.address, to, amount)
}

// Burn destroys amount shares held by from.
func (t *Tranche) Burn(caller, from common.Address, amount *big.Int) error {
	if t == nil || t.bank == nil {
		return errNilBank
	}
	if caller != t.minter {
		return ErrNotMinter
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return t.bank.Burn(t.address, from, amount)
}
