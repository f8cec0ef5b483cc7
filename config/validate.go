package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/native/strategy"
)

var (
	ErrUnknownStrategy   = errors.New("config: ledger strategy is not registered")
	ErrDuplicateStrategy = errors.New("config: duplicate strategy name")
)

// Validate checks the deployment for consistency.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(c.Strategies))
	for i, s := range c.Strategies {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("Strategies[%d]: name required", i)
		}
		if _, ok := names[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
		}
		names[name] = struct{}{}
		if _, err := strategy.ParseKind(s.Kind); err != nil {
			return fmt.Errorf("Strategies[%d]: %w", i, err)
		}
		for _, field := range []struct{ name, value string }{
			{"Address", s.Address}, {"ShareToken", s.ShareToken}, {"Underlying", s.Underlying},
		} {
			if _, err := parseAddress(field.value); err != nil {
				return fmt.Errorf("Strategies[%d].%s: %w", i, field.name, err)
			}
		}
		for j, raw := range s.RewardTokens {
			if _, err := parseAddress(raw); err != nil {
				return fmt.Errorf("Strategies[%d].RewardTokens[%d]: %w", i, j, err)
			}
		}
		if _, err := parseApr(s.AprPercent); err != nil {
			return fmt.Errorf("Strategies[%d].AprPercent: %w", i, err)
		}
	}
	if _, ok := names[strings.TrimSpace(c.Ledger.Strategy)]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, c.Ledger.Strategy)
	}
	if len(c.Routes) > 0 {
		if _, err := parseAddress(c.SwapReserve); err != nil {
			return fmt.Errorf("SwapReserve: %w", err)
		}
	}
	for i, r := range c.Routes {
		if _, err := parseAddress(r.TokenIn); err != nil {
			return fmt.Errorf("Routes[%d].TokenIn: %w", i, err)
		}
		if _, err := parseAddress(r.TokenOut); err != nil {
			return fmt.Errorf("Routes[%d].TokenOut: %w", i, err)
		}
		if _, err := parseRate(r.Rate); err != nil {
			return fmt.Errorf("Routes[%d].Rate: %w", i, err)
		}
		if r.FeeBps >= 10_000 {
			return fmt.Errorf("Routes[%d].FeeBps must be below 10000", i)
		}
	}
	for i, a := range c.Genesis {
		if _, err := parseAddress(a.Token); err != nil {
			return fmt.Errorf("Genesis[%d].Token: %w", i, err)
		}
		if _, err := parseAddress(a.Holder); err != nil {
			return fmt.Errorf("Genesis[%d].Holder: %w", i, err)
		}
		if _, err := parseAmount(a.Amount); err != nil {
			return fmt.Errorf("Genesis[%d].Amount: %w", i, err)
		}
	}
	return nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func parseRate(raw string) (*big.Rat, error) {
	rate, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
	if !ok || rate.Sign() <= 0 {
		return nil, fmt.Errorf("invalid rate %q", raw)
	}
	return rate, nil
}

var aprScale = new(big.Rat).SetInt(big.NewInt(1_000_000_000_000_000_000))

// parseApr converts a decimal percentage into the 18-decimal APR encoding.
func parseApr(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	pct, ok := new(big.Rat).SetString(trimmed)
	if !ok || pct.Sign() < 0 {
		return nil, fmt.Errorf("invalid percentage %q", raw)
	}
	scaled := new(big.Rat).Mul(pct, aprScale)
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}
