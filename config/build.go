package config

import (
	"fmt"
	"strings"

	"trancheledger/native/common"
	"trancheledger/native/strategy"
	"trancheledger/native/swap"
	"trancheledger/state/bank"
)

// BuildRegistry instantiates every configured strategy over the bank.
func (c *Config) BuildRegistry(b *bank.Bank, startBlock uint64) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()
	for _, s := range c.Strategies {
		vaultCfg, err := s.vaultConfig()
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", s.Name, err)
		}
		kind, err := strategy.ParseKind(s.Kind)
		if err != nil {
			return nil, err
		}
		var adapter strategy.Strategy
		switch kind {
		case strategy.KindLending:
			model := strategy.DefaultInterestModel
			if s.Kink > 0 {
				model = strategy.NewInterestModel(s.BaseRate, s.Slope1, s.Slope2, s.Kink)
			}
			market, err := strategy.NewLendingMarket(b, strategy.LendingConfig{
				Vault:            vaultCfg,
				Model:            model,
				UtilisationBps:   s.UtilisationBps,
				ReserveFactorBps: s.ReserveFactorBps,
			}, startBlock)
			if err != nil {
				return nil, fmt.Errorf("strategy %s: %w", s.Name, err)
			}
			adapter = market
		default:
			adapter = strategy.NewVault(b, vaultCfg)
		}
		if err := registry.Register(strings.TrimSpace(s.Name), kind, adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (s StrategyConfig) vaultConfig() (strategy.VaultConfig, error) {
	cfg := strategy.VaultConfig{Decimals: s.Decimals}
	var err error
	if cfg.Address, err = parseAddress(s.Address); err != nil {
		return cfg, err
	}
	if cfg.ShareToken, err = parseAddress(s.ShareToken); err != nil {
		return cfg, err
	}
	if cfg.Underlying, err = parseAddress(s.Underlying); err != nil {
		return cfg, err
	}
	for _, raw := range s.RewardTokens {
		token, err := parseAddress(raw)
		if err != nil {
			return cfg, err
		}
		cfg.RewardTokens = append(cfg.RewardTokens, token)
	}
	if cfg.AprPercent, err = parseApr(s.AprPercent); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BuildRouter configures the reward sale router. It returns nil when no
// routes are configured.
func (c *Config) BuildRouter(b *bank.Bank) (*swap.OracleRouter, error) {
	if len(c.Routes) == 0 {
		return nil, nil
	}
	reserve, err := parseAddress(c.SwapReserve)
	if err != nil {
		return nil, fmt.Errorf("swap reserve: %w", err)
	}
	router := swap.NewOracleRouter(b, reserve)
	for i, r := range c.Routes {
		in, err := parseAddress(r.TokenIn)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		out, err := parseAddress(r.TokenOut)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		rate, err := parseRate(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		if err := router.SetRoute(swap.Route{TokenIn: in, TokenOut: out, Rate: rate, FeeBps: r.FeeBps}); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
	}
	return router, nil
}

// Pauses returns the module pause view seeded from PausedModules.
func (c *Config) Pauses() *common.Pauses {
	return common.NewPauses(c.PausedModules...)
}

// Seed mints the genesis allocations and commits them.
func (c *Config) Seed(b *bank.Bank) error {
	for i, a := range c.Genesis {
		token, err := parseAddress(a.Token)
		if err != nil {
			return fmt.Errorf("genesis %d: %w", i, err)
		}
		holder, err := parseAddress(a.Holder)
		if err != nil {
			return fmt.Errorf("genesis %d: %w", i, err)
		}
		amount, err := parseAmount(a.Amount)
		if err != nil {
			return fmt.Errorf("genesis %d: %w", i, err)
		}
		if err := b.Mint(token, holder, amount); err != nil {
			return fmt.Errorf("genesis %d: %w", i, err)
		}
	}
	b.Commit()
	return nil
}
