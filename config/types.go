package config

// StrategyConfig registers a yield source under Name. Kind selects the
// adapter: "vault" or "lending".
type StrategyConfig struct {
	Name         string   `toml:"Name"`
	Kind         string   `toml:"Kind"`
	Address      string   `toml:"Address"`
	ShareToken   string   `toml:"ShareToken"`
	Underlying   string   `toml:"Underlying"`
	Decimals     uint8    `toml:"Decimals"`
	RewardTokens []string `toml:"RewardTokens"`
	// AprPercent is a decimal percentage, e.g. "4.5".
	AprPercent string `toml:"AprPercent"`

	// Lending-only fields.
	BaseRate         float64 `toml:"BaseRate"`
	Slope1           float64 `toml:"Slope1"`
	Slope2           float64 `toml:"Slope2"`
	Kink             float64 `toml:"Kink"`
	UtilisationBps   uint64  `toml:"UtilisationBps"`
	ReserveFactorBps uint64  `toml:"ReserveFactorBps"`
}

// RouteConfig is a reward sale route. Rate is a decimal or fraction string
// ("2", "0.5", "3/2").
type RouteConfig struct {
	TokenIn  string `toml:"TokenIn"`
	TokenOut string `toml:"TokenOut"`
	Rate     string `toml:"Rate"`
	FeeBps   uint64 `toml:"FeeBps"`
}

// Allocation seeds a balance when the bank is created.
type Allocation struct {
	Token  string `toml:"Token"`
	Holder string `toml:"Holder"`
	Amount string `toml:"Amount"`
}
