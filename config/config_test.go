package config

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/native/strategy"
	"trancheledger/state/bank"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tranche.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.Ledger.Strategy != "vault" {
		t.Fatalf("unexpected default strategy %q", cfg.Ledger.Strategy)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Ledger.Fee != cfg.Ledger.Fee || reloaded.Ledger.LiquidationTolerance != 100 {
		t.Fatalf("reloaded ledger mismatch: %+v", reloaded.Ledger)
	}
	if reloaded.Ledger.RevertIfTooLow == nil || !*reloaded.Ledger.RevertIfTooLow {
		t.Fatalf("expected RevertIfTooLow default to survive a round trip")
	}
	if len(reloaded.Strategies) != 1 || reloaded.Strategies[0].AprPercent != "5" {
		t.Fatalf("unexpected strategies: %+v", reloaded.Strategies)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tranche.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const ledgerSection = `
[Ledger]
Address = "0x000000000000000000000000000000000000a000"
Underlying = "0x000000000000000000000000000000000000a001"
UnderlyingDecimals = 18
Strategy = "%s"
TrancheAA = "0x000000000000000000000000000000000000a002"
TrancheBB = "0x000000000000000000000000000000000000a003"
Owner = "0x000000000000000000000000000000000000a004"
TrancheAPRSplitRatio = 20000
TrancheIdealWeightRatio = 50000
IdealRange = 10000
Fee = 10000
`

const strategiesSection = `
[[Strategies]]
Name = "money-market"
Kind = "lending"
Address = "0x000000000000000000000000000000000000a010"
ShareToken = "0x000000000000000000000000000000000000a011"
Underlying = "0x000000000000000000000000000000000000a001"
Decimals = 18
UtilisationBps = 8000
`

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, strings.Replace(ledgerSection, "%s", "missing", 1)+strategiesSection)
	if _, err := Load(path); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "Bogus = 1\n"+strings.Replace(ledgerSection, "%s", "money-market", 1)+strategiesSection)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadRejectsBadRanges(t *testing.T) {
	body := strings.Replace(ledgerSection, "Fee = 10000", "Fee = 30000", 1)
	path := writeConfig(t, strings.Replace(body, "%s", "money-market", 1)+strategiesSection)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected fee above maximum to be rejected")
	}
}

func TestBuildRegistryAndRouter(t *testing.T) {
	body := "SwapReserve = \"0x000000000000000000000000000000000000a030\"\n" +
		strings.Replace(ledgerSection, "%s", "money-market", 1) + strategiesSection + `
[[Strategies]]
Name = "vault"
Kind = "vault"
Address = "0x000000000000000000000000000000000000a012"
ShareToken = "0x000000000000000000000000000000000000a013"
Underlying = "0x000000000000000000000000000000000000a001"
Decimals = 18
AprPercent = "4.5"

[[Routes]]
TokenIn = "0x000000000000000000000000000000000000a020"
TokenOut = "0x000000000000000000000000000000000000a001"
Rate = "3/2"

[[Genesis]]
Token = "0x000000000000000000000000000000000000a001"
Holder = "0x000000000000000000000000000000000000a030"
Amount = "5000"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	b := bank.New()
	if err := cfg.Seed(b); err != nil {
		t.Fatalf("seed: %v", err)
	}
	underlying := common.HexToAddress("0x000000000000000000000000000000000000a001")
	reserve := common.HexToAddress("0x000000000000000000000000000000000000a030")
	if got := b.BalanceOf(underlying, reserve); got.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("expected seeded reserve balance 5000, got %s", got)
	}

	registry, err := cfg.BuildRegistry(b, 1)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	if _, kind, err := registry.Lookup("money-market"); err != nil || kind != strategy.KindLending {
		t.Fatalf("expected lending strategy, got kind=%s err=%v", kind, err)
	}
	vault, kind, err := registry.Lookup("vault")
	if err != nil || kind != strategy.KindVault {
		t.Fatalf("expected vault strategy, got kind=%s err=%v", kind, err)
	}
	wantApr := new(big.Int).Mul(big.NewInt(45), big.NewInt(100_000_000_000_000_000))
	if vault.GetApr().Cmp(wantApr) != 0 {
		t.Fatalf("expected vault apr %s, got %s", wantApr, vault.GetApr())
	}
	if len(registry.Lending()) != 1 {
		t.Fatalf("expected one lending market")
	}

	router, err := cfg.BuildRouter(b)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	out, err := router.Quote(common.HexToAddress("0x000000000000000000000000000000000000a020"), underlying, big.NewInt(100))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if out.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected quote 150, got %s", out)
	}

	if cfg.Pauses().IsPaused("tranche") {
		t.Fatalf("expected no modules paused")
	}
}
