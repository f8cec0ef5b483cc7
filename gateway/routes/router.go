package routes

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"trancheledger/gateway/middleware"
	"trancheledger/native/tranche"
	"trancheledger/services/history"
)

const (
	// ScopeWrite is required for deposits and withdrawals.
	ScopeWrite = "ledger:write"
	// ScopeAdmin is required for harvests and parameter changes. Role checks
	// against the ledger's access control still apply on top.
	ScopeAdmin = "ledger:admin"
)

// Engine is the ledger surface served over HTTP.
type Engine interface {
	Snapshot() (*tranche.Ledger, error)
	TranchePrice(t tranche.Tranche) (*big.Int, error)
	LastTranchePrice(t tranche.Tranche) (*big.Int, error)
	VirtualPrice(t tranche.Tranche) (*big.Int, error)
	Apr(t tranche.Tranche) (*big.Int, error)
	IdealApr(t tranche.Tranche) (*big.Int, error)
	ContractValue() (*big.Int, error)
	CurrentAARatio() (uint64, error)
	SharesOf(t tranche.Tranche, holder common.Address) (*big.Int, error)

	DepositAA(caller common.Address, amount *big.Int) (*big.Int, error)
	DepositBB(caller common.Address, amount *big.Int) (*big.Int, error)
	WithdrawAA(caller common.Address, shares *big.Int) (*big.Int, error)
	WithdrawBB(caller common.Address, shares *big.Int) (*big.Int, error)
	Harvest(caller common.Address, params tranche.HarvestParams) (*tranche.HarvestReport, error)

	Pause(caller common.Address) error
	Unpause(caller common.Address) error
	EmergencyShutdown(caller common.Address) error
	SetFee(caller common.Address, fee uint64) error
	SetUnlentPerc(caller common.Address, perc uint64) error
	SetTrancheAPRSplitRatio(caller common.Address, ratio uint64) error
	SetTrancheIdealWeightRatio(caller common.Address, ratio uint64) error
	SetIdealRange(caller common.Address, idealRange uint64) error
	SetLiquidationTolerance(caller common.Address, tolerance uint64) error
	SetLimit(caller common.Address, limit *big.Int) error
	SetGuardian(caller, guardian common.Address) error
	SetRebalancer(caller, rebalancer common.Address) error
	SetFeeReceiver(caller, receiver common.Address) error
	SetStakingRewards(caller, stakingAA, stakingBB common.Address) error
	SetIncentiveTokens(caller common.Address, tokens []common.Address) error
	SetSkipDefaultCheck(caller common.Address, skip bool) error
	SetRevertIfTooLow(caller common.Address, revert bool) error
	SetAllowWithdraw(caller common.Address, t tranche.Tranche, allowed bool) error
	TransferOwnership(caller, owner common.Address) error
	SetStrategy(caller common.Address, name string) error
}

// History lists recorded ledger events.
type History interface {
	List(ctx context.Context, filter history.Filter) ([]history.Record, error)
}

type Config struct {
	Engine  Engine
	History History
	// Lock serialises every engine call. Background jobs mutating strategy
	// state must take the same lock.
	Lock          sync.Locker
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

type server struct {
	engine  Engine
	history History
	lock    sync.Locker
	logger  *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("routes: engine required")
	}
	lock := cfg.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{engine: cfg.Engine, history: cfg.History, lock: lock, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return passThrough
		}
		return cfg.RateLimiter.Middleware(key)
	}
	auth := func(scopes ...string) func(http.Handler) http.Handler {
		if cfg.Authenticator == nil {
			return passThrough
		}
		return cfg.Authenticator.Middleware(scopes...)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(read chi.Router) {
			read.Use(limit("read"))
			read.Get("/ledger", s.getLedger)
			read.Get("/history", s.listHistory)
			read.Get("/tranches/{tranche}/{metric}", s.getTrancheMetric)
			read.Get("/tranches/{tranche}/balances/{holder}", s.getBalance)
		})
		v1.Group(func(write chi.Router) {
			write.Use(auth(ScopeWrite), limit("write"))
			write.Post("/tranches/{tranche}/deposit", s.deposit)
			write.Post("/tranches/{tranche}/withdraw", s.withdraw)
		})
		v1.Group(func(admin chi.Router) {
			admin.Use(auth(ScopeAdmin), limit("admin"))
			admin.Post("/harvest", s.harvest)
			admin.Route("/admin", s.mountAdmin)
		})
	})
	return r, nil
}

func passThrough(next http.Handler) http.Handler { return next }

// dispatch runs fn while holding the engine lock.
func (s *server) dispatch(fn func() error) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return fn()
}

func callerFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required", "")
		return common.Address{}, false
	}
	return caller, true
}

func trancheParam(w http.ResponseWriter, r *http.Request) (tranche.Tranche, bool) {
	t, err := tranche.ParseTranche(chi.URLParam(r, "tranche"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return 0, false
	}
	return t, true
}
