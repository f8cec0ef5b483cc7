package routes

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"trancheledger/native/tranche"
)

type valueRequest struct {
	Value uint64 `json:"value"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type flagRequest struct {
	Enabled bool `json:"enabled"`
}

type stakingRequest struct {
	AA string `json:"aa"`
	BB string `json:"bb"`
}

type tokensRequest struct {
	Tokens []string `json:"tokens"`
}

type allowWithdrawRequest struct {
	Tranche string `json:"tranche"`
	Allowed bool   `json:"allowed"`
}

type strategyRequest struct {
	Name string `json:"name"`
}

type adminResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

func (s *server) mountAdmin(r chi.Router) {
	r.Post("/pause", s.adminCall(func(caller common.Address) error { return s.engine.Pause(caller) }))
	r.Post("/unpause", s.adminCall(func(caller common.Address) error { return s.engine.Unpause(caller) }))
	r.Post("/shutdown", s.adminCall(func(caller common.Address) error { return s.engine.EmergencyShutdown(caller) }))

	r.Post("/fee", s.uintSetter(s.engine.SetFee))
	r.Post("/unlent", s.uintSetter(s.engine.SetUnlentPerc))
	r.Post("/split-ratio", s.uintSetter(s.engine.SetTrancheAPRSplitRatio))
	r.Post("/ideal-ratio", s.uintSetter(s.engine.SetTrancheIdealWeightRatio))
	r.Post("/ideal-range", s.uintSetter(s.engine.SetIdealRange))
	r.Post("/liquidation-tolerance", s.uintSetter(s.engine.SetLiquidationTolerance))

	r.Post("/guardian", s.addressSetter(s.engine.SetGuardian))
	r.Post("/rebalancer", s.addressSetter(s.engine.SetRebalancer))
	r.Post("/fee-receiver", s.addressSetter(s.engine.SetFeeReceiver))
	r.Post("/owner", s.addressSetter(s.engine.TransferOwnership))

	r.Post("/skip-default-check", s.flagSetter(s.engine.SetSkipDefaultCheck))
	r.Post("/revert-if-too-low", s.flagSetter(s.engine.SetRevertIfTooLow))

	r.Post("/limit", s.setLimit)
	r.Post("/staking", s.setStaking)
	r.Post("/incentive-tokens", s.setIncentiveTokens)
	r.Post("/allow-withdraw", s.setAllowWithdraw)
	r.Post("/strategy", s.setStrategy)
}

// adminCall runs a parameterless admin operation and reports the resulting
// guard state.
func (s *server) adminCall(fn func(caller common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		s.runAdmin(w, r, func() error { return fn(caller) })
	}
}

func (s *server) runAdmin(w http.ResponseWriter, r *http.Request, fn func() error) {
	var state string
	err := s.dispatch(func() error {
		if err := fn(); err != nil {
			return err
		}
		ledger, err := s.engine.Snapshot()
		if err != nil {
			return err
		}
		state = ledger.State()
		return nil
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{Status: "ok", State: state})
}

func (s *server) uintSetter(set func(caller common.Address, value uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		var req valueRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s.runAdmin(w, r, func() error { return set(caller, req.Value) })
	}
}

func (s *server) addressSetter(set func(caller, target common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		var req addressRequest
		if !decodeBody(w, r, &req) {
			return
		}
		target, err := parseAddress(req.Address)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
			return
		}
		s.runAdmin(w, r, func() error { return set(caller, target) })
	}
}

func (s *server) flagSetter(set func(caller common.Address, enabled bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		var req flagRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s.runAdmin(w, r, func() error { return set(caller, req.Enabled) })
	}
}

func (s *server) setLimit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	limit, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return
	}
	s.runAdmin(w, r, func() error { return s.engine.SetLimit(caller, limit) })
}

func (s *server) setStaking(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req stakingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	aa, err := parseAddress(req.AA)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return
	}
	bb, err := parseAddress(req.BB)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return
	}
	s.runAdmin(w, r, func() error { return s.engine.SetStakingRewards(caller, aa, bb) })
}

func (s *server) setIncentiveTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req tokensRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tokens := make([]common.Address, 0, len(req.Tokens))
	for _, raw := range req.Tokens {
		token, err := parseAddress(raw)
		if err != nil || token == (common.Address{}) {
			writeError(w, http.StatusBadRequest, "invalid incentive token "+raw, tranche.ReasonInvalidParam)
			return
		}
		tokens = append(tokens, token)
	}
	s.runAdmin(w, r, func() error { return s.engine.SetIncentiveTokens(caller, tokens) })
}

func (s *server) setAllowWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req allowWithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := tranche.ParseTranche(req.Tranche)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return
	}
	s.runAdmin(w, r, func() error { return s.engine.SetAllowWithdraw(caller, t, req.Allowed) })
}

func (s *server) setStrategy(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req strategyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runAdmin(w, r, func() error { return s.engine.SetStrategy(caller, req.Name) })
}
