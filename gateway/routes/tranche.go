package routes

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"trancheledger/native/tranche"
	"trancheledger/services/history"
)

type ledgerView struct {
	State             string   `json:"state"`
	Strategy          string   `json:"strategy"`
	StrategyToken     string   `json:"strategyToken"`
	Underlying        string   `json:"underlying"`
	ContractValue     string   `json:"contractValue"`
	AARatio           uint64   `json:"aaRatio"`
	PriceAA           string   `json:"priceAA"`
	PriceBB           string   `json:"priceBB"`
	LastNAVAA         string   `json:"lastNavAA"`
	LastNAVBB         string   `json:"lastNavBB"`
	LastStrategyPrice string   `json:"lastStrategyPrice"`
	UnclaimedFees     string   `json:"unclaimedFees"`
	SplitRatio        uint64   `json:"trancheAPRSplitRatio"`
	IdealWeightRatio  uint64   `json:"trancheIdealWeightRatio"`
	IdealRange        uint64   `json:"idealRange"`
	Fee               uint64   `json:"fee"`
	UnlentPerc        uint64   `json:"unlentPerc"`
	Tolerance         uint64   `json:"liquidationTolerance"`
	Limit             string   `json:"limit"`
	AllowAAWithdraw   bool     `json:"allowAAWithdraw"`
	AllowBBWithdraw   bool     `json:"allowBBWithdraw"`
	SkipDefaultCheck  bool     `json:"skipDefaultCheck"`
	RevertIfTooLow    bool     `json:"revertIfTooLow"`
	Owner             string   `json:"owner"`
	Guardian          string   `json:"guardian"`
	Rebalancer        string   `json:"rebalancer"`
	FeeReceiver       string   `json:"feeReceiver"`
	StakingAA         string   `json:"stakingAA,omitempty"`
	StakingBB         string   `json:"stakingBB,omitempty"`
	IncentiveTokens   []string `json:"incentiveTokens"`
}

func (s *server) getLedger(w http.ResponseWriter, r *http.Request) {
	var (
		ledger *tranche.Ledger
		value  *big.Int
		ratio  uint64
	)
	err := s.dispatch(func() error {
		var err error
		if ledger, err = s.engine.Snapshot(); err != nil {
			return err
		}
		if value, err = s.engine.ContractValue(); err != nil {
			return err
		}
		ratio, err = s.engine.CurrentAARatio()
		return err
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	view := ledgerView{
		State:             ledger.State(),
		Strategy:          ledger.Strategy,
		StrategyToken:     addressString(ledger.StrategyToken),
		Underlying:        addressString(ledger.Underlying),
		ContractValue:     amountString(value),
		AARatio:           ratio,
		PriceAA:           amountString(ledger.PriceAA),
		PriceBB:           amountString(ledger.PriceBB),
		LastNAVAA:         amountString(ledger.LastNAVAA),
		LastNAVBB:         amountString(ledger.LastNAVBB),
		LastStrategyPrice: amountString(ledger.LastStrategyPrice),
		UnclaimedFees:     amountString(ledger.UnclaimedFees),
		SplitRatio:        ledger.TrancheAPRSplitRatio,
		IdealWeightRatio:  ledger.TrancheIdealWeightRatio,
		IdealRange:        ledger.IdealRange,
		Fee:               ledger.Fee,
		UnlentPerc:        ledger.UnlentPerc,
		Tolerance:         ledger.LiquidationTolerance,
		Limit:             amountString(ledger.Limit),
		AllowAAWithdraw:   ledger.AllowAAWithdraw,
		AllowBBWithdraw:   ledger.AllowBBWithdraw,
		SkipDefaultCheck:  ledger.SkipDefaultCheck,
		RevertIfTooLow:    ledger.RevertIfTooLow,
		Owner:             addressString(ledger.Access.Owner),
		Guardian:          addressString(ledger.Access.Guardian),
		Rebalancer:        addressString(ledger.Access.Rebalancer),
		FeeReceiver:       addressString(ledger.FeeReceiver),
		StakingAA:         addressString(ledger.StakingAA),
		StakingBB:         addressString(ledger.StakingBB),
		IncentiveTokens:   make([]string, 0, len(ledger.IncentiveTokens)),
	}
	for _, token := range ledger.IncentiveTokens {
		view.IncentiveTokens = append(view.IncentiveTokens, token.Hex())
	}
	writeJSON(w, http.StatusOK, view)
}

type metricResponse struct {
	Tranche string `json:"tranche"`
	Metric  string `json:"metric"`
	Value   string `json:"value"`
}

func (s *server) getTrancheMetric(w http.ResponseWriter, r *http.Request) {
	t, ok := trancheParam(w, r)
	if !ok {
		return
	}
	metric := chi.URLParam(r, "metric")
	var read func(tranche.Tranche) (*big.Int, error)
	switch metric {
	case "price":
		read = s.engine.TranchePrice
	case "last-price":
		read = s.engine.LastTranchePrice
	case "virtual-price":
		read = s.engine.VirtualPrice
	case "apr":
		read = s.engine.Apr
	case "ideal-apr":
		read = s.engine.IdealApr
	default:
		writeError(w, http.StatusNotFound, "unknown metric "+metric, "")
		return
	}
	var value *big.Int
	err := s.dispatch(func() error {
		var err error
		value, err = read(t)
		return err
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metricResponse{Tranche: t.String(), Metric: metric, Value: amountString(value)})
}

type balanceResponse struct {
	Tranche string `json:"tranche"`
	Holder  string `json:"holder"`
	Shares  string `json:"shares"`
}

func (s *server) getBalance(w http.ResponseWriter, r *http.Request) {
	t, ok := trancheParam(w, r)
	if !ok {
		return
	}
	raw := chi.URLParam(r, "holder")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid holder address", tranche.ReasonInvalidParam)
		return
	}
	holder := common.HexToAddress(raw)
	var shares *big.Int
	err := s.dispatch(func() error {
		var err error
		shares, err = s.engine.SharesOf(t, holder)
		return err
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Tranche: t.String(), Holder: holder.Hex(), Shares: amountString(shares)})
}

type depositRequest struct {
	Amount string `json:"amount"`
}

type depositResponse struct {
	Tranche string `json:"tranche"`
	Shares  string `json:"shares"`
}

func (s *server) deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	t, ok := trancheParam(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return
	}
	var shares *big.Int
	err = s.dispatch(func() error {
		var err error
		if t == tranche.AA {
			shares, err = s.engine.DepositAA(caller, amount)
		} else {
			shares, err = s.engine.DepositBB(caller, amount)
		}
		return err
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{Tranche: t.String(), Shares: amountString(shares)})
}

type withdrawRequest struct {
	// Shares is the amount to burn; empty or "0" withdraws the whole balance.
	Shares string `json:"shares"`
}

type withdrawResponse struct {
	Tranche string `json:"tranche"`
	Paid    string `json:"paid"`
}

func (s *server) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	t, ok := trancheParam(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return
	}
	var paid *big.Int
	err = s.dispatch(func() error {
		var err error
		if t == tranche.AA {
			paid, err = s.engine.WithdrawAA(caller, shares)
		} else {
			paid, err = s.engine.WithdrawBB(caller, shares)
		}
		return err
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResponse{Tranche: t.String(), Paid: amountString(paid)})
}

type harvestRequest struct {
	SkipRedeem           bool          `json:"skipRedeem"`
	SkipIncentivesUpdate bool          `json:"skipIncentivesUpdate"`
	SkipFeeDeposit       bool          `json:"skipFeeDeposit"`
	SkipStrategyDeposit  bool          `json:"skipStrategyDeposit"`
	SkipRewardSelling    []bool        `json:"skipRewardSelling"`
	MinAmounts           []string      `json:"minAmounts"`
	SellAmounts          []string      `json:"sellAmounts"`
	ExtraData            hexutil.Bytes `json:"extraData"`
}

func (req harvestRequest) params() (tranche.HarvestParams, error) {
	params := tranche.HarvestParams{
		SkipRedeem:           req.SkipRedeem,
		SkipIncentivesUpdate: req.SkipIncentivesUpdate,
		SkipFeeDeposit:       req.SkipFeeDeposit,
		SkipStrategyDeposit:  req.SkipStrategyDeposit,
		SkipRewardSelling:    req.SkipRewardSelling,
		ExtraData:            req.ExtraData,
	}
	for _, raw := range req.MinAmounts {
		amount, err := parseAmount(raw)
		if err != nil {
			return params, err
		}
		params.MinAmounts = append(params.MinAmounts, amount)
	}
	for _, raw := range req.SellAmounts {
		amount, err := parseAmount(raw)
		if err != nil {
			return params, err
		}
		params.SellAmounts = append(params.SellAmounts, amount)
	}
	return params, nil
}

type harvestResponse struct {
	ID           string   `json:"id"`
	RewardTokens []string `json:"rewardTokens"`
	Sold         []string `json:"sold"`
	Swapped      string   `json:"swapped"`
	Deposited    string   `json:"deposited"`
	Gain         string   `json:"gain"`
	Fees         string   `json:"fees"`
	FeeTranche   string   `json:"feeTranche"`
	PriceAA      string   `json:"priceAA"`
	PriceBB      string   `json:"priceBB"`
}

func (s *server) harvest(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req harvestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), tranche.ReasonInvalidParam)
		return
	}
	var report *tranche.HarvestReport
	err = s.dispatch(func() error {
		var err error
		report, err = s.engine.Harvest(caller, params)
		return err
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := harvestResponse{
		ID:           report.ID.String(),
		RewardTokens: make([]string, 0, len(report.RewardTokens)),
		Sold:         make([]string, 0, len(report.Sold)),
		Swapped:      amountString(report.Swapped),
		Deposited:    amountString(report.Deposited),
		Gain:         amountString(report.Gain),
		Fees:         amountString(report.Fees),
		FeeTranche:   report.FeeTranche.String(),
		PriceAA:      amountString(report.PriceAA),
		PriceBB:      amountString(report.PriceBB),
	}
	for _, token := range report.RewardTokens {
		resp.RewardTokens = append(resp.RewardTokens, token.Hex())
	}
	for _, sold := range report.Sold {
		resp.Sold = append(resp.Sold, amountString(sold))
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt string            `json:"recordedAt"`
}

func (s *server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history not enabled", "")
		return
	}
	filter := history.Filter{Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", tranche.ReasonInvalidParam)
			return
		}
		filter.Limit = limit
	}
	records, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	out := make([]historyEntry, 0, len(records))
	for _, record := range records {
		decoded, err := record.Decode()
		if err != nil {
			s.logger.Warn("skip undecodable history record", "id", record.ID.String(), "error", err)
			continue
		}
		out = append(out, historyEntry{
			ID:         record.ID.String(),
			Type:       decoded.Type,
			Attributes: decoded.Attributes,
			RecordedAt: record.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
