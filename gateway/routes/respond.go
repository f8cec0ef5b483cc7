package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"trancheledger/native/tranche"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, errorResponse{Error: msg, Reason: reason})
}

// writeEngineError maps an engine failure to its HTTP status and reason code.
func (s *server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tranche.ErrNotInitialized) {
		writeError(w, http.StatusServiceUnavailable, err.Error(), "")
		return
	}
	reason := tranche.Reason(err)
	status := statusForReason(reason)
	if status >= http.StatusInternalServerError {
		s.logger.Error("ledger call failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error", reason)
		return
	}
	writeError(w, status, err.Error(), reason)
}

func statusForReason(reason string) int {
	switch reason {
	case tranche.ReasonUnauthorized:
		return http.StatusForbidden
	case tranche.ReasonInvalidParam:
		return http.StatusBadRequest
	case tranche.ReasonReentrant:
		return http.StatusTooManyRequests
	case tranche.ReasonInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "missing request body", tranche.ReasonInvalidParam)
		return false
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("missing request body")
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err), tranche.ReasonInvalidParam)
		return false
	}
	return true
}

// parseAmount accepts a non-negative base-10 integer string. An empty string
// is zero.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
