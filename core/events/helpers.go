package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

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

func normalizeTranche(tranche string) string {
	return strings.ToUpper(strings.TrimSpace(tranche))
}
