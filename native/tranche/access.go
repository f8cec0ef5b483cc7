package tranche

import "github.com/ethereum/go-ethereum/common"

// AccessControl holds the three role slots. The owner configures the ledger,
// the guardian can halt it and the rebalancer can harvest.
type AccessControl struct {
	Owner      common.Address
	Guardian   common.Address
	Rebalancer common.Address
}

func (a AccessControl) IsOwner(caller common.Address) bool {
	return caller != (common.Address{}) && caller == a.Owner
}

func (a AccessControl) IsOwnerOrGuardian(caller common.Address) bool {
	if caller == (common.Address{}) {
		return false
	}
	return caller == a.Owner || caller == a.Guardian
}

func (a AccessControl) IsOwnerOrRebalancer(caller common.Address) bool {
	if caller == (common.Address{}) {
		return false
	}
	return caller == a.Owner || caller == a.Rebalancer
}

// Role names the strongest role the caller holds, or "" for none.
func (a AccessControl) Role(caller common.Address) string {
	switch {
	case a.IsOwner(caller):
		return "owner"
	case caller != (common.Address{}) && caller == a.Guardian:
		return "guardian"
	case caller != (common.Address{}) && caller == a.Rebalancer:
		return "rebalancer"
	default:
		return ""
	}
}
