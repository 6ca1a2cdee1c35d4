package domain

import (
	"context"
	"fmt"
)

// KeyScope is the resource a mutation locks.
type KeyScope string

const (
	// ScopeAsset locks one asset.
	ScopeAsset KeyScope = "asset"
	// ScopeAccount locks account-level actions such as balance withdrawal.
	ScopeAccount KeyScope = "account"
	// ScopeListing locks creation of new assets.
	ScopeListing KeyScope = "listing"
)

// MutationKey identifies the resource a pending mutation holds.
type MutationKey struct {
	Scope   KeyScope
	AssetID AssetID
}

// AssetKey returns the key guarding mutations on one asset.
func AssetKey(id AssetID) MutationKey {
	return MutationKey{Scope: ScopeAsset, AssetID: id}
}

// AccountKey returns the key guarding account-level mutations.
func AccountKey() MutationKey {
	return MutationKey{Scope: ScopeAccount}
}

// ListingKey returns the key guarding asset creation.
func ListingKey() MutationKey {
	return MutationKey{Scope: ScopeListing}
}

// String returns the string representation of the key.
func (k MutationKey) String() string {
	if k.Scope == ScopeAsset {
		return fmt.Sprintf("%s:%s", k.Scope, k.AssetID)
	}
	return string(k.Scope)
}

// MutationKind names the registry call being executed.
type MutationKind string

const (
	MutationCreateAsset        MutationKind = "create_asset"
	MutationStartFinancing     MutationKind = "start_financing"
	MutationUpdateAssetInfo    MutationKind = "update_asset_info"
	MutationLockFinancing      MutationKind = "lock_financing"
	MutationBuyShares          MutationKind = "buy_shares"
	MutationListForRent        MutationKind = "list_for_rent"
	MutationRentAsset          MutationKind = "rent_asset"
	MutationRequestTermination MutationKind = "request_termination"
	MutationProcessSettlement  MutationKind = "process_settlement"
	MutationForceTermination   MutationKind = "force_termination"
	MutationWithdrawEscrow     MutationKind = "withdraw_escrow"
	MutationWithdrawBalance    MutationKind = "withdraw_balance"
	MutationDestroyAsset       MutationKind = "destroy_asset"
)

// Submission is a mutating call accepted by the registry whose finality
// has not been observed yet.
type Submission interface {
	// TxID identifies the submitted call.
	TxID() string
	// Wait blocks until the call is final. It returns an error wrapping
	// ErrMutationRejected if the call reverted.
	Wait(ctx context.Context) error
}

// MutatingCall submits one registry mutation.
type MutatingCall func(ctx context.Context) (Submission, error)

// Outcome is the single terminal result of an executed mutation.
type Outcome struct {
	Key        MutationKey  `json:"key"`
	Kind       MutationKind `json:"kind"`
	TxID       string       `json:"tx_id,omitempty"`
	Success    bool         `json:"success"`
	Reason     string       `json:"reason,omitempty"`
	Err        error        `json:"-"`
	RefreshErr error        `json:"-"`
}
