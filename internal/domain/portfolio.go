package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Portfolio partitions a snapshot by the roles of its account.
type Portfolio struct {
	Account             common.Address   `json:"account"`
	OwnerAssets         []DecoratedAsset `json:"owner_assets"`
	InvestorAssets      []DecoratedAsset `json:"investor_assets"`
	TenantAssets        []DecoratedAsset `json:"tenant_assets"`
	TotalLockedDeposit  *big.Int         `json:"total_locked_deposit"`
	WithdrawableBalance *big.Int         `json:"withdrawable_balance"`
}

// Investment is an asset in which a profile address holds shares.
type Investment struct {
	Asset       DecoratedAsset `json:"asset"`
	SharesOwned uint64         `json:"shares_owned"`
}

// AccountProfile is the cross-asset picture of an arbitrary address.
type AccountProfile struct {
	Address       common.Address   `json:"address"`
	OwnedAssets   []DecoratedAsset `json:"owned_assets"`
	Investments   []Investment     `json:"investments"`
	Rentals       []DecoratedAsset `json:"rentals"`
	NetWorth      *big.Int         `json:"net_worth"`
	MonthlyIncome *big.Int         `json:"monthly_income"`
	Skipped       []RecordFailure  `json:"skipped,omitempty"`
}

// ResolutionKind tells which branch an explorer query resolved to.
type ResolutionKind string

const (
	ResolutionAsset   ResolutionKind = "asset"
	ResolutionAccount ResolutionKind = "account"
)

// Resolution is the result of an explorer query.
type Resolution struct {
	Kind    ResolutionKind  `json:"kind"`
	Asset   *DecoratedAsset `json:"asset,omitempty"`
	Profile *AccountProfile `json:"profile,omitempty"`
}

// PlatformStats are registry-wide totals over all live assets.
type PlatformStats struct {
	TotalValueLocked *big.Int `json:"total_value_locked"`
	TotalMonthlyRent *big.Int `json:"total_monthly_rent"`
	UserCount        int      `json:"user_count"`
	AssetCount       int      `json:"asset_count"`
}
