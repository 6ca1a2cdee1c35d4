package domain

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxShares is the number of shares every asset is divided into.
// Shares are percentage-denominated.
const MaxShares = 100

// AssetID identifies an asset in the registry. Ids are assigned
// monotonically by the registry and never reused.
type AssetID uint64

// String returns the decimal representation.
func (id AssetID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// AssetInfo holds the descriptive fields of an asset.
type AssetInfo struct {
	Name            string `json:"name"`
	PhysicalAddress string `json:"physical_address"`
	Category        string `json:"category"`
	Area            uint64 `json:"area"`
	OwnerPhone      string `json:"owner_phone"`
}

// Validate reports whether all descriptive fields are filled in.
func (i AssetInfo) Validate() error {
	if i.Name == "" || i.PhysicalAddress == "" || i.Category == "" || i.OwnerPhone == "" || i.Area == 0 {
		return ErrInvalidInput
	}
	return nil
}

// AssetRecord is one tokenized property as stored in the registry.
// Monetary fields are in wei.
type AssetRecord struct {
	ID     AssetID     `json:"id"`
	Info   AssetInfo   `json:"info"`
	Status AssetStatus `json:"status"`

	Owner  common.Address `json:"owner"`
	Tenant common.Address `json:"tenant"`

	MonthlyRent     *big.Int `json:"monthly_rent"`
	SharePrice      *big.Int `json:"share_price"`
	TotalSharesSold uint64   `json:"total_shares_sold"`

	FundraisingEnd       time.Time `json:"fundraising_end"`
	RightsDurationMonths uint64    `json:"rights_duration_months"`
	RightsStart          time.Time `json:"rights_start"`

	OwnerDeposit  *big.Int `json:"owner_deposit"`
	TenantDeposit *big.Int `json:"tenant_deposit"`

	RentStart          time.Time `json:"rent_start"`
	RentEnd            time.Time `json:"rent_end"`
	TerminationRequest time.Time `json:"termination_request"`
}

// IsTombstoned reports whether the asset has been destroyed.
func (a AssetRecord) IsTombstoned() bool {
	return a.Owner == (common.Address{})
}

// HasTenant reports whether a tenant is set.
func (a AssetRecord) HasTenant() bool {
	return a.Tenant != (common.Address{})
}

// Holding is the per-account position in one asset.
type Holding struct {
	SharesOwned   uint64   `json:"shares_owned"`
	RentWithdrawn *big.Int `json:"rent_withdrawn"`
}

// EmptyHolding returns a holding with no shares.
func EmptyHolding() Holding {
	return Holding{RentWithdrawn: new(big.Int)}
}

// Roles tags how an account relates to an asset.
type Roles struct {
	IsOwner    bool `json:"is_owner"`
	IsInvestor bool `json:"is_investor"`
	IsTenant   bool `json:"is_tenant"`
}

// RolesOf computes the roles of account for the asset.
// Addresses compare by value, so hex casing never matters.
func RolesOf(a AssetRecord, h Holding, account common.Address) Roles {
	if account == (common.Address{}) {
		return Roles{}
	}
	return Roles{
		IsOwner:    a.Owner == account,
		IsInvestor: h.SharesOwned > 0 && a.Owner != account,
		IsTenant:   a.Tenant == account,
	}
}
