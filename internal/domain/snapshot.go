package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Figures are the derived financial quantities shown next to an asset.
type Figures struct {
	FundingProgress    uint64          `json:"funding_progress"`
	RemainingShares    uint64          `json:"remaining_shares"`
	MonthlyIncome      *big.Int        `json:"monthly_income"`
	HoldingValue       *big.Int        `json:"holding_value"`
	AnnualYieldPercent decimal.Decimal `json:"annual_yield_percent"`
	HasYield           bool            `json:"has_yield"`
}

// DecoratedAsset is an asset as seen by one account.
type DecoratedAsset struct {
	AssetRecord
	Holding Holding `json:"holding"`
	Roles   Roles   `json:"roles"`
	Figures Figures `json:"figures"`
}

// RecordFailure describes an asset excluded from a snapshot.
type RecordFailure struct {
	ID     AssetID `json:"id"`
	Reason string  `json:"reason"`
	Err    error   `json:"-"`
}

// Snapshot is an immutable, fully assembled view of the registry for one account.
// Assets are ordered most recent first. A published snapshot is never modified.
type Snapshot struct {
	Version       uint64           `json:"version"`
	Account       common.Address   `json:"account"`
	Assets        []DecoratedAsset `json:"assets"`
	Balance       *big.Int         `json:"balance"`
	LockedDeposit *big.Int         `json:"locked_deposit"`
	Failures      []RecordFailure  `json:"failures,omitempty"`
	BuiltAt       time.Time        `json:"built_at"`
}

// Connected reports whether the snapshot was built for an account.
func (s *Snapshot) Connected() bool {
	return s != nil && s.Account != (common.Address{})
}

// Find returns the asset with the given id.
func (s *Snapshot) Find(id AssetID) (DecoratedAsset, bool) {
	if s == nil {
		return DecoratedAsset{}, false
	}
	for _, a := range s.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return DecoratedAsset{}, false
}

// WithVersion returns a shallow copy stamped with version.
func (s Snapshot) WithVersion(version uint64) *Snapshot {
	s.Version = version
	return &s
}

// SnapshotSummary is the persisted digest of a published snapshot.
// Amounts are strings to keep precision for web consumers.
type SnapshotSummary struct {
	Timestamp     time.Time `json:"ts"`
	Version       uint64    `json:"version"`
	Account       string    `json:"account"`
	Assets        int       `json:"assets"`
	Failures      int       `json:"failures"`
	Balance       string    `json:"balance"`
	LockedDeposit string    `json:"locked_deposit"`
}

// Summary builds the persisted digest of the snapshot.
func (s *Snapshot) Summary() SnapshotSummary {
	return SnapshotSummary{
		Timestamp:     s.BuiltAt,
		Version:       s.Version,
		Account:       s.Account.Hex(),
		Assets:        len(s.Assets),
		Failures:      len(s.Failures),
		Balance:       bigString(s.Balance),
		LockedDeposit: bigString(s.LockedDeposit),
	}
}

// SnapshotSummaryRecord bundles a summary with its WAL index.
type SnapshotSummaryRecord struct {
	Index   uint64
	Summary SnapshotSummary
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
