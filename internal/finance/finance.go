// Package finance derives display quantities from raw registry fields.
//
// All arithmetic runs on integer wei amounts. Values become decimals only at
// the display boundary (FormatEther, AnnualYieldPercent).
package finance

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/estate/internal/domain"
)

const (
	etherDecimals = 18
	yieldPlaces   = 4

	// depositPercent is the share of total valuation an owner escrows
	// when financing starts.
	depositPercent = 30
	// tenantDepositMonths is the number of monthly rents a tenant escrows.
	tenantDepositMonths = 3
	monthsPerYear       = 12
)

var (
	percentBase = big.NewInt(100)
	sharesBase  = big.NewInt(domain.MaxShares)
)

// FundingProgressPercent returns the share of the asset already sold.
// Shares are percentage-denominated so no scaling is applied.
func FundingProgressPercent(a domain.AssetRecord) (uint64, error) {
	if err := CheckShares(a); err != nil {
		return 0, err
	}
	return a.TotalSharesSold, nil
}

// RemainingShares returns the shares still available for sale.
func RemainingShares(a domain.AssetRecord) (uint64, error) {
	if err := CheckShares(a); err != nil {
		return 0, err
	}
	return domain.MaxShares - a.TotalSharesSold, nil
}

// CheckShares rejects records reporting more than MaxShares sold.
func CheckShares(a domain.AssetRecord) error {
	if a.TotalSharesSold > domain.MaxShares {
		return domain.IntegrityError(a.ID, "total shares sold %d exceeds %d", a.TotalSharesSold, domain.MaxShares)
	}
	return nil
}

// TotalValuation is the monthly valuation times the rights duration.
func TotalValuation(monthlyValuation *big.Int, rightsDurationMonths uint64) *big.Int {
	return new(big.Int).Mul(orZero(monthlyValuation), new(big.Int).SetUint64(rightsDurationMonths))
}

// RequiredDeposit is 30% of the total valuation, truncated to whole wei.
func RequiredDeposit(monthlyValuation *big.Int, rightsDurationMonths uint64) *big.Int {
	total := TotalValuation(monthlyValuation, rightsDurationMonths)
	total.Mul(total, big.NewInt(depositPercent))
	return total.Quo(total, percentBase)
}

// SharePrice splits the total valuation into MaxShares equal shares, truncated to whole wei.
func SharePrice(monthlyValuation *big.Int, rightsDurationMonths uint64) *big.Int {
	total := TotalValuation(monthlyValuation, rightsDurationMonths)
	return total.Quo(total, sharesBase)
}

// ProRataMonthlyIncome is the part of the monthly rent attributable to sharesOwnedPercent.
func ProRataMonthlyIncome(monthlyRent *big.Int, sharesOwnedPercent uint64) *big.Int {
	income := new(big.Int).Mul(orZero(monthlyRent), new(big.Int).SetUint64(sharesOwnedPercent))
	return income.Quo(income, percentBase)
}

// AnnualYieldPercent is monthlyRent*12*100 / (sharePrice*100).
// ok is false when the share price is zero and the yield is undefined.
func AnnualYieldPercent(monthlyRent, sharePrice *big.Int) (yield decimal.Decimal, ok bool) {
	if sharePrice == nil || sharePrice.Sign() == 0 {
		return decimal.Zero, false
	}
	num := new(big.Int).Mul(orZero(monthlyRent), big.NewInt(monthsPerYear))
	num.Mul(num, percentBase)
	den := new(big.Int).Mul(sharePrice, percentBase)

	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), yieldPlaces), true
}

// SharesCost is the payment required to buy shares at sharePrice.
func SharesCost(shares uint64, sharePrice *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(shares), orZero(sharePrice))
}

// TenantDeposit is the escrow a tenant pays on top of the rent.
func TenantDeposit(monthlyRent *big.Int) *big.Int {
	return new(big.Int).Mul(orZero(monthlyRent), big.NewInt(tenantDepositMonths))
}

// RentPayment is the payment for renting an asset for months: the rent for the
// whole period plus the tenant deposit.
func RentPayment(monthlyRent *big.Int, months uint64) *big.Int {
	rent := new(big.Int).Mul(orZero(monthlyRent), new(big.Int).SetUint64(months))
	return rent.Add(rent, TenantDeposit(monthlyRent))
}

// RetainedValue is the value of the shares an owner has not sold.
func RetainedValue(a domain.AssetRecord) (*big.Int, error) {
	remaining, err := RemainingShares(a)
	if err != nil {
		return nil, err
	}
	return SharesCost(remaining, a.SharePrice), nil
}

// Derive computes the figures shown next to an asset for a holding.
func Derive(a domain.AssetRecord, h domain.Holding) (domain.Figures, error) {
	remaining, err := RemainingShares(a)
	if err != nil {
		return domain.Figures{}, err
	}
	if h.SharesOwned > domain.MaxShares {
		return domain.Figures{}, domain.IntegrityError(a.ID, "holding of %d shares exceeds %d", h.SharesOwned, domain.MaxShares)
	}

	yield, ok := AnnualYieldPercent(a.MonthlyRent, a.SharePrice)

	return domain.Figures{
		FundingProgress:    a.TotalSharesSold,
		RemainingShares:    remaining,
		MonthlyIncome:      ProRataMonthlyIncome(a.MonthlyRent, h.SharesOwned),
		HoldingValue:       SharesCost(h.SharesOwned, a.SharePrice),
		AnnualYieldPercent: yield,
		HasYield:           ok,
	}, nil
}

// FormatEther converts wei into an ether decimal without losing precision.
func FormatEther(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(orZero(wei), -etherDecimals)
}

// DisplayEther renders wei as ether rounded to places, the only rounding step.
func DisplayEther(wei *big.Int, places int32) string {
	return FormatEther(wei).StringFixed(places)
}

// DisplayYield renders a yield, or a dash when it is undefined.
func DisplayYield(f domain.Figures) string {
	if !f.HasYield {
		return "—"
	}
	return f.AnnualYieldPercent.StringFixed(1) + "%"
}

// Sum adds amounts in the integer domain.
func Sum(amounts ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
