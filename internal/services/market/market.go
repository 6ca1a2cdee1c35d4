// Package market builds the investment and rental listings shown to
// prospective investors and tenants.
package market

import (
	"math/big"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/finance"
)

// largeArea is the area above which a listing counts as large.
const largeArea = 100

// luxuryRent is the monthly rent, in wei, from which a listing counts as luxury.
var luxuryRent = new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))

// Tag narrows the rental listings.
type Tag string

const (
	TagAll    Tag = "all"
	TagCheap  Tag = "cheap"
	TagLuxury Tag = "luxury"
	TagLarge  Tag = "large"
)

// Order sorts the rental listings.
type Order string

const (
	OrderNewest    Order = "newest"
	OrderPriceAsc  Order = "price_asc"
	OrderPriceDesc Order = "price_desc"
	OrderAreaDesc  Order = "area_desc"
)

// ParseTag validates a tag name. Empty means TagAll.
func ParseTag(s string) (Tag, error) {
	switch t := Tag(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TagAll, nil
	case TagAll, TagCheap, TagLuxury, TagLarge:
		return t, nil
	default:
		return "", errors.Wrapf(domain.ErrInvalidInput, "unknown tag %q", s)
	}
}

// ParseOrder validates an order name. Empty means OrderNewest.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderNewest, nil
	case OrderNewest, OrderPriceAsc, OrderPriceDesc, OrderAreaDesc:
		return o, nil
	default:
		return "", errors.Wrapf(domain.ErrInvalidInput, "unknown order %q", s)
	}
}

// InvestmentStats summarise assets open for fundraising.
type InvestmentStats struct {
	Projects        int      `json:"projects"`
	SharesAvailable uint64   `json:"shares_available"`
	MarketValue     *big.Int `json:"market_value"`
}

// Investments returns the fundraising assets of snap, most recent first.
func Investments(snap *domain.Snapshot) ([]domain.DecoratedAsset, InvestmentStats) {
	stats := InvestmentStats{MarketValue: new(big.Int)}
	list := []domain.DecoratedAsset{}
	if snap == nil {
		return list, stats
	}

	for _, a := range snap.Assets {
		if a.Status != domain.StatusFundraising {
			continue
		}
		list = append(list, a)
		stats.Projects++
		stats.SharesAvailable += a.Figures.RemainingShares
		stats.MarketValue.Add(stats.MarketValue, finance.SharesCost(domain.MaxShares, a.SharePrice))
	}

	return list, stats
}

// RentalQuery filters and orders rental listings.
type RentalQuery struct {
	Search string
	Tag    Tag
	Order  Order
}

// RentalStats summarise every asset listed for rent, regardless of filters.
type RentalStats struct {
	Listings    int      `json:"listings"`
	AverageRent *big.Int `json:"average_rent"`
	MaxRent     *big.Int `json:"max_rent"`
	TotalArea   uint64   `json:"total_area"`
}

// Rentals returns the listings of snap matching q, plus stats over all listings.
func Rentals(snap *domain.Snapshot, q RentalQuery) ([]domain.DecoratedAsset, RentalStats) {
	stats := RentalStats{AverageRent: new(big.Int), MaxRent: new(big.Int)}
	list := []domain.DecoratedAsset{}
	if snap == nil {
		return list, stats
	}

	total := new(big.Int)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	for _, a := range snap.Assets {
		if a.Status != domain.StatusListedForRent {
			continue
		}

		rent := rentOf(a)
		stats.Listings++
		stats.TotalArea += a.Info.Area
		total.Add(total, rent)
		if rent.Cmp(stats.MaxRent) > 0 {
			stats.MaxRent.Set(rent)
		}

		if matches(a, search, q.Tag) {
			list = append(list, a)
		}
	}

	if stats.Listings > 0 {
		stats.AverageRent.Quo(total, big.NewInt(int64(stats.Listings)))
	}

	sortListings(list, q.Order)
	return list, stats
}

func matches(a domain.DecoratedAsset, search string, tag Tag) bool {
	if search != "" &&
		!strings.Contains(strings.ToLower(a.Info.Name), search) &&
		!strings.Contains(strings.ToLower(a.Info.PhysicalAddress), search) {
		return false
	}

	switch tag {
	case TagCheap:
		return rentOf(a).Cmp(luxuryRent) < 0
	case TagLuxury:
		return rentOf(a).Cmp(luxuryRent) >= 0
	case TagLarge:
		return a.Info.Area > largeArea
	default:
		return true
	}
}

func sortListings(list []domain.DecoratedAsset, order Order) {
	switch order {
	case OrderPriceAsc:
		sort.SliceStable(list, func(i, j int) bool { return rentOf(list[i]).Cmp(rentOf(list[j])) < 0 })
	case OrderPriceDesc:
		sort.SliceStable(list, func(i, j int) bool { return rentOf(list[i]).Cmp(rentOf(list[j])) > 0 })
	case OrderAreaDesc:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Info.Area > list[j].Info.Area })
	default:
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	}
}

func rentOf(a domain.DecoratedAsset) *big.Int {
	if a.MonthlyRent == nil {
		return new(big.Int)
	}
	return a.MonthlyRent
}
