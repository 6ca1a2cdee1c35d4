package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/internal/domain"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func listing(id domain.AssetID, name string, area uint64, rent *big.Int) domain.DecoratedAsset {
	return domain.DecoratedAsset{AssetRecord: domain.AssetRecord{
		ID:          id,
		Info:        domain.AssetInfo{Name: name, PhysicalAddress: "Harbour road " + id.String(), Area: area},
		Status:      domain.StatusListedForRent,
		MonthlyRent: rent,
		SharePrice:  big.NewInt(1),
	}}
}

func fundraising(id domain.AssetID, price int64, remaining uint64) domain.DecoratedAsset {
	return domain.DecoratedAsset{
		AssetRecord: domain.AssetRecord{ID: id, Status: domain.StatusFundraising, SharePrice: big.NewInt(price)},
		Figures:     domain.Figures{RemainingShares: remaining},
	}
}

func listingIDs(list []domain.DecoratedAsset) []domain.AssetID {
	out := []domain.AssetID{}
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}

func rentalSnapshot() *domain.Snapshot {
	return &domain.Snapshot{Assets: []domain.DecoratedAsset{
		listing(4, "Sea View Villa", 250, eth(15)),
		fundraising(3, 2, 40),
		listing(2, "City Studio", 30, eth(2)),
		listing(1, "Garden Loft", 120, eth(8)),
	}}
}

func TestInvestments(t *testing.T) {
	snap := &domain.Snapshot{Assets: []domain.DecoratedAsset{
		fundraising(3, 2, 40),
		listing(2, "x", 1, eth(1)),
		fundraising(1, 5, 100),
	}}

	list, stats := Investments(snap)
	assert.Equal(t, []domain.AssetID{3, 1}, listingIDs(list))
	assert.Equal(t, 2, stats.Projects)
	assert.Equal(t, uint64(140), stats.SharesAvailable)
	assert.Equal(t, int64(700), stats.MarketValue.Int64())
}

func TestRentals_Stats(t *testing.T) {
	_, stats := Rentals(rentalSnapshot(), RentalQuery{Tag: TagLarge})

	assert.Equal(t, 3, stats.Listings, "stats ignore filters")
	assert.Equal(t, uint64(400), stats.TotalArea)
	assert.Equal(t, 0, stats.MaxRent.Cmp(eth(15)))
	assert.Equal(t, 0, stats.AverageRent.Cmp(new(big.Int).Quo(eth(25), big.NewInt(3))))
}

func TestRentals_FilterAndOrder(t *testing.T) {
	tests := []struct {
		name string
		q    RentalQuery
		want []domain.AssetID
	}{
		{name: "default newest", q: RentalQuery{}, want: []domain.AssetID{4, 2, 1}},
		{name: "search name", q: RentalQuery{Search: "loft"}, want: []domain.AssetID{1}},
		{name: "search address", q: RentalQuery{Search: "HARBOUR ROAD 2"}, want: []domain.AssetID{2}},
		{name: "cheap", q: RentalQuery{Tag: TagCheap}, want: []domain.AssetID{2, 1}},
		{name: "luxury", q: RentalQuery{Tag: TagLuxury}, want: []domain.AssetID{4}},
		{name: "large", q: RentalQuery{Tag: TagLarge}, want: []domain.AssetID{4, 1}},
		{name: "price asc", q: RentalQuery{Order: OrderPriceAsc}, want: []domain.AssetID{2, 1, 4}},
		{name: "price desc", q: RentalQuery{Order: OrderPriceDesc}, want: []domain.AssetID{4, 1, 2}},
		{name: "area desc", q: RentalQuery{Order: OrderAreaDesc}, want: []domain.AssetID{4, 1, 2}},
		{name: "combined", q: RentalQuery{Search: "o", Tag: TagCheap, Order: OrderPriceDesc}, want: []domain.AssetID{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, _ := Rentals(rentalSnapshot(), tt.q)
			assert.Equal(t, tt.want, listingIDs(list))
		})
	}
}

func TestRentals_LuxuryBoundary(t *testing.T) {
	snap := &domain.Snapshot{Assets: []domain.DecoratedAsset{listing(1, "Edge", 10, eth(10))}}

	cheap, _ := Rentals(snap, RentalQuery{Tag: TagCheap})
	luxury, _ := Rentals(snap, RentalQuery{Tag: TagLuxury})
	assert.Empty(t, cheap)
	assert.Len(t, luxury, 1)
}

func TestParse(t *testing.T) {
	tag, err := ParseTag("")
	require.NoError(t, err)
	assert.Equal(t, TagAll, tag)

	tag, err = ParseTag(" Luxury ")
	require.NoError(t, err)
	assert.Equal(t, TagLuxury, tag)

	_, err = ParseTag("pets")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	order, err := ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderNewest, order)

	_, err = ParseOrder("random")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNilSnapshot(t *testing.T) {
	list, stats := Investments(nil)
	assert.Empty(t, list)
	assert.Zero(t, stats.Projects)

	rentals, rstats := Rentals(nil, RentalQuery{})
	assert.Empty(t, rentals)
	assert.Equal(t, 0, rstats.AverageRent.Sign())
}
