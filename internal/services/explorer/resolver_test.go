package explorer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/internal/domain"
	ledgerMock "github.com/vadiminshakov/estate/mocks/ledger"
)

var (
	target = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	renter = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func asset(id domain.AssetID, owner common.Address, sold uint64, price int64) domain.DecoratedAsset {
	return domain.DecoratedAsset{AssetRecord: domain.AssetRecord{
		ID:              id,
		Status:          domain.StatusFundraising,
		Owner:           owner,
		MonthlyRent:     new(big.Int),
		SharePrice:      big.NewInt(price),
		TotalSharesSold: sold,
	}}
}

func holding(shares uint64) domain.Holding {
	return domain.Holding{SharesOwned: shares, RentWithdrawn: new(big.Int)}
}

func TestProfile_NetWorth(t *testing.T) {
	owned := asset(1, target, 40, 1)
	invested := asset(2, other, 30, 2)

	l := ledgerMock.NewLedger(t)
	l.On("Holding", mock.Anything, domain.AssetID(1), target).Return(holding(0), nil).Once()
	l.On("Holding", mock.Anything, domain.AssetID(2), target).Return(holding(30), nil).Once()

	snap := &domain.Snapshot{Account: other, Assets: []domain.DecoratedAsset{invested, owned}}
	profile, err := NewResolver(l, nil, 2).Profile(context.Background(), target, snap)
	require.NoError(t, err)

	assert.Equal(t, int64(120), profile.NetWorth.Int64(), "60 retained shares at 1 plus 30 shares at 2")
	require.Len(t, profile.OwnedAssets, 1)
	require.Len(t, profile.Investments, 1)
	assert.Equal(t, uint64(30), profile.Investments[0].SharesOwned)
	assert.True(t, profile.Investments[0].Asset.Roles.IsInvestor, "decorated for the profile address")
	assert.Empty(t, profile.Rentals)
	assert.Empty(t, profile.Skipped)
}

func TestProfile_OwnerSharesAreNotInvestments(t *testing.T) {
	owned := asset(1, target, 40, 1)

	l := ledgerMock.NewLedger(t)
	l.On("Holding", mock.Anything, domain.AssetID(1), target).Return(holding(10), nil).Once()

	profile, err := NewResolver(l, nil, 0).Profile(context.Background(), target, &domain.Snapshot{Assets: []domain.DecoratedAsset{owned}})
	require.NoError(t, err)

	assert.Len(t, profile.OwnedAssets, 1)
	assert.Empty(t, profile.Investments)
	assert.Equal(t, int64(60), profile.NetWorth.Int64())
}

func TestProfile_MonthlyIncomeFromRentedInvestments(t *testing.T) {
	rented := asset(1, other, 50, 2)
	rented.Status = domain.StatusRented
	rented.Tenant = renter
	rented.MonthlyRent = big.NewInt(1000)

	listed := asset(2, other, 50, 2)
	listed.Status = domain.StatusListedForRent
	listed.MonthlyRent = big.NewInt(1000)

	l := ledgerMock.NewLedger(t)
	l.On("Holding", mock.Anything, domain.AssetID(1), target).Return(holding(20), nil).Once()
	l.On("Holding", mock.Anything, domain.AssetID(2), target).Return(holding(20), nil).Once()

	profile, err := NewResolver(l, nil, 0).Profile(context.Background(), target, &domain.Snapshot{Assets: []domain.DecoratedAsset{listed, rented}})
	require.NoError(t, err)

	assert.Len(t, profile.Investments, 2)
	assert.Equal(t, int64(200), profile.MonthlyIncome.Int64(), "only the rented asset pays")
}

func TestProfile_TenantView(t *testing.T) {
	rented := asset(1, other, 0, 1)
	rented.Status = domain.StatusRented
	rented.Tenant = renter

	l := ledgerMock.NewLedger(t)
	l.On("Holding", mock.Anything, domain.AssetID(1), renter).Return(holding(0), nil).Once()

	profile, err := NewResolver(l, nil, 0).Profile(context.Background(), renter, &domain.Snapshot{Assets: []domain.DecoratedAsset{rented}})
	require.NoError(t, err)

	require.Len(t, profile.Rentals, 1)
	assert.Empty(t, profile.OwnedAssets)
	assert.Equal(t, 0, profile.NetWorth.Sign())
}

func TestProfile_IsolatesHoldingFailures(t *testing.T) {
	a1 := asset(1, other, 30, 1)
	a2 := asset(2, other, 30, 1)
	owned := asset(3, target, 0, 1)

	l := ledgerMock.NewLedger(t)
	l.On("Holding", mock.Anything, domain.AssetID(1), target).Return(holding(10), nil).Once()
	l.On("Holding", mock.Anything, domain.AssetID(2), target).Return(domain.Holding{}, errors.New("rpc timeout")).Once()
	l.On("Holding", mock.Anything, domain.AssetID(3), target).Return(domain.Holding{}, errors.New("rpc timeout")).Once()

	snap := &domain.Snapshot{Assets: []domain.DecoratedAsset{owned, a2, a1}}
	profile, err := NewResolver(l, nil, 0).Profile(context.Background(), target, snap)
	require.NoError(t, err)

	require.Len(t, profile.Investments, 1)
	assert.Equal(t, domain.AssetID(1), profile.Investments[0].Asset.ID)
	assert.Len(t, profile.OwnedAssets, 1, "ownership is public and still counted")
	assert.Equal(t, int64(110), profile.NetWorth.Int64())
	require.Len(t, profile.Skipped, 2)
	for _, s := range profile.Skipped {
		assert.True(t, errors.Is(s.Err, domain.ErrRecordUnavailable))
	}
}

func TestProfile_CanceledScan(t *testing.T) {
	l := ledgerMock.NewLedger(t)
	snap := &domain.Snapshot{Assets: []domain.DecoratedAsset{asset(1, other, 0, 1), asset(2, other, 0, 1)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(l, nil, 1).Profile(ctx, target, snap)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	l.AssertNotCalled(t, "Holding", mock.Anything, mock.Anything, mock.Anything)
}

func TestProfile_SkipsTombstones(t *testing.T) {
	gone := asset(1, common.Address{}, 0, 1)

	l := ledgerMock.NewLedger(t)
	profile, err := NewResolver(l, nil, 0).Profile(context.Background(), target, &domain.Snapshot{Assets: []domain.DecoratedAsset{gone}})
	require.NoError(t, err)

	assert.Empty(t, profile.OwnedAssets)
	l.AssertNotCalled(t, "Holding", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_Dispatch(t *testing.T) {
	snap := &domain.Snapshot{Assets: []domain.DecoratedAsset{asset(2, other, 0, 1), asset(1, other, 0, 1)}}

	tests := []struct {
		name    string
		query   string
		kind    domain.ResolutionKind
		wantID  domain.AssetID
		wantErr error
	}{
		{name: "asset id", query: "2", kind: domain.ResolutionAsset, wantID: 2},
		{name: "padded id", query: " 1 ", kind: domain.ResolutionAsset, wantID: 1},
		{name: "checksummed address", query: target.Hex(), kind: domain.ResolutionAccount},
		{name: "lowercase address", query: "0x00000000000000000000000000000000000000aa", kind: domain.ResolutionAccount},
		{name: "unknown id", query: "99", wantErr: domain.ErrNotFound},
		{name: "negative id", query: "-1", wantErr: domain.ErrInvalidQuery},
		{name: "text", query: "loft", wantErr: domain.ErrInvalidQuery},
		{name: "short hex", query: "0x1234", wantErr: domain.ErrInvalidQuery},
		{name: "empty", query: "", wantErr: domain.ErrInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledgerMock.NewLedger(t)
			l.On("Holding", mock.Anything, mock.Anything, target).Return(holding(0), nil).Maybe()

			res, err := NewResolver(l, nil, 0).Resolve(context.Background(), tt.query, snap)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, res.Kind)
			if tt.kind == domain.ResolutionAsset {
				require.NotNil(t, res.Asset)
				assert.Equal(t, tt.wantID, res.Asset.ID)
			} else {
				require.NotNil(t, res.Profile)
				assert.Equal(t, target, res.Profile.Address)
			}
		})
	}
}

func TestPlatformStats(t *testing.T) {
	rented := asset(1, other, 100, 2)
	rented.Tenant = renter
	rented.MonthlyRent = big.NewInt(50)

	snap := &domain.Snapshot{Assets: []domain.DecoratedAsset{
		rented,
		asset(2, other, 0, 3),
		asset(3, target, 0, 1),
		asset(4, common.Address{}, 0, 1000),
	}}

	stats := PlatformStats(snap)
	assert.Equal(t, 3, stats.AssetCount)
	assert.Equal(t, int64(600), stats.TotalValueLocked.Int64())
	assert.Equal(t, int64(50), stats.TotalMonthlyRent.Int64())
	assert.Equal(t, 3, stats.UserCount)

	empty := PlatformStats(nil)
	assert.Equal(t, 0, empty.TotalValueLocked.Sign())
}
