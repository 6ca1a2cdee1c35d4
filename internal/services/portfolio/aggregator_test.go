package portfolio

import (
	"math/big"
	"testing"
	"testing/quick"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/internal/domain"
)

var (
	me    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func decorated(id domain.AssetID, owner, tenant common.Address, shares uint64) domain.DecoratedAsset {
	rec := domain.AssetRecord{ID: id, Owner: owner, Tenant: tenant}
	h := domain.Holding{SharesOwned: shares, RentWithdrawn: new(big.Int)}
	return domain.DecoratedAsset{AssetRecord: rec, Holding: h, Roles: domain.RolesOf(rec, h, me)}
}

func assetIDs(assets []domain.DecoratedAsset) []domain.AssetID {
	out := []domain.AssetID{}
	for _, a := range assets {
		out = append(out, a.ID)
	}
	return out
}

func TestAggregate(t *testing.T) {
	snap := &domain.Snapshot{
		Account: me,
		Assets: []domain.DecoratedAsset{
			decorated(5, me, common.Address{}, 20),
			decorated(4, other, me, 0),
			decorated(3, other, common.Address{}, 10),
			decorated(2, other, me, 5),
			decorated(1, other, common.Address{}, 0),
		},
		Balance:       big.NewInt(9),
		LockedDeposit: big.NewInt(11),
	}

	p, err := Aggregate(snap)
	require.NoError(t, err)

	assert.Equal(t, []domain.AssetID{5}, assetIDs(p.OwnerAssets))
	assert.Equal(t, []domain.AssetID{3, 2}, assetIDs(p.InvestorAssets))
	assert.Equal(t, []domain.AssetID{4, 2}, assetIDs(p.TenantAssets))
	assert.Equal(t, int64(9), p.WithdrawableBalance.Int64())
	assert.Equal(t, int64(11), p.TotalLockedDeposit.Int64())

	p.TotalLockedDeposit.SetInt64(0)
	assert.Equal(t, int64(11), snap.LockedDeposit.Int64(), "snapshot amounts are not aliased")
}

func TestAggregate_RequiresAccount(t *testing.T) {
	_, err := Aggregate(&domain.Snapshot{})
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = Aggregate(nil)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestAggregate_OwnerNeverInvestor(t *testing.T) {
	property := func(ownedByMe bool, shares uint8) bool {
		owner := other
		if ownedByMe {
			owner = me
		}
		a := decorated(1, owner, common.Address{}, uint64(shares%101))
		p, err := Aggregate(&domain.Snapshot{Account: me, Assets: []domain.DecoratedAsset{a}})
		if err != nil {
			return false
		}
		return !(len(p.OwnerAssets) == 1 && len(p.InvestorAssets) == 1)
	}

	require.NoError(t, quick.Check(property, nil))
}
