// Package portfolio partitions a snapshot by the roles of its account.
package portfolio

import (
	"math/big"

	"github.com/vadiminshakov/estate/internal/domain"
)

// Aggregate splits the snapshot assets into owned, invested and rented
// groups. It performs no ledger access. An asset owned by the account never
// appears among its investments, whatever shares the owner holds.
func Aggregate(snap *domain.Snapshot) (domain.Portfolio, error) {
	if !snap.Connected() {
		return domain.Portfolio{}, domain.ErrNotConnected
	}

	p := domain.Portfolio{
		Account:             snap.Account,
		OwnerAssets:         []domain.DecoratedAsset{},
		InvestorAssets:      []domain.DecoratedAsset{},
		TenantAssets:        []domain.DecoratedAsset{},
		TotalLockedDeposit:  copyAmount(snap.LockedDeposit),
		WithdrawableBalance: copyAmount(snap.Balance),
	}

	for _, a := range snap.Assets {
		if a.Roles.IsOwner {
			p.OwnerAssets = append(p.OwnerAssets, a)
		}
		if a.Holding.SharesOwned > 0 && !a.Roles.IsOwner {
			p.InvestorAssets = append(p.InvestorAssets, a)
		}
		if a.Roles.IsTenant {
			p.TenantAssets = append(p.TenantAssets, a)
		}
	}

	return p, nil
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
