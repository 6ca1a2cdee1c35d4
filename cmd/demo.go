package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/estate/internal"
	"github.com/vadiminshakov/estate/internal/clients"
	"github.com/vadiminshakov/estate/internal/domain"
)

var (
	demoLandlord = common.HexToAddress("0x1000000000000000000000000000000000000001")
	demoInvestor = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// seedDemo fills an empty simulated registry with a few assets in different
// lifecycle stages. Every step goes through a session, like a real user would.
func seedDemo(ctx context.Context, registry *clients.SimulateRegistry, landlord *internal.Session, logger *zap.Logger) error {
	ids, err := registry.Connect(common.Address{}).AssetIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return nil
	}

	investor := internal.NewSession(registry.Connect(demoInvestor), logger, internal.SessionConfig{})

	steps := []struct {
		name string
		run  func() domain.Outcome
	}{
		{"list loft", func() domain.Outcome {
			return landlord.CreateAsset(ctx, domain.AssetInfo{Name: "Riverside Loft", PhysicalAddress: "12 Quay st", Category: "flat", Area: 85, OwnerPhone: "+15550100"})
		}},
		{"finance loft", func() domain.Outcome { return landlord.StartFinancing(ctx, 1, ether(2), 12, 30) }},
		{"list house", func() domain.Outcome {
			return landlord.CreateAsset(ctx, domain.AssetInfo{Name: "Harbour House", PhysicalAddress: "3 Pier rd", Category: "house", Area: 240, OwnerPhone: "+15550100"})
		}},
		{"finance house", func() domain.Outcome { return landlord.StartFinancing(ctx, 2, ether(5), 24, 60) }},
		{"refresh investor", func() domain.Outcome {
			if err := investor.Refresh(ctx); err != nil {
				return domain.Outcome{Err: err, Reason: err.Error()}
			}
			return domain.Outcome{Success: true}
		}},
		{"buy loft shares", func() domain.Outcome { return investor.BuyShares(ctx, 1, 40) }},
		{"buy house shares", func() domain.Outcome { return investor.BuyShares(ctx, 2, 25) }},
		{"lock house", func() domain.Outcome { return landlord.LockFinancing(ctx, 2) }},
		{"list house for rent", func() domain.Outcome { return landlord.ListForRent(ctx, 2, ether(12)) }},
		{"list studio", func() domain.Outcome {
			return landlord.CreateAsset(ctx, domain.AssetInfo{Name: "Garden Studio", PhysicalAddress: "7 Elm ln", Category: "studio", Area: 32, OwnerPhone: "+15550100"})
		}},
	}

	for _, step := range steps {
		if out := step.run(); !out.Success {
			return errors.Wrapf(out.Err, "demo step %q", step.name)
		}
	}

	logger.Info("seeded demo registry", zap.Int("steps", len(steps)))
	return nil
}
