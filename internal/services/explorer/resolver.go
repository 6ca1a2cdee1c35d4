// Package explorer answers free-form registry queries: an address yields the
// cross-asset profile of that account, a number yields one asset.
package explorer

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/finance"
	"github.com/vadiminshakov/estate/internal/metrics"
)

const defaultConcurrency = 8

// HoldingReader reads per-account positions from the registry.
type HoldingReader interface {
	Holding(ctx context.Context, id domain.AssetID, addr common.Address) (domain.Holding, error)
}

// Resolver resolves explorer queries against a published registry-wide
// snapshot, one built for the zero account.
type Resolver struct {
	ledger      HoldingReader
	logger      *zap.Logger
	concurrency int
}

// NewResolver creates a resolver. concurrency bounds the holding reads of a
// profile scan; values below one use the default.
func NewResolver(ledger HoldingReader, logger *zap.Logger, concurrency int) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Resolver{ledger: ledger, logger: logger, concurrency: concurrency}
}

// Resolve dispatches query. Addresses are tried first, then decimal ids.
// Anything else fails with ErrInvalidQuery.
func (r *Resolver) Resolve(ctx context.Context, query string, snap *domain.Snapshot) (domain.Resolution, error) {
	query = strings.TrimSpace(query)

	if common.IsHexAddress(query) {
		profile, err := r.Profile(ctx, common.HexToAddress(query), snap)
		if err != nil {
			return domain.Resolution{}, err
		}
		metrics.ExplorerQueriesTotal.WithLabelValues(string(domain.ResolutionAccount)).Inc()
		return domain.Resolution{Kind: domain.ResolutionAccount, Profile: profile}, nil
	}

	id, err := strconv.ParseUint(query, 10, 64)
	if err != nil {
		metrics.ExplorerQueriesTotal.WithLabelValues("invalid").Inc()
		return domain.Resolution{}, errors.Wrapf(domain.ErrInvalidQuery, "%q", query)
	}

	asset, ok := snap.Find(domain.AssetID(id))
	if !ok {
		metrics.ExplorerQueriesTotal.WithLabelValues("not_found").Inc()
		return domain.Resolution{}, errors.Wrapf(domain.ErrNotFound, "asset %d", id)
	}

	metrics.ExplorerQueriesTotal.WithLabelValues(string(domain.ResolutionAsset)).Inc()
	return domain.Resolution{Kind: domain.ResolutionAsset, Asset: &asset}, nil
}

type holdingResult struct {
	holding domain.Holding
	err     error
}

// Profile scans every asset of snap on behalf of addr. Holdings are read
// fresh from the registry; an asset whose holding cannot be read is left out
// of the investment tally and listed in Skipped.
func (r *Resolver) Profile(ctx context.Context, addr common.Address, snap *domain.Snapshot) (*domain.AccountProfile, error) {
	if snap == nil {
		return nil, errors.New("no snapshot published")
	}

	assets := make([]domain.DecoratedAsset, 0, len(snap.Assets))
	for _, a := range snap.Assets {
		if !a.IsTombstoned() {
			assets = append(assets, a)
		}
	}

	holdings := make([]holdingResult, len(assets))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, a := range assets {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			// a failed holding read only drops the asset from the investment tally
			h, err := r.ledger.Holding(gCtx, a.ID, addr)
			holdings[i] = holdingResult{holding: h, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "profile scan")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "profile scan")
	}

	profile := &domain.AccountProfile{
		Address:       addr,
		OwnedAssets:   []domain.DecoratedAsset{},
		Investments:   []domain.Investment{},
		Rentals:       []domain.DecoratedAsset{},
		NetWorth:      new(big.Int),
		MonthlyIncome: new(big.Int),
	}

	for i, a := range assets {
		h := holdings[i].holding
		if err := holdings[i].err; err != nil {
			err = domain.RecordUnavailable(a.ID, "holding", err)
			r.logger.Warn("holding unavailable, asset left out of profile investments",
				zap.Uint64("asset_id", uint64(a.ID)),
				zap.String("address", addr.Hex()),
				zap.Error(err))
			profile.Skipped = append(profile.Skipped, domain.RecordFailure{ID: a.ID, Reason: err.Error(), Err: err})
			h = domain.EmptyHolding()
		}
		if h.RentWithdrawn == nil {
			h.RentWithdrawn = new(big.Int)
		}

		view, err := decorate(a.AssetRecord, h, addr)
		if err != nil {
			r.logger.Error("asset violates registry invariants, left out of profile",
				zap.Uint64("asset_id", uint64(a.ID)),
				zap.Error(err))
			profile.Skipped = append(profile.Skipped, domain.RecordFailure{ID: a.ID, Reason: err.Error(), Err: err})
			continue
		}

		if view.Roles.IsOwner {
			retained, err := finance.RetainedValue(view.AssetRecord)
			if err == nil {
				profile.NetWorth.Add(profile.NetWorth, retained)
			}
			profile.OwnedAssets = append(profile.OwnedAssets, view)
		}

		if view.Roles.IsInvestor {
			profile.Investments = append(profile.Investments, domain.Investment{Asset: view, SharesOwned: h.SharesOwned})
			profile.NetWorth.Add(profile.NetWorth, finance.SharesCost(h.SharesOwned, view.SharePrice))
			if view.Status == domain.StatusRented {
				profile.MonthlyIncome.Add(profile.MonthlyIncome, finance.ProRataMonthlyIncome(view.MonthlyRent, h.SharesOwned))
			}
		}

		if view.HasTenant() && view.Roles.IsTenant {
			profile.Rentals = append(profile.Rentals, view)
		}
	}

	return profile, nil
}

// decorate views rec from the perspective of addr.
func decorate(rec domain.AssetRecord, h domain.Holding, addr common.Address) (domain.DecoratedAsset, error) {
	figures, err := finance.Derive(rec, h)
	if err != nil {
		return domain.DecoratedAsset{}, err
	}
	return domain.DecoratedAsset{
		AssetRecord: rec,
		Holding:     h,
		Roles:       domain.RolesOf(rec, h, addr),
		Figures:     figures,
	}, nil
}

// PlatformStats totals the live assets of snap.
func PlatformStats(snap *domain.Snapshot) domain.PlatformStats {
	stats := domain.PlatformStats{
		TotalValueLocked: new(big.Int),
		TotalMonthlyRent: new(big.Int),
	}
	if snap == nil {
		return stats
	}

	users := make(map[common.Address]struct{})
	for _, a := range snap.Assets {
		if a.IsTombstoned() {
			continue
		}
		stats.AssetCount++
		stats.TotalValueLocked.Add(stats.TotalValueLocked, finance.SharesCost(domain.MaxShares, a.SharePrice))
		if a.MonthlyRent != nil {
			stats.TotalMonthlyRent.Add(stats.TotalMonthlyRent, a.MonthlyRent)
		}
		users[a.Owner] = struct{}{}
		if a.HasTenant() {
			users[a.Tenant] = struct{}{}
		}
	}
	stats.UserCount = len(users)

	return stats
}
