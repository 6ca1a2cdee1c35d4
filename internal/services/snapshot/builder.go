// Package snapshot assembles immutable account-scoped views of the registry.
package snapshot

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/finance"
	"github.com/vadiminshakov/estate/internal/metrics"
)

const defaultConcurrency = 8

// Ledger is the read side of the registry.
type Ledger interface {
	AssetIDs(ctx context.Context) ([]domain.AssetID, error)
	Asset(ctx context.Context, id domain.AssetID) (domain.AssetRecord, error)
	Holding(ctx context.Context, id domain.AssetID, addr common.Address) (domain.Holding, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Builder reads the whole registry and assembles a Snapshot for one account.
type Builder struct {
	ledger      Ledger
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithConcurrency bounds the number of ledger reads in flight.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithClock sets the time source used for BuiltAt.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a snapshot builder.
func NewBuilder(ledger Ledger, logger *zap.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Builder{
		ledger:      ledger,
		logger:      logger,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// recordResult is the outcome of reading one asset: a decorated asset,
// a tombstone, or a failure.
type recordResult struct {
	asset      domain.DecoratedAsset
	tombstoned bool
	failure    *domain.RecordFailure
}

// Build reads every asset and returns a complete snapshot for account.
// The zero account builds an anonymous view without holdings or balance.
//
// Build fails only when the id enumeration fails or ctx ends. Unreadable or
// inconsistent records are left out and listed in Snapshot.Failures.
func (b *Builder) Build(ctx context.Context, account common.Address) (*domain.Snapshot, error) {
	start := time.Now()
	defer func() {
		metrics.SnapshotBuildLatency.Observe(time.Since(start).Seconds())
	}()

	ids, err := b.ledger.AssetIDs(ctx)
	if err != nil {
		metrics.SnapshotBuildsTotal.WithLabelValues("enumeration_failed").Inc()
		return nil, domain.EnumerationFailed(err)
	}

	connected := account != (common.Address{})
	results := make([]recordResult, len(ids))
	balance := new(big.Int)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	if connected {
		g.Go(func() error {
			bal, err := b.ledger.Balance(gCtx, account)
			if err != nil {
				return errors.Wrapf(err, "read balance of %s", account.Hex())
			}
			if bal != nil {
				balance = bal
			}
			return nil
		})
	}

	for i, id := range ids {
		g.Go(func() error {
			results[i] = b.fetch(gCtx, id, account)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.SnapshotBuildsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		metrics.SnapshotBuildsTotal.WithLabelValues("canceled").Inc()
		return nil, errors.Wrap(err, "build snapshot")
	}

	snap := assemble(results, account, balance)
	snap.BuiltAt = b.now()

	for _, f := range snap.Failures {
		if errors.Is(f.Err, domain.ErrDataIntegrity) {
			metrics.SnapshotRecordsSkipped.WithLabelValues("integrity").Inc()
			b.logger.Error("asset violates registry invariants, excluded from snapshot",
				zap.Uint64("asset_id", uint64(f.ID)),
				zap.Error(f.Err))
			continue
		}
		metrics.SnapshotRecordsSkipped.WithLabelValues("unavailable").Inc()
		b.logger.Warn("asset unavailable, excluded from snapshot",
			zap.Uint64("asset_id", uint64(f.ID)),
			zap.Error(f.Err))
	}

	metrics.SnapshotBuildsTotal.WithLabelValues("ok").Inc()
	b.logger.Debug("snapshot built",
		zap.String("account", account.Hex()),
		zap.Int("enumerated", len(ids)),
		zap.Int("assets", len(snap.Assets)),
		zap.Int("failures", len(snap.Failures)),
		zap.Duration("took", time.Since(start)))

	return snap, nil
}

func (b *Builder) fetch(ctx context.Context, id domain.AssetID, account common.Address) recordResult {
	rec, err := b.ledger.Asset(ctx, id)
	if err != nil {
		return failed(id, domain.RecordUnavailable(id, "detail", err))
	}
	rec.ID = id
	if rec.IsTombstoned() {
		return recordResult{tombstoned: true}
	}

	holding := domain.EmptyHolding()
	if account != (common.Address{}) {
		holding, err = b.ledger.Holding(ctx, id, account)
		if err != nil {
			return failed(id, domain.RecordUnavailable(id, "holding", err))
		}
		if holding.RentWithdrawn == nil {
			holding.RentWithdrawn = new(big.Int)
		}
	}

	figures, err := finance.Derive(rec, holding)
	if err != nil {
		return failed(id, err)
	}

	return recordResult{asset: domain.DecoratedAsset{
		AssetRecord: rec,
		Holding:     holding,
		Roles:       domain.RolesOf(rec, holding, account),
		Figures:     figures,
	}}
}

func failed(id domain.AssetID, err error) recordResult {
	return recordResult{failure: &domain.RecordFailure{ID: id, Reason: err.Error(), Err: err}}
}

// assemble folds per-record results, in enumeration order, into a snapshot
// ordered most recent first.
func assemble(results []recordResult, account common.Address, balance *big.Int) *domain.Snapshot {
	snap := &domain.Snapshot{
		Account:       account,
		Assets:        make([]domain.DecoratedAsset, 0, len(results)),
		Balance:       balance,
		LockedDeposit: new(big.Int),
	}

	for _, r := range results {
		switch {
		case r.failure != nil:
			snap.Failures = append(snap.Failures, *r.failure)
		case r.tombstoned:
		default:
			addLockedDeposit(snap.LockedDeposit, r.asset)
			snap.Assets = append(snap.Assets, r.asset)
		}
	}

	for i, j := 0, len(snap.Assets)-1; i < j; i, j = i+1, j-1 {
		snap.Assets[i], snap.Assets[j] = snap.Assets[j], snap.Assets[i]
	}

	return snap
}

func addLockedDeposit(total *big.Int, a domain.DecoratedAsset) {
	if a.Roles.IsOwner && a.OwnerDeposit != nil && a.OwnerDeposit.Sign() > 0 {
		total.Add(total, a.OwnerDeposit)
	}
	if a.Roles.IsTenant && a.TenantDeposit != nil && a.TenantDeposit.Sign() > 0 {
		total.Add(total, a.TenantDeposit)
	}
}
