package internal

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/events"
	"github.com/vadiminshakov/estate/internal/finance"
	"github.com/vadiminshakov/estate/internal/metrics"
	"github.com/vadiminshakov/estate/internal/services/executor"
	"github.com/vadiminshakov/estate/internal/services/explorer"
	"github.com/vadiminshakov/estate/internal/services/market"
	"github.com/vadiminshakov/estate/internal/services/portfolio"
	"github.com/vadiminshakov/estate/internal/services/snapshot"
)

// ErrNoSnapshot is returned by views queried before the first refresh succeeded.
var ErrNoSnapshot = errors.New("no snapshot published yet")

// Ledger is the full registry boundary used by a session.
type Ledger interface {
	snapshot.Ledger
	Account() common.Address

	CreateAsset(ctx context.Context, info domain.AssetInfo) (domain.Submission, error)
	StartFinancing(ctx context.Context, id domain.AssetID, sharePrice *big.Int, rightsDurationMonths, fundraisingDays uint64, deposit *big.Int) (domain.Submission, error)
	UpdateAssetInfo(ctx context.Context, id domain.AssetID, info domain.AssetInfo) (domain.Submission, error)
	LockFinancing(ctx context.Context, id domain.AssetID) (domain.Submission, error)
	BuyShares(ctx context.Context, id domain.AssetID, shares uint64, payment *big.Int) (domain.Submission, error)
	ListForRent(ctx context.Context, id domain.AssetID, monthlyRent *big.Int) (domain.Submission, error)
	RentAsset(ctx context.Context, id domain.AssetID, months uint64, payment *big.Int) (domain.Submission, error)
	RequestTermination(ctx context.Context, id domain.AssetID) (domain.Submission, error)
	ProcessSettlement(ctx context.Context, id domain.AssetID, returnDeposit bool) (domain.Submission, error)
	ForceTermination(ctx context.Context, id domain.AssetID) (domain.Submission, error)
	WithdrawEscrow(ctx context.Context, id domain.AssetID) (domain.Submission, error)
	WithdrawBalance(ctx context.Context, amount *big.Int) (domain.Submission, error)
	DestroyAsset(ctx context.Context, id domain.AssetID) (domain.Submission, error)
}

// SummaryStore persists the digest of every published snapshot.
type SummaryStore interface {
	Save(summary domain.SnapshotSummary) error
}

// SessionConfig holds the optional collaborators and limits of a session.
type SessionConfig struct {
	ReadConcurrency  int
	FinalityTimeout  time.Duration
	MaxDisplayReason int

	Journal   *executor.Journal
	History   SummaryStore
	Snapshots *events.SnapshotBroadcaster
	Outcomes  *events.OutcomeBroadcaster
}

// Session owns the published view of one account and is the only way to
// mutate the registry on its behalf.
type Session struct {
	ledger   Ledger
	account  common.Address
	builder  *snapshot.Builder
	executor *executor.Executor
	explorer *explorer.Resolver
	logger   *zap.Logger

	current  atomic.Pointer[domain.Snapshot]
	universe atomic.Pointer[domain.Snapshot]

	buildSeq     atomic.Uint64
	publishMu    sync.Mutex
	publishedSeq uint64
	version      uint64

	history   SummaryStore
	snapshots *events.SnapshotBroadcaster
	outcomes  *events.OutcomeBroadcaster
}

// NewSession wires the builder, executor and explorer around ledger.
// Nothing is read until the first Refresh.
func NewSession(ledger Ledger, logger *zap.Logger, cfg SessionConfig) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}

	account := ledger.Account()
	s := &Session{
		ledger:    ledger,
		account:   account,
		logger:    logger.With(zap.String("account", account.Hex())),
		history:   cfg.History,
		snapshots: cfg.Snapshots,
		outcomes:  cfg.Outcomes,
	}

	s.builder = snapshot.NewBuilder(ledger, s.logger, snapshot.WithConcurrency(cfg.ReadConcurrency))
	s.explorer = explorer.NewResolver(ledger, s.logger, cfg.ReadConcurrency)

	opts := []executor.Option{
		executor.WithFinalityTimeout(cfg.FinalityTimeout),
		executor.WithReporter(s.report),
	}
	if cfg.MaxDisplayReason > 0 {
		opts = append(opts, executor.WithMaxReason(cfg.MaxDisplayReason))
	}
	if cfg.Journal != nil {
		opts = append(opts, executor.WithJournal(cfg.Journal))
	}
	s.executor = executor.New(s, s.logger, opts...)

	return s
}

// Account returns the connected account, or the zero address for a read-only session.
func (s *Session) Account() common.Address {
	return s.account
}

// Current returns the last published snapshot, or nil before the first refresh.
func (s *Session) Current() *domain.Snapshot {
	return s.current.Load()
}

// Universe returns the last published registry-wide snapshot. It carries
// every readable asset regardless of the connected account and backs the
// explorer views.
func (s *Session) Universe() *domain.Snapshot {
	return s.universe.Load()
}

// Refresh builds a new snapshot and publishes it with the next version.
// A connected session also builds the anonymous registry-wide snapshot in
// the same round, so a holding that cannot be read for the account never
// hides an asset from the explorer. On failure the previous snapshots stay
// published. A build that started before an already published one is
// discarded.
func (s *Session) Refresh(ctx context.Context) error {
	seq := s.buildSeq.Add(1)

	snap, universe, err := s.build(ctx)
	if err != nil {
		s.logger.Warn("snapshot refresh failed, keeping previous snapshot", zap.Error(err))
		return errors.Wrap(err, "refresh snapshot")
	}

	published, ok := s.publish(seq, snap, universe)
	if !ok {
		s.logger.Debug("discarding stale snapshot build", zap.Uint64("build", seq))
		return nil
	}

	metrics.SnapshotVersion.Set(float64(published.Version))
	metrics.SnapshotAssets.Set(float64(len(published.Assets)))

	if s.history != nil {
		if err := s.history.Save(published.Summary()); err != nil {
			s.logger.Warn("failed to persist snapshot summary", zap.Uint64("version", published.Version), zap.Error(err))
		}
	}
	if s.snapshots != nil {
		s.snapshots.Publish(published)
	}

	s.logger.Info("snapshot published",
		zap.Uint64("version", published.Version),
		zap.Int("assets", len(published.Assets)),
		zap.Int("failures", len(published.Failures)))

	return nil
}

// build reads the account snapshot and, for a connected session, the
// anonymous one. A read-only session returns the same snapshot twice.
func (s *Session) build(ctx context.Context) (*domain.Snapshot, *domain.Snapshot, error) {
	if s.account == (common.Address{}) {
		snap, err := s.builder.Build(ctx, s.account)
		return snap, snap, err
	}

	var snap, universe *domain.Snapshot
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.builder.Build(gCtx, s.account)
		return err
	})
	g.Go(func() error {
		var err error
		universe, err = s.builder.Build(gCtx, common.Address{})
		return errors.Wrap(err, "registry-wide snapshot")
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return snap, universe, nil
}

func (s *Session) publish(seq uint64, snap, universe *domain.Snapshot) (*domain.Snapshot, bool) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if seq <= s.publishedSeq {
		return nil, false
	}
	s.publishedSeq = seq
	s.version++

	published := snap.WithVersion(s.version)
	all := published
	if universe != snap {
		all = universe.WithVersion(s.version)
	}
	s.universe.Store(all)
	s.current.Store(published)
	return published, true
}

// Watch refreshes every interval until ctx is done.
func (s *Session) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// failures are logged by Refresh and the previous snapshot stays
			_ = s.Refresh(ctx)
		}
	}
}

// Portfolio partitions the current snapshot by role.
func (s *Session) Portfolio() (domain.Portfolio, error) {
	snap := s.Current()
	if snap == nil {
		return domain.Portfolio{}, ErrNoSnapshot
	}
	return portfolio.Aggregate(snap)
}

// Resolve answers an explorer query over the registry-wide snapshot.
func (s *Session) Resolve(ctx context.Context, query string) (domain.Resolution, error) {
	snap := s.Universe()
	if snap == nil {
		return domain.Resolution{}, ErrNoSnapshot
	}
	return s.explorer.Resolve(ctx, query, snap)
}

// PlatformStats returns registry-wide totals.
func (s *Session) PlatformStats() (domain.PlatformStats, error) {
	snap := s.Universe()
	if snap == nil {
		return domain.PlatformStats{}, ErrNoSnapshot
	}
	return explorer.PlatformStats(snap), nil
}

// Investments lists the assets open for share purchases.
func (s *Session) Investments() ([]domain.DecoratedAsset, market.InvestmentStats, error) {
	snap := s.Current()
	if snap == nil {
		return nil, market.InvestmentStats{}, ErrNoSnapshot
	}
	list, stats := market.Investments(snap)
	return list, stats, nil
}

// Rentals lists the assets open for rent matching q.
func (s *Session) Rentals(q market.RentalQuery) ([]domain.DecoratedAsset, market.RentalStats, error) {
	snap := s.Current()
	if snap == nil {
		return nil, market.RentalStats{}, ErrNoSnapshot
	}
	list, stats := market.Rentals(snap, q)
	return list, stats, nil
}

// Pending returns the keys with a mutation in flight.
func (s *Session) Pending() []domain.MutationKey {
	return s.executor.Pending()
}

// CreateAsset lists a new asset owned by the session account.
func (s *Session) CreateAsset(ctx context.Context, info domain.AssetInfo) domain.Outcome {
	key, kind := domain.ListingKey(), domain.MutationCreateAsset
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}
	if err := info.Validate(); err != nil {
		return s.reject(key, kind, errors.Wrap(err, "all descriptive fields are required"))
	}

	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return s.ledger.CreateAsset(ctx, info)
	})
}

// StartFinancing opens fundraising for id. The share price and the owner
// deposit are derived from the monthly valuation and the rights duration.
func (s *Session) StartFinancing(ctx context.Context, id domain.AssetID, monthlyValuation *big.Int, rightsDurationMonths, fundraisingDays uint64) domain.Outcome {
	key, kind := domain.AssetKey(id), domain.MutationStartFinancing
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}
	if !positive(monthlyValuation) || rightsDurationMonths == 0 || fundraisingDays == 0 {
		return s.reject(key, kind, errors.Wrap(domain.ErrInvalidInput, "valuation, duration and fundraising days must be positive"))
	}

	price := finance.SharePrice(monthlyValuation, rightsDurationMonths)
	if price.Sign() == 0 {
		return s.reject(key, kind, errors.Wrap(domain.ErrInvalidInput, "valuation too small for a non-zero share price"))
	}
	deposit := finance.RequiredDeposit(monthlyValuation, rightsDurationMonths)

	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return s.ledger.StartFinancing(ctx, id, price, rightsDurationMonths, fundraisingDays, deposit)
	})
}

// UpdateAssetInfo replaces the descriptive fields of id.
func (s *Session) UpdateAssetInfo(ctx context.Context, id domain.AssetID, info domain.AssetInfo) domain.Outcome {
	key, kind := domain.AssetKey(id), domain.MutationUpdateAssetInfo
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}
	if err := info.Validate(); err != nil {
		return s.reject(key, kind, errors.Wrap(err, "all descriptive fields are required"))
	}

	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return s.ledger.UpdateAssetInfo(ctx, id, info)
	})
}

// LockFinancing closes fundraising for id.
func (s *Session) LockFinancing(ctx context.Context, id domain.AssetID) domain.Outcome {
	return s.assetCall(ctx, id, domain.MutationLockFinancing, s.ledger.LockFinancing)
}

// BuyShares buys shares of id at its current share price. The share count
// must be between one and the shares still available.
func (s *Session) BuyShares(ctx context.Context, id domain.AssetID, shares uint64) domain.Outcome {
	key, kind := domain.AssetKey(id), domain.MutationBuyShares
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}
	asset, err := s.asset(id)
	if err != nil {
		return s.reject(key, kind, err)
	}
	remaining := asset.Figures.RemainingShares
	if shares == 0 || shares > remaining {
		return s.reject(key, kind, errors.Wrapf(domain.ErrInvalidInput, "share count must be between 1 and %d", remaining))
	}

	payment := finance.SharesCost(shares, asset.SharePrice)
	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return s.ledger.BuyShares(ctx, id, shares, payment)
	})
}

// ListForRent offers id for rent at monthlyRent.
func (s *Session) ListForRent(ctx context.Context, id domain.AssetID, monthlyRent *big.Int) domain.Outcome {
	key, kind := domain.AssetKey(id), domain.MutationListForRent
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}
	if !positive(monthlyRent) {
		return s.reject(key, kind, errors.Wrap(domain.ErrInvalidInput, "monthly rent must be positive"))
	}

	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return s.ledger.ListForRent(ctx, id, monthlyRent)
	})
}

// RentAsset rents id for months, paying the rent and the tenant deposit.
func (s *Session) RentAsset(ctx context.Context, id domain.AssetID, months uint64) domain.Outcome {
	key, kind := domain.AssetKey(id), domain.MutationRentAsset
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}
	if months == 0 {
		return s.reject(key, kind, errors.Wrap(domain.ErrInvalidInput, "rent period must be at least one month"))
	}
	asset, err := s.asset(id)
	if err != nil {
		return s.reject(key, kind, err)
	}
	if !positive(asset.MonthlyRent) {
		return s.reject(key, kind, errors.Wrapf(domain.ErrInvalidInput, "asset %s has no rent set", id))
	}

	payment := finance.RentPayment(asset.MonthlyRent, months)
	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return s.ledger.RentAsset(ctx, id, months, payment)
	})
}

// RequestTermination asks to end the lease of id early.
func (s *Session) RequestTermination(ctx context.Context, id domain.AssetID) domain.Outcome {
	return s.assetCall(ctx, id, domain.MutationRequestTermination, s.ledger.RequestTermination)
}

// ProcessSettlement settles a terminated lease of id, returning the tenant
// deposit or keeping it.
func (s *Session) ProcessSettlement(ctx context.Context, id domain.AssetID, returnDeposit bool) domain.Outcome {
	return s.assetCall(ctx, id, domain.MutationProcessSettlement, func(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
		return s.ledger.ProcessSettlement(ctx, id, returnDeposit)
	})
}

// ForceTermination ends an overdue lease of id.
func (s *Session) ForceTermination(ctx context.Context, id domain.AssetID) domain.Outcome {
	return s.assetCall(ctx, id, domain.MutationForceTermination, s.ledger.ForceTermination)
}

// WithdrawEscrow returns the owner deposit of id.
func (s *Session) WithdrawEscrow(ctx context.Context, id domain.AssetID) domain.Outcome {
	return s.assetCall(ctx, id, domain.MutationWithdrawEscrow, s.ledger.WithdrawEscrow)
}

// DestroyAsset removes id from the registry.
func (s *Session) DestroyAsset(ctx context.Context, id domain.AssetID) domain.Outcome {
	return s.assetCall(ctx, id, domain.MutationDestroyAsset, s.ledger.DestroyAsset)
}

// WithdrawBalance moves amount from the registry balance to the account.
func (s *Session) WithdrawBalance(ctx context.Context, amount *big.Int) domain.Outcome {
	key, kind := domain.AccountKey(), domain.MutationWithdrawBalance
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}
	if !positive(amount) {
		return s.reject(key, kind, errors.Wrap(domain.ErrInvalidInput, "amount must be positive"))
	}
	if snap := s.Current(); snap != nil && snap.Balance != nil && amount.Cmp(snap.Balance) > 0 {
		return s.reject(key, kind, errors.Wrap(domain.ErrInvalidInput, "amount exceeds withdrawable balance"))
	}

	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return s.ledger.WithdrawBalance(ctx, amount)
	})
}

func (s *Session) assetCall(ctx context.Context, id domain.AssetID, kind domain.MutationKind, call func(context.Context, domain.AssetID) (domain.Submission, error)) domain.Outcome {
	key := domain.AssetKey(id)
	if err := s.requireAccount(); err != nil {
		return s.reject(key, kind, err)
	}

	return s.executor.Execute(ctx, key, kind, func(ctx context.Context) (domain.Submission, error) {
		return call(ctx, id)
	})
}

func (s *Session) requireAccount() error {
	if s.account == (common.Address{}) {
		return domain.ErrNotConnected
	}
	return nil
}

func (s *Session) asset(id domain.AssetID) (domain.DecoratedAsset, error) {
	asset, ok := s.Current().Find(id)
	if !ok {
		return domain.DecoratedAsset{}, errors.Wrapf(domain.ErrNotFound, "asset %s", id)
	}
	return asset, nil
}

// reject reports an action refused before the ledger was contacted.
func (s *Session) reject(key domain.MutationKey, kind domain.MutationKind, err error) domain.Outcome {
	out := domain.Outcome{Key: key, Kind: kind, Reason: err.Error(), Err: err}
	s.logger.Info("mutation refused",
		zap.String("key", key.String()),
		zap.String("kind", string(kind)),
		zap.Error(err))
	s.report(out)
	return out
}

func (s *Session) report(out domain.Outcome) {
	if s.outcomes != nil {
		s.outcomes.Publish(out)
	}
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
