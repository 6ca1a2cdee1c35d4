// Command estate shows the portfolio of an account in a fractional
// real-estate registry and serves a read-only web view of it.
//
// Usage:
//
//	estate --config config.yaml
//	estate --setup
//	estate --platform evm --rpc http://127.0.0.1:8545 --contract 0x...
//
// Environment variables:
//
//	ESTATE_PRIVATE_KEY         signing key of the account (optional, read-only view without it)
//	ESTATE_SIMULATE_STATE_DIR  state directory of the simulated registry
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/estate/config"
	"github.com/vadiminshakov/estate/internal"
	"github.com/vadiminshakov/estate/internal/clients"
	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/events"
	"github.com/vadiminshakov/estate/internal/services/executor"
	"github.com/vadiminshakov/estate/internal/setup"
	"github.com/vadiminshakov/estate/internal/storage/snapshots"
	"github.com/vadiminshakov/estate/internal/web"
)

const broadcastBuffer = 16

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Setup {
		path, err := setup.RunTUI()
		if err != nil {
			log.Fatal(err)
		}
		if cfg, err = config.Load(path); err != nil {
			log.Fatal(err)
		}
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Fatal("estate stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Platform == config.PlatformSimulate && cfg.Account == (common.Address{}) {
		cfg.Account = demoLandlord
	}

	ledger, err := internal.NewLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}

	journal, err := executor.OpenJournal(cfg.JournalDir, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	for _, entry := range journal.Unresolved() {
		logger.Warn("mutation from a previous run never reached finality, check the registry before retrying",
			zap.String("id", entry.ID),
			zap.String("key", entry.Key),
			zap.String("kind", string(entry.Kind)),
			zap.String("tx", entry.TxID))
	}

	history, err := snapshots.NewWALStore(cfg.SnapshotDir)
	if err != nil {
		return err
	}
	defer history.Close()

	if last, ok, err := history.Latest(ledger.Account()); err != nil {
		logger.Warn("failed to read snapshot history", zap.Error(err))
	} else if ok {
		logger.Info("last snapshot of a previous run",
			zap.Time("built_at", last.Summary.Timestamp),
			zap.Int("assets", last.Summary.Assets),
			zap.String("balance", last.Summary.Balance),
			zap.String("locked_deposit", last.Summary.LockedDeposit))
	}

	snaps := events.NewBroadcaster[*domain.Snapshot](broadcastBuffer)
	outcomes := events.NewBroadcaster[domain.Outcome](broadcastBuffer)

	session := internal.NewSession(ledger, logger, internal.SessionConfig{
		ReadConcurrency:  cfg.ReadConcurrency,
		FinalityTimeout:  cfg.FinalityTimeout,
		MaxDisplayReason: cfg.MaxDisplayReason,
		Journal:          journal,
		History:          history,
		Snapshots:        snaps,
		Outcomes:         outcomes,
	})

	if sim, ok := ledger.(*clients.SimulateClient); ok {
		if err := seedDemo(ctx, sim.Registry(), session, logger); err != nil {
			logger.Warn("failed to seed demo registry", zap.Error(err))
		}
	}

	if err := session.Refresh(ctx); err != nil {
		logger.Error("initial snapshot failed, will retry on the next refresh", zap.Error(err))
	} else {
		fmt.Println(renderReport(session))
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return session.Watch(gCtx, cfg.RefreshInterval)
	})

	g.Go(func() error {
		ch := outcomes.Subscribe()
		defer outcomes.Unsubscribe(ch)
		for {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case out := <-ch:
				fmt.Println(renderOutcome(out))
			}
		}
	})

	g.Go(func() error {
		ch := snaps.Subscribe()
		defer snaps.Unsubscribe(ch)
		for {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case snap := <-ch:
				logger.Debug("snapshot version observed", zap.Uint64("version", snap.Version))
			}
		}
	})

	if cfg.WebAddr != "" {
		srv := web.NewServer(cfg.WebAddr, session, history, journal, logger)
		g.Go(func() error {
			if len(cfg.TLSDomains) > 0 {
				return srv.StartWithAutoTLS(gCtx, cfg.TLSDomains, cfg.TLSCacheDir)
			}
			return srv.Start(gCtx)
		})
	}

	return g.Wait()
}
