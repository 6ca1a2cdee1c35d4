package internal

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/estate/config"
	"github.com/vadiminshakov/estate/internal/clients"
	"github.com/vadiminshakov/estate/internal/storage/simstate"
	"github.com/vadiminshakov/estate/pkg/retrier"
)

// readBurst is the token bucket size used when reads are rate limited.
const readBurst = 4

// NewLedger connects to the registry selected by conf.Platform.
// This is the single point of truth for dispatching to platform-specific clients.
func NewLedger(ctx context.Context, conf config.Config, logger *zap.Logger) (Ledger, error) {
	switch conf.Platform {
	case config.PlatformEVM:
		return dialEVM(ctx, conf, logger)
	case config.PlatformSimulate:
		return newSimulateLedger(conf, logger)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", conf.Platform)
	}
}

func dialEVM(ctx context.Context, conf config.Config, logger *zap.Logger) (Ledger, error) {
	r := retrier.New(retrier.WithRetryIf(retrier.NotCanceled))

	client, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (*clients.EVMClient, error) {
		c, err := clients.DialEVM(ctx, conf.RPCURL, conf.ContractAddress, conf.PrivateKey,
			clients.WithViewAccount(conf.Account),
			clients.WithReadLimit(conf.ReadsPerSecond, readBurst))
		if err != nil {
			logger.Warn("failed to dial ledger, retrying", zap.String("rpc", conf.RPCURL), zap.Error(err))
		}
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to evm ledger")
	}

	logger.Info("connected to evm ledger",
		zap.String("contract", conf.ContractAddress.Hex()),
		zap.String("account", client.Account().Hex()))
	return client, nil
}

func newSimulateLedger(conf config.Config, logger *zap.Logger) (Ledger, error) {
	store, err := simstate.NewStore("registry")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open simulated registry state")
	}

	registry, err := clients.NewSimulateRegistry(logger, store)
	if err != nil {
		return nil, errors.Wrap(err, "failed to restore simulated registry")
	}

	return registry.Connect(conf.Account), nil
}
