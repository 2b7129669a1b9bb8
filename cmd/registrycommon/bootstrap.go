// Package registrycommon builds the registry components a binary needs from a
// loaded configuration.
package registrycommon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ruteri/certificate-registry/config"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/metrics"
	"github.com/ruteri/certificate-registry/registry"
	"github.com/ruteri/certificate-registry/render"
	"github.com/ruteri/certificate-registry/service"
	"github.com/ruteri/certificate-registry/signer"
	"github.com/ruteri/certificate-registry/storage"
)

// Components holds everything the API server is assembled from.
type Components struct {
	Service  *service.Service
	Registry interfaces.CertificateRegistry
	Store    interfaces.ContentStore
	Signer   *signer.Key

	closers []func() error
}

// Close releases the ledger backend and the RPC connection.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// Setup resolves the signer, opens the ledger, creates the content stores and
// wires them into a service.
func Setup(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Components, error) {
	key, err := SetupSigner(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c := &Components{Signer: key}
	if err := c.setupRegistry(ctx, cfg, logger); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.Store, err = SetupStore(cfg.Storage, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.Service = service.New(c.Registry, c.Store, render.NewPDFRenderer(), logger, service.Options{
		Signer:                key.Address,
		Contract:              cfg.Chain.ContractAddress,
		GatewayURL:            cfg.Storage.PublicGateway(),
		UploadInitialInterval: cfg.Upload.InitialInterval,
		UploadMaxElapsed:      cfg.Upload.MaxElapsed,
		Metrics:               m,
	})
	return c, nil
}

// SetupSigner loads the configured key. Local ledgers fall back to a
// generated key when none is configured.
func SetupSigner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*signer.Key, error) {
	key, err := signer.Load(ctx, cfg.Signer, logger)
	if errors.Is(err, signer.ErrNoKeySource) && cfg.Ledger.Mode != config.ModeOnchain {
		key, err = signer.Generate()
		if err == nil {
			logger.Warn("No signing key configured, using a generated key", "address", key.Address.Hex())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return key, nil
}

func (c *Components) setupRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	owner := c.Signer.Address
	if cfg.Ledger.Owner != "" {
		owner = common.HexToAddress(cfg.Ledger.Owner)
	}

	switch cfg.Ledger.Mode {
	case config.ModeMemory:
		logger.Info("Using in-memory ledger", "owner", owner.Hex())
		reg := registry.NewRegistry(registry.NewMemoryBackend(owner), logger)
		c.Registry = reg
		c.closers = append(c.closers, reg.Close)

	case config.ModeBolt:
		logger.Info("Using bolt ledger", "path", cfg.Ledger.BoltPath)
		backend, err := registry.NewBoltBackend(cfg.Ledger.BoltPath, owner)
		if err != nil {
			return fmt.Errorf("failed to open ledger database: %w", err)
		}
		reg := registry.NewRegistry(backend, logger)
		c.Registry = reg
		c.closers = append(c.closers, reg.Close)

	case config.ModeOnchain:
		logger.Info("Connecting to Ethereum RPC", "address", cfg.Chain.RPCURL)
		ec, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("failed to dial RPC: %w", err)
		}
		c.closers = append(c.closers, func() error { ec.Close(); return nil })

		auth, err := bind.NewKeyedTransactorWithChainID(c.Signer.PrivateKey, big.NewInt(cfg.Chain.ChainID))
		if err != nil {
			return fmt.Errorf("failed to create transactor: %w", err)
		}

		factory := registry.NewRegistryFactory(ec, ec)
		factory.SetTransactOpts(auth)
		factory.SetReceiptTimeout(cfg.Chain.ReceiptTimeout)
		reg, err := factory.RegistryFor(common.HexToAddress(cfg.Chain.ContractAddress))
		if err != nil {
			return err
		}
		logger.Info("Using on-chain ledger", "contract", cfg.Chain.ContractAddress, "chainId", cfg.Chain.ChainID)
		c.Registry = reg

	default:
		return fmt.Errorf("invalid ledger mode: %s", cfg.Ledger.Mode)
	}
	return nil
}

// SetupStore creates a store for every configured location. Several
// locations are combined into a replicating store.
func SetupStore(cfg config.StorageConfig, logger *slog.Logger) (interfaces.ContentStore, error) {
	factory := storage.NewStoreFactory(logger)
	factory.SetPinataCredentials(cfg.PinataAPIKey, cfg.PinataSecretKey)
	factory.SetGatewayURL(cfg.GatewayURL)

	locations := make([]interfaces.StorageBackendLocation, 0, len(cfg.URIs))
	for _, uri := range cfg.URIs {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	if len(locations) == 1 {
		return factory.StoreFor(locations[0])
	}
	return factory.CreateMultiStore(locations)
}
