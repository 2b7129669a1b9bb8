package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/certificate-registry/api/handlers"
	"github.com/ruteri/certificate-registry/cmd/flags"
	"github.com/ruteri/certificate-registry/cmd/registrycommon"
	"github.com/ruteri/certificate-registry/common"
	"github.com/ruteri/certificate-registry/httpserver"
	"github.com/ruteri/certificate-registry/metrics"
)

func main() {
	app := &cli.App{
		Name:  "httpserver",
		Usage: "Serve the certificate registry API",
		Flags: append([]cli.Flag{
			flags.ConfigFlag,
			flags.EnvFileFlag,
			flags.ListenAddrFlag,
			flags.LedgerModeFlag,
			flags.RpcAddrFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			cfg, err := flags.LoadConfig(cCtx)
			if err != nil {
				logger.Error("Invalid configuration", "err", err)
				return err
			}

			metricsSrv, err := metrics.New(common.PackageName, cfg.Server.MetricsAddr)
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			components, err := registrycommon.Setup(cCtx.Context, cfg, metricsSrv.Metrics(), logger)
			if err != nil {
				logger.Error("Failed to set up registry", "err", err)
				return err
			}
			defer func() {
				if err := components.Close(); err != nil {
					logger.Error("Failed to close registry", "err", err)
				}
			}()

			handler := handlers.NewHandler(components.Service, logger, handlers.Options{
				Presence:         cfg.Presence(),
				Environment:      cfg.Server.Environment,
				MaxTemplateBytes: cfg.Upload.MaxTemplateBytes,
			})

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cfg), handler, metricsSrv, components.Service.Ready)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "ledger", cfg.Ledger.Mode, "signer", components.Signer.Address.Hex())
			server.RunInBackground()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Server is running, press Ctrl+C to stop")
			<-ctx.Done()
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
