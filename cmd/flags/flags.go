package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/common"
	"github.com/ruteri/certificate-registry/config"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// LoadConfig reads the configuration file and environment, then applies the
// command line flags that were set explicitly.
func LoadConfig(cCtx *cli.Context) (*config.Config, error) {
	var dotenv []string
	if cCtx.IsSet(EnvFileFlag.Name) {
		dotenv = []string{cCtx.String(EnvFileFlag.Name)}
	}
	cfg, err := config.Load(cCtx.String(ConfigFlag.Name), dotenv...)
	if err != nil {
		return nil, err
	}

	if cCtx.IsSet(ListenAddrFlag.Name) {
		cfg.Server.ListenAddr = cCtx.String(ListenAddrFlag.Name)
	}
	if cCtx.IsSet(MetricsAddrFlag.Name) || cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = cCtx.String(MetricsAddrFlag.Name)
	}
	if cCtx.IsSet(DrainSecondsFlag.Name) {
		cfg.Server.DrainSeconds = int(cCtx.Int64(DrainSecondsFlag.Name))
	}
	if cCtx.IsSet(RpcAddrFlag.Name) {
		cfg.Chain.RPCURL = cCtx.String(RpcAddrFlag.Name)
	}
	if cCtx.IsSet(LedgerModeFlag.Name) {
		cfg.Ledger.Mode = cCtx.String(LedgerModeFlag.Name)
	}
	return cfg, cfg.Validate()
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, cfg *config.Config) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               cfg.Server.Addr(),
		MetricsAddr:              cfg.Server.MetricsAddr,
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cfg.Server.DrainSeconds) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              cfg.Server.ReadTimeout,
		WriteTimeout:             cfg.Server.WriteTimeout,
		AllowedOrigins:           cfg.Server.AllowedOrigins,
	}
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	EnvVars: []string{"CERTREG_CONFIG"},
	Usage:   "path to a TOML configuration file",
}

var EnvFileFlag = &cli.StringFlag{
	Name:  "env-file",
	Value: ".env",
	Usage: "dotenv file loaded into the environment before reading configuration",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Usage: "address to listen on for API (overrides server.port)",
}

var LedgerModeFlag = &cli.StringFlag{
	Name:  "ledger",
	Usage: "ledger backend: 'memory', 'bolt' or 'onchain'",
}

var RpcAddrFlag = &cli.StringFlag{
	Name:  "rpc-addr",
	Usage: "address to connect to RPC",
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:3001",
	EnvVars: []string{"CERTREG_API_URL"},
	Usage:   "certificate registry API address",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "certificate-registry",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
