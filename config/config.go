// Package config loads the certificate registry configuration from defaults,
// an optional TOML file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ruteri/certificate-registry/storage"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CERTREG_"

// Ledger modes.
const (
	ModeMemory  = "memory"
	ModeBolt    = "bolt"
	ModeOnchain = "onchain"
)

// legacyEnv maps the environment names used by existing deployments onto config keys.
var legacyEnv = map[string]string{
	"AMOY_RPC_URL":      "chain.rpc_url",
	"PRIVATE_KEY":       "signer.private_key",
	"CONTRACT_ADDRESS":  "chain.contract_address",
	"PINATA_API_KEY":    "storage.pinata_api_key",
	"PINATA_SECRET_KEY": "storage.pinata_secret_key",
	"PORT":              "server.port",
}

type Config struct {
	Ledger  LedgerConfig  `koanf:"ledger"`
	Chain   ChainConfig   `koanf:"chain"`
	Signer  SignerConfig  `koanf:"signer"`
	Storage StorageConfig `koanf:"storage"`
	Server  ServerConfig  `koanf:"server"`
	Upload  UploadConfig  `koanf:"upload"`
}

type LedgerConfig struct {
	Mode string `koanf:"mode" validate:"oneof=memory bolt onchain"`
	// BoltPath is the database file used in bolt mode.
	BoltPath string `koanf:"bolt_path"`
	// Owner is the governance address of a local ledger. Empty means the signer.
	Owner string `koanf:"owner" validate:"omitempty,eth_addr"`
}

type ChainConfig struct {
	RPCURL          string        `koanf:"rpc_url" validate:"omitempty,url"`
	ContractAddress string        `koanf:"contract_address" validate:"omitempty,eth_addr"`
	ChainID         int64         `koanf:"chain_id" validate:"gte=0"`
	ReceiptTimeout  time.Duration `koanf:"receipt_timeout"`
}

type SignerConfig struct {
	PrivateKey       string `koanf:"private_key"`
	KeystorePath     string `koanf:"keystore_path"`
	KeystorePassword string `koanf:"keystore_password"`
	VaultAddress     string `koanf:"vault_address" validate:"omitempty,url"`
	VaultToken       string `koanf:"vault_token"`
	VaultPath        string `koanf:"vault_path"`
}

type StorageConfig struct {
	// URIs lists the content store locations. More than one builds a replicating store.
	URIs            []string `koanf:"uris" validate:"min=1"`
	GatewayURL      string   `koanf:"gateway_url" validate:"url"`
	PinataAPIKey    string   `koanf:"pinata_api_key"`
	PinataSecretKey string   `koanf:"pinata_secret_key"`
}

type ServerConfig struct {
	Port         int           `koanf:"port" validate:"gte=0,lte=65535"`
	ListenAddr   string        `koanf:"listen_addr"`
	MetricsAddr  string        `koanf:"metrics_addr"`
	Environment  string        `koanf:"environment"`
	DrainSeconds int           `koanf:"drain_seconds" validate:"gte=0"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// AllowedOrigins lists the CORS origins. Empty allows every origin.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type UploadConfig struct {
	MaxTemplateBytes int64         `koanf:"max_template_bytes" validate:"gt=0"`
	InitialInterval  time.Duration `koanf:"initial_interval"`
	MaxElapsed       time.Duration `koanf:"max_elapsed"`
}

func defaultConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Mode:     ModeMemory,
			BoltPath: "registry.db",
		},
		Chain: ChainConfig{
			ChainID:        80002,
			ReceiptTimeout: 2 * time.Minute,
		},
		Storage: StorageConfig{
			URIs:       []string{"memory://"},
			GatewayURL: storage.DefaultGatewayURL,
		},
		Server: ServerConfig{
			Port:         3001,
			Environment:  "development",
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Upload: UploadConfig{
			MaxTemplateBytes: 10 << 20,
			InitialInterval:  500 * time.Millisecond,
			MaxElapsed:       30 * time.Second,
		},
	}
}

// Load builds a Config. Later sources override earlier ones: defaults, the
// TOML file at path (skipped when empty), then the environment. The .env files
// are applied to the process environment first and never override variables
// that are already set. A missing .env file is not an error.
func Load(path string, dotenv ...string) (*Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("failed to apply %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := defaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			ZeroFields:       true,
			Result:           cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.inferDeployment(k)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// inferDeployment selects the on-chain ledger and the Pinata store when their
// settings are present and no ledger mode or store locations were given.
func (c *Config) inferDeployment(k *koanf.Koanf) {
	if !k.Exists("ledger.mode") && c.Chain.RPCURL != "" && c.Chain.ContractAddress != "" {
		c.Ledger.Mode = ModeOnchain
	}
	if !k.Exists("storage.uris") && c.Storage.PinataAPIKey != "" && c.Storage.PinataSecretKey != "" {
		c.Storage.URIs = []string{"pinata://"}
	}
}

// envKey maps CERTREG_SECTION_FIELD_NAME to section.field_name.
// The first underscore separates the section, the rest belong to the field.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + field
}

// Validate checks struct constraints and the requirements of the selected ledger mode.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Ledger.Mode {
	case ModeBolt:
		if c.Ledger.BoltPath == "" {
			return errors.New("ledger.bolt_path is required in bolt mode")
		}
	case ModeOnchain:
		if c.Chain.RPCURL == "" {
			return errors.New("chain.rpc_url is required in onchain mode")
		}
		if c.Chain.ContractAddress == "" {
			return errors.New("chain.contract_address is required in onchain mode")
		}
	}

	if c.Signer.VaultPath != "" && c.Signer.VaultAddress == "" {
		return errors.New("signer.vault_address is required with signer.vault_path")
	}
	if c.Signer.KeystorePath != "" && c.Signer.PrivateKey != "" {
		return errors.New("signer.private_key and signer.keystore_path are mutually exclusive")
	}
	return nil
}

// PublicGateway returns GatewayURL when a configured store publishes to IPFS.
// Otherwise it is empty and documents are linked through the API.
func (s StorageConfig) PublicGateway() string {
	for _, uri := range s.URIs {
		scheme, _, _ := strings.Cut(strings.ToLower(uri), "://")
		if scheme == "ipfs" || scheme == "pinata" {
			return s.GatewayURL
		}
	}
	return ""
}

// Addr returns the HTTP listen address, preferring ListenAddr over Port.
func (s ServerConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return fmt.Sprintf(":%d", s.Port)
}

// HasSigner reports whether any signing key source is configured.
func (c *Config) HasSigner() bool {
	return c.Signer.PrivateKey != "" || c.Signer.KeystorePath != "" || c.Signer.VaultPath != ""
}

// Presence reports which deployment secrets are set without exposing their values.
type Presence struct {
	HasPrivateKey      bool `json:"hasPrivateKey"`
	HasRPCURL          bool `json:"hasRpcUrl"`
	HasContractAddress bool `json:"hasContractAddress"`
	HasPinataAPIKey    bool `json:"hasPinataApiKey"`
	HasPinataSecretKey bool `json:"hasPinataSecretKey"`
}

func (c *Config) Presence() Presence {
	return Presence{
		HasPrivateKey:      c.HasSigner(),
		HasRPCURL:          c.Chain.RPCURL != "",
		HasContractAddress: c.Chain.ContractAddress != "",
		HasPinataAPIKey:    c.Storage.PinataAPIKey != "",
		HasPinataSecretKey: c.Storage.PinataSecretKey != "",
	}
}
