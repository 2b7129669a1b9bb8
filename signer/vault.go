package signer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// DefaultVaultField is the secret field holding the hex private key.
const DefaultVaultField = "private_key"

// VaultSource reads signing keys from a Vault KV v2 mount.
type VaultSource struct {
	client *api.Client
	field  string
	log    *slog.Logger
}

// NewVaultSource connects to the Vault server at address. An empty token
// leaves the client's token as resolved from VAULT_TOKEN.
func NewVaultSource(address, token string, log *slog.Logger) (*VaultSource, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultSource{client: client, field: DefaultVaultField, log: log}, nil
}

// SetField changes the secret field the key is read from.
func (v *VaultSource) SetField(field string) {
	v.field = field
}

// Key reads the secret at path, given either as "mount/data/name" or as
// "mount/name" in which case the KV v2 data segment is inserted.
func (v *VaultSource) Key(ctx context.Context, path string) (*Key, error) {
	start := time.Now()
	path = kvDataPath(path)

	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		v.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("failed to read signing key from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}
	hexKey, ok := data[v.field].(string)
	if !ok || hexKey == "" {
		return nil, fmt.Errorf("field %q not found in secret %s", v.field, path)
	}

	k, err := FromHex(hexKey)
	if err != nil {
		return nil, err
	}

	v.log.Debug("fetched signing key from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))
	return k, nil
}

func kvDataPath(path string) string {
	path = strings.Trim(path, "/")
	mount, rest, ok := strings.Cut(path, "/")
	if !ok || strings.HasPrefix(rest, "data/") {
		return path
	}
	return mount + "/data/" + rest
}
