// Package signer resolves the private key the service signs ledger writes with.
//
// Keys come from one of three sources: a hex string (usually the PRIVATE_KEY
// environment variable), an encrypted go-ethereum keystore file, or a field of
// a HashiCorp Vault KV v2 secret.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ruteri/certificate-registry/config"
)

var ErrNoKeySource = errors.New("no signing key configured")

// Key is a resolved signing key.
type Key struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

func newKey(pk *ecdsa.PrivateKey) *Key {
	return &Key{PrivateKey: pk, Address: crypto.PubkeyToAddress(pk.PublicKey)}
}

// FromHex parses a secp256k1 private key with an optional 0x prefix.
func FromHex(hexKey string) (*Key, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"), "0X")
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return newKey(pk), nil
}

// Generate creates a throwaway key. Local ledgers use it when no key source is configured.
func Generate() (*Key, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return newKey(pk), nil
}

// FromKeystore decrypts a go-ethereum keystore JSON file.
func FromKeystore(path, password string) (*Key, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	k, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}
	return newKey(k.PrivateKey), nil
}

// Load resolves the key from whichever source cfg configures. Vault takes
// precedence, then the keystore, then the hex key.
func Load(ctx context.Context, cfg config.SignerConfig, log *slog.Logger) (*Key, error) {
	var (
		k      *Key
		err    error
		source string
	)
	switch {
	case cfg.VaultPath != "":
		source = "vault"
		var v *VaultSource
		v, err = NewVaultSource(cfg.VaultAddress, cfg.VaultToken, log)
		if err == nil {
			k, err = v.Key(ctx, cfg.VaultPath)
		}
	case cfg.KeystorePath != "":
		source = "keystore"
		k, err = FromKeystore(cfg.KeystorePath, cfg.KeystorePassword)
	case cfg.PrivateKey != "":
		source = "hex"
		k, err = FromHex(cfg.PrivateKey)
	default:
		return nil, ErrNoKeySource
	}
	if err != nil {
		return nil, err
	}

	log.Info("loaded signing key", slog.String("source", source), slog.String("address", k.Address.Hex()))
	return k, nil
}
