// Package main (cmd/httpserver) runs the certificate registry API server.
//
// The server issues, revokes and verifies academic certificates. Certificate
// records live on a ledger and the certificate documents live in
// content-addressed storage. The ledger is selected with the ledger mode:
//
//   - memory: an in-process ledger for development. State is lost on restart.
//   - bolt: a local ledger persisted in a bbolt database file.
//   - onchain: the UniversityCertificate contract reached over JSON-RPC.
//
// The server signs every write with a single key, loaded from a hex string, an
// encrypted keystore file or a Vault KV secret. Local ledgers generate a
// throwaway key when none is configured.
//
// Configuration comes from a TOML file, the CERTREG_ environment variables and
// a .env file, in increasing order of precedence. The names used by older
// deployments (PRIVATE_KEY, AMOY_RPC_URL, CONTRACT_ADDRESS, PINATA_API_KEY,
// PINATA_SECRET_KEY, PORT) are honoured too. Command line flags override both.
//
// Example usage against Polygon Amoy with Pinata storage:
//
//	AMOY_RPC_URL=https://rpc-amoy.polygon.technology \
//	CONTRACT_ADDRESS=0x... PRIVATE_KEY=0x... \
//	PINATA_API_KEY=... PINATA_SECRET_KEY=... \
//	CERTREG_STORAGE_URIS=pinata://api.pinata.cloud/ \
//	    httpserver --ledger=onchain --listen-addr=0.0.0.0:3001
//
// The server exposes liveness, readiness and drain endpoints, Prometheus
// metrics on a separate listener, and shuts down gracefully on SIGINT/SIGTERM.
package main
