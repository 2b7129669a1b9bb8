// Package registry implements the certificate registry state machine and the
// clients that expose it through interfaces.CertificateRegistry.
//
// The rules live in three components that share one Guard:
//
//   - Guard decides whether a caller may register, verify, issue or revoke.
//   - the university directory keeps one record per address.
//   - the certificate ledger keeps certificates by id, a content hash index
//     and an append-only per-student index.
//
// Registry composes them over a Backend. Every mutating operation runs as one
// Backend.Update, so an issuance either stores the record, advances the id
// counter and appends to the student index, or does none of these. Reads run
// as Backend.View against a consistent snapshot.
//
// # Backends
//
//   - MemoryBackend: maps guarded by a sync.RWMutex, staged writes.
//   - BoltBackend: a bbolt database, durable across restarts.
//
// # On-chain Ledger
//
// OnchainRegistryClient talks to a deployed UniversityCertificate contract.
// The contract enforces the same rules; the client maps revert reasons back to
// the sentinel errors in interfaces and reads issued ids from the
// CertificateIssued event:
//
//	client, err := registry.NewOnchainRegistryClient(ethClient, ethClient, contractAddr)
//	client.SetTransactOpts(auth)
//	id, tx, err := client.IssueCertificate(ctx, auth.From, req)
//
// Per-certificate lifecycle:
//
//	nonexistent -> issued (valid) -> revoked (invalid)
//
// There is no edge back to valid and no deletion.
package registry
