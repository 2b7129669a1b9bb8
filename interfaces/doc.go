// Package interfaces defines the core types and interfaces of the certificate
// registry, separating interface definitions from implementations.
//
// # Registry Interfaces
//
// CertificateRegistry: the eight ledger operations (register and verify a
// university, issue and revoke a certificate, look a certificate up by id or by
// content hash, list a student's certificates, query a university) plus the
// certificate counter. Implemented by the in-process ledgers and by the
// on-chain client in the registry package.
//
// # Storage Interfaces
//
// ContentStore: content-addressed storage for certificate documents across
// several backend types (memory, file, S3, IPFS, Pinata).
//
// ContentStoreFactory: creates content stores from URI strings and combines
// several of them into a replicating store.
//
// # Rendering
//
// Renderer: turns certificate fields into a printable document.
//
// # Errors
//
// Every rejection of the ledger has a sentinel error (ErrAlreadyRegistered,
// ErrNotFound, ErrUnauthorized, ...). Callers match them with errors.Is.
// ErrUpstreamUnavailable marks failures of external collaborators and is the
// only retryable kind.
package interfaces
