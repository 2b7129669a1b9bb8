// Package storage provides content-addressed document stores for issued
// certificates.
//
// Every store implements interfaces.ContentStore: Store returns the content
// hash recorded on the ledger and Fetch returns the bytes for a hash.
//
//   - MemoryStore for tests and local runs
//   - FileStore for a local directory
//   - S3Store for S3-compatible object storage
//   - IPFSStore for a self-hosted IPFS node
//   - PinataStore for the Pinata pinning service and its gateway
//
// Stores without native addressing (memory, file, S3) key documents by a
// CIDv1 over the raw bytes (see ComputeCID). IPFS and Pinata return the
// CIDv0 assigned by the network.
//
// # Location URIs
//
// StoreFactory builds stores from URIs:
//
//	memory://
//	file:///var/lib/certificates/
//	s3://[KEY:SECRET@]bucket/prefix/?region=eu-west-1&endpoint=http://minio:9000&pathStyle=true
//	ipfs://127.0.0.1:5001/?timeout=30s
//	pinata://[KEY:SECRET@]api.pinata.cloud/?gateway=https://gateway.pinata.cloud/ipfs/
//
// Several URIs combine into a MultiStore, which writes to every available
// store and reads from the first one holding a matching copy.
package storage
