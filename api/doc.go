/*
Package api holds the wire types and server configuration of the certificate
registry HTTP API.

The subpackages split the API by side:

1. handlers - request decoding, validation and the mapping of registry errors to HTTP status codes
2. clients - a Go client for every endpoint, used by the admin CLI

# Wire format

Requests and responses are JSON with camelCase field names. Addresses are
0x-prefixed hex strings and certificate ids are decimal strings. A completion
date is accepted as unix seconds, an RFC3339 timestamp or a YYYY-MM-DD date.
Errors are returned as {"error": "..."} with a status code that reflects the
failure class:

  - 400 invalid input
  - 403 the signer may not perform the operation
  - 404 unknown university, certificate or document
  - 409 the operation conflicts with ledger state
  - 503 the ledger or content storage is unreachable

An issuance whose ledger transaction was mined but whose certificate id could
not be read back answers 202 with "degraded": true, the transaction hash and
the stored content hash, and no certificateId.
*/
package api
