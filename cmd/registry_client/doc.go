// Package main (cmd/registry_client) is the administration CLI for the
// certificate registry API.
//
// Every command talks to the server given by --server (or CERTREG_API_URL)
// and prints the response as JSON:
//
//	health              - server health and which deployment secrets are set
//	register            - register the server's signer as a university
//	verify <address>    - verify a university (ledger owner only)
//	status <address>    - a university's verification status and details
//	issue               - issue a certificate, optionally storing --template
//	revoke <id>         - revoke a certificate
//	get <id>            - a certificate and its validity
//	get-by-hash <hash>  - the same, looked up by document content hash
//	student <address>   - every certificate issued to a student
//	total               - the number of certificate ids allocated
//	document <hash>     - download a stored certificate document
//	check-certificates  - one line per certificate with its validity
package main
