/*
Package clients provides a Go client for the certificate registry HTTP API.

RegistryClient has one method per endpoint and returns the api package
response types. Non-2xx responses become *APIError, which unwraps to the
matching interfaces sentinel for 403, 404 and 503, so callers can test
failures with errors.Is. Transport failures wrap
interfaces.ErrUpstreamUnavailable.
*/
package clients
