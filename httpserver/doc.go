/*
Package httpserver runs the certificate registry HTTP API.

Server mounts the API routes of a handlers.Handler on a chi router together
with operational endpoints:

  - /livez always answers 200 while the process is up
  - /readyz answers 503 while draining or when the content store is unreachable
  - /drain and /undrain toggle readiness for load balancer rotation
  - /debug/pprof when profiling is enabled

Every API request is logged and counted per route pattern, method and status
code. Prometheus metrics are served on a separate listener.

Shutdown marks the server not ready, waits for the drain period, then stops
the API and metrics listeners gracefully.
*/
package httpserver
