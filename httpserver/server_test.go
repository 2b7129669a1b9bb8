package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/api/handlers"
	"github.com/ruteri/certificate-registry/metrics"
	"github.com/ruteri/certificate-registry/registry"
	"github.com/ruteri/certificate-registry/render"
	"github.com/ruteri/certificate-registry/service"
	"github.com/ruteri/certificate-registry/storage"
)

var testSigner = common.HexToAddress("0x00000000000000000000000000000000000000a0")

func newTestServer(t *testing.T, readiness ReadinessFunc) (*Server, *metrics.MetricsServer) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	metricsSrv, err := metrics.New("test", "")
	require.NoError(t, err)

	reg := registry.NewRegistry(registry.NewMemoryBackend(testSigner), log)
	svc := service.New(reg, storage.NewMemoryStore(log), render.NewPDFRenderer(), log, service.Options{
		Signer:  testSigner,
		Metrics: metricsSrv.Metrics(),
	})

	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      log,
		EnablePprof:              true,
		GracefulShutdownDuration: time.Second,
	}, handlers.NewHandler(svc, log, handlers.Options{}), metricsSrv, readiness)
	require.NoError(t, err)
	return srv, metricsSrv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_Probes(t *testing.T) {
	var depsUp atomic.Bool
	depsUp.Store(true)
	srv, _ := newTestServer(t, func(context.Context) bool { return depsUp.Load() })
	h := srv.Handler()

	w := get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())

	w = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)

	depsUp.Store(false)
	w = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"dependencies unavailable"}`, w.Body.String())
	depsUp.Store(true)

	w = get(t, h, "/drain")
	assert.JSONEq(t, `{"status":"draining"}`, w.Body.String())
	w = get(t, h, "/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, w.Body.String())
	w = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(t, h, "/undrain")
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
	w = get(t, h, "/undrain")
	assert.JSONEq(t, `{"status":"already ready"}`, w.Body.String())
	w = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)

	// a nil readiness func always reports ready
	srv, _ = newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/readyz").Code)
}

func TestServer_APIRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	w := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OK"`)

	w = get(t, h, "/api/certificates/total")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":0}`, w.Body.String())

	w = get(t, h, "/debug/pprof/")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CORS(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/certificate/issue", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Contains(t, []string{"*", "https://app.example"}, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Contains(t, []string{"*", "https://app.example"}, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RequestMetrics(t *testing.T) {
	srv, metricsSrv := newTestServer(t, nil)
	h := srv.Handler()

	get(t, h, "/api/certificate/verify/7")
	get(t, h, "/api/certificate/verify/8")
	get(t, h, "/api/university/0x00000000000000000000000000000000000000b1/status")

	w := httptest.NewRecorder()
	metricsSrv.Metrics().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	assert.Contains(t, body, `test_http_requests_total{code="404",method="GET",route="/api/certificate/verify/{id}"} 2`)
	assert.Contains(t, body, `route="/api/university/{address}/status"`)
	assert.False(t, strings.Contains(body, "verify/7"))
}
