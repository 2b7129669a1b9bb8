package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/config"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/registry"
	"github.com/ruteri/certificate-registry/render"
	"github.com/ruteri/certificate-registry/service"
	"github.com/ruteri/certificate-registry/storage"
)

var (
	testSigner  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	testStudent = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testNow     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// 2024-05-20T00:00:00Z
	testCompletion = "1716163200"
)

type testEnv struct {
	svc    *service.Service
	store  *storage.MemoryStore
	router http.Handler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := discardLogger()

	reg := registry.NewRegistry(registry.NewMemoryBackend(testSigner), log)
	reg.SetClock(func() time.Time { return testNow })
	store := storage.NewMemoryStore(log)

	svc := service.New(reg, store, render.NewPDFRenderer(), log, service.Options{
		Signer:                testSigner,
		GatewayURL:            "https://gateway.example/ipfs/",
		UploadInitialInterval: time.Millisecond,
		UploadMaxElapsed:      20 * time.Millisecond,
	})
	svc.SetClock(func() time.Time { return testNow })

	return &testEnv{svc: svc, store: store, router: newRouter(svc)}
}

func newRouter(svc Service) http.Handler {
	h := NewHandler(svc, discardLogger(), Options{
		Presence:    config.Presence{HasRPCURL: true},
		Environment: "test",
	})
	h.now = func() time.Time { return testNow }

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) verifySigner(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/university/register", api.RegisterUniversityRequest{
		Name:               "Harvard University",
		RegistrationNumber: "HU001",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, "/api/university/verify", api.VerifyUniversityRequest{
		UniversityAddress: testSigner.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func issueBody(student string) map[string]any {
	return map[string]any{
		"studentAddress": student,
		"studentName":    "Jane Doe",
		"courseName":     "Computer Science",
		"grade":          "A",
		"completionDate": testCompletion,
	}
}

func TestHandleHealth(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[api.HealthResponse](t, w)
	assert.Equal(t, "OK", resp.Status)
	assert.True(t, resp.Timestamp.Equal(testNow))
	assert.Equal(t, config.Presence{HasRPCURL: true}, resp.Environment)
	assert.Contains(t, w.Body.String(), `"hasPinataApiKey":false`)
}

func TestHandleUniversityLifecycle(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/university/register", api.RegisterUniversityRequest{
		Name:               "Harvard University",
		RegistrationNumber: "HU001",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reg := decode[api.RegisterUniversityResponse](t, w)
	assert.True(t, reg.Success)
	assert.Equal(t, testSigner.Hex(), reg.Address)
	assert.True(t, strings.HasPrefix(reg.TransactionHash, "0x"))

	w = e.do(t, http.MethodGet, "/api/university/"+testSigner.Hex()+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[api.UniversityStatusResponse](t, w)
	assert.False(t, status.IsVerified)
	assert.Equal(t, api.UniversityDetails{
		Name:               "Harvard University",
		RegistrationNumber: "HU001",
		Admin:              testSigner.Hex(),
	}, status.Details)

	w = e.do(t, http.MethodPost, "/api/university/register", api.RegisterUniversityRequest{
		Name:               "Harvard University",
		RegistrationNumber: "HU001",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "university already registered", decode[api.ErrorResponse](t, w).Error)

	w = e.do(t, http.MethodPost, "/api/university/verify", api.VerifyUniversityRequest{UniversityAddress: testSigner.Hex()})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/university/"+testSigner.Hex()+"/status", nil)
	assert.True(t, decode[api.UniversityStatusResponse](t, w).IsVerified)

	w = e.do(t, http.MethodGet, "/api/university/"+testStudent.Hex()+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/university/verify", api.VerifyUniversityRequest{UniversityAddress: testStudent.Hex()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRequestValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"register without name", http.MethodPost, "/api/university/register", map[string]string{"registrationNumber": "HU001"}},
		{"register with malformed body", http.MethodPost, "/api/university/register", "not an object"},
		{"verify with bad address", http.MethodPost, "/api/university/verify", map[string]string{"universityAddress": "0x1234"}},
		{"status with bad address", http.MethodGet, "/api/university/harvard/status", nil},
		{"student with bad address", http.MethodGet, "/api/student/0xzz/certificates", nil},
		{"verify zero id", http.MethodGet, "/api/certificate/verify/0", nil},
		{"verify non-numeric id", http.MethodGet, "/api/certificate/verify/abc", nil},
		{"revoke bad id", http.MethodPost, "/api/certificate/-1/revoke", nil},
		{"hash with symbols", http.MethodGet, "/api/certificate/verify-hash/not-a-hash", nil},
		{"issue without student", http.MethodPost, "/api/certificate/issue", map[string]string{"studentName": "Jane"}},
		{"issue with bad date", http.MethodPost, "/api/certificate/issue", func() map[string]any {
			b := issueBody(testStudent.Hex())
			b["completionDate"] = "yesterday"
			return b
		}()},
		{"issue without date", http.MethodPost, "/api/certificate/issue", func() map[string]any {
			b := issueBody(testStudent.Hex())
			delete(b, "completionDate")
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[api.ErrorResponse](t, w).Error)
		})
	}
}

func TestHandleIssueCertificate_SelfServedDocument(t *testing.T) {
	log := discardLogger()
	reg := registry.NewRegistry(registry.NewMemoryBackend(testSigner), log)
	reg.SetClock(func() time.Time { return testNow })
	svc := service.New(reg, storage.NewMemoryStore(log), render.NewPDFRenderer(), log, service.Options{Signer: testSigner})
	svc.SetClock(func() time.Time { return testNow })
	e := &testEnv{svc: svc, router: newRouter(svc)}
	e.verifySigner(t)

	w := e.do(t, http.MethodPost, "/api/certificate/issue", issueBody(testStudent.Hex()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	issued := decode[api.IssueCertificateResponse](t, w)
	assert.Equal(t, "/api/certificate/document/"+issued.IPFSHash, issued.IPFSURL)

	w = e.do(t, http.MethodGet, issued.IPFSURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestHandleIssueCertificate(t *testing.T) {
	e := newTestEnv(t)

	// not verified yet
	w := e.do(t, http.MethodPost, "/api/certificate/issue", issueBody(testStudent.Hex()))
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	e.verifySigner(t)

	w = e.do(t, http.MethodPost, "/api/certificate/issue", issueBody(testStudent.Hex()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	issued := decode[api.IssueCertificateResponse](t, w)
	assert.True(t, issued.Success)
	assert.Equal(t, "1", issued.CertificateID)
	assert.Equal(t, "https://gateway.example/ipfs/"+issued.IPFSHash, issued.IPFSURL)
	assert.False(t, issued.Degraded)

	// identical input renders the identical document
	w = e.do(t, http.MethodPost, "/api/certificate/issue", issueBody(testStudent.Hex()))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/api/certificate/issue", issueBody(common.Address{}.Hex()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid student address", decode[api.ErrorResponse](t, w).Error)

	future := issueBody(testStudent.Hex())
	future["completionDate"] = testNow.Add(time.Hour).Format(time.RFC3339)
	w = e.do(t, http.MethodPost, "/api/certificate/issue", future)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/certificate/verify/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	verified := decode[api.VerifyCertificateResponse](t, w)
	assert.True(t, verified.IsValid)
	assert.Equal(t, "1", verified.Certificate.ID)
	assert.Equal(t, "Jane Doe", verified.Certificate.StudentName)
	assert.Equal(t, "Harvard University", verified.Certificate.University)
	assert.Equal(t, testStudent.Hex(), verified.Certificate.StudentAddress)
	assert.Equal(t, testSigner.Hex(), verified.Certificate.Issuer)
	assert.True(t, verified.Certificate.IssueDate.Equal(testNow))
	assert.True(t, verified.Certificate.CompletionDate.Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, w.Body.String(), `"completionDate":"2024-05-20T00:00:00Z"`)

	w = e.do(t, http.MethodGet, "/api/certificate/verify-hash/"+issued.IPFSHash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", decode[api.VerifyCertificateResponse](t, w).Certificate.ID)

	w = e.do(t, http.MethodGet, "/api/certificate/document/"+issued.IPFSHash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = e.do(t, http.MethodGet, "/api/certificate/verify/2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/api/certificate/verify-hash/bafkreiunknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/api/certificate/document/bafkreiunknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRevokeAndList(t *testing.T) {
	e := newTestEnv(t)
	e.verifySigner(t)

	for _, course := range []string{"Algebra", "Biology"} {
		b := issueBody(testStudent.Hex())
		b["courseName"] = course
		w := e.do(t, http.MethodPost, "/api/certificate/issue", b)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := e.do(t, http.MethodPost, "/api/certificate/1/revoke", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[api.TransactionResponse](t, w).Success)

	w = e.do(t, http.MethodPost, "/api/certificate/1/revoke", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.do(t, http.MethodPost, "/api/certificate/9/revoke", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/certificate/verify/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[api.VerifyCertificateResponse](t, w).IsValid)

	w = e.do(t, http.MethodGet, "/api/student/"+testStudent.Hex()+"/certificates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[api.StudentCertificatesResponse](t, w)
	require.Len(t, list.Certificates, 2)
	assert.Equal(t, "Algebra", list.Certificates[0].CourseName)
	assert.False(t, list.Certificates[0].IsValid)
	assert.Equal(t, "Biology", list.Certificates[1].CourseName)
	assert.True(t, list.Certificates[1].IsValid)

	w = e.do(t, http.MethodGet, "/api/student/"+testSigner.Hex()+"/certificates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"certificates":[]}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/certificates/total", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(2), decode[api.TotalCertificatesResponse](t, w).Total)
}

func multipartIssue(t *testing.T, fields map[string]any, template []byte, contentType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, fmt.Sprint(v)))
	}
	if template != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="template"; filename="template.pdf"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(template)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/certificate/issue", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleIssueCertificate_Multipart(t *testing.T) {
	e := newTestEnv(t)
	e.verifySigner(t)
	template := []byte("%PDF-1.4\nuploaded template\n%%EOF")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartIssue(t, issueBody(testStudent.Hex()), template, "application/pdf"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	issued := decode[api.IssueCertificateResponse](t, w)

	stored, err := e.store.Fetch(context.Background(), issued.IPFSHash)
	require.NoError(t, err)
	assert.Equal(t, template, stored)

	// form without a file falls back to the generated document
	fields := issueBody(testStudent.Hex())
	fields["courseName"] = "Physics"
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartIssue(t, fields, nil, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2", decode[api.IssueCertificateResponse](t, w).CertificateID)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartIssue(t, issueBody(testStudent.Hex()), []byte("hello"), "text/plain"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, w).Error, "only PDF files are allowed")

	large := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{'x'}, render.MaxTemplateSize)...)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartIssue(t, issueBody(testStudent.Hex()), large, "application/pdf"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, w).Error, "file too large")

	missing := issueBody(testStudent.Hex())
	delete(missing, "grade")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartIssue(t, missing, nil, ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUpstreamUnavailable(t *testing.T) {
	e := newTestEnv(t)
	e.verifySigner(t)
	e.store.SetAvailable(false)

	w := e.do(t, http.MethodPost, "/api/certificate/issue", issueBody(testStudent.Hex()))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/certificates/total", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(0), decode[api.TotalCertificatesResponse](t, w).Total)
}

// degradedService reports every issuance as mined without a readable id.
type degradedService struct {
	*service.Service
}

func (d degradedService) IssueCertificate(ctx context.Context, in service.IssueInput) (*service.IssueResult, error) {
	return &service.IssueResult{
		ContentHash: "bafkreidegraded",
		TxRef:       interfaces.TxRef(common.HexToHash("0xabc")),
		DocumentURL: d.DocumentURL("bafkreidegraded"),
	}, fmt.Errorf("issue certificate: %w", interfaces.ErrDegradedResult)
}

func TestHandleIssueCertificate_Degraded(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(degradedService{e.svc})

	raw, err := json.Marshal(issueBody(testStudent.Hex()))
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/certificate/issue", bytes.NewReader(raw)))

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode[api.IssueCertificateResponse](t, w)
	assert.True(t, resp.Degraded)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.CertificateID)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), resp.TransactionHash)
	assert.NotContains(t, w.Body.String(), "certificateId")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{interfaces.ErrAlreadyRegistered, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", interfaces.ErrDuplicateContent), http.StatusConflict},
		{interfaces.ErrAlreadyRevoked, http.StatusConflict},
		{interfaces.ErrNotFound, http.StatusNotFound},
		{interfaces.ErrContentNotFound, http.StatusNotFound},
		{interfaces.ErrUnauthorized, http.StatusForbidden},
		{interfaces.ErrNotIssuer, http.StatusForbidden},
		{interfaces.ErrInvalidStudent, http.StatusBadRequest},
		{interfaces.ErrMissingStudentName, http.StatusBadRequest},
		{interfaces.ErrMissingContentHash, http.StatusBadRequest},
		{interfaces.ErrInvalidCompletionDate, http.StatusBadRequest},
		{interfaces.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{interfaces.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{badRequest(fmt.Errorf("bad")), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
