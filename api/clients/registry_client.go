package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/interfaces"
)

// APIError is a non-2xx answer from the registry API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry API returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status back onto the error kind the server answered for.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return interfaces.ErrNotFound
	case http.StatusForbidden:
		return interfaces.ErrUnauthorized
	case http.StatusServiceUnavailable:
		return interfaces.ErrUpstreamUnavailable
	}
	return nil
}

// RegistryClient talks to the certificate registry HTTP API.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient creates a client for the API at baseURL
// (e.g. "http://localhost:3001"). The default timeout is 60 seconds.
func NewRegistryClient(baseURL string, timeout ...time.Duration) *RegistryClient {
	clientTimeout := 60 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	return &RegistryClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *RegistryClient) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	return &resp, c.do(ctx, http.MethodGet, "/health", nil, "", &resp)
}

func (c *RegistryClient) RegisterUniversity(ctx context.Context, name, registrationNumber string) (*api.RegisterUniversityResponse, error) {
	var resp api.RegisterUniversityResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/university/register", api.RegisterUniversityRequest{
		Name:               name,
		RegistrationNumber: registrationNumber,
	}, &resp)
	return &resp, err
}

func (c *RegistryClient) VerifyUniversity(ctx context.Context, university common.Address) (*api.TransactionResponse, error) {
	var resp api.TransactionResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/university/verify", api.VerifyUniversityRequest{
		UniversityAddress: university.Hex(),
	}, &resp)
	return &resp, err
}

func (c *RegistryClient) UniversityStatus(ctx context.Context, university common.Address) (*api.UniversityStatusResponse, error) {
	var resp api.UniversityStatusResponse
	return &resp, c.do(ctx, http.MethodGet, "/api/university/"+university.Hex()+"/status", nil, "", &resp)
}

// IssueCertificate issues a certificate. A non-nil template is uploaded as the
// certificate document instead of the server-generated one.
//
// A degraded issuance is returned with a nil error and Degraded set.
func (c *RegistryClient) IssueCertificate(ctx context.Context, req api.IssueCertificateRequest, template []byte) (*api.IssueCertificateResponse, error) {
	var resp api.IssueCertificateResponse
	if template == nil {
		return &resp, c.doJSON(ctx, http.MethodPost, "/api/certificate/issue", req, &resp)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"studentAddress": req.StudentAddress,
		"studentName":    req.StudentName,
		"courseName":     req.CourseName,
		"grade":          req.Grade,
		"completionDate": strconv.FormatInt(req.CompletionDate.Unix(), 10),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="template"; filename="template.pdf"`)
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(template); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return &resp, c.do(ctx, http.MethodPost, "/api/certificate/issue", &body, mw.FormDataContentType(), &resp)
}

func (c *RegistryClient) RevokeCertificate(ctx context.Context, id interfaces.CertificateID) (*api.TransactionResponse, error) {
	var resp api.TransactionResponse
	return &resp, c.do(ctx, http.MethodPost, "/api/certificate/"+id.String()+"/revoke", nil, "", &resp)
}

func (c *RegistryClient) VerifyCertificate(ctx context.Context, id interfaces.CertificateID) (*api.VerifyCertificateResponse, error) {
	var resp api.VerifyCertificateResponse
	return &resp, c.do(ctx, http.MethodGet, "/api/certificate/verify/"+id.String(), nil, "", &resp)
}

func (c *RegistryClient) VerifyCertificateByHash(ctx context.Context, contentHash string) (*api.VerifyCertificateResponse, error) {
	var resp api.VerifyCertificateResponse
	return &resp, c.do(ctx, http.MethodGet, "/api/certificate/verify-hash/"+url.PathEscape(contentHash), nil, "", &resp)
}

func (c *RegistryClient) StudentCertificates(ctx context.Context, student common.Address) ([]api.Certificate, error) {
	var resp api.StudentCertificatesResponse
	if err := c.do(ctx, http.MethodGet, "/api/student/"+student.Hex()+"/certificates", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Certificates, nil
}

func (c *RegistryClient) TotalCertificates(ctx context.Context) (uint64, error) {
	var resp api.TotalCertificatesResponse
	if err := c.do(ctx, http.MethodGet, "/api/certificates/total", nil, "", &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// Document downloads the stored certificate document.
func (c *RegistryClient) Document(ctx context.Context, contentHash string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/api/certificate/document/"+url.PathEscape(contentHash), nil, "", &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *RegistryClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, bytes.NewReader(raw), "application/json", out)
}

// do sends a request and decodes a 2xx answer into out. A *bytes.Buffer out
// receives the raw body.
func (c *RegistryClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w: %v", path, interfaces.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var apiErr api.ErrorResponse
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if buf, ok := out.(*bytes.Buffer); ok {
		_, err := buf.ReadFrom(resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response from %s: %w", path, err)
	}
	return nil
}
