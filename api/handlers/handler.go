package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/config"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/render"
	"github.com/ruteri/certificate-registry/service"
)

const (
	// maxBodySize bounds JSON request bodies.
	maxBodySize = 1024 * 1024

	// templateField is the multipart field carrying an uploaded document.
	templateField = "template"
)

// Service is the application surface the handlers call into.
type Service interface {
	Signer() common.Address
	DocumentURL(contentHash string) string
	RegisterUniversity(ctx context.Context, name, registrationNumber string) (interfaces.TxRef, error)
	VerifyUniversity(ctx context.Context, university common.Address) (interfaces.TxRef, error)
	UniversityStatus(ctx context.Context, university common.Address) (bool, *interfaces.University, error)
	IssueCertificate(ctx context.Context, in service.IssueInput) (*service.IssueResult, error)
	RevokeCertificate(ctx context.Context, id interfaces.CertificateID) (interfaces.TxRef, error)
	VerifyCertificate(ctx context.Context, id interfaces.CertificateID) (*interfaces.Certificate, bool, error)
	VerifyCertificateByHash(ctx context.Context, contentHash string) (*interfaces.Certificate, bool, error)
	StudentCertificates(ctx context.Context, student common.Address) ([]interfaces.Certificate, error)
	TotalCertificates(ctx context.Context) (uint64, error)
	Document(ctx context.Context, contentHash string) ([]byte, error)
}

// Handler serves the certificate registry HTTP API.
type Handler struct {
	svc      Service
	validate *validator.Validate
	log      *slog.Logger

	presence         config.Presence
	environment      string
	maxTemplateBytes int64
	now              func() time.Time
}

// Options carries the deployment details reported by the health endpoint
// and the upload limit.
type Options struct {
	Presence         config.Presence
	Environment      string
	MaxTemplateBytes int64
}

// NewHandler creates the HTTP handlers over svc.
func NewHandler(svc Service, log *slog.Logger, opts Options) *Handler {
	if opts.MaxTemplateBytes <= 0 || opts.MaxTemplateBytes > render.MaxTemplateSize {
		opts.MaxTemplateBytes = render.MaxTemplateSize
	}
	return &Handler{
		svc:              svc,
		validate:         validator.New(),
		log:              log,
		presence:         opts.Presence,
		environment:      opts.Environment,
		maxTemplateBytes: opts.MaxTemplateBytes,
		now:              time.Now,
	}
}

// RegisterRoutes mounts the health and registry API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)

	r.Post("/api/university/register", h.HandleRegisterUniversity)
	r.Post("/api/university/verify", h.HandleVerifyUniversity)
	r.Get("/api/university/{address}/status", h.HandleUniversityStatus)

	r.Post("/api/certificate/issue", h.HandleIssueCertificate)
	r.Post("/api/certificate/{id}/revoke", h.HandleRevokeCertificate)
	r.Get("/api/certificate/verify/{id}", h.HandleVerifyCertificate)
	r.Get("/api/certificate/verify-hash/{hash}", h.HandleVerifyCertificateByHash)
	r.Get(service.DocumentPath+"{hash}", h.HandleDocument)

	r.Get("/api/student/{address}/certificates", h.HandleStudentCertificates)
	r.Get("/api/certificates/total", h.HandleTotalCertificates)
}

// HandleHealth reports liveness and which deployment secrets are configured.
//
// URL format: GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:      "OK",
		Message:     fmt.Sprintf("Certificate registry API is running (%s)", h.environment),
		Timestamp:   h.now().UTC(),
		Environment: h.presence,
	})
}

// HandleRegisterUniversity registers the signer as a university.
//
// URL format: POST /api/university/register
// Request body: {"name": "...", "registrationNumber": "..."}
func (h *Handler) HandleRegisterUniversity(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterUniversityRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ref, err := h.svc.RegisterUniversity(r.Context(), req.Name, req.RegistrationNumber)
	if err != nil {
		h.log.Error("University registration failed", slog.String("name", req.Name), "err", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.RegisterUniversityResponse{
		Success:         true,
		Message:         "University registered successfully",
		TransactionHash: ref.String(),
		Address:         h.svc.Signer().Hex(),
	})
}

// HandleVerifyUniversity marks a registered university as verified. Owner only.
//
// URL format: POST /api/university/verify
// Request body: {"universityAddress": "0x..."}
func (h *Handler) HandleVerifyUniversity(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyUniversityRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	university, err := interfaces.ParseAddress(req.UniversityAddress)
	if err != nil {
		h.writeError(w, badRequest(err))
		return
	}

	ref, err := h.svc.VerifyUniversity(r.Context(), university)
	if err != nil {
		h.log.Error("University verification failed", slog.String("university", university.Hex()), "err", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.TransactionResponse{
		Success:         true,
		Message:         "University verified successfully",
		TransactionHash: ref.String(),
	})
}

// HandleUniversityStatus returns the verification flag and registration record.
//
// URL format: GET /api/university/{address}/status
func (h *Handler) HandleUniversityStatus(w http.ResponseWriter, r *http.Request) {
	university, err := h.addressParam(r, "address")
	if err != nil {
		h.writeError(w, err)
		return
	}

	verified, details, err := h.svc.UniversityStatus(r.Context(), university)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.UniversityStatusResponse{
		IsVerified: verified,
		Details: api.UniversityDetails{
			Name:               details.Name,
			RegistrationNumber: details.RegistrationNumber,
			Admin:              details.Admin.Hex(),
		},
	})
}

// HandleIssueCertificate issues a certificate as the signer's university.
//
// URL format: POST /api/certificate/issue
// Request body: JSON api.IssueCertificateRequest, or a multipart form with the
// same fields and an optional "template" PDF file replacing the generated document.
//
// A transaction that was mined without a readable certificate id is answered
// with 202 and "degraded": true.
func (h *Handler) HandleIssueCertificate(w http.ResponseWriter, r *http.Request) {
	req, template, err := h.parseIssueRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.svc.IssueCertificate(r.Context(), service.IssueInput{
		Student:        common.HexToAddress(req.StudentAddress),
		StudentName:    req.StudentName,
		CourseName:     req.CourseName,
		Grade:          req.Grade,
		CompletionDate: req.CompletionDate.Time,
		Template:       template,
	})
	if errors.Is(err, interfaces.ErrDegradedResult) && res != nil {
		h.log.Warn("Certificate issued without a readable id",
			slog.String("tx", res.TxRef.String()),
			slog.String("hash", res.ContentHash))
		h.writeJSON(w, http.StatusAccepted, api.IssueCertificateResponse{
			Success:         true,
			Message:         "Certificate transaction mined; certificate id could not be determined",
			IPFSHash:        res.ContentHash,
			TransactionHash: res.TxRef.String(),
			IPFSURL:         res.DocumentURL,
			Degraded:        true,
		})
		return
	}
	if err != nil {
		h.log.Error("Certificate issuance failed",
			slog.String("student", req.StudentAddress),
			slog.String("course", req.CourseName),
			"err", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.IssueCertificateResponse{
		Success:         true,
		Message:         "Certificate issued successfully",
		CertificateID:   res.ID.String(),
		IPFSHash:        res.ContentHash,
		TransactionHash: res.TxRef.String(),
		IPFSURL:         res.DocumentURL,
	})
}

func (h *Handler) parseIssueRequest(w http.ResponseWriter, r *http.Request) (*api.IssueCertificateRequest, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req api.IssueCertificateRequest
		if err := h.decodeJSON(w, r, &req); err != nil {
			return nil, nil, err
		}
		if req.CompletionDate.IsZero() {
			return nil, nil, badRequest(errors.New("completionDate is required"))
		}
		return &req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxTemplateBytes+maxBodySize)
	if err := r.ParseMultipartForm(maxBodySize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, badRequest(render.ErrTemplateTooLarge)
		}
		return nil, nil, badRequest(fmt.Errorf("invalid multipart form: %w", err))
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	completion, err := api.ParseTimestamp(r.FormValue("completionDate"))
	if err != nil {
		return nil, nil, badRequest(err)
	}
	if completion.IsZero() {
		return nil, nil, badRequest(errors.New("completionDate is required"))
	}
	req := &api.IssueCertificateRequest{
		StudentAddress: r.FormValue("studentAddress"),
		StudentName:    r.FormValue("studentName"),
		CourseName:     r.FormValue("courseName"),
		Grade:          r.FormValue("grade"),
		CompletionDate: completion,
	}
	if err := h.validate.Struct(req); err != nil {
		return nil, nil, badRequest(err)
	}

	file, header, err := r.FormFile(templateField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return nil, nil, badRequest(err)
	}
	defer file.Close()

	if header.Size > h.maxTemplateBytes {
		return nil, nil, badRequest(render.ErrTemplateTooLarge)
	}
	template, err := io.ReadAll(io.LimitReader(file, h.maxTemplateBytes+1))
	if err != nil {
		return nil, nil, badRequest(err)
	}
	if int64(len(template)) > h.maxTemplateBytes {
		return nil, nil, badRequest(render.ErrTemplateTooLarge)
	}
	if err := render.ValidateTemplate(header.Header.Get("Content-Type"), template); err != nil {
		return nil, nil, badRequest(err)
	}
	return req, template, nil
}

// HandleRevokeCertificate revokes a certificate issued by the signer.
//
// URL format: POST /api/certificate/{id}/revoke
func (h *Handler) HandleRevokeCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, badRequest(err))
		return
	}

	ref, err := h.svc.RevokeCertificate(r.Context(), id)
	if err != nil {
		h.log.Error("Certificate revocation failed", slog.String("id", id.String()), "err", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.TransactionResponse{
		Success:         true,
		Message:         "Certificate revoked successfully",
		TransactionHash: ref.String(),
	})
}

// HandleVerifyCertificate looks a certificate up by id.
//
// URL format: GET /api/certificate/verify/{id}
func (h *Handler) HandleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, badRequest(err))
		return
	}

	cert, valid, err := h.svc.VerifyCertificate(r.Context(), id)
	h.writeVerification(w, cert, valid, err)
}

// HandleVerifyCertificateByHash looks a certificate up by document content hash.
//
// URL format: GET /api/certificate/verify-hash/{hash}
func (h *Handler) HandleVerifyCertificateByHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if err := h.validate.Var(hash, "required,max=128,alphanum"); err != nil {
		h.writeError(w, badRequest(fmt.Errorf("invalid content hash: %w", err)))
		return
	}

	cert, valid, err := h.svc.VerifyCertificateByHash(r.Context(), hash)
	h.writeVerification(w, cert, valid, err)
}

func (h *Handler) writeVerification(w http.ResponseWriter, cert *interfaces.Certificate, valid bool, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.VerifyCertificateResponse{
		Certificate: api.NewCertificate(cert, h.svc.DocumentURL(cert.ContentHash)),
		IsValid:     valid,
	})
}

// HandleDocument streams a stored certificate document.
//
// URL format: GET /api/certificate/document/{hash}
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if err := h.validate.Var(hash, "required,max=128,alphanum"); err != nil {
		h.writeError(w, badRequest(fmt.Errorf("invalid content hash: %w", err)))
		return
	}

	data, err := h.svc.Document(r.Context(), hash)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", render.PDFContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Debug("Failed to write document", slog.String("hash", hash), "err", err)
	}
}

// HandleStudentCertificates lists every certificate of a student in issue order.
//
// URL format: GET /api/student/{address}/certificates
func (h *Handler) HandleStudentCertificates(w http.ResponseWriter, r *http.Request) {
	student, err := h.addressParam(r, "address")
	if err != nil {
		h.writeError(w, err)
		return
	}

	certs, err := h.svc.StudentCertificates(r.Context(), student)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := api.StudentCertificatesResponse{Certificates: make([]api.Certificate, 0, len(certs))}
	for i := range certs {
		resp.Certificates = append(resp.Certificates, api.NewCertificate(&certs[i], h.svc.DocumentURL(certs[i].ContentHash)))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleTotalCertificates returns the number of certificate ids allocated so far.
//
// URL format: GET /api/certificates/total
func (h *Handler) HandleTotalCertificates(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.TotalCertificates(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.TotalCertificatesResponse{Total: total})
}

func (h *Handler) addressParam(r *http.Request, name string) (common.Address, error) {
	raw := chi.URLParam(r, name)
	if err := h.validate.Var(raw, "required,eth_addr"); err != nil {
		return common.Address{}, badRequest(fmt.Errorf("invalid address %q", raw))
	}
	addr, err := interfaces.ParseAddress(raw)
	if err != nil {
		return common.Address{}, badRequest(err)
	}
	return addr, nil
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	if err := h.validate.Struct(v); err != nil {
		return badRequest(err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.Int("status", status), "err", err)
	}
	h.writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
