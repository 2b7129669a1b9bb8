// Package service composes the registry, document renderer and content store
// into the operations exposed over HTTP and the CLI.
//
// Issuance renders (or accepts) the certificate document, uploads it and only
// then records the certificate on the ledger, so that a ledger id is never
// allocated for a document that was not stored. A document that was uploaded
// but never issued is left behind as harmless garbage.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/metrics"
)

// DocumentPath is the API route serving stored documents by content hash.
const DocumentPath = "/api/certificate/document/"

// Options configures a Service.
type Options struct {
	// Signer is the account every write is performed as.
	Signer common.Address
	// Contract is printed on generated documents.
	Contract string
	// GatewayURL prefixes content hashes to form public document links.
	// Empty links to the document endpoint of the API itself.
	GatewayURL string

	UploadInitialInterval time.Duration
	UploadMaxElapsed      time.Duration

	Metrics *metrics.Metrics
}

// Service is the certificate registry application service.
type Service struct {
	registry interfaces.CertificateRegistry
	store    interfaces.ContentStore
	renderer interfaces.Renderer
	log      *slog.Logger
	metrics  *metrics.Metrics

	signer     common.Address
	contract   string
	gatewayURL string

	uploadInitialInterval time.Duration
	uploadMaxElapsed      time.Duration

	now func() time.Time
}

// New creates a service.
func New(registry interfaces.CertificateRegistry, store interfaces.ContentStore, renderer interfaces.Renderer, log *slog.Logger, opts Options) *Service {
	if opts.GatewayURL == "" {
		opts.GatewayURL = DocumentPath
	}
	if opts.UploadInitialInterval == 0 {
		opts.UploadInitialInterval = 500 * time.Millisecond
	}
	if opts.UploadMaxElapsed == 0 {
		opts.UploadMaxElapsed = 30 * time.Second
	}

	return &Service{
		registry:              registry,
		store:                 store,
		renderer:              renderer,
		log:                   log,
		metrics:               opts.Metrics,
		signer:                opts.Signer,
		contract:              opts.Contract,
		gatewayURL:            strings.TrimSuffix(opts.GatewayURL, "/") + "/",
		uploadInitialInterval: opts.UploadInitialInterval,
		uploadMaxElapsed:      opts.UploadMaxElapsed,
		now:                   time.Now,
	}
}

// SetClock replaces the time source used for completion date checks and upload file names.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Signer returns the account writes are performed as.
func (s *Service) Signer() common.Address {
	return s.signer
}

// DocumentURL returns the public link for a content hash.
func (s *Service) DocumentURL(contentHash string) string {
	return s.gatewayURL + contentHash
}

// RegisterUniversity registers the signer as an unverified university.
func (s *Service) RegisterUniversity(ctx context.Context, name, registrationNumber string) (ref interfaces.TxRef, err error) {
	defer s.observe("register_university", time.Now(), &err)
	return s.registry.RegisterUniversity(ctx, s.signer, name, registrationNumber)
}

// VerifyUniversity marks a registered university verified. Only the ledger owner may call it.
func (s *Service) VerifyUniversity(ctx context.Context, university common.Address) (ref interfaces.TxRef, err error) {
	defer s.observe("verify_university", time.Now(), &err)
	return s.registry.VerifyUniversity(ctx, s.signer, university)
}

// UniversityStatus returns the verification flag and record of a university.
func (s *Service) UniversityStatus(ctx context.Context, university common.Address) (bool, *interfaces.University, error) {
	details, err := s.registry.GetUniversityDetails(ctx, university)
	if err != nil {
		return false, nil, err
	}
	verified, err := s.registry.IsUniversityVerified(ctx, university)
	if err != nil {
		return false, nil, err
	}
	return verified, details, nil
}

// RevokeCertificate invalidates a certificate issued by the signer.
func (s *Service) RevokeCertificate(ctx context.Context, id interfaces.CertificateID) (ref interfaces.TxRef, err error) {
	defer s.observe("revoke_certificate", time.Now(), &err)
	return s.registry.RevokeCertificate(ctx, s.signer, id)
}

// VerifyCertificate returns a certificate and whether it is still valid.
func (s *Service) VerifyCertificate(ctx context.Context, id interfaces.CertificateID) (*interfaces.Certificate, bool, error) {
	return s.registry.VerifyCertificate(ctx, id)
}

// VerifyCertificateByHash looks a certificate up by the content hash of its document.
func (s *Service) VerifyCertificateByHash(ctx context.Context, contentHash string) (*interfaces.Certificate, bool, error) {
	return s.registry.VerifyCertificateByHash(ctx, contentHash)
}

// StudentCertificates returns every certificate of student with its details, in issue order.
func (s *Service) StudentCertificates(ctx context.Context, student common.Address) ([]interfaces.Certificate, error) {
	ids, err := s.registry.GetStudentCertificates(ctx, student)
	if err != nil {
		return nil, err
	}

	certs := make([]interfaces.Certificate, 0, len(ids))
	for _, id := range ids {
		cert, _, err := s.registry.VerifyCertificate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", id, err)
		}
		if cert.Student == (common.Address{}) {
			cert.Student = student
		}
		certs = append(certs, *cert)
	}
	return certs, nil
}

// TotalCertificates returns the number of certificates ever issued.
func (s *Service) TotalCertificates(ctx context.Context) (uint64, error) {
	return s.registry.TotalCertificates(ctx)
}

// Document returns the stored document for a content hash.
func (s *Service) Document(ctx context.Context, contentHash string) ([]byte, error) {
	return s.store.Fetch(ctx, contentHash)
}

// Ready reports whether the content store can be reached.
func (s *Service) Ready(ctx context.Context) bool {
	return s.store.Available(ctx)
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(operation, Outcome(*err), time.Since(start))
}

// Outcome names the class of err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, interfaces.ErrDegradedResult):
		return "degraded"
	case errors.Is(err, interfaces.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, interfaces.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, interfaces.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, interfaces.ErrNotFound):
		return "not_found"
	case errors.Is(err, interfaces.ErrDuplicateContent):
		return "duplicate_content"
	case errors.Is(err, interfaces.ErrAlreadyRevoked):
		return "already_revoked"
	case errors.Is(err, interfaces.ErrNotIssuer):
		return "not_issuer"
	case errors.Is(err, interfaces.ErrInvalidStudent),
		errors.Is(err, interfaces.ErrMissingStudentName),
		errors.Is(err, interfaces.ErrMissingContentHash),
		errors.Is(err, interfaces.ErrMissingUniversityName),
		errors.Is(err, interfaces.ErrInvalidCompletionDate):
		return "invalid_input"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// retryPolicy builds the backoff used for document uploads.
func (s *Service) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.uploadInitialInterval
	policy.MaxInterval = 10 * s.uploadInitialInterval
	policy.MaxElapsedTime = s.uploadMaxElapsed
	return backoff.WithContext(policy, ctx)
}
