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
)

// IssueInput is a certificate issuance request.
type IssueInput struct {
	Student        common.Address
	StudentName    string
	CourseName     string
	Grade          string
	CompletionDate time.Time
	// Template, when set, is stored instead of a generated document.
	Template []byte
}

// IssueResult describes an issued certificate.
// For a degraded issuance ID is zero and only ContentHash and TxRef are known.
type IssueResult struct {
	ID          interfaces.CertificateID
	ContentHash string
	TxRef       interfaces.TxRef
	DocumentURL string
}

// IssueCertificate runs the issuance pipeline as the signer.
// On interfaces.ErrDegradedResult the returned result is non-nil.
func (s *Service) IssueCertificate(ctx context.Context, in IssueInput) (res *IssueResult, err error) {
	defer s.observe("issue_certificate", time.Now(), &err)
	log := s.log.With(slog.String("student", in.Student.Hex()), slog.String("course", in.CourseName))

	university, err := s.issuer(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	document := in.Template
	if document == nil {
		document, err = s.renderer.Render(interfaces.CertificateDocument{
			StudentName:    in.StudentName,
			CourseName:     in.CourseName,
			Grade:          in.Grade,
			University:     university.Name,
			CompletionDate: in.CompletionDate,
			Student:        in.Student,
			Issuer:         s.signer,
			Contract:       s.contract,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render certificate: %w", err)
		}
	}

	contentHash, err := s.upload(ctx, document, s.filename(in))
	if err != nil {
		log.Error("Failed to upload certificate document", "err", err)
		return nil, err
	}

	id, ref, err := s.registry.IssueCertificate(ctx, s.signer, interfaces.IssueRequest{
		Student:        in.Student,
		StudentName:    in.StudentName,
		CourseName:     in.CourseName,
		ContentHash:    contentHash,
		Grade:          in.Grade,
		CompletionDate: in.CompletionDate,
	})
	if err != nil && !errors.Is(err, interfaces.ErrDegradedResult) {
		log.Warn("Certificate document uploaded but not issued",
			slog.String("contentHash", contentHash),
			"err", err)
		return nil, err
	}

	res = &IssueResult{
		ID:          id,
		ContentHash: contentHash,
		TxRef:       ref,
		DocumentURL: s.DocumentURL(contentHash),
	}
	if err != nil {
		log.Warn("Certificate issued without a readable id",
			slog.String("contentHash", contentHash),
			slog.String("tx", ref.String()))
		return res, err
	}

	log.Info("Certificate issued",
		slog.Uint64("certificateId", uint64(id)),
		slog.String("contentHash", contentHash))
	return res, nil
}

// issuer returns the signer's university record, which must be verified.
func (s *Service) issuer(ctx context.Context) (*interfaces.University, error) {
	verified, err := s.registry.IsUniversityVerified(ctx, s.signer)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, fmt.Errorf("%w: university not verified", interfaces.ErrUnauthorized)
	}
	return s.registry.GetUniversityDetails(ctx, s.signer)
}

// validate rejects requests the ledger would refuse, before anything is uploaded.
func (s *Service) validate(in IssueInput) error {
	if in.Student == (common.Address{}) {
		return interfaces.ErrInvalidStudent
	}
	if in.StudentName == "" {
		return interfaces.ErrMissingStudentName
	}
	if in.CompletionDate.After(s.now()) {
		return interfaces.ErrInvalidCompletionDate
	}
	return nil
}

// upload stores document, retrying while the store is unavailable.
func (s *Service) upload(ctx context.Context, document []byte, filename string) (string, error) {
	if s.metrics != nil {
		s.metrics.DocumentBytes.Observe(float64(len(document)))
	}

	var contentHash string
	operation := func() error {
		hash, err := s.store.Store(ctx, document, filename)
		if err != nil {
			if interfaces.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		contentHash = hash
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if s.metrics != nil {
			s.metrics.UploadAttempts.WithLabelValues("retry").Inc()
		}
		s.log.Warn("Document upload failed, retrying",
			slog.String("filename", filename),
			slog.Duration("wait", wait),
			"err", err)
	}

	if err := backoff.RetryNotify(operation, s.retryPolicy(ctx), notify); err != nil {
		if s.metrics != nil {
			s.metrics.UploadAttempts.WithLabelValues("failed").Inc()
		}
		return "", err
	}
	if s.metrics != nil {
		s.metrics.UploadAttempts.WithLabelValues("ok").Inc()
	}
	return contentHash, nil
}

func (s *Service) filename(in IssueInput) string {
	clean := strings.NewReplacer("/", "-", "\\", "-")
	return fmt.Sprintf("certificate_%s_%s_%d.pdf",
		clean.Replace(in.StudentName),
		clean.Replace(in.CourseName),
		s.now().UnixMilli())
}
