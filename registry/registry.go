package registry

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/certificate-registry/interfaces"
	"go.uber.org/atomic"
)

// Registry is the in-process ledger. It applies the Guard, the university
// directory and the certificate ledger to a Backend and implements
// interfaces.CertificateRegistry.
type Registry struct {
	backend   Backend
	directory directory
	ledger    ledger
	log       *slog.Logger
	now       func() time.Time
	nonce     atomic.Uint64
}

// NewRegistry creates a registry over backend.
func NewRegistry(backend Backend, log *slog.Logger) *Registry {
	guard := Guard{}
	return &Registry{
		backend:   backend,
		directory: directory{guard: guard},
		ledger:    ledger{guard: guard},
		log:       log,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for issue dates and completion date checks.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Close closes the backend.
func (r *Registry) Close() error {
	return r.backend.Close()
}

// txRef derives a reference for a committed local transition.
func (r *Registry) txRef(op string, caller common.Address, at time.Time) interfaces.TxRef {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], r.nonce.Inc())
	binary.BigEndian.PutUint64(buf[8:], uint64(at.UnixNano()))
	return interfaces.TxRef(crypto.Keccak256Hash([]byte(op), caller.Bytes(), buf[:]))
}

// RegisterUniversity records caller as an unverified university.
func (r *Registry) RegisterUniversity(ctx context.Context, caller common.Address, name, registrationNumber string) (interfaces.TxRef, error) {
	err := r.backend.Update(ctx, func(st State) error {
		return r.directory.register(st, caller, name, registrationNumber)
	})
	if err != nil {
		r.log.Debug("University registration rejected", slog.String("caller", caller.Hex()), "err", err)
		return interfaces.TxRef{}, err
	}

	r.log.Info("University registered", slog.String("university", caller.Hex()), slog.String("name", name))
	return r.txRef("registerUniversity", caller, r.now()), nil
}

// VerifyUniversity marks university verified. Only the owner may call it.
func (r *Registry) VerifyUniversity(ctx context.Context, caller, university common.Address) (interfaces.TxRef, error) {
	err := r.backend.Update(ctx, func(st State) error {
		return r.directory.verify(st, caller, university)
	})
	if err != nil {
		r.log.Debug("University verification rejected",
			slog.String("caller", caller.Hex()),
			slog.String("university", university.Hex()),
			"err", err)
		return interfaces.TxRef{}, err
	}

	r.log.Info("University verified", slog.String("university", university.Hex()))
	return r.txRef("verifyUniversity", caller, r.now()), nil
}

// IssueCertificate records a certificate issued by caller and returns its id.
func (r *Registry) IssueCertificate(ctx context.Context, caller common.Address, req interfaces.IssueRequest) (interfaces.CertificateID, interfaces.TxRef, error) {
	now := r.now().UTC().Truncate(time.Second)

	var cert *interfaces.Certificate
	err := r.backend.Update(ctx, func(st State) error {
		var err error
		cert, err = r.ledger.issue(st, now, caller, req)
		return err
	})
	if err != nil {
		r.log.Debug("Certificate issuance rejected",
			slog.String("issuer", caller.Hex()),
			slog.String("contentHash", req.ContentHash),
			"err", err)
		return 0, interfaces.TxRef{}, err
	}

	r.log.Info("Certificate issued",
		slog.Uint64("certificateId", uint64(cert.ID)),
		slog.String("issuer", caller.Hex()),
		slog.String("student", req.Student.Hex()),
		slog.String("contentHash", req.ContentHash))
	return cert.ID, r.txRef("issueCertificate", caller, now), nil
}

// RevokeCertificate invalidates a certificate. Only its issuer may revoke it.
func (r *Registry) RevokeCertificate(ctx context.Context, caller common.Address, id interfaces.CertificateID) (interfaces.TxRef, error) {
	err := r.backend.Update(ctx, func(st State) error {
		return r.ledger.revoke(st, caller, id)
	})
	if err != nil {
		r.log.Debug("Certificate revocation rejected",
			slog.Uint64("certificateId", uint64(id)),
			slog.String("caller", caller.Hex()),
			"err", err)
		return interfaces.TxRef{}, err
	}

	r.log.Info("Certificate revoked", slog.Uint64("certificateId", uint64(id)))
	return r.txRef("revokeCertificate", caller, r.now()), nil
}

// VerifyCertificate returns the certificate with id and its validity.
func (r *Registry) VerifyCertificate(ctx context.Context, id interfaces.CertificateID) (*interfaces.Certificate, bool, error) {
	var cert *interfaces.Certificate
	err := r.backend.View(ctx, func(st State) error {
		var err error
		cert, err = r.ledger.byID(st, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return cert, cert.Valid, nil
}

// VerifyCertificateByHash looks a certificate up by its content hash.
func (r *Registry) VerifyCertificateByHash(ctx context.Context, contentHash string) (*interfaces.Certificate, bool, error) {
	var cert *interfaces.Certificate
	err := r.backend.View(ctx, func(st State) error {
		var err error
		cert, err = r.ledger.byHash(st, contentHash)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return cert, cert.Valid, nil
}

// GetStudentCertificates returns the ids issued to student, oldest first.
func (r *Registry) GetStudentCertificates(ctx context.Context, student common.Address) ([]interfaces.CertificateID, error) {
	var ids []interfaces.CertificateID
	err := r.backend.View(ctx, func(st State) error {
		var err error
		ids, err = r.ledger.certificatesOf(st, student)
		return err
	})
	return ids, err
}

// IsUniversityVerified reports false for unknown addresses.
func (r *Registry) IsUniversityVerified(ctx context.Context, university common.Address) (bool, error) {
	var verified bool
	err := r.backend.View(ctx, func(st State) error {
		var err error
		verified, err = r.directory.isVerified(st, university)
		return err
	})
	return verified, err
}

// GetUniversityDetails returns ErrNotFound for unknown addresses.
func (r *Registry) GetUniversityDetails(ctx context.Context, university common.Address) (*interfaces.University, error) {
	var u *interfaces.University
	err := r.backend.View(ctx, func(st State) error {
		var err error
		u, err = r.directory.details(st, university)
		return err
	})
	return u, err
}

// TotalCertificates returns the last issued id.
func (r *Registry) TotalCertificates(ctx context.Context) (uint64, error) {
	var total uint64
	err := r.backend.View(ctx, func(st State) error {
		var err error
		total, err = r.ledger.total(st)
		return err
	})
	return total, err
}

var _ interfaces.CertificateRegistry = (*Registry)(nil)
