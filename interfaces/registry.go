package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// CertificateRegistry is the authoritative store of universities and certificates.
//
// Mutating operations take the caller identity explicitly. Implementations
// serialize them so that each one either applies fully or not at all, and
// readers never observe a half-applied transition.
type CertificateRegistry interface {
	// RegisterUniversity creates the record for caller with verified=false.
	RegisterUniversity(ctx context.Context, caller common.Address, name, registrationNumber string) (TxRef, error)
	// VerifyUniversity marks university as verified. Only the registry owner may call it.
	VerifyUniversity(ctx context.Context, caller, university common.Address) (TxRef, error)
	// IssueCertificate records a new certificate issued by caller and returns its id.
	IssueCertificate(ctx context.Context, caller common.Address, req IssueRequest) (CertificateID, TxRef, error)
	// RevokeCertificate invalidates a certificate. Only its issuer may call it, once.
	RevokeCertificate(ctx context.Context, caller common.Address, id CertificateID) (TxRef, error)

	VerifyCertificate(ctx context.Context, id CertificateID) (*Certificate, bool, error)
	VerifyCertificateByHash(ctx context.Context, contentHash string) (*Certificate, bool, error)
	GetStudentCertificates(ctx context.Context, student common.Address) ([]CertificateID, error)
	IsUniversityVerified(ctx context.Context, university common.Address) (bool, error)
	GetUniversityDetails(ctx context.Context, university common.Address) (*University, error)
	// TotalCertificates returns the number of ids allocated so far.
	TotalCertificates(ctx context.Context) (uint64, error)
}

// RegistryFactory creates registry clients for specific contract addresses.
type RegistryFactory interface {
	RegistryFor(address common.Address) (CertificateRegistry, error)
}
