package interfaces

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CertificateDocument holds the fields printed on a certificate.
type CertificateDocument struct {
	StudentName    string
	CourseName     string
	Grade          string
	University     string
	CompletionDate time.Time
	// Student and Issuer are printed as verification metadata.
	Student common.Address
	Issuer  common.Address
	// Contract identifies the ledger the certificate is recorded on.
	Contract string
}

// Renderer produces a binary document (PDF) for a certificate. It holds no state.
type Renderer interface {
	Render(doc CertificateDocument) ([]byte, error)
	ContentType() string
}
