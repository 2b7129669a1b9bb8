package registry

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

// ErrReadOnly is returned by State mutators inside a View.
var ErrReadOnly = errors.New("registry: state is read-only")

// State is the registry state visible inside one backend transaction.
//
// Getters return copies. University and Certificate return nil (and no error)
// when the record is absent.
type State interface {
	Owner() common.Address

	University(addr common.Address) (*interfaces.University, error)
	PutUniversity(u *interfaces.University) error

	Certificate(id interfaces.CertificateID) (*interfaces.Certificate, error)
	CertificateByHash(contentHash string) (interfaces.CertificateID, bool, error)
	// PutCertificate stores the record and indexes its content hash.
	PutCertificate(c *interfaces.Certificate) error

	LastCertificateID() (interfaces.CertificateID, error)
	SetLastCertificateID(id interfaces.CertificateID) error

	StudentCertificates(student common.Address) ([]interfaces.CertificateID, error)
	AppendStudentCertificate(student common.Address, id interfaces.CertificateID) error
}

// Backend stores registry state.
//
// Update runs fn as the single writer: all of its mutations are committed
// together when fn returns nil and discarded otherwise. View runs fn against a
// consistent snapshot and may run concurrently with other views.
type Backend interface {
	Update(ctx context.Context, fn func(State) error) error
	View(ctx context.Context, fn func(State) error) error
	Close() error
}
