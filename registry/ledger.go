package registry

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

// ledger holds certificate records, the content hash index and the per-student index.
type ledger struct {
	guard Guard
}

// issue checks preconditions in order and only then mutates state.
func (l ledger) issue(st State, now time.Time, issuer common.Address, req interfaces.IssueRequest) (*interfaces.Certificate, error) {
	university, err := l.guard.CanIssue(st, issuer)
	if err != nil {
		return nil, err
	}
	if req.Student == (common.Address{}) {
		return nil, interfaces.ErrInvalidStudent
	}
	if req.StudentName == "" {
		return nil, interfaces.ErrMissingStudentName
	}
	if req.ContentHash == "" {
		return nil, interfaces.ErrMissingContentHash
	}

	_, exists, err := st.CertificateByHash(req.ContentHash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: content hash %s", interfaces.ErrDuplicateContent, req.ContentHash)
	}

	completion := req.CompletionDate.UTC().Truncate(time.Second)
	if completion.After(now) {
		return nil, interfaces.ErrInvalidCompletionDate
	}

	last, err := st.LastCertificateID()
	if err != nil {
		return nil, err
	}
	cert := &interfaces.Certificate{
		ID:             last + 1,
		Student:        req.Student,
		StudentName:    req.StudentName,
		CourseName:     req.CourseName,
		University:     university.Name,
		ContentHash:    req.ContentHash,
		IssueDate:      now,
		Issuer:         issuer,
		Valid:          true,
		Grade:          req.Grade,
		CompletionDate: completion,
	}

	if err := st.PutCertificate(cert); err != nil {
		return nil, err
	}
	if err := st.SetLastCertificateID(cert.ID); err != nil {
		return nil, err
	}
	if err := st.AppendStudentCertificate(req.Student, cert.ID); err != nil {
		return nil, err
	}
	return cert, nil
}

func (l ledger) revoke(st State, caller common.Address, id interfaces.CertificateID) error {
	cert, err := l.byID(st, id)
	if err != nil {
		return err
	}
	if err := l.guard.CanRevoke(cert, caller); err != nil {
		return err
	}
	if !cert.Valid {
		return interfaces.ErrAlreadyRevoked
	}

	cert.Valid = false
	return st.PutCertificate(cert)
}

func (l ledger) byID(st State, id interfaces.CertificateID) (*interfaces.Certificate, error) {
	cert, err := st.Certificate(id)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: certificate %d", interfaces.ErrNotFound, id)
	}
	return cert, nil
}

func (l ledger) byHash(st State, contentHash string) (*interfaces.Certificate, error) {
	id, found, err := st.CertificateByHash(contentHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: content hash %s", interfaces.ErrNotFound, contentHash)
	}
	return l.byID(st, id)
}

func (l ledger) certificatesOf(st State, student common.Address) ([]interfaces.CertificateID, error) {
	return st.StudentCertificates(student)
}

func (l ledger) total(st State) (uint64, error) {
	last, err := st.LastCertificateID()
	return uint64(last), err
}
