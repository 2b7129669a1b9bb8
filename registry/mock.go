package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the interfaces.CertificateRegistry interface
type MockRegistry struct {
	mock.Mock
}

// RegisterUniversity mocks the RegisterUniversity method
func (m *MockRegistry) RegisterUniversity(ctx context.Context, caller common.Address, name, registrationNumber string) (interfaces.TxRef, error) {
	args := m.Called(ctx, caller, name, registrationNumber)
	return args.Get(0).(interfaces.TxRef), args.Error(1)
}

// VerifyUniversity mocks the VerifyUniversity method
func (m *MockRegistry) VerifyUniversity(ctx context.Context, caller, university common.Address) (interfaces.TxRef, error) {
	args := m.Called(ctx, caller, university)
	return args.Get(0).(interfaces.TxRef), args.Error(1)
}

// IssueCertificate mocks the IssueCertificate method
func (m *MockRegistry) IssueCertificate(ctx context.Context, caller common.Address, req interfaces.IssueRequest) (interfaces.CertificateID, interfaces.TxRef, error) {
	args := m.Called(ctx, caller, req)
	return args.Get(0).(interfaces.CertificateID), args.Get(1).(interfaces.TxRef), args.Error(2)
}

// RevokeCertificate mocks the RevokeCertificate method
func (m *MockRegistry) RevokeCertificate(ctx context.Context, caller common.Address, id interfaces.CertificateID) (interfaces.TxRef, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(interfaces.TxRef), args.Error(1)
}

// VerifyCertificate mocks the VerifyCertificate method
func (m *MockRegistry) VerifyCertificate(ctx context.Context, id interfaces.CertificateID) (*interfaces.Certificate, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*interfaces.Certificate), args.Bool(1), args.Error(2)
}

// VerifyCertificateByHash mocks the VerifyCertificateByHash method
func (m *MockRegistry) VerifyCertificateByHash(ctx context.Context, contentHash string) (*interfaces.Certificate, bool, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*interfaces.Certificate), args.Bool(1), args.Error(2)
}

// GetStudentCertificates mocks the GetStudentCertificates method
func (m *MockRegistry) GetStudentCertificates(ctx context.Context, student common.Address) ([]interfaces.CertificateID, error) {
	args := m.Called(ctx, student)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.CertificateID), args.Error(1)
}

// IsUniversityVerified mocks the IsUniversityVerified method
func (m *MockRegistry) IsUniversityVerified(ctx context.Context, university common.Address) (bool, error) {
	args := m.Called(ctx, university)
	return args.Bool(0), args.Error(1)
}

// GetUniversityDetails mocks the GetUniversityDetails method
func (m *MockRegistry) GetUniversityDetails(ctx context.Context, university common.Address) (*interfaces.University, error) {
	args := m.Called(ctx, university)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.University), args.Error(1)
}

// TotalCertificates mocks the TotalCertificates method
func (m *MockRegistry) TotalCertificates(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

var _ interfaces.CertificateRegistry = (*MockRegistry)(nil)
