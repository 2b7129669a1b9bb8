package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/metrics"
	"github.com/ruteri/certificate-registry/registry"
	"github.com/ruteri/certificate-registry/render"
	"github.com/ruteri/certificate-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testSigner  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	testStudent = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testNow     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		Signer:                testSigner,
		Contract:              "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		GatewayURL:            "https://gateway.example/ipfs",
		UploadInitialInterval: time.Millisecond,
		UploadMaxElapsed:      50 * time.Millisecond,
		Metrics:               metrics.NewMetrics("test"),
	}
}

func issueInput() IssueInput {
	return IssueInput{
		Student:        testStudent,
		StudentName:    "Jane Doe",
		CourseName:     "CS",
		Grade:          "A",
		CompletionDate: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
	}
}

// newLocalService wires a service over an in-memory ledger owned by the signer.
func newLocalService(t *testing.T, store interfaces.ContentStore) (*Service, *registry.Registry) {
	reg := registry.NewRegistry(registry.NewMemoryBackend(testSigner), discardLogger())
	reg.SetClock(func() time.Time { return testNow })

	svc := New(reg, store, render.NewPDFRenderer(), discardLogger(), testOptions())
	svc.SetClock(func() time.Time { return testNow })
	return svc, reg
}

func verifySigner(t *testing.T, svc *Service) {
	ctx := context.Background()
	_, err := svc.RegisterUniversity(ctx, "Harvard University", "HU001")
	require.NoError(t, err)
	_, err = svc.VerifyUniversity(ctx, testSigner)
	require.NoError(t, err)
}

func TestService_IssueCertificate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(discardLogger())
	svc, _ := newLocalService(t, store)
	verifySigner(t, svc)

	res, err := svc.IssueCertificate(ctx, issueInput())
	require.NoError(t, err)
	assert.Equal(t, interfaces.CertificateID(1), res.ID)
	assert.NotEqual(t, interfaces.TxRef{}, res.TxRef)
	assert.Equal(t, "https://gateway.example/ipfs/"+res.ContentHash, res.DocumentURL)

	document, err := svc.Document(ctx, res.ContentHash)
	require.NoError(t, err)
	assert.NoError(t, render.ValidateTemplate("application/pdf", document))
	assert.NoError(t, storage.VerifyContent(res.ContentHash, document))

	cert, valid, err := svc.VerifyCertificateByHash(ctx, res.ContentHash)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, "Harvard University", cert.University)
	assert.Equal(t, testSigner, cert.Issuer)

	// The same certificate renders to the same document and cannot be issued twice
	_, err = svc.IssueCertificate(ctx, issueInput())
	assert.ErrorIs(t, err, interfaces.ErrDuplicateContent)

	total, err := svc.TotalCertificates(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
}

func TestService_IssueSameFieldsToDistinctStudents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLocalService(t, storage.NewMemoryStore(discardLogger()))
	verifySigner(t, svc)

	first, err := svc.IssueCertificate(ctx, issueInput())
	require.NoError(t, err)

	in := issueInput()
	in.Student = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	second, err := svc.IssueCertificate(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, interfaces.CertificateID(2), second.ID)
	assert.NotEqual(t, first.ContentHash, second.ContentHash)
}

func TestService_IssueWithTemplate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(discardLogger())
	svc, _ := newLocalService(t, store)
	verifySigner(t, svc)

	in := issueInput()
	in.Template = []byte("%PDF-1.4\n%custom template")

	res, err := svc.IssueCertificate(ctx, in)
	require.NoError(t, err)

	document, err := store.Fetch(ctx, res.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, in.Template, document)
}

func TestService_IssueRejectedBeforeUpload(t *testing.T) {
	tests := []struct {
		name    string
		verify  bool
		mutate  func(in *IssueInput)
		wantErr error
	}{
		{
			name:    "signer not verified",
			verify:  false,
			wantErr: interfaces.ErrUnauthorized,
		},
		{
			name:    "zero student",
			verify:  true,
			mutate:  func(in *IssueInput) { in.Student = common.Address{} },
			wantErr: interfaces.ErrInvalidStudent,
		},
		{
			name:    "missing student name",
			verify:  true,
			mutate:  func(in *IssueInput) { in.StudentName = "" },
			wantErr: interfaces.ErrMissingStudentName,
		},
		{
			name:    "completion in the future",
			verify:  true,
			mutate:  func(in *IssueInput) { in.CompletionDate = testNow.Add(time.Hour) },
			wantErr: interfaces.ErrInvalidCompletionDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Any Store call fails the test: the mock has no expectations
			store := &storage.MockContentStore{StoreName: "mock"}
			svc, _ := newLocalService(t, store)
			if tt.verify {
				verifySigner(t, svc)
			}

			in := issueInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}

			res, err := svc.IssueCertificate(context.Background(), in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			store.AssertExpectations(t)
		})
	}
}

func TestService_UploadRetries(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failure", func(t *testing.T) {
		store := &storage.MockContentStore{StoreName: "mock"}
		store.On("Store", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
			Return("", interfaces.ErrBackendUnavailable).Twice()
		store.On("Store", mock.Anything, mock.Anything, "certificate_Jane Doe_CS_1748779200000.pdf").
			Return("QmRetried", nil).Once()

		svc, _ := newLocalService(t, store)
		verifySigner(t, svc)

		res, err := svc.IssueCertificate(ctx, issueInput())
		require.NoError(t, err)
		assert.Equal(t, "QmRetried", res.ContentHash)
		store.AssertExpectations(t)
	})

	t.Run("store stays down", func(t *testing.T) {
		store := &storage.MockContentStore{StoreName: "mock"}
		store.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", interfaces.ErrBackendUnavailable)

		svc, reg := newLocalService(t, store)
		verifySigner(t, svc)

		_, err := svc.IssueCertificate(ctx, issueInput())
		assert.True(t, interfaces.IsRetryable(err))

		// No ledger id was consumed
		total, err := reg.TotalCertificates(ctx)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		denied := errors.New("pinata upload returned 401 Unauthorized")
		store := &storage.MockContentStore{StoreName: "mock"}
		store.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", denied).Once()

		svc, _ := newLocalService(t, store)
		verifySigner(t, svc)

		_, err := svc.IssueCertificate(ctx, issueInput())
		assert.ErrorIs(t, err, denied)
		store.AssertExpectations(t)
	})

	t.Run("mixed replica failure is not retried", func(t *testing.T) {
		denied := errors.New("pinata upload returned 401 Unauthorized")
		permanent := &storage.MockContentStore{StoreName: "pinata"}
		permanent.On("Available", mock.Anything).Return(true)
		permanent.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", denied).Once()
		transient := &storage.MockContentStore{StoreName: "ipfs"}
		transient.On("Available", mock.Anything).Return(true)
		transient.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", interfaces.ErrBackendUnavailable).Once()

		multi := storage.NewMultiStore([]interfaces.ContentStore{permanent, transient}, discardLogger())
		svc, _ := newLocalService(t, multi)
		verifySigner(t, svc)

		_, err := svc.IssueCertificate(ctx, issueInput())
		assert.ErrorIs(t, err, denied)
		assert.False(t, interfaces.IsRetryable(err))
		permanent.AssertExpectations(t)
		transient.AssertExpectations(t)
	})
}

func TestService_DegradedIssuance(t *testing.T) {
	ref := interfaces.TxRef(common.HexToHash("0xabc"))
	reg := &registry.MockRegistry{}
	reg.On("IsUniversityVerified", mock.Anything, testSigner).Return(true, nil)
	reg.On("GetUniversityDetails", mock.Anything, testSigner).Return(&interfaces.University{Name: "Harvard University", Verified: true, Admin: testSigner}, nil)
	reg.On("IssueCertificate", mock.Anything, testSigner, mock.MatchedBy(func(req interfaces.IssueRequest) bool {
		return req.Student == testStudent && req.ContentHash != ""
	})).Return(interfaces.CertificateID(0), ref, interfaces.ErrDegradedResult)

	svc := New(reg, storage.NewMemoryStore(discardLogger()), render.NewPDFRenderer(), discardLogger(), testOptions())
	svc.SetClock(func() time.Time { return testNow })

	res, err := svc.IssueCertificate(context.Background(), issueInput())
	assert.ErrorIs(t, err, interfaces.ErrDegradedResult)
	require.NotNil(t, res)
	assert.Zero(t, res.ID)
	assert.Equal(t, ref, res.TxRef)
	assert.NotEmpty(t, res.ContentHash)
	reg.AssertExpectations(t)
}

func TestService_StudentCertificatesFillsStudent(t *testing.T) {
	reg := &registry.MockRegistry{}
	reg.On("GetStudentCertificates", mock.Anything, testStudent).Return([]interfaces.CertificateID{7}, nil)
	reg.On("VerifyCertificate", mock.Anything, interfaces.CertificateID(7)).
		Return(&interfaces.Certificate{ID: 7, StudentName: "Jane Doe", ContentHash: "bafkreichain", Valid: true}, true, nil)

	svc := New(reg, storage.NewMemoryStore(discardLogger()), render.NewPDFRenderer(), discardLogger(), testOptions())

	certs, err := svc.StudentCertificates(context.Background(), testStudent)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, testStudent, certs[0].Student)
	reg.AssertExpectations(t)
}

func TestService_ReadSide(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLocalService(t, storage.NewMemoryStore(discardLogger()))
	verifySigner(t, svc)

	verified, details, err := svc.UniversityStatus(ctx, testSigner)
	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, "Harvard University", details.Name)

	_, _, err = svc.UniversityStatus(ctx, testStudent)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	first, err := svc.IssueCertificate(ctx, issueInput())
	require.NoError(t, err)
	in := issueInput()
	in.CourseName = "Mathematics"
	second, err := svc.IssueCertificate(ctx, in)
	require.NoError(t, err)

	_, err = svc.RevokeCertificate(ctx, first.ID)
	require.NoError(t, err)

	certs, err := svc.StudentCertificates(ctx, testStudent)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, first.ID, certs[0].ID)
	assert.False(t, certs[0].Valid)
	assert.Equal(t, second.ID, certs[1].ID)
	assert.Equal(t, "Mathematics", certs[1].CourseName)
	assert.True(t, certs[1].Valid)

	certs, err = svc.StudentCertificates(ctx, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "duplicate_content", Outcome(interfaces.ErrDuplicateContent))
	assert.Equal(t, "upstream_unavailable", Outcome(interfaces.ErrBackendUnavailable))
	assert.Equal(t, "degraded", Outcome(interfaces.ErrDegradedResult))
	assert.Equal(t, "invalid_input", Outcome(interfaces.ErrMissingStudentName))
	assert.Equal(t, "invalid_input", Outcome(interfaces.ErrMissingContentHash))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}
