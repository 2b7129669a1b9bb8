package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/certificate-registry/config"
	"github.com/ruteri/certificate-registry/interfaces"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type RegisterUniversityRequest struct {
	Name               string `json:"name" validate:"required,max=256"`
	RegistrationNumber string `json:"registrationNumber" validate:"required,max=128"`
}

type RegisterUniversityResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	TransactionHash string `json:"transactionHash"`
	Address         string `json:"address"`
}

type VerifyUniversityRequest struct {
	UniversityAddress string `json:"universityAddress" validate:"required,eth_addr"`
}

// TransactionResponse acknowledges a ledger write.
type TransactionResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	TransactionHash string `json:"transactionHash"`
}

type UniversityDetails struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber"`
	Admin              string `json:"admin"`
}

type UniversityStatusResponse struct {
	IsVerified bool              `json:"isVerified"`
	Details    UniversityDetails `json:"details"`
}

// IssueCertificateRequest is accepted as JSON or as multipart form fields.
type IssueCertificateRequest struct {
	StudentAddress string    `json:"studentAddress" validate:"required,eth_addr"`
	StudentName    string    `json:"studentName" validate:"required,max=256"`
	CourseName     string    `json:"courseName" validate:"required,max=256"`
	Grade          string    `json:"grade" validate:"required,max=64"`
	CompletionDate Timestamp `json:"completionDate"`
}

type IssueCertificateResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	CertificateID   string `json:"certificateId,omitempty"`
	IPFSHash        string `json:"ipfsHash"`
	TransactionHash string `json:"transactionHash"`
	IPFSURL         string `json:"ipfsUrl"`
	// Degraded is set when the transaction was mined but the certificate id could not be read.
	Degraded bool `json:"degraded,omitempty"`
}

// Certificate is the wire form of interfaces.Certificate.
type Certificate struct {
	ID             string    `json:"id"`
	StudentAddress string    `json:"studentAddress,omitempty"`
	StudentName    string    `json:"studentName"`
	CourseName     string    `json:"courseName"`
	University     string    `json:"university"`
	IPFSHash       string    `json:"ipfsHash"`
	IssueDate      time.Time `json:"issueDate"`
	Issuer         string    `json:"issuer"`
	Grade          string    `json:"grade"`
	CompletionDate time.Time `json:"completionDate"`
	IsValid        bool      `json:"isValid"`
	IPFSURL        string    `json:"ipfsUrl"`
}

// NewCertificate converts a ledger record. documentURL is the public link of the document.
// The student address is left empty when the ledger does not report it.
func NewCertificate(c *interfaces.Certificate, documentURL string) Certificate {
	var student string
	if c.Student != (common.Address{}) {
		student = c.Student.Hex()
	}
	return Certificate{
		ID:             c.ID.String(),
		StudentAddress: student,
		StudentName:    c.StudentName,
		CourseName:     c.CourseName,
		University:     c.University,
		IPFSHash:       c.ContentHash,
		IssueDate:      c.IssueDate.UTC(),
		Issuer:         c.Issuer.Hex(),
		Grade:          c.Grade,
		CompletionDate: c.CompletionDate.UTC(),
		IsValid:        c.Valid,
		IPFSURL:        documentURL,
	}
}

type VerifyCertificateResponse struct {
	Certificate Certificate `json:"certificate"`
	IsValid     bool        `json:"isValid"`
}

type StudentCertificatesResponse struct {
	Certificates []Certificate `json:"certificates"`
}

type TotalCertificatesResponse struct {
	Total uint64 `json:"total"`
}

type HealthResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Timestamp   time.Time       `json:"timestamp"`
	Environment config.Presence `json:"environment"`
}

// Timestamp accepts unix seconds (as a JSON number or numeric string),
// an RFC 3339 time or a plain 2006-01-02 date.
type Timestamp struct {
	time.Time
}

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// ParseTimestamp parses the textual forms accepted by Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Timestamp{time.Unix(secs, 0).UTC()}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Timestamp{t.UTC()}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return Timestamp{t}, nil
	}
	return Timestamp{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes unix seconds, the form the ledger stores.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}
