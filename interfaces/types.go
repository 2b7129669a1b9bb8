package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CertificateID identifies a certificate. Ids are allocated from 1 and never reused.
type CertificateID uint64

// ParseCertificateID parses a decimal certificate id. Zero is never a valid id.
func ParseCertificateID(s string) (CertificateID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid certificate id %q: %w", s, err)
	}
	if v == 0 {
		return 0, errors.New("invalid certificate id: ids start at 1")
	}
	return CertificateID(v), nil
}

// String returns the decimal representation.
func (id CertificateID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// TxRef references the ledger transaction that applied a state transition.
type TxRef common.Hash

// String returns the 0x-prefixed hex representation.
func (r TxRef) String() string {
	return common.Hash(r).Hex()
}

// ParseAddress strictly parses a 20-byte hex address with an optional 0x prefix.
func ParseAddress(addr string) (common.Address, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(clean) != 40 {
		return common.Address{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return common.BytesToAddress(addrBytes), nil
}

// University is the registration record of a university, keyed by its admin address.
type University struct {
	Name               string         `json:"name"`
	RegistrationNumber string         `json:"registrationNumber"`
	Verified           bool           `json:"isVerified"`
	Admin              common.Address `json:"admin"`
}

// Certificate is an issued certificate. Once issued only Valid may change,
// and only from true to false.
type Certificate struct {
	ID          CertificateID  `json:"id"`
	Student     common.Address `json:"student"`
	StudentName string         `json:"studentName"`
	CourseName  string         `json:"courseName"`
	// University is the issuer's university name at issue time.
	University     string         `json:"university"`
	ContentHash    string         `json:"ipfsHash"`
	IssueDate      time.Time      `json:"issueDate"`
	Issuer         common.Address `json:"issuer"`
	Valid          bool           `json:"isValid"`
	Grade          string         `json:"grade"`
	CompletionDate time.Time      `json:"completionDate"`
}

// IssueRequest carries the fields supplied by the issuer.
type IssueRequest struct {
	Student        common.Address
	StudentName    string
	CourseName     string
	ContentHash    string
	Grade          string
	CompletionDate time.Time
}
