package registry

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

// UniversityCertificateABI is the input ABI of the UniversityCertificate contract.
const UniversityCertificateABI = `[
{"type":"function","name":"registerUniversity","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string","internalType":"string"},{"name":"registrationNumber","type":"string","internalType":"string"}],"outputs":[]},
{"type":"function","name":"verifyUniversity","stateMutability":"nonpayable","inputs":[{"name":"universityAddress","type":"address","internalType":"address"}],"outputs":[]},
{"type":"function","name":"issueCertificate","stateMutability":"nonpayable","inputs":[{"name":"studentAddress","type":"address","internalType":"address"},{"name":"studentName","type":"string","internalType":"string"},{"name":"courseName","type":"string","internalType":"string"},{"name":"ipfsHash","type":"string","internalType":"string"},{"name":"grade","type":"string","internalType":"string"},{"name":"completionDate","type":"uint256","internalType":"uint256"}],"outputs":[]},
{"type":"function","name":"revokeCertificate","stateMutability":"nonpayable","inputs":[{"name":"certificateId","type":"uint256","internalType":"uint256"}],"outputs":[]},
{"type":"function","name":"verifyCertificate","stateMutability":"view","inputs":[{"name":"certificateId","type":"uint256","internalType":"uint256"}],"outputs":[{"name":"certificate","type":"tuple","internalType":"struct UniversityCertificate.Certificate","components":[{"name":"id","type":"uint256","internalType":"uint256"},{"name":"studentName","type":"string","internalType":"string"},{"name":"courseName","type":"string","internalType":"string"},{"name":"university","type":"string","internalType":"string"},{"name":"ipfsHash","type":"string","internalType":"string"},{"name":"issueDate","type":"uint256","internalType":"uint256"},{"name":"issuer","type":"address","internalType":"address"},{"name":"isValid","type":"bool","internalType":"bool"},{"name":"grade","type":"string","internalType":"string"},{"name":"completionDate","type":"uint256","internalType":"uint256"}]},{"name":"isValid","type":"bool","internalType":"bool"}]},
{"type":"function","name":"verifyCertificateByHash","stateMutability":"view","inputs":[{"name":"ipfsHash","type":"string","internalType":"string"}],"outputs":[{"name":"certificate","type":"tuple","internalType":"struct UniversityCertificate.Certificate","components":[{"name":"id","type":"uint256","internalType":"uint256"},{"name":"studentName","type":"string","internalType":"string"},{"name":"courseName","type":"string","internalType":"string"},{"name":"university","type":"string","internalType":"string"},{"name":"ipfsHash","type":"string","internalType":"string"},{"name":"issueDate","type":"uint256","internalType":"uint256"},{"name":"issuer","type":"address","internalType":"address"},{"name":"isValid","type":"bool","internalType":"bool"},{"name":"grade","type":"string","internalType":"string"},{"name":"completionDate","type":"uint256","internalType":"uint256"}]},{"name":"isValid","type":"bool","internalType":"bool"}]},
{"type":"function","name":"getStudentCertificates","stateMutability":"view","inputs":[{"name":"studentAddress","type":"address","internalType":"address"}],"outputs":[{"name":"","type":"uint256[]","internalType":"uint256[]"}]},
{"type":"function","name":"isUniversityVerified","stateMutability":"view","inputs":[{"name":"universityAddress","type":"address","internalType":"address"}],"outputs":[{"name":"","type":"bool","internalType":"bool"}]},
{"type":"function","name":"getUniversityDetails","stateMutability":"view","inputs":[{"name":"universityAddress","type":"address","internalType":"address"}],"outputs":[{"name":"","type":"tuple","internalType":"struct UniversityCertificate.University","components":[{"name":"name","type":"string","internalType":"string"},{"name":"registrationNumber","type":"string","internalType":"string"},{"name":"isVerified","type":"bool","internalType":"bool"},{"name":"admin","type":"address","internalType":"address"}]}]},
{"type":"function","name":"getTotalCertificates","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256","internalType":"uint256"}]},
{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address","internalType":"address"}]},
{"type":"event","name":"UniversityRegistered","anonymous":false,"inputs":[{"name":"university","type":"address","indexed":true,"internalType":"address"},{"name":"name","type":"string","indexed":false,"internalType":"string"}]},
{"type":"event","name":"UniversityVerified","anonymous":false,"inputs":[{"name":"university","type":"address","indexed":true,"internalType":"address"}]},
{"type":"event","name":"CertificateIssued","anonymous":false,"inputs":[{"name":"certificateId","type":"uint256","indexed":true,"internalType":"uint256"},{"name":"student","type":"address","indexed":true,"internalType":"address"},{"name":"university","type":"address","indexed":true,"internalType":"address"},{"name":"ipfsHash","type":"string","indexed":false,"internalType":"string"}]},
{"type":"event","name":"CertificateRevoked","anonymous":false,"inputs":[{"name":"certificateId","type":"uint256","indexed":true,"internalType":"uint256"}]}
]`

// parsedABI is the parsed UniversityCertificateABI.
var parsedABI = mustParseABI(UniversityCertificateABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// certificateTuple mirrors the contract's Certificate struct.
type certificateTuple struct {
	Id             *big.Int
	StudentName    string
	CourseName     string
	University     string
	IpfsHash       string
	IssueDate      *big.Int
	Issuer         common.Address
	IsValid        bool
	Grade          string
	CompletionDate *big.Int
}

// universityTuple mirrors the contract's University struct.
type universityTuple struct {
	Name               string
	RegistrationNumber string
	IsVerified         bool
	Admin              common.Address
}

// certificateIssuedEvent is the CertificateIssued log.
type certificateIssuedEvent struct {
	CertificateId *big.Int
	Student       common.Address
	University    common.Address
	IpfsHash      string
}

// revertReasons maps contract revert messages to ledger errors.
// The first entry for an error is the message the contract uses for it.
var revertReasons = []struct {
	reason string
	err    error
}{
	{"University already registered", interfaces.ErrAlreadyRegistered},
	{"University name required", interfaces.ErrMissingUniversityName},
	{"University not verified", interfaces.ErrUnauthorized},
	{"OwnableUnauthorizedAccount", interfaces.ErrUnauthorized},
	{"Invalid student address", interfaces.ErrInvalidStudent},
	{"Student name required", interfaces.ErrMissingStudentName},
	{"Certificate already exists", interfaces.ErrDuplicateContent},
	{"Invalid completion date", interfaces.ErrInvalidCompletionDate},
	{"Certificate does not exist", interfaces.ErrNotFound},
	{"Certificate not found", interfaces.ErrNotFound},
	{"University not found", interfaces.ErrNotFound},
	{"Not the issuing university", interfaces.ErrNotIssuer},
	{"Certificate already revoked", interfaces.ErrAlreadyRevoked},
}

func (t certificateTuple) toCertificate() *interfaces.Certificate {
	return &interfaces.Certificate{
		ID:             interfaces.CertificateID(t.Id.Uint64()),
		StudentName:    t.StudentName,
		CourseName:     t.CourseName,
		University:     t.University,
		ContentHash:    t.IpfsHash,
		IssueDate:      unixTime(t.IssueDate),
		Issuer:         t.Issuer,
		Valid:          t.IsValid,
		Grade:          t.Grade,
		CompletionDate: unixTime(t.CompletionDate),
	}
}

func unixTime(v *big.Int) time.Time {
	if v == nil {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
