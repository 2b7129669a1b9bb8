package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/certificate-registry/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// ErrTransactionFailed is returned when a mined transaction has a failed status.
var ErrTransactionFailed = errors.New("transaction failed")

// DefaultReceiptTimeout bounds how long a write waits for its receipt.
const DefaultReceiptTimeout = 2 * time.Minute

// OnchainRegistryClient implements interfaces.CertificateRegistry against a
// UniversityCertificate contract deployed on an Ethereum-compatible chain.
// The chain serializes transitions; the client signs every write as the
// account in its TransactOpts.
type OnchainRegistryClient struct {
	contract       *bind.BoundContract
	client         bind.ContractBackend
	backend        bind.DeployBackend
	address        common.Address
	auth           *bind.TransactOpts
	receiptTimeout time.Duration
}

// NewOnchainRegistryClient creates a new client for the contract at address.
// It requires a ContractBackend for calls and transactions and a DeployBackend
// for receipts.
func NewOnchainRegistryClient(client bind.ContractBackend, backend bind.DeployBackend, address common.Address) (*OnchainRegistryClient, error) {
	if client == nil || backend == nil {
		return nil, errors.New("registry: nil chain backend")
	}

	return &OnchainRegistryClient{
		contract:       bind.NewBoundContract(address, parsedABI, client, client, client),
		client:         client,
		backend:        backend,
		address:        address,
		receiptTimeout: DefaultReceiptTimeout,
	}, nil
}

// SetTransactOpts sets the transaction options required for functions that modify state.
// This must be called before using any methods that send transactions to the blockchain.
func (c *OnchainRegistryClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// SetReceiptTimeout overrides DefaultReceiptTimeout.
func (c *OnchainRegistryClient) SetReceiptTimeout(d time.Duration) {
	c.receiptTimeout = d
}

// Address returns the contract address.
func (c *OnchainRegistryClient) Address() common.Address {
	return c.address
}

// Signer returns the account writes are signed with, or the zero address when none is set.
func (c *OnchainRegistryClient) Signer() common.Address {
	if c.auth == nil {
		return common.Address{}
	}
	return c.auth.From
}

// Owner returns the contract owner, the only account allowed to verify universities.
func (c *OnchainRegistryClient) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "owner"); err != nil {
		return common.Address{}, classifyError(err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *OnchainRegistryClient) RegisterUniversity(ctx context.Context, caller common.Address, name, registrationNumber string) (interfaces.TxRef, error) {
	receipt, err := c.transact(ctx, caller, "registerUniversity", name, registrationNumber)
	if err != nil {
		return interfaces.TxRef{}, err
	}
	return interfaces.TxRef(receipt.TxHash), nil
}

func (c *OnchainRegistryClient) VerifyUniversity(ctx context.Context, caller, university common.Address) (interfaces.TxRef, error) {
	receipt, err := c.transact(ctx, caller, "verifyUniversity", university)
	if err != nil {
		return interfaces.TxRef{}, err
	}
	return interfaces.TxRef(receipt.TxHash), nil
}

// IssueCertificate sends issueCertificate and reads the new id from the
// CertificateIssued log. When the log is missing the transaction reference is
// returned with ErrDegradedResult.
func (c *OnchainRegistryClient) IssueCertificate(ctx context.Context, caller common.Address, req interfaces.IssueRequest) (interfaces.CertificateID, interfaces.TxRef, error) {
	receipt, err := c.transact(ctx, caller, "issueCertificate",
		req.Student,
		req.StudentName,
		req.CourseName,
		req.ContentHash,
		req.Grade,
		big.NewInt(req.CompletionDate.Unix()),
	)
	if err != nil {
		return 0, interfaces.TxRef{}, err
	}

	ref := interfaces.TxRef(receipt.TxHash)
	issuedID := parsedABI.Events["CertificateIssued"].ID
	for _, log := range receipt.Logs {
		if log == nil || log.Address != c.address || len(log.Topics) == 0 || log.Topics[0] != issuedID {
			continue
		}
		var ev certificateIssuedEvent
		if err := c.contract.UnpackLog(&ev, "CertificateIssued", *log); err != nil {
			continue
		}
		return interfaces.CertificateID(ev.CertificateId.Uint64()), ref, nil
	}

	return 0, ref, fmt.Errorf("%w: no CertificateIssued log in %s", interfaces.ErrDegradedResult, receipt.TxHash.Hex())
}

// RevokeCertificate sends revokeCertificate as caller and waits for it to be mined.
func (c *OnchainRegistryClient) RevokeCertificate(ctx context.Context, caller common.Address, id interfaces.CertificateID) (interfaces.TxRef, error) {
	receipt, err := c.transact(ctx, caller, "revokeCertificate", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return interfaces.TxRef{}, err
	}
	return interfaces.TxRef(receipt.TxHash), nil
}

func (c *OnchainRegistryClient) VerifyCertificate(ctx context.Context, id interfaces.CertificateID) (*interfaces.Certificate, bool, error) {
	return c.verify(ctx, "verifyCertificate", new(big.Int).SetUint64(uint64(id)))
}

func (c *OnchainRegistryClient) VerifyCertificateByHash(ctx context.Context, contentHash string) (*interfaces.Certificate, bool, error) {
	return c.verify(ctx, "verifyCertificateByHash", contentHash)
}

func (c *OnchainRegistryClient) verify(ctx context.Context, method string, arg interface{}) (*interfaces.Certificate, bool, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, arg); err != nil {
		return nil, false, classifyError(err)
	}

	tuple := *abi.ConvertType(out[0], new(certificateTuple)).(*certificateTuple)
	valid := *abi.ConvertType(out[1], new(bool)).(*bool)
	if tuple.Id == nil || tuple.Id.Sign() == 0 {
		return nil, false, fmt.Errorf("%w: %s(%v)", interfaces.ErrNotFound, method, arg)
	}
	return tuple.toCertificate(), valid, nil
}

// GetStudentCertificates returns the ids issued to student, oldest first.
func (c *OnchainRegistryClient) GetStudentCertificates(ctx context.Context, student common.Address) ([]interfaces.CertificateID, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getStudentCertificates", student); err != nil {
		return nil, classifyError(err)
	}

	raw := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	ids := make([]interfaces.CertificateID, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, interfaces.CertificateID(v.Uint64()))
	}
	return ids, nil
}

func (c *OnchainRegistryClient) IsUniversityVerified(ctx context.Context, university common.Address) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isUniversityVerified", university); err != nil {
		return false, classifyError(err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// GetUniversityDetails maps the contract's empty record for unknown addresses to ErrNotFound.
func (c *OnchainRegistryClient) GetUniversityDetails(ctx context.Context, university common.Address) (*interfaces.University, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUniversityDetails", university); err != nil {
		return nil, classifyError(err)
	}

	tuple := *abi.ConvertType(out[0], new(universityTuple)).(*universityTuple)
	if tuple.Admin == (common.Address{}) {
		return nil, fmt.Errorf("%w: university %s", interfaces.ErrNotFound, university.Hex())
	}
	return &interfaces.University{
		Name:               tuple.Name,
		RegistrationNumber: tuple.RegistrationNumber,
		Verified:           tuple.IsVerified,
		Admin:              tuple.Admin,
	}, nil
}

func (c *OnchainRegistryClient) TotalCertificates(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getTotalCertificates"); err != nil {
		return 0, classifyError(err)
	}
	return (*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64(), nil
}

// transact signs and sends a contract call as caller and waits for its receipt.
func (c *OnchainRegistryClient) transact(ctx context.Context, caller common.Address, method string, params ...interface{}) (*types.Receipt, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}
	if caller != c.auth.From {
		return nil, fmt.Errorf("%w: client signs as %s, not %s", interfaces.ErrUnauthorized, c.auth.From.Hex(), caller.Hex())
	}

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, classifyError(err)
	}

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s %s", ErrTransactionFailed, method, tx.Hash().Hex())
	}
	return receipt, nil
}

// waitMined polls for the receipt of txHash with exponential backoff.
func (c *OnchainRegistryClient) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = c.receiptTimeout

	var receipt *types.Receipt
	err := backoff.Retry(func() error {
		r, err := c.backend.TransactionReceipt(ctx, txHash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return err
			}
			if classified := classifyError(err); interfaces.IsRetryable(classified) {
				return classified
			}
			return backoff.Permanent(err)
		}
		receipt = r
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for receipt of %s: %v", interfaces.ErrUpstreamUnavailable, txHash.Hex(), err)
	}
	return receipt, nil
}

// classifyError maps revert reasons to ledger errors and transport failures to ErrUpstreamUnavailable.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	for _, r := range revertReasons {
		if strings.Contains(msg, r.reason) {
			return fmt.Errorf("%w: %v", r.err, err)
		}
	}
	if strings.Contains(msg, "execution reverted") {
		return err
	}

	var netErr net.Error
	var httpErr rpc.HTTPError
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "connection refused"),
		errors.As(err, &httpErr) && httpErr.StatusCode >= 500:
		return fmt.Errorf("%w: %v", interfaces.ErrUpstreamUnavailable, err)
	}
	return err
}

var _ interfaces.CertificateRegistry = (*OnchainRegistryClient)(nil)

// RegistryFactory creates CertificateRegistry clients for different contract addresses.
type RegistryFactory struct {
	client  bind.ContractBackend
	backend bind.DeployBackend
	auth    *bind.TransactOpts

	receiptTimeout time.Duration
}

// NewRegistryFactory creates a new factory for registry clients.
// It requires a ContractBackend for reading from the blockchain and a DeployBackend for transactions.
func NewRegistryFactory(client bind.ContractBackend, backend bind.DeployBackend) *RegistryFactory {
	return &RegistryFactory{client: client, backend: backend}
}

// SetTransactOpts sets the signer for clients created afterwards.
func (f *RegistryFactory) SetTransactOpts(auth *bind.TransactOpts) {
	f.auth = auth
}

// SetReceiptTimeout sets how long clients created afterwards wait for a transaction to be mined.
func (f *RegistryFactory) SetReceiptTimeout(d time.Duration) {
	f.receiptTimeout = d
}

// RegistryFor returns a client for the specified contract address.
func (f *RegistryFactory) RegistryFor(address common.Address) (interfaces.CertificateRegistry, error) {
	client, err := NewOnchainRegistryClient(f.client, f.backend, address)
	if err != nil {
		return nil, err
	}
	if f.auth != nil {
		client.SetTransactOpts(f.auth)
	}
	if f.receiptTimeout > 0 {
		client.SetReceiptTimeout(f.receiptTimeout)
	}
	return client, nil
}
