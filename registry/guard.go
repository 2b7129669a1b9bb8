package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

// Guard decides whether a caller may perform a registry action.
// It reads state but never mutates it.
type Guard struct{}

// CanRegister allows any caller that has no university record yet.
func (Guard) CanRegister(st State, caller common.Address) error {
	existing, err := st.University(caller)
	if err != nil {
		return err
	}
	if existing != nil {
		return interfaces.ErrAlreadyRegistered
	}
	return nil
}

// CanVerify allows only the registry owner.
func (Guard) CanVerify(st State, caller common.Address) error {
	if caller != st.Owner() {
		return fmt.Errorf("%w: only the registry owner may verify universities", interfaces.ErrUnauthorized)
	}
	return nil
}

// CanIssue allows callers whose own university record exists and is verified.
// It returns that record.
func (Guard) CanIssue(st State, caller common.Address) (*interfaces.University, error) {
	u, err := st.University(caller)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Verified {
		return nil, fmt.Errorf("%w: university not verified", interfaces.ErrUnauthorized)
	}
	return u, nil
}

// CanRevoke allows only the issuer stored on the certificate.
func (Guard) CanRevoke(cert *interfaces.Certificate, caller common.Address) error {
	if cert.Issuer != caller {
		return interfaces.ErrNotIssuer
	}
	return nil
}
