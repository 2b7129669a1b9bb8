package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

// directory holds one university record per address.
type directory struct {
	guard Guard
}

func (d directory) register(st State, caller common.Address, name, registrationNumber string) error {
	if err := d.guard.CanRegister(st, caller); err != nil {
		return err
	}
	if name == "" {
		return interfaces.ErrMissingUniversityName
	}

	return st.PutUniversity(&interfaces.University{
		Name:               name,
		RegistrationNumber: registrationNumber,
		Verified:           false,
		Admin:              caller,
	})
}

// verify is idempotent: verifying a verified university succeeds without changes.
func (d directory) verify(st State, caller, target common.Address) error {
	if err := d.guard.CanVerify(st, caller); err != nil {
		return err
	}

	u, err := st.University(target)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("%w: university %s", interfaces.ErrNotFound, target.Hex())
	}
	if u.Verified {
		return nil
	}

	u.Verified = true
	return st.PutUniversity(u)
}

func (d directory) isVerified(st State, addr common.Address) (bool, error) {
	u, err := st.University(addr)
	if err != nil {
		return false, err
	}
	return u != nil && u.Verified, nil
}

func (d directory) details(st State, addr common.Address) (*interfaces.University, error) {
	u, err := st.University(addr)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: university %s", interfaces.ErrNotFound, addr.Hex())
	}
	return u, nil
}
