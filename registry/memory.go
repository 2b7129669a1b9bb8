package registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

// MemoryBackend keeps registry state in memory.
// Writers are serialized with an exclusive lock and stage their changes until
// the transaction function succeeds; readers share the lock.
type MemoryBackend struct {
	mutex        sync.RWMutex
	owner        common.Address
	universities map[common.Address]interfaces.University
	certificates map[interfaces.CertificateID]interfaces.Certificate
	hashes       map[string]interfaces.CertificateID
	students     map[common.Address][]interfaces.CertificateID
	lastID       interfaces.CertificateID
}

// NewMemoryBackend creates an empty in-memory backend owned by owner.
func NewMemoryBackend(owner common.Address) *MemoryBackend {
	return &MemoryBackend{
		owner:        owner,
		universities: make(map[common.Address]interfaces.University),
		certificates: make(map[interfaces.CertificateID]interfaces.Certificate),
		hashes:       make(map[string]interfaces.CertificateID),
		students:     make(map[common.Address][]interfaces.CertificateID),
	}
}

// Update runs fn under the write lock and applies staged changes if it succeeds.
func (m *MemoryBackend) Update(ctx context.Context, fn func(State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	tx := newMemoryTx(m, true)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn under the read lock.
func (m *MemoryBackend) View(ctx context.Context, fn func(State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return fn(newMemoryTx(m, false))
}

// Close is a no-op.
func (m *MemoryBackend) Close() error {
	return nil
}

type memoryTx struct {
	b        *MemoryBackend
	writable bool

	universities map[common.Address]interfaces.University
	certificates map[interfaces.CertificateID]interfaces.Certificate
	hashes       map[string]interfaces.CertificateID
	students     map[common.Address][]interfaces.CertificateID
	lastID       *interfaces.CertificateID
}

func newMemoryTx(b *MemoryBackend, writable bool) *memoryTx {
	tx := &memoryTx{b: b, writable: writable}
	if writable {
		tx.universities = make(map[common.Address]interfaces.University)
		tx.certificates = make(map[interfaces.CertificateID]interfaces.Certificate)
		tx.hashes = make(map[string]interfaces.CertificateID)
		tx.students = make(map[common.Address][]interfaces.CertificateID)
	}
	return tx
}

func (tx *memoryTx) commit() {
	for addr, u := range tx.universities {
		tx.b.universities[addr] = u
	}
	for id, c := range tx.certificates {
		tx.b.certificates[id] = c
	}
	for hash, id := range tx.hashes {
		tx.b.hashes[hash] = id
	}
	for student, ids := range tx.students {
		tx.b.students[student] = ids
	}
	if tx.lastID != nil {
		tx.b.lastID = *tx.lastID
	}
}

func (tx *memoryTx) Owner() common.Address {
	return tx.b.owner
}

func (tx *memoryTx) University(addr common.Address) (*interfaces.University, error) {
	if u, ok := tx.universities[addr]; ok {
		return &u, nil
	}
	if u, ok := tx.b.universities[addr]; ok {
		return &u, nil
	}
	return nil, nil
}

func (tx *memoryTx) PutUniversity(u *interfaces.University) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.universities[u.Admin] = *u
	return nil
}

func (tx *memoryTx) Certificate(id interfaces.CertificateID) (*interfaces.Certificate, error) {
	if c, ok := tx.certificates[id]; ok {
		return &c, nil
	}
	if c, ok := tx.b.certificates[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (tx *memoryTx) CertificateByHash(contentHash string) (interfaces.CertificateID, bool, error) {
	if id, ok := tx.hashes[contentHash]; ok {
		return id, true, nil
	}
	id, ok := tx.b.hashes[contentHash]
	return id, ok, nil
}

func (tx *memoryTx) PutCertificate(c *interfaces.Certificate) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.certificates[c.ID] = *c
	tx.hashes[c.ContentHash] = c.ID
	return nil
}

func (tx *memoryTx) LastCertificateID() (interfaces.CertificateID, error) {
	if tx.lastID != nil {
		return *tx.lastID, nil
	}
	return tx.b.lastID, nil
}

func (tx *memoryTx) SetLastCertificateID(id interfaces.CertificateID) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.lastID = &id
	return nil
}

func (tx *memoryTx) StudentCertificates(student common.Address) ([]interfaces.CertificateID, error) {
	ids, ok := tx.students[student]
	if !ok {
		ids = tx.b.students[student]
	}

	// Return a copy to prevent modification of internal state
	out := make([]interfaces.CertificateID, len(ids))
	copy(out, ids)
	return out, nil
}

func (tx *memoryTx) AppendStudentCertificate(student common.Address, id interfaces.CertificateID) error {
	if !tx.writable {
		return ErrReadOnly
	}
	ids, err := tx.StudentCertificates(student)
	if err != nil {
		return err
	}
	tx.students[student] = append(ids, id)
	return nil
}
