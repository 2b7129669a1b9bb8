package registry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
	"go.etcd.io/bbolt"
)

var (
	bucketUniversities = []byte("universities")
	bucketCertificates = []byte("certificates")
	bucketHashes       = []byte("content_hashes")
	bucketStudents     = []byte("students")
	bucketMetadata     = []byte("metadata")

	keyOwner  = []byte("owner")
	keyLastID = []byte("last_certificate_id")
)

// ErrOwnerMismatch is returned when a database is opened with a different owner than it was created with.
var ErrOwnerMismatch = errors.New("registry: database belongs to a different owner")

// BoltBackend persists registry state in a bbolt database.
// bbolt allows a single read-write transaction at a time and any number of
// concurrent read-only transactions, each seeing a consistent snapshot.
type BoltBackend struct {
	db    *bbolt.DB
	owner common.Address
}

// NewBoltBackend opens (or creates) the database at path.
// A new database records owner; an existing one must have been created with
// the same owner. A zero owner accepts whatever owner is stored.
func NewBoltBackend(path string, owner common.Address) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var stored common.Address
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUniversities, bucketCertificates, bucketHashes, bucketStudents, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketMetadata)
		if raw := meta.Get(keyOwner); raw != nil {
			stored = common.BytesToAddress(raw)
			if owner != (common.Address{}) && stored != owner {
				return fmt.Errorf("%w: stored %s, configured %s", ErrOwnerMismatch, stored.Hex(), owner.Hex())
			}
			return nil
		}

		if owner == (common.Address{}) {
			return errors.New("registry: owner required to initialize a new database")
		}
		stored = owner
		return meta.Put(keyOwner, owner.Bytes())
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBackend{db: db, owner: stored}, nil
}

// Update runs fn in a read-write bbolt transaction.
func (b *BoltBackend) Update(ctx context.Context, fn func(State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx, owner: b.owner})
	})
}

// View runs fn in a read-only bbolt transaction.
func (b *BoltBackend) View(ctx context.Context, fn func(State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx, owner: b.owner})
	})
}

// Close closes the database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

type boltTx struct {
	tx    *bbolt.Tx
	owner common.Address
}

func idKey(id interfaces.CertificateID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func (t *boltTx) bucket(name []byte) (*bbolt.Bucket, error) {
	bucket := t.tx.Bucket(name)
	if bucket == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return bucket, nil
}

func (t *boltTx) put(name, key []byte, v any) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	bucket, err := t.bucket(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", name, err)
	}
	return bucket.Put(key, data)
}

func (t *boltTx) get(name, key []byte, v any) (bool, error) {
	bucket, err := t.bucket(name)
	if err != nil {
		return false, err
	}
	data := bucket.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s record: %w", name, err)
	}
	return true, nil
}

func (t *boltTx) Owner() common.Address {
	return t.owner
}

func (t *boltTx) University(addr common.Address) (*interfaces.University, error) {
	var u interfaces.University
	found, err := t.get(bucketUniversities, addr.Bytes(), &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (t *boltTx) PutUniversity(u *interfaces.University) error {
	return t.put(bucketUniversities, u.Admin.Bytes(), u)
}

func (t *boltTx) Certificate(id interfaces.CertificateID) (*interfaces.Certificate, error) {
	var c interfaces.Certificate
	found, err := t.get(bucketCertificates, idKey(id), &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

func (t *boltTx) CertificateByHash(contentHash string) (interfaces.CertificateID, bool, error) {
	bucket, err := t.bucket(bucketHashes)
	if err != nil {
		return 0, false, err
	}
	raw := bucket.Get([]byte(contentHash))
	if raw == nil {
		return 0, false, nil
	}
	return interfaces.CertificateID(binary.BigEndian.Uint64(raw)), true, nil
}

func (t *boltTx) PutCertificate(c *interfaces.Certificate) error {
	if err := t.put(bucketCertificates, idKey(c.ID), c); err != nil {
		return err
	}
	bucket, err := t.bucket(bucketHashes)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(c.ContentHash), idKey(c.ID))
}

func (t *boltTx) LastCertificateID() (interfaces.CertificateID, error) {
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return 0, err
	}
	raw := bucket.Get(keyLastID)
	if raw == nil {
		return 0, nil
	}
	return interfaces.CertificateID(binary.BigEndian.Uint64(raw)), nil
}

func (t *boltTx) SetLastCertificateID(id interfaces.CertificateID) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return err
	}
	return bucket.Put(keyLastID, idKey(id))
}

func (t *boltTx) StudentCertificates(student common.Address) ([]interfaces.CertificateID, error) {
	ids := []interfaces.CertificateID{}
	if _, err := t.get(bucketStudents, student.Bytes(), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *boltTx) AppendStudentCertificate(student common.Address, id interfaces.CertificateID) error {
	ids, err := t.StudentCertificates(student)
	if err != nil {
		return err
	}
	return t.put(bucketStudents, student.Bytes(), append(ids, id))
}
