package storage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrContentMismatch is returned when fetched bytes do not hash to the requested content hash.
var ErrContentMismatch = errors.New("content does not match its hash")

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of data.
// Stores without a native addressing scheme key documents by this value.
func ComputeCID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// VerifyContent checks data against a raw-codec content hash.
// Hashes that are not raw CIDs (for example dag-pb CIDv0 produced by IPFS
// chunking) cannot be recomputed from the bytes alone and are accepted.
func VerifyContent(contentHash string, data []byte) error {
	c, err := cid.Decode(contentHash)
	if err != nil || c.Type() != cid.Raw {
		return nil
	}

	got, err := c.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("failed to hash content: %w", err)
	}
	if !got.Equals(c) {
		return fmt.Errorf("%w: want %s, got %s", ErrContentMismatch, c, got)
	}
	return nil
}
