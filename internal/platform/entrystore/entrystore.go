// Package entrystore is the append-only, content-addressed entry store that
// sealed contribution payloads live in. Entries are addressed by the SHA-256
// of their bytes; links form secondary indexes from an anchor (a pool ID, a
// patient ID) to entry hashes.
package entrystore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	id "healthcommons/pkg/domain"
)

// ErrCorrupt is returned when stored bytes no longer match their address.
var ErrCorrupt = errors.New("entry content does not match its hash")

// Store is the substrate port. Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data and returns its content address. Storing the same bytes
	// twice is a no-op returning the same hash.
	Put(ctx context.Context, data []byte) (id.Hash, error)
	// Get returns the bytes stored at hash or sentinel.ErrNotFound.
	Get(ctx context.Context, hash id.Hash) ([]byte, error)
	// Link records that anchor points at target under linkType. Duplicate
	// links are ignored.
	Link(ctx context.Context, anchor string, target id.Hash, linkType string) error
	// Links returns the targets linked from anchor under linkType.
	Links(ctx context.Context, anchor string, linkType string) ([]id.Hash, error)
}

// HashOf returns the content address of data.
func HashOf(data []byte) id.Hash {
	sum := sha256.Sum256(data)
	return id.Hash(hex.EncodeToString(sum[:]))
}

// HashJSON returns the content address of v's JSON encoding. Struct fields
// encode in declaration order and map keys sorted, so equal values hash equally.
func HashJSON(v any) (id.Hash, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	return HashOf(data), nil
}

// PutJSON encodes v and stores it.
func PutJSON(ctx context.Context, s Store, v any) (id.Hash, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	return s.Put(ctx, data)
}

// GetJSON loads the entry at hash into out.
func GetJSON(ctx context.Context, s Store, hash id.Hash, out any) error {
	data, err := s.Get(ctx, hash)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode entry %s: %w", hash, err)
	}
	return nil
}

func verify(hash id.Hash, data []byte) error {
	if HashOf(data) != hash {
		return fmt.Errorf("%w: %s", ErrCorrupt, hash)
	}
	return nil
}
