// Package sealing encrypts contribution payloads at rest. Each pool gets its
// own XChaCha20-Poly1305 key derived from the master key with HKDF-SHA256, and
// the pool id is bound as associated data so a sealed payload cannot be
// replayed into another pool.
package sealing

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	id "healthcommons/pkg/domain"
)

// MinMasterKeyLength is the shortest master key accepted.
const MinMasterKeyLength = 32

const keyInfoPrefix = "healthcommons/pool-seal/v1/"

var (
	ErrMasterKeyTooShort = errors.New("sealing master key must be at least 32 bytes")
	ErrMalformed         = errors.New("sealed payload is malformed")
)

type Sealer struct {
	master []byte
}

func New(master []byte) (*Sealer, error) {
	if len(master) < MinMasterKeyLength {
		return nil, ErrMasterKeyTooShort
	}
	return &Sealer{master: append([]byte(nil), master...)}, nil
}

func (s *Sealer) poolKey(poolID id.PoolID) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, s.master, nil, []byte(keyInfoPrefix+poolID.String()))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive pool key: %w", err)
	}
	return key, nil
}

// Seal returns nonce || ciphertext.
func (s *Sealer) Seal(poolID id.PoolID, plaintext []byte) ([]byte, error) {
	key, err := s.poolKey(poolID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(poolID.String())), nil
}

func (s *Sealer) Open(poolID id.PoolID, sealed []byte) ([]byte, error) {
	key, err := s.poolKey(poolID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformed
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(poolID.String()))
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return plaintext, nil
}
