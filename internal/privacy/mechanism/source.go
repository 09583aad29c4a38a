// Package mechanism implements the noise mechanisms used to answer
// differentially-private queries. Every draw comes from a Source; production
// code uses CryptoSource so noise cannot be predicted or replayed.
package mechanism

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Source yields uniform draws in the open interval (0, 1).
type Source interface {
	Uniform() (float64, error)
}

// CryptoSource reads from the operating system CSPRNG.
type CryptoSource struct{}

const twoTo53 = 1 << 53

func (CryptoSource) Uniform() (float64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("read random bytes: %w", err)
		}
		// 53 random bits give every representable multiple of 2^-53 in [0, 1).
		u := float64(binary.LittleEndian.Uint64(buf[:])>>11) / twoTo53
		if u > 0 {
			return u, nil
		}
	}
}
