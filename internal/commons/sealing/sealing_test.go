package sealing

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "healthcommons/pkg/domain"
)

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := New(bytes.Repeat([]byte{7}, MinMasterKeyLength))
	require.NoError(t, err)
	return s
}

func TestSealOpen(t *testing.T) {
	s := newSealer(t)
	poolID := id.PoolID(uuid.New())

	sealed, err := s.Seal(poolID, []byte(`{"value":4.2}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "4.2")

	plain, err := s.Open(poolID, sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"value":4.2}`, string(plain))
}

func TestSealIsRandomized(t *testing.T) {
	s := newSealer(t)
	poolID := id.PoolID(uuid.New())
	a, err := s.Seal(poolID, []byte("same"))
	require.NoError(t, err)
	b, err := s.Seal(poolID, []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsOtherPool(t *testing.T) {
	s := newSealer(t)
	sealed, err := s.Seal(id.PoolID(uuid.New()), []byte("secret"))
	require.NoError(t, err)

	_, err = s.Open(id.PoolID(uuid.New()), sealed)
	assert.Error(t, err)
}

func TestOpenRejectsTampering(t *testing.T) {
	s := newSealer(t)
	poolID := id.PoolID(uuid.New())
	sealed, err := s.Seal(poolID, []byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = s.Open(poolID, sealed)
	assert.Error(t, err)

	_, err = s.Open(poolID, sealed[:4])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New([]byte("short"))
	assert.ErrorIs(t, err, ErrMasterKeyTooShort)
}
