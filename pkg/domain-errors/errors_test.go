package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outermost code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeInsufficientBudget, "not enough"))
		assert.True(t, HasCode(err, CodeInsufficientBudget))
		assert.False(t, HasCode(err, CodeBudgetExhausted))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("db down")
	err := Wrap(cause, CodeInternal, "failed to load ledger")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "db down")
}

func TestWithMetaDoesNotMutateOriginal(t *testing.T) {
	base := New(CodeBudgetExhausted, "budget exhausted")
	withMeta := base.WithMeta(MetaPercentRemaining, 0.0)

	assert.Nil(t, base.Meta)
	v, ok := Meta(withMeta, MetaPercentRemaining)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}
