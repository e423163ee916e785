package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SameSeedSameSequence(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 16; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestNewSeeded(t *testing.T) {
	r, err := NewSeeded()
	require.NoError(t, err)
	f := r.Float64()
	assert.GreaterOrEqual(t, f, 0.0)
	assert.Less(t, f, 1.0)
}
