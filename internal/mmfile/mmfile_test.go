package mmfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon(t *testing.T) {
	data, cleanup, err := MapAnon(100)
	require.NoError(t, err)
	require.Len(t, data, 100)
	for i, b := range data {
		require.Zero(t, b, "byte %d not zeroed", i)
	}

	data[0] = 0xde
	data[99] = 0xef
	assert.Equal(t, byte(0xde), data[0])
	assert.Equal(t, byte(0xef), data[99])

	require.NoError(t, cleanup())
	// Second cleanup is a no-op.
	require.NoError(t, cleanup())
}

func TestMapAnonZeroLength(t *testing.T) {
	data, cleanup, err := MapAnon(0)
	require.NoError(t, err)
	assert.Empty(t, data)
	require.NotNil(t, cleanup)
	assert.NoError(t, cleanup())
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, PageSize, roundUp(1))
	assert.Equal(t, PageSize, roundUp(PageSize))
	assert.Equal(t, 2*PageSize, roundUp(PageSize+1))
}
