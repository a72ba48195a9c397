package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3.0, 0, 1))
	assert.Equal(t, 0, Clamp(-2, 0, 10))
	assert.Equal(t, 5, Clamp(5, 0, 10))
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(0, 1, -3))
	assert.False(t, Finite(1, math.NaN()))
	assert.False(t, Finite(math.Inf(-1)))
}

func TestWrap(t *testing.T) {
	assert.InDelta(t, 0.25, Wrap(1.25), 1e-12)
	assert.InDelta(t, 0.75, Wrap(-0.25), 1e-12)
	assert.Equal(t, 0.0, Wrap(1))
}
