package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestButtonAxis(t *testing.T) {
	for _, tc := range []struct {
		pos, neg bool
		expected int32
	}{
		{false, false, 0},
		{true, true, 0},
		{true, false, 80},
		{false, true, -80},
	} {
		axis := ButtonAxis(Pressed(tc.pos), Pressed(tc.neg), 80)
		assert.Equal(t, tc.expected, axis(), "pos=%v neg=%v", tc.pos, tc.neg)
	}
}

func TestButtonAxisSamplesEachButtonOnce(t *testing.T) {
	var posCalls, negCalls int
	axis := ButtonAxis(
		func() bool { posCalls++; return true },
		func() bool { negCalls++; return false },
		50,
	)
	assert.Equal(t, int32(50), axis())
	assert.Equal(t, 1, posCalls)
	assert.Equal(t, 1, negCalls)
}

func TestSaturate(t *testing.T) {
	assert.Equal(t, int32(100), Saturate(127, 100))
	assert.Equal(t, int32(-100), Saturate(-32767, 100))
	assert.Equal(t, int32(42), Saturate(42, 100))
	assert.Equal(t, int32(-100), Saturate(-100, 100))
}

func TestNeverAndConstant(t *testing.T) {
	assert.False(t, Never())
	assert.Equal(t, int32(-7), Constant(-7)())
}
