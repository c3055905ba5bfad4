package floatcmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClose(t *testing.T) {
	assert.True(t, Close(1.0, 1.001, 0.01))
	assert.False(t, Close(1.0, 1.1, 0.01))
}

func TestSlicesClose_RejectsLengthMismatch(t *testing.T) {
	assert.False(t, SlicesClose([]float32{1, 2}, []float32{1}, 0.01))
}

func TestSlicesClose_WithinTolerancePasses(t *testing.T) {
	a := []float32{1.0, 2.0, 3.0}
	b := []float32{1.001, 1.999, 3.002}
	assert.True(t, SlicesClose(a, b, 1e-2))
}

func TestMaxAbsDiff(t *testing.T) {
	a := []float32{1.0, 5.0}
	b := []float32{1.5, 4.0}
	assert.InDelta(t, 1.0, MaxAbsDiff(a, b), 1e-9)
}
