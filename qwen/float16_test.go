package qwen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/x448/float16"

	"github.com/scriptmaster/qwen-infer-go/internal/floatcmp"
)

// TestFloat16RoundTrip exercises the same Frombits().Float32() conversion
// MLArrayToTensor applies to an f16 lm_head/hidden_states output, without
// requiring a live ONNX Runtime session.
func TestFloat16RoundTrip(t *testing.T) {
	want := []float32{0, 1, -1, 0.5, 3.14159, -123.25}

	raw := make([]float32, len(want))
	for i, v := range want {
		h := float16.Fromfloat32(v)
		raw[i] = float16.Frombits(h.Bits()).Float32()
	}

	assert.True(t, floatcmp.SlicesClose(want, raw, floatcmp.DefaultTolerance),
		"max diff %f exceeds tolerance", floatcmp.MaxAbsDiff(want, raw))
}
