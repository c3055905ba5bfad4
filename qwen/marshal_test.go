package qwen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	onnx "github.com/yalue/onnxruntime_go"
)

func TestNewFeatureProvider_PreservesOrderAndSupportsLookup(t *testing.T) {
	names := []string{"input_ids", "position_ids"}
	values := []onnx.Value{nil, nil}

	fp, err := NewFeatureProvider(names, values)
	require.NoError(t, err)
	assert.Equal(t, names, fp.Names())

	_, ok := fp.Lookup("position_ids")
	assert.True(t, ok)
	_, ok = fp.Lookup("current_pos")
	assert.False(t, ok)
}

func TestNewFeatureProvider_RejectsMismatchedLengths(t *testing.T) {
	_, err := NewFeatureProvider([]string{"a", "b"}, []onnx.Value{nil})
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, KindShapeMismatch, qerr.Kind)
}
