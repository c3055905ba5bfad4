package qwen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := wrapErr(KindLoad, cause, "loading %s", "model.onnx")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "LoadError: loading model.onnx: boom", err.Error())
}

func TestShapeMismatchError_IsAnError(t *testing.T) {
	err := newShapeMismatch("ffn_prefill", "hidden_states", []int64{1, 64, 1536}, []int64{1, 32, 1536})

	var target *ShapeMismatchError
	assert.ErrorAs(t, error(err), &target)
	assert.Equal(t, "ffn_prefill", target.Component)
	assert.Equal(t, KindShapeMismatch, target.Kind)
}

func TestPredictError_CarriesRoleAndInputs(t *testing.T) {
	cause := errors.New("session run failed")
	err := newPredictError("lm_head", "", []string{"hidden_states"}, cause)

	assert.ErrorIs(t, error(err), cause)
	assert.Equal(t, "lm_head", err.Role)
	assert.Equal(t, []string{"hidden_states"}, err.InputNames)
}
