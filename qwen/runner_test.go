package qwen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunner_RejectsPrefillAndInferBeforeInitialize is grounded in
// original_source/'s backwards-phase isolation test: calling prefill or
// infer_next_token before the shared state exists must fail with a typed
// StateError, not panic or silently run against a nil Runtime.
func TestRunner_RejectsPrefillAndInferBeforeInitialize(t *testing.T) {
	r := &Runner{}

	err := r.Prefill(context.Background(), []int64{1, 2, 3})
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, KindState, qerr.Kind)

	_, err = r.InferNextToken(context.Background(), 1, 0)
	require.Error(t, err)
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, KindState, qerr.Kind)
}

func TestRunner_PrefillRejectsEmptyTokens(t *testing.T) {
	r := &Runner{initialized: true}
	err := r.Prefill(context.Background(), nil)
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, KindConfig, qerr.Kind)
}
