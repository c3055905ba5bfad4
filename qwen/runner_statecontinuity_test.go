package qwen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePredictor is a stub predictor that records every Runtime instance
// passed to PredictWithState, used to exercise spec.md §8 scenario 4
// (state continuity) without a live ONNX Runtime session.
type fakePredictor struct {
	cc             ComponentConfig
	cacheSlotNames []string
	output         map[string]*Tensor

	states []*Runtime
}

func (f *fakePredictor) ComponentConfig() ComponentConfig { return f.cc }

func (f *fakePredictor) MakeState() (*Runtime, error) {
	slots := make(map[string]*Tensor, len(f.cacheSlotNames))
	for _, name := range f.cacheSlotNames {
		slots[name] = NewF32Tensor([]int64{0}, nil)
	}
	return &Runtime{slots: slots}, nil
}

func (f *fakePredictor) Predict(map[string]*Tensor) (map[string]*Tensor, error) {
	return f.output, nil
}

func (f *fakePredictor) PredictWithState(_ map[string]*Tensor, state *Runtime) (map[string]*Tensor, error) {
	f.states = append(f.states, state)
	return f.output, nil
}

// TestRunner_StateContinuity is grounded in spec.md §8 scenario 4: using a
// stub component that records every predict call, run prefill over 8
// tokens followed by one infer_next_token call, and assert that exactly
// one Runtime instance is observed by every recorded call.
func TestRunner_StateContinuity(t *testing.T) {
	cfg := &ModelConfig{
		Shapes: ShapeConfig{BatchSize: 8, ContextLength: 8, HiddenSize: 2, VocabSize: 3},
	}

	embeddings := &fakePredictor{
		cc: ComponentConfig{
			Inputs: map[string]TensorSpec{
				"input_ids": {Shape: []int64{1, 8}, DataType: DTypeI64},
			},
		},
		output: map[string]*Tensor{
			"hidden_states": NewF32Tensor([]int64{1, 8, 2}, make([]float32, 16)),
		},
	}
	ffnPrefill := &fakePredictor{
		cc: ComponentConfig{
			Inputs: map[string]TensorSpec{
				"hidden_states": {Shape: []int64{1, 8, 2}, DataType: DTypeF32},
				"position_ids":  {Shape: []int64{8}, DataType: DTypeI64},
				"past_key":      {Shape: []int64{1, 8, 0, 2}, DataType: DTypeF32},
			},
		},
		cacheSlotNames: []string{"past_key"},
		output: map[string]*Tensor{
			"hidden_out": NewF32Tensor([]int64{1, 1, 2}, []float32{0.1, 0.2}),
		},
	}
	lmHead := &fakePredictor{
		output: map[string]*Tensor{
			"logits": NewF32Tensor([]int64{1, 1, 3}, []float32{0.1, 0.2, 0.3}),
		},
	}

	r := NewRunner(cfg, embeddings, ffnPrefill, nil, lmHead, nil, nil)
	require.NoError(t, r.Initialize(context.Background()))

	tokens := []int64{1, 2, 3, 4, 5, 6, 7, 8} // a..h
	require.NoError(t, r.Prefill(context.Background(), tokens))

	_, err := r.InferNextToken(context.Background(), tokens[len(tokens)-1], len(tokens)-1)
	require.NoError(t, err)

	require.NotEmpty(t, ffnPrefill.states)
	want := r.state
	require.NotNil(t, want)
	for i, got := range ffnPrefill.states {
		assert.Samef(t, want, got, "predict call %d observed a different state instance", i)
	}
}
