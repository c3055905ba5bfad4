package qwen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveShapes_FallsBackToPositionIDsWhenHiddenStatesBatchIsDynamic(t *testing.T) {
	cfg := &ModelConfig{
		Components: map[Role]ComponentConfig{
			RoleFFNPrefill: {
				Inputs: map[string]TensorSpec{
					"hidden_states": {Shape: []int64{-1, 64, 1536}, DataType: DTypeF32},
					"position_ids":  {Shape: []int64{64}, DataType: DTypeI64},
				},
			},
		},
	}
	require.NoError(t, deriveShapes(cfg))
	assert.Equal(t, int64(64), cfg.Shapes.BatchSize)
}

func TestModelConfig_ValidateFlagsUnknownRoleWithSuggestion(t *testing.T) {
	cfg := validModelConfig()
	cfg.Components["ffn_prefil"] = cfg.Components[RoleFFNPrefill]

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "ffn_prefill"`)
}

func TestDidYouMeanRole(t *testing.T) {
	suggestion, ok := didYouMeanRole("ffn_prefil")
	require.True(t, ok)
	assert.Equal(t, RoleFFNPrefill, suggestion)

	_, ok = didYouMeanRole("something_unrelated_entirely")
	assert.False(t, ok)
}
