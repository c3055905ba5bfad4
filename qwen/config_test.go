package qwen

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorSpec_JSONRoundTrip(t *testing.T) {
	original := TensorSpec{Name: "hidden_states", Shape: []int64{1, 64, 1536}, DataType: DTypeF16}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data_type":"FLOAT16"`)

	var decoded TensorSpec
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestTensorSpec_UnmarshalRejectsUnknownDataType(t *testing.T) {
	var spec TensorSpec
	err := json.Unmarshal([]byte(`{"name":"x","shape":[1],"data_type":"BFLOAT16"}`), &spec)
	require.Error(t, err)
}

func validModelConfig() *ModelConfig {
	return &ModelConfig{
		ModelInfo: ModelInfo{ModelType: "qwen"},
		Shapes:    ShapeConfig{BatchSize: 64, ContextLength: 512, HiddenSize: 1536, VocabSize: 151936},
		Components: map[Role]ComponentConfig{
			RoleEmbeddings: {Inputs: map[string]TensorSpec{"input_ids": {Shape: []int64{1, 64}, DataType: DTypeI64}}},
			RoleFFNPrefill: {Inputs: map[string]TensorSpec{"hidden_states": {Shape: []int64{1, 64, 1536}, DataType: DTypeF32}}},
			RoleLMHead:     {Inputs: map[string]TensorSpec{"hidden_states": {Shape: []int64{1, 1, 1536}, DataType: DTypeF32}}},
		},
	}
}

func TestModelConfig_ValidateDefaultsFFNExecutionToUnified(t *testing.T) {
	cfg := validModelConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, FFNExecutionUnified, cfg.FFNExecution)
}

func TestModelConfig_ValidateRequiresFFNInferWhenSplitDeclared(t *testing.T) {
	cfg := validModelConfig()
	cfg.FFNExecution = FFNExecutionSplit
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffn_execution")
}

func TestModelConfig_ValidateAggregatesEveryMissingRole(t *testing.T) {
	cfg := &ModelConfig{Components: map[Role]ComponentConfig{}}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "embeddings")
	assert.Contains(t, msg, "ffn_prefill")
	assert.Contains(t, msg, "lm_head")
	assert.Contains(t, msg, "batch_size")
}

func TestModelConfig_ValidateRejectsNonConcreteDimensions(t *testing.T) {
	cfg := validModelConfig()
	ec := cfg.Components[RoleEmbeddings]
	ec.Inputs["input_ids"] = TensorSpec{Shape: []int64{-1, 64}, DataType: DTypeI64}
	cfg.Components[RoleEmbeddings] = ec

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-concrete dimension")
}
