package qwen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHFConfig_ReadsConfigJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{
		"model_type": "qwen2",
		"vocab_size": 151936,
		"eos_token_id": 151645,
		"bos_token_id": 151643
	}`), 0o644))

	cfg, err := LoadHFConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "qwen2", cfg.ModelType)
	assert.Equal(t, 151936, cfg.VocabSize)
	assert.Equal(t, int64(151645), cfg.EOSTokenID)
	assert.Equal(t, int64(151643), cfg.BOSTokenID)
}

func TestLoadHFConfig_GenerationConfigOverridesEOS(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"eos_token_id": 1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "generation_config.json"), []byte(`{"eos_token_id": 151645}`), 0o644))

	cfg, err := LoadHFConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(151645), cfg.EOSTokenID)
}

func TestLoadHFConfig_MissingFileIsAnError(t *testing.T) {
	_, err := LoadHFConfig(t.TempDir())
	require.Error(t, err)
}
