package qwen

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// HFConfig holds the small slice of a Hugging Face config.json (plus an
// optional generation_config.json override) the engine actually needs:
// the end-of-sequence token id Generate stops on. Everything else about
// the model's architecture is discovered from the compiled components
// themselves (spec.md §4.4), not from this file.
type HFConfig struct {
	ModelType  string
	VocabSize  int
	EOSTokenID int64
	BOSTokenID int64
	PADTokenID int64
}

// LoadHFConfig reads config.json (and, if present alongside it,
// generation_config.json, whose token ids take precedence) from dir.
func LoadHFConfig(dir string) (*HFConfig, error) {
	raw, err := readJSONMap(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, wrapErr(KindConfig, err, "reading config.json")
	}

	cfg := &HFConfig{
		ModelType:  getString(raw, "model_type"),
		VocabSize:  getInt(raw, "vocab_size", 0),
		EOSTokenID: getInt64(raw, "eos_token_id", -1),
		BOSTokenID: getInt64(raw, "bos_token_id", -1),
		PADTokenID: getInt64(raw, "pad_token_id", -1),
	}

	if gen, err := readJSONMap(filepath.Join(dir, "generation_config.json")); err == nil {
		if v, ok := gen["eos_token_id"]; ok {
			if id, ok2 := toInt64(v); ok2 {
				cfg.EOSTokenID = id
			}
		}
		if v, ok := gen["bos_token_id"]; ok {
			if id, ok2 := toInt64(v); ok2 {
				cfg.BOSTokenID = id
			}
		}
		if v, ok := gen["pad_token_id"]; ok {
			if id, ok2 := toInt64(v); ok2 {
				cfg.PADTokenID = id
			}
		}
	}

	return cfg, nil
}

func readJSONMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func getInt(m map[string]any, key string, def int) int {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return def
}

func getInt64(m map[string]any, key string, def int64) int64 {
	if v, ok := m[key]; ok {
		if id, ok2 := toInt64(v); ok2 {
			return id
		}
	}
	return def
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	}
	return 0, false
}
