package qwen

import (
	"encoding/json"
	"os"

	multierror "github.com/hashicorp/go-multierror"
)

// TensorSpec is the declared shape and dtype of one named input or output
// of one component (spec.md §3).
type TensorSpec struct {
	Name     string `json:"name"`
	Shape    []int64 `json:"shape"`
	DataType DType   `json:"-"`
}

// MarshalJSON renders DataType using the wire vocabulary from spec.md §6.
func (s TensorSpec) MarshalJSON() ([]byte, error) {
	type wire struct {
		Name     string  `json:"name"`
		Shape    []int64 `json:"shape"`
		DataType string  `json:"data_type"`
	}
	return json.Marshal(wire{Name: s.Name, Shape: s.Shape, DataType: dtypeWireName(s.DataType)})
}

// UnmarshalJSON parses DataType from the wire vocabulary, ignoring unknown
// keys per spec.md §6 ("Unknown keys are ignored on read").
func (s *TensorSpec) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name     string  `json:"name"`
		Shape    []int64 `json:"shape"`
		DataType string  `json:"data_type"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	dt, err := dtypeFromWireName(wire.DataType)
	if err != nil {
		return err
	}
	s.Name = wire.Name
	s.Shape = wire.Shape
	s.DataType = dt
	return nil
}

func dtypeWireName(d DType) string {
	switch d {
	case DTypeI32:
		return "INT32"
	case DTypeI64:
		return "INT64"
	case DTypeF16:
		return "FLOAT16"
	case DTypeF32:
		return "FLOAT32"
	default:
		return "FLOAT32"
	}
}

func dtypeFromWireName(name string) (DType, error) {
	switch name {
	case "INT32":
		return DTypeI32, nil
	case "INT64":
		return DTypeI64, nil
	case "FLOAT16":
		return DTypeF16, nil
	case "FLOAT32", "":
		return DTypeF32, nil
	default:
		return 0, newErr(KindMetadata, "unsupported data_type %q", name)
	}
}

// ComponentConfig is the per-component declaration from spec.md §3. A
// multi-function artifact (spec.md §9) — one compiled graph serving two
// roles, e.g. both ffn_prefill and ffn_infer off shared weights — is only
// ever declared this way, by listing the same FilePath under two roles
// with different FunctionName values in a hand-written model_config.json;
// generative discovery (qwen/shapeinfer.go) cannot infer this on its own
// (see qwen/metadata.go).
type ComponentConfig struct {
	FilePath     string                `json:"file_path,omitempty"`
	Inputs       map[string]TensorSpec `json:"inputs"`
	Outputs      map[string]TensorSpec `json:"outputs"`
	Functions    []string              `json:"functions,omitempty"`
	InputOrder   []string              `json:"input_order,omitempty"`
	FunctionName string                `json:"function_name,omitempty"`
}

// Role is a canonical component role name (spec.md §3).
type Role string

const (
	RoleEmbeddings Role = "embeddings"
	RoleFFNPrefill Role = "ffn_prefill"
	RoleFFNInfer   Role = "ffn_infer"
	RoleLMHead     Role = "lm_head"
)

// ShapeConfig is the four scalars derived from the components (spec.md §3).
type ShapeConfig struct {
	BatchSize     int64 `json:"batch_size"`
	ContextLength int64 `json:"context_length"`
	HiddenSize    int64 `json:"hidden_size"`
	VocabSize     int64 `json:"vocab_size"`
}

// FFNExecution describes whether ffn_infer is a distinct component.
type FFNExecution string

const (
	FFNExecutionSplit   FFNExecution = "split"
	FFNExecutionUnified FFNExecution = "unified"
)

// ModelInfo is free-form model identity metadata.
type ModelInfo struct {
	ModelID      string `json:"model_id,omitempty"`
	Path         string `json:"path,omitempty"`
	ModelType    string `json:"model_type"`
	DiscoveredAt string `json:"discovered_at,omitempty"`
}

// NamingHints records the filename patterns used during discovery, kept for
// diagnostics only; never consulted for role classification (spec.md §4.4).
type NamingHints struct {
	EmbeddingsPattern string `json:"embeddings_pattern,omitempty"`
	FFNPrefillPattern string `json:"ffn_prefill_pattern,omitempty"`
	FFNInferPattern   string `json:"ffn_infer_pattern,omitempty"`
	LMHeadPattern     string `json:"lm_head_pattern,omitempty"`
}

// ModelConfig is the top-level declaration (spec.md §3), serialisable as the
// JSON schema in spec.md §6.
type ModelConfig struct {
	ModelInfo   ModelInfo                  `json:"model_info"`
	Shapes      ShapeConfig                `json:"shapes"`
	Components  map[Role]ComponentConfig   `json:"components"`
	Naming      NamingHints                `json:"naming"`
	FFNExecution FFNExecution              `json:"ffn_execution"`
}

// LoadModelConfig loads and validates a ModelConfig from a JSON document on
// disk (the "declarative" mode from spec.md §4.4).
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(KindConfig, err, "reading model config %s", path)
	}
	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, wrapErr(KindConfig, err, "parsing model config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save serialises cfg to path as JSON.
func (cfg *ModelConfig) Save(path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return wrapErr(KindConfig, err, "marshalling model config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapErr(KindConfig, err, "writing model config %s", path)
	}
	return nil
}

// knownRoles is the closed set of role names a declarative ModelConfig may
// use as a components map key.
var knownRoles = []Role{RoleEmbeddings, RoleFFNPrefill, RoleFFNInfer, RoleLMHead}

func isKnownRole(role Role) bool {
	for _, r := range knownRoles {
		if r == role {
			return true
		}
	}
	return false
}

// didYouMeanRole returns the known role closest to role by edit distance,
// for use in a diagnostic when a hand-written model_config.json misspells a
// component key (e.g. "ffn_prefil"), grounded in the original Rust
// implementation's typo-tolerant classification diagnostics.
func didYouMeanRole(role Role) (Role, bool) {
	best := Role("")
	bestDist := -1
	for _, known := range knownRoles {
		d := levenshtein(string(role), string(known))
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = known
		}
	}
	if bestDist >= 0 && bestDist <= 2 {
		return best, true
	}
	return "", false
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Validate checks required roles are present, shapes are concrete, and the
// derived ShapeConfig is internally consistent, per spec.md §4.4. All
// problems found are aggregated into one multierror so a caller sees every
// inconsistency at once, not just the first.
func (cfg *ModelConfig) Validate() error {
	var result *multierror.Error

	for _, role := range []Role{RoleEmbeddings, RoleFFNPrefill, RoleLMHead} {
		if _, ok := cfg.Components[role]; !ok {
			result = multierror.Append(result, newErr(KindConfig, "missing required role %q", role))
		}
	}

	for role := range cfg.Components {
		if isKnownRole(role) {
			continue
		}
		if suggestion, ok := didYouMeanRole(role); ok {
			result = multierror.Append(result, newErr(KindConfig, "unknown component role %q, did you mean %q?", role, suggestion))
		} else {
			result = multierror.Append(result, newErr(KindConfig, "unknown component role %q", role))
		}
	}

	_, hasInfer := cfg.Components[RoleFFNInfer]
	wantExecution := FFNExecutionUnified
	if hasInfer {
		wantExecution = FFNExecutionSplit
	}
	if cfg.FFNExecution == "" {
		cfg.FFNExecution = wantExecution
	} else if cfg.FFNExecution != wantExecution {
		result = multierror.Append(result, newErr(
			KindConfig,
			"ffn_execution %q inconsistent with presence of ffn_infer (expected %q)",
			cfg.FFNExecution, wantExecution,
		))
	}

	for role, cc := range cfg.Components {
		for name, spec := range cc.Inputs {
			for _, d := range spec.Shape {
				if d < 0 {
					result = multierror.Append(result, newErr(
						KindConfig, "component %q input %q has non-concrete dimension in shape %v", role, name, spec.Shape,
					))
				}
			}
		}
		for name, spec := range cc.Outputs {
			for _, d := range spec.Shape {
				if d < 0 {
					result = multierror.Append(result, newErr(
						KindConfig, "component %q output %q has non-concrete dimension in shape %v", role, name, spec.Shape,
					))
				}
			}
		}
	}

	if cfg.Shapes.BatchSize <= 0 {
		result = multierror.Append(result, newErr(KindConfig, "batch_size must be positive, got %d", cfg.Shapes.BatchSize))
	}
	if cfg.Shapes.ContextLength <= 0 {
		result = multierror.Append(result, newErr(KindConfig, "context_length must be positive, got %d", cfg.Shapes.ContextLength))
	}
	if cfg.Shapes.HiddenSize <= 0 {
		result = multierror.Append(result, newErr(KindConfig, "hidden_size must be positive, got %d", cfg.Shapes.HiddenSize))
	}
	if cfg.Shapes.VocabSize <= 0 {
		result = multierror.Append(result, newErr(KindConfig, "vocab_size must be positive, got %d", cfg.Shapes.VocabSize))
	}

	if result != nil {
		return wrapErr(KindConfig, result.ErrorOrNil(), "model config validation failed")
	}
	return nil
}
