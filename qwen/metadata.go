package qwen

import (
	"strconv"
	"strings"

	onnx "github.com/yalue/onnxruntime_go"
)

// ArtifactMetadata is what the Metadata Introspector produces for one
// compiled component on disk: its input/output tensor specs. ONNX Runtime's
// Go binding (github.com/yalue/onnxruntime_go) exposes input/output shape
// introspection only, not model-metadata-props accessors, so the engine
// cannot discover declared function names from an artifact itself —
// multiple functions sharing one artifact's weights (spec.md §9) can only
// be declared explicitly in a hand-written model_config.json, by listing the
// same file_path under two roles with different ComponentConfig.FunctionName
// values (qwen/config.go), never inferred here.
type ArtifactMetadata struct {
	Path    string
	Inputs  map[string]TensorSpec
	Outputs map[string]TensorSpec
}

// Introspect reads a compiled artifact's input/output descriptors,
// substituting 1 for every negative (symbolic) dimension and keeping 0 for
// genuinely zero-length optional tensors. The artifact's own declared
// defaults are not consulted, and the returned metadata does not record
// which dimensions were symbolic.
func Introspect(path string) (*ArtifactMetadata, error) {
	inInfos, outInfos, err := onnx.GetInputOutputInfo(path)
	if err != nil {
		return nil, wrapErr(KindMetadata, err, "introspecting %s", path)
	}

	meta := &ArtifactMetadata{
		Path:    path,
		Inputs:  make(map[string]TensorSpec, len(inInfos)),
		Outputs: make(map[string]TensorSpec, len(outInfos)),
	}

	for _, info := range inInfos {
		spec, err := specFromInfo(info)
		if err != nil {
			return nil, wrapErr(KindMetadata, err, "input %q of %s", info.Name, path)
		}
		meta.Inputs[info.Name] = spec
	}
	for _, info := range outInfos {
		spec, err := specFromInfo(info)
		if err != nil {
			return nil, wrapErr(KindMetadata, err, "output %q of %s", info.Name, path)
		}
		meta.Outputs[info.Name] = spec
	}

	return meta, nil
}

func specFromInfo(info onnx.InputOutputInfo) (TensorSpec, error) {
	dt, err := dtypeFromONNX(info.DataType)
	if err != nil {
		return TensorSpec{}, err
	}
	shape := make([]int64, len(info.Dimensions))
	for i, d := range info.Dimensions {
		if d > 0 {
			shape[i] = d
			continue
		}
		// Symbolic dimension: substitute 1 (or keep 0, see
		// symbolicDimDefault). The caller (shape inference) later
		// reconciles these against sibling components.
		shape[i] = symbolicDimDefault(info, i)
	}
	return TensorSpec{Name: info.Name, Shape: shape, DataType: dt}, nil
}

// symbolicDimDefault substitutes a placeholder for a symbolic dimension.
// onnxruntime_go reports unknown dims as <= 0; real artifacts in this
// corpus use -1 for "batch" and 0 for genuinely zero-length optional
// tensors (e.g. empty KV-cache at generation start), so only negative
// values are treated as symbolic.
func symbolicDimDefault(info onnx.InputOutputInfo, axis int) int64 {
	if info.Dimensions[axis] == 0 {
		return 0
	}
	return 1
}

func dtypeFromONNX(dt onnx.TensorElementDataType) (DType, error) {
	switch dt {
	case onnx.TensorElementDataTypeFloat:
		return DTypeF32, nil
	case onnx.TensorElementDataTypeFloat16:
		return DTypeF16, nil
	case onnx.TensorElementDataTypeInt32:
		return DTypeI32, nil
	case onnx.TensorElementDataTypeInt64:
		return DTypeI64, nil
	default:
		return 0, newErr(KindMetadata, "unsupported onnx element type %v", dt)
	}
}

// chunkIndex extracts k from an output name "logitsK"; ok is false for the
// unchunked "logits" name or anything else.
func chunkIndex(name string) (k int, ok bool) {
	const prefix = "logits"
	if !strings.HasPrefix(name, prefix) || name == prefix {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
