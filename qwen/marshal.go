package qwen

import (
	onnx "github.com/yalue/onnxruntime_go"
	"github.com/x448/float16"
)

// TensorToMLArray converts a host tensor into the platform runtime's own
// typed tensor value, mapping I64 to Int32 (truncating toward zero) and
// leaving F32 untouched, per spec.md §4.1.
func TensorToMLArray(t *Tensor) (onnx.Value, error) {
	if t.Device != DeviceHost {
		return nil, newErr(KindUnsupportedDType, "tensor_to_ml_array: unsupported device %d", t.Device)
	}
	shape := onnx.NewShape(t.Shape...)
	switch t.DType {
	case DTypeF32:
		data := append([]float32(nil), t.F32Data...)
		v, err := onnx.NewTensor(shape, data)
		if err != nil {
			return nil, wrapErr(KindUnsupportedDType, err, "building float32 ml array")
		}
		return v, nil
	case DTypeI64:
		data := make([]int32, len(t.I64Data))
		for i, x := range t.I64Data {
			data[i] = int32(x)
		}
		v, err := onnx.NewTensor(shape, data)
		if err != nil {
			return nil, wrapErr(KindUnsupportedDType, err, "building int32 ml array")
		}
		return v, nil
	default:
		return nil, newErr(KindUnsupportedDType, "tensor_to_ml_array: unsupported dtype %s", t.DType)
	}
}

// MLArrayToTensor converts the platform runtime's output value back into a
// host F32 tensor of expectedShape, applying the f16->f32 and i32->f32
// widening rules from spec.md §4.1.
func MLArrayToTensor(v onnx.Value, expectedShape []int64) (*Tensor, error) {
	want := int64(1)
	for _, d := range expectedShape {
		want *= d
	}

	switch tv := v.(type) {
	case *onnx.Tensor[float32]:
		data := tv.GetData()
		if int64(len(data)) != want {
			return nil, newShapeMismatch("", "", expectedShape, tv.GetShape())
		}
		return NewF32Tensor(expectedShape, append([]float32(nil), data...)), nil

	case *onnx.Tensor[onnx.Float16]:
		raw := tv.GetData()
		if int64(len(raw)) != want {
			return nil, newShapeMismatch("", "", expectedShape, tv.GetShape())
		}
		out := make([]float32, len(raw))
		for i, h := range raw {
			out[i] = float16.Frombits(uint16(h)).Float32()
		}
		return NewF32Tensor(expectedShape, out), nil

	case *onnx.Tensor[int32]:
		raw := tv.GetData()
		if int64(len(raw)) != want {
			return nil, newShapeMismatch("", "", expectedShape, tv.GetShape())
		}
		out := make([]float32, len(raw))
		for i, x := range raw {
			out[i] = float32(x)
		}
		return NewF32Tensor(expectedShape, out), nil

	default:
		return nil, newErr(KindUnsupportedDType, "ml_array_to_tensor: unsupported runtime value type %T", v)
	}
}

// FeatureProvider pairs an ordered list of feature names with their values,
// preserving order while allowing lookup by name (spec.md §4.1).
type FeatureProvider struct {
	names  []string
	values []onnx.Value
	byName map[string]onnx.Value
}

// NewFeatureProvider builds a FeatureProvider from parallel names/values
// slices. Returns a ShapeMismatch-flavoured error if lengths disagree.
func NewFeatureProvider(names []string, values []onnx.Value) (*FeatureProvider, error) {
	if len(names) != len(values) {
		return nil, newErr(KindShapeMismatch, "feature_provider: %d names but %d values", len(names), len(values))
	}
	byName := make(map[string]onnx.Value, len(names))
	for i, n := range names {
		byName[n] = values[i]
	}
	return &FeatureProvider{
		names:  append([]string(nil), names...),
		values: append([]onnx.Value(nil), values...),
		byName: byName,
	}, nil
}

// Names returns the feature names in their original order.
func (p *FeatureProvider) Names() []string { return p.names }

// Values returns the feature values in the same order as Names.
func (p *FeatureProvider) Values() []onnx.Value { return p.values }

// Lookup returns the value registered under name, if any.
func (p *FeatureProvider) Lookup(name string) (onnx.Value, bool) {
	v, ok := p.byName[name]
	return v, ok
}
