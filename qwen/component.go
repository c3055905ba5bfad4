package qwen

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	onnx "github.com/yalue/onnxruntime_go"
)

// presentPrefix is the naming convention the engine's conversion tooling
// uses for KV-cache outputs: an output "present.X" refreshes the cache slot
// that was fed in as input "X" (grounded in the teacher's LFM2 IO wiring,
// which builds exactly this present.<name> convention from a past_* input
// list).
const presentPrefix = "present."

// Runtime is the opaque Shared State from spec.md §3: it owns every KV-cache
// slot threaded across predict_with_state calls within one generation.
// Exactly one Runtime instance must be passed to every predict_with_state
// call participating in a generation (spec.md's state-continuity
// invariant); passing a fresh one mid-generation yields wrong logits.
type Runtime struct {
	slots map[string]*Tensor
}

// Slot returns the current cache tensor for a past-state input name, or nil
// if that name is not tracked by this Runtime.
func (r *Runtime) Slot(name string) *Tensor {
	return r.slots[name]
}

func isCacheInputName(name string) bool {
	return strings.Contains(name, "past")
}

// predictor is the seam Runner depends on instead of *ComponentHandle
// directly. *ComponentHandle implements it against a live ONNX Runtime
// session; tests substitute a recording fake to exercise Prefill/
// InferNextToken/Generate's orchestration (spec.md §8 scenario 4, state
// continuity) without a compiled model on disk.
type predictor interface {
	Predict(inputs map[string]*Tensor) (map[string]*Tensor, error)
	PredictWithState(inputs map[string]*Tensor, state *Runtime) (map[string]*Tensor, error)
	MakeState() (*Runtime, error)
	ComponentConfig() ComponentConfig
}

// ComponentHandle wraps one loaded ONNX session plus the immutable portion
// of its ComponentConfig (spec.md §4.2).
type ComponentHandle struct {
	Role         Role
	Config       ComponentConfig
	session      *onnx.DynamicAdvancedSession
	inputNames   []string
	outputNames  []string
	log          logrus.FieldLogger
}

// LoadComponentHandle loads the compiled artifact backing cc and returns a
// handle scoped to the given role. If cc.FunctionName is set, the session
// is built from that function's declared input/output ordering (two
// ComponentConfigs may point at the same FilePath with different
// FunctionName values when one artifact serves two roles — spec.md §9).
func LoadComponentHandle(role Role, cc ComponentConfig, log logrus.FieldLogger) (*ComponentHandle, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cc.FilePath == "" {
		return nil, newErr(KindLoad, "component %q has no file_path", role)
	}

	inputNames := cc.InputOrder
	if len(inputNames) == 0 {
		inputNames = sortedKeys(cc.Inputs)
	}
	outputNames := sortedKeys(cc.Outputs)

	sess, err := onnx.NewDynamicAdvancedSession(cc.FilePath, inputNames, outputNames, nil)
	if err != nil {
		return nil, wrapErr(KindLoad, err, "loading component %q (function=%q) from %s", role, cc.FunctionName, cc.FilePath)
	}

	log.WithFields(logrus.Fields{"role": role, "path": cc.FilePath, "function": cc.FunctionName}).
		Info("component loaded")

	return &ComponentHandle{
		Role:        role,
		Config:      cc,
		session:     sess,
		inputNames:  inputNames,
		outputNames: outputNames,
		log:         log,
	}, nil
}

func sortedKeys(m map[string]TensorSpec) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ComponentConfig returns the component's declared configuration,
// satisfying the predictor interface.
func (h *ComponentHandle) ComponentConfig() ComponentConfig { return h.Config }

// InputNames lists this component's input feature names in call order.
func (h *ComponentHandle) InputNames() []string { return h.inputNames }

// OutputNames lists this component's output feature names.
func (h *ComponentHandle) OutputNames() []string { return h.outputNames }

// MakeState returns a fresh Runtime sized from this component's declared
// KV-cache inputs, zero-length until the first predict_with_state call
// populates them. Only prefill-capable components (those declaring at
// least one "past"-named input) support this.
func (h *ComponentHandle) MakeState() (*Runtime, error) {
	slots := map[string]*Tensor{}
	for name, spec := range h.Config.Inputs {
		if !isCacheInputName(name) {
			continue
		}
		shape := append([]int64(nil), spec.Shape...)
		n := int64(1)
		for i, d := range shape {
			if i == len(shape)-2 { // sequence-length axis starts empty
				shape[i] = 0
				continue
			}
			n *= d
		}
		slots[name] = NewF32Tensor(shape, make([]float32, 0, n))
	}
	if len(slots) == 0 {
		return nil, newErr(KindState, "component %q declares no KV-cache inputs; make_state unsupported", h.Role)
	}
	return &Runtime{slots: slots}, nil
}

// Predict runs a single stateless invocation (spec.md §4.2), used for
// embeddings and the LM head.
func (h *ComponentHandle) Predict(inputs map[string]*Tensor) (map[string]*Tensor, error) {
	return h.predict(inputs, nil)
}

// PredictWithState runs a single invocation threading state's KV-cache in
// as inputs and refreshing it from the matching present.* outputs, mutating
// state in place (spec.md §4.2).
func (h *ComponentHandle) PredictWithState(inputs map[string]*Tensor, state *Runtime) (map[string]*Tensor, error) {
	if state == nil {
		return nil, newErr(KindState, "predict_with_state called on %q with nil state", h.Role)
	}
	return h.predict(inputs, state)
}

func (h *ComponentHandle) predict(inputs map[string]*Tensor, state *Runtime) (map[string]*Tensor, error) {
	values := make([]onnx.Value, len(h.inputNames))
	var toDestroy []onnx.Value

	for i, name := range h.inputNames {
		t, ok := inputs[name]
		if !ok && state != nil {
			if slot := state.Slot(name); slot != nil {
				t = slot
			}
		}
		if t == nil {
			return nil, newPredictError(string(h.Role), h.Config.FunctionName, h.inputNames,
				newErr(KindPredict, "missing input %q", name))
		}
		v, err := TensorToMLArray(t)
		if err != nil {
			return nil, newPredictError(string(h.Role), h.Config.FunctionName, h.inputNames, err)
		}
		values[i] = v
		toDestroy = append(toDestroy, v)
	}

	outputs := make([]onnx.Value, len(h.outputNames))
	if err := h.session.Run(values, outputs); err != nil {
		for _, v := range toDestroy {
			v.Destroy()
		}
		return nil, newPredictError(string(h.Role), h.Config.FunctionName, h.inputNames, err)
	}
	for _, v := range toDestroy {
		v.Destroy()
	}

	result := make(map[string]*Tensor, len(h.outputNames))
	for i, name := range h.outputNames {
		spec, ok := h.Config.Outputs[name]
		if !ok {
			continue
		}
		t, err := MLArrayToTensor(outputs[i], spec.Shape)
		if err != nil {
			return nil, newPredictError(string(h.Role), h.Config.FunctionName, h.inputNames, err)
		}
		outputs[i].Destroy()

		if state != nil && strings.HasPrefix(name, presentPrefix) {
			pastName := strings.TrimPrefix(name, presentPrefix)
			state.slots[pastName] = t
			continue
		}
		result[name] = t
	}

	return result, nil
}

// ExtractAllOutputs is a convenience alias documenting spec.md §4.2's
// extract_all_outputs operation: Predict/PredictWithState already return
// every output in the prediction (necessary for chunked-head components).
func ExtractAllOutputs(prediction map[string]*Tensor) map[string]*Tensor {
	return prediction
}
