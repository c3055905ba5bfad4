// Package qwen implements the core inference engine for chunked, stateful
// Qwen-family causal language models compiled to ONNX.
package qwen

import "fmt"

// Kind is the closed taxonomy of error categories the engine surfaces.
type Kind int

const (
	KindConfig Kind = iota
	KindLoad
	KindMetadata
	KindShapeMismatch
	KindUnsupportedDType
	KindPredict
	KindState
	KindTokenizer
	KindSampling
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindLoad:
		return "LoadError"
	case KindMetadata:
		return "MetadataError"
	case KindShapeMismatch:
		return "ShapeMismatch"
	case KindUnsupportedDType:
		return "UnsupportedDType"
	case KindPredict:
		return "PredictError"
	case KindState:
		return "StateError"
	case KindTokenizer:
		return "TokenizerError"
	case KindSampling:
		return "SamplingError"
	default:
		return "UnknownError"
	}
}

// Error is the single error type every qwen operation returns, carrying a
// Kind so callers can switch on category without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ShapeMismatchError carries the extra context spec.md §7 requires for a
// rejected tensor shape.
type ShapeMismatchError struct {
	*Error
	Component string
	Tensor    string
	Expected  []int64
	Actual    []int64
}

func newShapeMismatch(component, tensor string, expected, actual []int64) *ShapeMismatchError {
	return &ShapeMismatchError{
		Error: &Error{
			Kind: KindShapeMismatch,
			Message: fmt.Sprintf(
				"component %q tensor %q: expected shape %v, got %v",
				component, tensor, expected, actual,
			),
		},
		Component: component,
		Tensor:    tensor,
		Expected:  expected,
		Actual:    actual,
	}
}

// PredictError carries the component role, function name, and input feature
// names involved in a failed predict call, per spec.md §4.2.
type PredictError struct {
	*Error
	Role         string
	FunctionName string
	InputNames   []string
}

func newPredictError(role, functionName string, inputNames []string, cause error) *PredictError {
	return &PredictError{
		Error: &Error{
			Kind: KindPredict,
			Message: fmt.Sprintf(
				"predict failed for role %q (function=%q, inputs=%v)",
				role, functionName, inputNames,
			),
			Cause: cause,
		},
		Role:         role,
		FunctionName: functionName,
		InputNames:   inputNames,
	}
}
