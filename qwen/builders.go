package qwen

import "math"

// BuildPaddedTokenInput builds the embeddings input tensor from spec.md
// §4.5: tokens are copied into the low indices of the component's declared
// input_ids shape and the remainder is zero-padded. Fails with
// ShapeMismatch if tokens is longer than the declared sequence length (the
// caller must window).
func BuildPaddedTokenInput(cc ComponentConfig, tokens []int64) (*Tensor, error) {
	spec, ok := cc.Inputs["input_ids"]
	if !ok {
		return nil, newErr(KindConfig, "embeddings component has no input_ids spec")
	}
	if len(spec.Shape) != 2 {
		return nil, newErr(KindConfig, "embeddings input_ids shape %v is not 2-D", spec.Shape)
	}
	seqLen := spec.Shape[1]
	if int64(len(tokens)) > seqLen {
		return nil, newShapeMismatch("embeddings", "input_ids", spec.Shape, []int64{spec.Shape[0], int64(len(tokens))})
	}

	data := make([]int64, seqLen)
	copy(data, tokens)
	return NewI64Tensor(spec.Shape, data), nil
}

// BuildSingleTokenInput builds the [1, 1] embeddings input used by
// separate-infer models (spec.md §4.5). Fails if the embeddings component
// does not declare a sequence-length-1 input_ids shape.
func BuildSingleTokenInput(cc ComponentConfig, token int64) (*Tensor, error) {
	spec, ok := cc.Inputs["input_ids"]
	if !ok {
		return nil, newErr(KindConfig, "embeddings component has no input_ids spec")
	}
	if len(spec.Shape) != 2 || spec.Shape[1] != 1 {
		return nil, newErr(KindShapeMismatch, "embeddings input_ids shape %v does not accept a single token", spec.Shape)
	}
	return NewI64Tensor([]int64{1, 1}, []int64{token}), nil
}

// BuildPositionIDs builds the position_ids tensor for either the prefill or
// infer component, per the two shape families in spec.md §4.5. isPrefill
// selects which ComponentConfig's declared shape is authoritative; the
// orchestrator must never guess this from token counts.
func BuildPositionIDs(cc ComponentConfig, positions []int64, isPrefill bool) (*Tensor, error) {
	spec, ok := cc.Inputs["position_ids"]
	if !ok {
		return nil, newErr(KindConfig, "component has no position_ids spec")
	}

	if !isPrefill {
		// Infer-mode: typically shape [1], value [current_position].
		n := int64(1)
		for _, d := range spec.Shape {
			n *= d
		}
		data := make([]int64, n)
		if n > 0 && len(positions) > 0 {
			data[n-1] = positions[len(positions)-1]
		}
		return NewI64Tensor(spec.Shape, data), nil
	}

	switch len(spec.Shape) {
	case 1:
		return buildPrefillPositionRow(spec.Shape, spec.Shape[0], positions)
	case 2:
		return buildPrefillPositionRow(spec.Shape, spec.Shape[1], positions)
	default:
		return nil, newErr(KindShapeMismatch, "unsupported position_ids rank %d", len(spec.Shape))
	}
}

func buildPrefillPositionRow(shape []int64, width int64, positions []int64) (*Tensor, error) {
	data := make([]int64, width)
	current := int64(len(positions))
	if current >= width {
		for i := int64(0); i < width; i++ {
			data[i] = i
		}
	} else {
		copy(data, positions)
		for i := current; i < width; i++ {
			data[i] = 0
		}
	}
	return NewI64Tensor(shape, data), nil
}

// BuildCausalMask builds the prefill (4-D, [1,1,S_row,S_col]) or infer
// (4-D, [1,1,1,S_col]) causal mask per spec.md §4.5's exact entry rules.
func BuildCausalMask(isPrefill bool, sRow, sCol int64, currentPosition int64) *Tensor {
	if isPrefill {
		data := make([]float32, sRow*sCol)
		for r := int64(0); r < sRow; r++ {
			for c := int64(0); c < sCol; c++ {
				if c > r {
					data[r*sCol+c] = float32(math.Inf(-1))
				}
			}
		}
		return NewF32Tensor([]int64{1, 1, sRow, sCol}, data)
	}

	data := make([]float32, sCol)
	for c := int64(0); c < sCol; c++ {
		if c > currentPosition {
			data[c] = float32(math.Inf(-1))
		}
	}
	return NewF32Tensor([]int64{1, 1, 1, sCol}, data)
}

// BuildUpdateMask builds the [1,1,context_length,1] one-hot write-position
// indicator for infer, per spec.md §4.5. The Open Question in spec.md §9
// applies: if a model does not declare update_mask, callers must omit this
// tensor rather than synthesise one speculatively — BuildUpdateMask itself
// is unconditional; the caller decides whether to invoke it (see
// runner.go's use, gated on the component declaring the input).
func BuildUpdateMask(contextLength, position int64) *Tensor {
	data := make([]float32, contextLength)
	if position >= 0 && position < contextLength {
		data[position] = 1.0
	}
	return NewF32Tensor([]int64{1, 1, contextLength, 1}, data)
}

// BuildCurrentPosition builds the [1] current-position scalar (spec.md
// §4.5), stored as I32 logically but carried in the engine's I64 lane
// (TensorToMLArray converts it to Int32, per the dtype mapping rule).
func BuildCurrentPosition(position int64) *Tensor {
	return NewI64Tensor([]int64{1}, []int64{position})
}
