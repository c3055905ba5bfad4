package qwen

import (
	"context"
	"math/rand/v2"
	"sort"

	"github.com/sirupsen/logrus"
)

// Runner is the Pipeline Orchestrator from spec.md §4.6: it owns one
// component handle per role, one shared state, a tokenizer reference, the
// active ModelConfig, and the embeddings cache.
type Runner struct {
	cfg        *ModelConfig
	embeddings predictor
	ffnPrefill predictor
	ffnInfer   predictor // nil when ffn_execution == "unified"
	lmHead     predictor
	tokenizer  Tokenizer
	log        logrus.FieldLogger

	state *Runtime

	// embeddings cache (spec.md §4.6 / §9): reused only on an exact prefix
	// match against the most recent window; any mismatch drops it.
	cacheWindowStart int
	cacheTokens      []int64
	cacheEmbeddings  *Tensor

	rng *rand.Rand

	lastAbsolutePosition int // last global position consumed by prefill/infer
	initialized          bool
}

// NewRunner wires the loaded component handles into an orchestrator. This
// is the last step of the Unified Loader (spec.md §4.6/§6).
func NewRunner(cfg *ModelConfig, embeddings, ffnPrefill, ffnInfer, lmHead predictor, tok Tokenizer, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		cfg:        cfg,
		embeddings: embeddings,
		ffnPrefill: ffnPrefill,
		ffnInfer:   ffnInfer,
		lmHead:     lmHead,
		tokenizer:  tok,
		log:        log,
		rng:        rand.New(rand.NewPCG(1, 2)),
	}
}

// Initialize creates the shared state by calling ffn_prefill.MakeState().
// Idempotent: a second call resets the state and the embeddings cache,
// starting a fresh generation (spec.md §4.6).
func (r *Runner) Initialize(ctx context.Context) error {
	state, err := r.ffnPrefill.MakeState()
	if err != nil {
		return wrapErr(KindState, err, "initializing runner state")
	}
	r.state = state
	r.cacheTokens = nil
	r.cacheEmbeddings = nil
	r.lastAbsolutePosition = -1
	r.initialized = true
	return nil
}

// Tokenize delegates to the tokenizer collaborator (spec.md §4.6).
func (r *Runner) Tokenize(text string) ([]int64, error) {
	ids, err := r.tokenizer.Encode(text)
	if err != nil {
		return nil, wrapErr(KindTokenizer, err, "tokenizing input")
	}
	return ids, nil
}

// Decode delegates to the tokenizer collaborator, turning generated token
// ids back into text.
func (r *Runner) Decode(ids []int64, skipSpecial bool) (string, error) {
	text, err := r.tokenizer.Decode(ids, skipSpecial)
	if err != nil {
		return "", wrapErr(KindTokenizer, err, "decoding tokens")
	}
	return text, nil
}

// Prefill runs the embeddings + FFN-prefill phases over tokens, per the
// Sequential Prefill Planner's schedule (spec.md §4.6). The last token in
// tokens is never consumed here — it is reserved for the immediately
// following InferNextToken call; prefilling it would leave the KV-cache
// with one too many entries and yield the wrong logits.
func (r *Runner) Prefill(ctx context.Context, tokens []int64) error {
	if !r.initialized {
		return newErr(KindState, "prefill called before Initialize")
	}
	if len(tokens) == 0 {
		return newErr(KindConfig, "prefill called with no tokens")
	}

	batchSize := int(r.cfg.Shapes.BatchSize)
	plan := PlanPrefill(len(tokens), batchSize, 0)

	ffnCC := r.ffnPrefill.ComponentConfig()

	for _, step := range plan.Steps {
		select {
		case <-ctx.Done():
			return wrapErr(KindPredict, ctx.Err(), "prefill cancelled at global_pos=%d", step.GlobalPos)
		default:
		}

		windowTokens := windowSlice(tokens, step.WindowStart, batchSize)
		hidden, err := r.embeddingsForWindow(step.WindowStart, windowTokens)
		if err != nil {
			return err
		}

		positions := rangeInt64(step.LocalIdx + 1)
		posIDs, err := BuildPositionIDs(ffnCC, positions, true)
		if err != nil {
			return err
		}

		mask := BuildCausalMask(true, r.cfg.Shapes.BatchSize, r.cfg.Shapes.ContextLength, int64(step.GlobalPos))
		currentPos := BuildCurrentPosition(int64(step.GlobalPos))

		inputs := map[string]*Tensor{
			"hidden_states": hidden,
			"position_ids":  posIDs,
			"causal_mask":   mask,
			"current_pos":   currentPos,
		}
		if _, ok := ffnCC.Inputs["update_mask"]; ok {
			inputs["update_mask"] = BuildUpdateMask(r.cfg.Shapes.ContextLength, int64(step.GlobalPos))
		}

		if _, err := r.ffnPrefill.PredictWithState(inputs, r.state); err != nil {
			return err
		}
		r.lastAbsolutePosition = step.GlobalPos
	}

	return nil
}

// InferNextToken builds inputs at currentPosition, runs embeddings
// (single-token path if ffn_infer is present; otherwise the rows of the
// cached last prefill-window embeddings up to currentPosition, in a
// full-window tensor built by buildFullWindowHidden, with token unused),
// then FFN-infer (or the unified ffn_prefill with its full-window prefill
// shapes), then the LM head, returning a [1,1,vocab] logits tensor
// (spec.md §4.6).
func (r *Runner) InferNextToken(ctx context.Context, token int64, currentPosition int) (*Tensor, error) {
	if !r.initialized {
		return nil, newErr(KindState, "infer_next_token called before Initialize")
	}

	ffn := r.ffnInfer
	isUnified := ffn == nil
	if isUnified {
		ffn = r.ffnPrefill
	}
	ffnCC := ffn.ComponentConfig()

	var hidden *Tensor
	if !isUnified {
		single, err := BuildSingleTokenInput(r.embeddings.ComponentConfig(), token)
		if err != nil {
			return nil, err
		}
		out, err := r.embeddings.Predict(map[string]*Tensor{"input_ids": single})
		if err != nil {
			return nil, err
		}
		hidden = firstOutput(out)
	} else {
		if r.cacheEmbeddings == nil {
			return nil, newErr(KindState, "infer_next_token (unified) called with no cached prefill embeddings")
		}
		hiddenSpec, ok := ffnCC.Inputs["hidden_states"]
		if !ok {
			return nil, newErr(KindConfig, "ffn_prefill component has no hidden_states spec")
		}
		hidden = buildFullWindowHidden(r.cacheEmbeddings, r.cacheWindowStart, currentPosition, hiddenSpec.Shape)
	}
	positions := []int64{int64(currentPosition)}
	posIDs, err := BuildPositionIDs(ffnCC, positions, isUnified)
	if err != nil {
		return nil, err
	}

	var mask *Tensor
	if isUnified {
		mask = BuildCausalMask(true, r.cfg.Shapes.BatchSize, r.cfg.Shapes.ContextLength, int64(currentPosition))
	} else {
		mask = BuildCausalMask(false, 1, r.cfg.Shapes.ContextLength, int64(currentPosition))
	}
	currentPos := BuildCurrentPosition(int64(currentPosition))

	inputs := map[string]*Tensor{
		"hidden_states": hidden,
		"position_ids":  posIDs,
		"causal_mask":   mask,
		"current_pos":   currentPos,
	}
	if _, ok := ffnCC.Inputs["update_mask"]; ok {
		inputs["update_mask"] = BuildUpdateMask(r.cfg.Shapes.ContextLength, int64(currentPosition))
	}

	ffnOut, err := ffn.PredictWithState(inputs, r.state)
	if err != nil {
		return nil, err
	}
	r.lastAbsolutePosition = currentPosition

	lmOut, err := r.lmHead.Predict(map[string]*Tensor{"hidden_states": firstOutput(ffnOut)})
	if err != nil {
		return nil, err
	}

	return assembleLogits(lmOut)
}

// Generate tokenizes the prompt, initializes state, prefills it, then loops
// { infer -> sample -> append -> extend state with the sampled token },
// stopping at maxNewTokens, on EOS, or when cancel is triggered (spec.md
// §4.6). Any error returned happens before the in-progress token is
// appended to the result, so partial output is only ever returned on a
// normal stop.
func (r *Runner) Generate(ctx context.Context, prompt string, maxNewTokens int, temperature float64, topK int, eosTokenID int64) ([]int64, error) {
	promptTokens, err := r.Tokenize(prompt)
	if err != nil {
		return nil, err
	}
	if len(promptTokens) == 0 {
		return nil, newErr(KindTokenizer, "empty prompt produced no tokens")
	}

	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := r.Prefill(ctx, promptTokens); err != nil {
		return nil, err
	}

	current := promptTokens[len(promptTokens)-1]
	position := len(promptTokens) - 1

	var generated []int64
	for i := 0; i < maxNewTokens; i++ {
		select {
		case <-ctx.Done():
			return generated, nil
		default:
		}

		logits, err := r.InferNextToken(ctx, current, position)
		if err != nil {
			return nil, err
		}

		next, err := r.sample(logits, temperature, topK)
		if err != nil {
			return nil, err
		}

		generated = append(generated, next)
		if eosTokenID >= 0 && next == eosTokenID {
			break
		}

		current = next
		position++
	}

	return generated, nil
}

func (r *Runner) sample(logits *Tensor, temperature float64, topK int) (int64, error) {
	vals := logits.F32Data
	var idx int
	var err error
	switch {
	case topK == 1 || (topK <= 0 && temperature <= 0):
		idx, err = Greedy(vals)
	case topK > 1:
		idx, err = TopK(vals, topK, temperature, r.rng)
	default:
		idx, err = Temperature(vals, temperature, r.rng)
	}
	if err != nil {
		return 0, err
	}
	return int64(idx), nil
}

// embeddingsForWindow returns the hidden[1,batch,H] tensor for the window
// starting at windowStart, reusing the cache on an exact match.
func (r *Runner) embeddingsForWindow(windowStart int, windowTokens []int64) (*Tensor, error) {
	if r.cacheEmbeddings != nil && r.cacheWindowStart == windowStart && int64SliceEqual(r.cacheTokens, windowTokens) {
		return r.cacheEmbeddings, nil
	}

	input, err := BuildPaddedTokenInput(r.embeddings.ComponentConfig(), windowTokens)
	if err != nil {
		return nil, err
	}
	out, err := r.embeddings.Predict(map[string]*Tensor{"input_ids": input})
	if err != nil {
		return nil, err
	}
	hidden := firstOutput(out)

	r.cacheWindowStart = windowStart
	r.cacheTokens = append([]int64(nil), windowTokens...)
	r.cacheEmbeddings = hidden
	return hidden, nil
}

func windowSlice(tokens []int64, start, length int) []int64 {
	end := start + length
	if end > len(tokens) {
		end = len(tokens)
	}
	if start > end {
		start = end
	}
	return tokens[start:end]
}

func rangeInt64(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// firstOutput returns the single value of a one-entry output map; callers
// use this for components declared with exactly one output.
func firstOutput(m map[string]*Tensor) *Tensor {
	for _, v := range m {
		return v
	}
	return nil
}

// buildFullWindowHidden builds the full-window [1, batch, H] hidden_states
// tensor the unified ffn_prefill session requires even for single-token
// inference, because that session declares a fixed hidden_states shape
// shared with causal_mask's full [1, 1, batch, context_length] shape — it
// cannot accept a narrowed [1,1,H] row. Rows already produced by the most
// recent prefill call are copied in at their original window offset; the
// rest of the window is left zero. Grounded in
// original_source/src/qwen/embeddings.rs's
// get_full_sequence_embeddings_for_infer.
func buildFullWindowHidden(cached *Tensor, cacheWindowStart, currentPosition int, shape []int64) *Tensor {
	batch, h := shape[1], shape[2]
	data := make([]float32, batch*h)
	if cached != nil && len(cached.Shape) == 3 {
		validRows := int64(currentPosition-cacheWindowStart) + 1
		if cachedRows := cached.Shape[1]; validRows > cachedRows {
			validRows = cachedRows
		}
		if validRows > batch {
			validRows = batch
		}
		if validRows > 0 {
			copy(data[:validRows*h], cached.F32Data[:validRows*h])
		}
	}
	return NewF32Tensor([]int64{1, batch, h}, data)
}

// assembleLogits concatenates logits1..logitsN along the trailing axis in
// numeric order (spec.md §4.6 invariant 4: not lexicographic, "logits2"
// precedes "logits10"), or returns the single "logits" output unchanged.
func assembleLogits(outputs map[string]*Tensor) (*Tensor, error) {
	if single, ok := outputs["logits"]; ok {
		return single, nil
	}

	type chunk struct {
		k int
		t *Tensor
	}
	var chunks []chunk
	for name, t := range outputs {
		k, ok := chunkIndex(name)
		if !ok {
			continue
		}
		chunks = append(chunks, chunk{k: k, t: t})
	}
	if len(chunks) == 0 {
		return nil, newErr(KindPredict, "lm_head produced no logits output")
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].k < chunks[j].k })

	var data []float32
	var leading []int64
	for _, c := range chunks {
		if leading == nil {
			leading = append([]int64(nil), c.t.Shape[:len(c.t.Shape)-1]...)
		}
		data = append(data, c.t.F32Data...)
	}
	trailing := int64(0)
	for _, c := range chunks {
		trailing += c.t.Shape[len(c.t.Shape)-1]
	}
	shape := append(leading, trailing)
	return NewF32Tensor(shape, data), nil
}
