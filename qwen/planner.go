package qwen

// PrefillStep is one scheduled prefill call: the window this step's token
// belongs to, its index within that window, and its absolute position in
// the sequence (spec.md §4.8).
type PrefillStep struct {
	WindowStart int
	LocalIdx    int
	GlobalPos   int
}

// PrefillPlan is the ordered list of steps plus the location of the token
// reserved for the following infer call (spec.md §4.8).
type PrefillPlan struct {
	Steps           []PrefillStep
	LastWindowStart int
	LastLocalIdx    int
}

// PlanPrefill is a pure function mapping (tokenCount, embeddingsLen,
// alreadyPrefilled) to an ordered prefill schedule, per spec.md §4.8. It
// has no dependency on any compiled component so it can be unit-tested
// against golden fixtures alone.
func PlanPrefill(tokenCount, embeddingsLen, alreadyPrefilled int) PrefillPlan {
	if tokenCount <= embeddingsLen {
		steps := make([]PrefillStep, 0, tokenCount-1-alreadyPrefilled)
		for i := alreadyPrefilled; i < tokenCount-1; i++ {
			steps = append(steps, PrefillStep{WindowStart: 0, LocalIdx: i, GlobalPos: i})
		}
		return PrefillPlan{
			Steps:           steps,
			LastWindowStart: 0,
			LastLocalIdx:    tokenCount - 1,
		}
	}

	steps := make([]PrefillStep, 0, tokenCount-1-alreadyPrefilled)
	for globalPos := alreadyPrefilled; globalPos < tokenCount-1; globalPos++ {
		windowStart := globalPos - embeddingsLen + 1
		if windowStart < 0 {
			windowStart = 0
		}
		localIdx := globalPos - windowStart
		steps = append(steps, PrefillStep{WindowStart: windowStart, LocalIdx: localIdx, GlobalPos: globalPos})
	}
	return PrefillPlan{
		Steps:           steps,
		LastWindowStart: tokenCount - embeddingsLen,
		LastLocalIdx:    embeddingsLen - 1,
	}
}
