package qwen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanPrefill_FitsInOneWindow(t *testing.T) {
	plan := PlanPrefill(5, 64, 0)

	want := []PrefillStep{
		{WindowStart: 0, LocalIdx: 0, GlobalPos: 0},
		{WindowStart: 0, LocalIdx: 1, GlobalPos: 1},
		{WindowStart: 0, LocalIdx: 2, GlobalPos: 2},
		{WindowStart: 0, LocalIdx: 3, GlobalPos: 3},
	}
	assert.Equal(t, want, plan.Steps)
	assert.Equal(t, 0, plan.LastWindowStart)
	assert.Equal(t, 4, plan.LastLocalIdx)
}

func TestPlanPrefill_SlidesWindowWhenTokenCountExceedsEmbeddingsLen(t *testing.T) {
	plan := PlanPrefill(300, 256, 200)

	assert.Equal(t, 99, len(plan.Steps)) // global positions 200..298 inclusive

	first := plan.Steps[0]
	assert.Equal(t, PrefillStep{WindowStart: 0, LocalIdx: 200, GlobalPos: 200}, first)

	last := plan.Steps[len(plan.Steps)-1]
	assert.Equal(t, PrefillStep{WindowStart: 43, LocalIdx: 255, GlobalPos: 298}, last)

	assert.Equal(t, 44, plan.LastWindowStart)
	assert.Equal(t, 255, plan.LastLocalIdx)

	// The window never exceeds embeddingsLen and always contains GlobalPos.
	for _, step := range plan.Steps {
		assert.LessOrEqual(t, step.LocalIdx, 255)
		assert.Equal(t, step.GlobalPos-step.WindowStart, step.LocalIdx)
	}
}

func TestPlanPrefill_FreshStartWithSlidingWindow(t *testing.T) {
	plan := PlanPrefill(300, 256, 0)

	assert.Equal(t, 299, len(plan.Steps))
	assert.Equal(t, PrefillStep{WindowStart: 0, LocalIdx: 0, GlobalPos: 0}, plan.Steps[0])
	assert.Equal(t, PrefillStep{WindowStart: 43, LocalIdx: 255, GlobalPos: 298}, plan.Steps[len(plan.Steps)-1])
}

func TestPlanPrefill_NoStepsWhenAlreadyFullyPrefilled(t *testing.T) {
	plan := PlanPrefill(5, 64, 4)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, 4, plan.LastLocalIdx)
}
