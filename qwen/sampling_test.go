package qwen

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreedy_PicksArgmaxBreakingTiesLow(t *testing.T) {
	idx, err := Greedy([]float32{1, 3, 3, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestGreedy_IsIdempotent(t *testing.T) {
	logits := []float32{0.1, 0.9, -2, 4, 4}
	first, err := Greedy(logits)
	require.NoError(t, err)
	second, err := Greedy(logits)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGreedy_RejectsEmptyLogits(t *testing.T) {
	_, err := Greedy(nil)
	require.Error(t, err)
}

func TestTemperature_NonPositiveCollapsesToGreedy(t *testing.T) {
	logits := []float32{1, 5, 2}
	rng := rand.New(rand.NewPCG(1, 1))
	idx, err := Temperature(logits, 0, rng)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestTemperature_IsDeterministicForAFixedRNGSeed(t *testing.T) {
	logits := []float32{1, 2, 3, 4}
	rngA := rand.New(rand.NewPCG(7, 7))
	rngB := rand.New(rand.NewPCG(7, 7))

	idxA, err := Temperature(logits, 0.8, rngA)
	require.NoError(t, err)
	idxB, err := Temperature(logits, 0.8, rngB)
	require.NoError(t, err)
	assert.Equal(t, idxA, idxB)
}

func TestTopK_OneCollapsesToGreedy(t *testing.T) {
	logits := []float32{1, 9, 2}
	rng := rand.New(rand.NewPCG(3, 3))
	idx, err := TopK(logits, 1, 1.0, rng)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestTopK_OnlySamplesAmongKHighest(t *testing.T) {
	logits := []float32{10, 1, 2, 9, 0}
	rng := rand.New(rand.NewPCG(11, 22))

	for i := 0; i < 20; i++ {
		idx, err := TopK(logits, 2, 1.0, rng)
		require.NoError(t, err)
		assert.Contains(t, []int{0, 3}, idx)
	}
}

func TestTopK_RejectsNonPositiveK(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	_, err := TopK([]float32{1, 2}, 0, 1.0, rng)
	require.Error(t, err)
}
