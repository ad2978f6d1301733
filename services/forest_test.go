package services

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Linearly separable two-feature data set: class 1 when the first feature is
// positive.
func separableData(n int, rng *rand.Rand) (features [][]float64, labels []int, weights []float64) {
	for i := 0; i < n; i++ {
		x := rng.Float64()*2 - 1
		y := rng.Float64()
		label := 0
		if x > 0 {
			label = 1
		}
		features = append(features, []float64{x, y})
		labels = append(labels, label)
		weights = append(weights, 1)
	}
	return features, labels, weights
}

func TestTrainForestLearnsSeparableData(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	features, labels, weights := separableData(200, rng)

	forest := TrainForest(features, labels, weights, 25, rng)
	require.Len(t, forest.Trees, 25)

	assert.Greater(t, forest.PredictProba([]float64{0.8, 0.5}), 0.9)
	assert.Less(t, forest.PredictProba([]float64{-0.8, 0.5}), 0.1)
}

func TestTrainForestDeterministicForFixedSeed(t *testing.T) {
	features, labels, weights := separableData(100, rand.New(rand.NewSource(7)))

	a := TrainForest(features, labels, weights, 10, rand.New(rand.NewSource(42)))
	b := TrainForest(features, labels, weights, 10, rand.New(rand.NewSource(42)))

	probes := [][]float64{{0.3, 0.1}, {-0.2, 0.9}, {0.05, 0.5}}
	for _, probe := range probes {
		assert.Equal(t, a.PredictProba(probe), b.PredictProba(probe))
	}
}

func TestPredictProbaBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	features, labels, weights := separableData(60, rng)
	forest := TrainForest(features, labels, weights, 15, rng)

	for i := 0; i < 20; i++ {
		p := forest.PredictProba([]float64{rng.Float64()*2 - 1, rng.Float64()})
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestPredictProbaEmptyForest(t *testing.T) {
	forest := &Forest{}
	assert.Zero(t, forest.PredictProba([]float64{1, 2}))
}

func TestTrainForestEmptyData(t *testing.T) {
	forest := TrainForest(nil, nil, nil, 10, rand.New(rand.NewSource(1)))
	assert.Empty(t, forest.Trees)
}

func TestClassWeightsBalanceSeparableMinority(t *testing.T) {
	// Pure-leaf trees on separable data ignore weights, so check the weighted
	// gini arithmetic directly. Equal positive and negative mass is maximally
	// impure.
	assert.InDelta(t, 0.5, gini(5, 10), 1e-9)
	assert.Zero(t, gini(0, 10))
	assert.Zero(t, gini(10, 10))
}
