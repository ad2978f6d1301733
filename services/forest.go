package services

import (
	"math"
	"math/rand"
	"sort"
)

// Forest is a bagged ensemble of weighted-gini decision trees. All fields are
// exported so a trained forest can be persisted with encoding/gob as part of
// the model artifact.
type Forest struct {
	Trees []*TreeNode
}

type TreeNode struct {
	Leaf      bool
	Prob      float64 // class-1 probability at a leaf
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
}

const (
	maxTreeDepth    = 32
	minSamplesSplit = 2
)

// TrainForest grows numTrees trees on bootstrap resamples of the data set.
// weights carry the per-sample class weights; rng drives bootstrapping and
// per-split feature subsampling, so a fixed seed yields an identical forest.
func TrainForest(features [][]float64, labels []int, weights []float64, numTrees int, rng *rand.Rand) *Forest {
	forest := &Forest{Trees: make([]*TreeNode, 0, numTrees)}
	n := len(features)
	if n == 0 {
		return forest
	}

	mtry := int(math.Ceil(math.Sqrt(float64(len(features[0])))))

	for t := 0; t < numTrees; t++ {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = rng.Intn(n)
		}
		forest.Trees = append(forest.Trees, growTree(features, labels, weights, indices, mtry, 0, rng))
	}
	return forest
}

// PredictProba returns the mean class-1 probability across all trees.
func (f *Forest) PredictProba(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, tree := range f.Trees {
		sum += tree.classify(x)
	}
	return sum / float64(len(f.Trees))
}

func (n *TreeNode) classify(x []float64) float64 {
	node := n
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Prob
}

func growTree(features [][]float64, labels []int, weights []float64, indices []int, mtry, depth int, rng *rand.Rand) *TreeNode {
	total, positive := weightTotals(labels, weights, indices)
	if total == 0 {
		return &TreeNode{Leaf: true, Prob: 0}
	}
	prob := positive / total

	if depth >= maxTreeDepth || len(indices) < minSamplesSplit || prob == 0 || prob == 1 {
		return &TreeNode{Leaf: true, Prob: prob}
	}

	feature, threshold, ok := bestSplit(features, labels, weights, indices, mtry, rng)
	if !ok {
		return &TreeNode{Leaf: true, Prob: prob}
	}

	var left, right []int
	for _, i := range indices {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &TreeNode{Leaf: true, Prob: prob}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(features, labels, weights, left, mtry, depth+1, rng),
		Right:     growTree(features, labels, weights, right, mtry, depth+1, rng),
	}
}

// bestSplit evaluates candidate thresholds on a random subset of mtry features
// and picks the split with the lowest weighted gini impurity.
func bestSplit(features [][]float64, labels []int, weights []float64, indices []int, mtry int, rng *rand.Rand) (int, float64, bool) {
	numFeatures := len(features[indices[0]])
	candidates := rng.Perm(numFeatures)
	if mtry < len(candidates) {
		candidates = candidates[:mtry]
	}
	sort.Ints(candidates)

	var (
		bestFeature   int
		bestThreshold float64
		bestImpurity  = math.Inf(1)
		found         bool
	)

	for _, feature := range candidates {
		values := make([]float64, 0, len(indices))
		for _, i := range indices {
			values = append(values, features[i][feature])
		}
		sort.Float64s(values)

		for v := 1; v < len(values); v++ {
			if values[v] == values[v-1] {
				continue
			}
			threshold := (values[v] + values[v-1]) / 2
			impurity := splitImpurity(features, labels, weights, indices, feature, threshold)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = threshold
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func splitImpurity(features [][]float64, labels []int, weights []float64, indices []int, feature int, threshold float64) float64 {
	var leftTotal, leftPos, rightTotal, rightPos float64
	for _, i := range indices {
		if features[i][feature] <= threshold {
			leftTotal += weights[i]
			if labels[i] == 1 {
				leftPos += weights[i]
			}
		} else {
			rightTotal += weights[i]
			if labels[i] == 1 {
				rightPos += weights[i]
			}
		}
	}
	total := leftTotal + rightTotal
	if total == 0 {
		return math.Inf(1)
	}
	return leftTotal/total*gini(leftPos, leftTotal) + rightTotal/total*gini(rightPos, rightTotal)
}

func gini(positive, total float64) float64 {
	if total == 0 {
		return 0
	}
	p := positive / total
	return 2 * p * (1 - p)
}

func weightTotals(labels []int, weights []float64, indices []int) (total, positive float64) {
	for _, i := range indices {
		total += weights[i]
		if labels[i] == 1 {
			positive += weights[i]
		}
	}
	return total, positive
}
