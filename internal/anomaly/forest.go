package anomaly

import (
	"math"
	"math/rand"
)

const (
	defaultNumTrees  = 100
	defaultSubsample = 256
	eulerMascheroni  = 0.5772156649015329
)

// isolationTree is a single randomized isolation tree: internal nodes split
// on a random feature at a random threshold between the observed min/max for
// the subsample that reached them; leaves record the remaining subsample size
// so short paths to small leaves count as partial isolation.
type isolationTree struct {
	isLeaf    bool
	size      int // subsample size that reached this leaf (only meaningful if isLeaf)
	feature   int
	threshold float64
	left      *isolationTree
	right     *isolationTree
}

func buildTree(rng *rand.Rand, rows [][]float64, depth, maxDepth int) *isolationTree {
	if depth >= maxDepth || len(rows) <= 1 {
		return &isolationTree{isLeaf: true, size: len(rows)}
	}

	feature := rng.Intn(numFeatures)
	minV, maxV := rows[0][feature], rows[0][feature]
	for _, r := range rows[1:] {
		if r[feature] < minV {
			minV = r[feature]
		}
		if r[feature] > maxV {
			maxV = r[feature]
		}
	}
	if minV == maxV {
		return &isolationTree{isLeaf: true, size: len(rows)}
	}

	threshold := minV + rng.Float64()*(maxV-minV)

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationTree{isLeaf: true, size: len(rows)}
	}

	return &isolationTree{
		feature:   feature,
		threshold: threshold,
		left:      buildTree(rng, left, depth+1, maxDepth),
		right:     buildTree(rng, right, depth+1, maxDepth),
	}
}

// pathLength walks x down the tree, returning the traversed depth adjusted by
// the average path length of an unbuilt subtree of the leaf's residual size
// (the standard isolation-forest correction, c(n)).
func pathLength(t *isolationTree, x []float64, depth int) float64 {
	if t.isLeaf {
		return float64(depth) + averagePathLength(t.size)
	}
	if x[t.feature] < t.threshold {
		return pathLength(t.left, x, depth+1)
	}
	return pathLength(t.right, x, depth+1)
}

// averagePathLength is c(n): the expected path length of an unsuccessful
// search in a binary search tree over n items.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2*harmonic(n-1) - 2*float64(n-1)/float64(n)
}

func harmonic(i int) float64 {
	if i <= 0 {
		return 0
	}
	return math.Log(float64(i)) + eulerMascheroni
}

// forest is an ensemble of isolation trees fit over a bounded subsample of
// the ring buffer's recent history.
type forest struct {
	trees      []*isolationTree
	subsampleN int
}

// fitForest builds a new forest from samples. Equivalent unsupervised outlier
// models satisfying the fit/score contract are acceptable; this one is a
// minimal isolation-forest.
func fitForest(samples []Sample, rng *rand.Rand) *forest {
	n := len(samples)
	if n == 0 {
		return nil
	}
	subsample := defaultSubsample
	if subsample > n {
		subsample = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(subsample))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	trees := make([]*isolationTree, 0, defaultNumTrees)
	for i := 0; i < defaultNumTrees; i++ {
		rows := sampleRows(samples, subsample, rng)
		trees = append(trees, buildTree(rng, rows, 0, maxDepth))
	}
	return &forest{trees: trees, subsampleN: subsample}
}

func sampleRows(samples []Sample, k int, rng *rand.Rand) [][]float64 {
	n := len(samples)
	rows := make([][]float64, k)
	for i := 0; i < k; i++ {
		rows[i] = samples[rng.Intn(n)].vector()
	}
	return rows
}

// rawScore returns the classic isolation-forest anomaly score in (0,1),
// where values near 1 indicate an anomaly and near 0.5 indicate normal data.
func (f *forest) rawScore(x []float64) float64 {
	if f == nil || len(f.trees) == 0 {
		return 0.5
	}
	var sum float64
	for _, t := range f.trees {
		sum += pathLength(t, x, 0)
	}
	avg := sum / float64(len(f.trees))
	cn := averagePathLength(f.subsampleN)
	if cn <= 0 {
		return 0.5
	}
	return math.Pow(2, -avg/cn)
}
