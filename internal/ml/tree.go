package ml

import (
	"math/rand"
	"sort"
)

const (
	leaf            = -1
	minSamplesSplit = 2
)

// Estimator is anything that maps a scaled feature row to a price.
type Estimator interface {
	Predict(row []float64) float64
}

// Node is one entry of a flattened regression tree. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a CART regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for row. Rows go left when row[Feature] <= Threshold.
func (t *Tree) Predict(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for t.Nodes[i].Feature != leaf {
		n := t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

type treeBuilder struct {
	x        [][]float64
	y        []float64
	maxDepth int
	nodes    []Node
	order    []int
}

// fitTree grows a tree on a bootstrap sample of the rows in x drawn from rng.
// A nil rng fits on every row exactly once.
func fitTree(x [][]float64, y []float64, maxDepth int, rng *rand.Rand) *Tree {
	idx := make([]int, len(x))
	for i := range idx {
		if rng != nil {
			idx[i] = rng.Intn(len(x))
		} else {
			idx[i] = i
		}
	}

	b := &treeBuilder{x: x, y: y, maxDepth: maxDepth, order: make([]int, len(idx))}
	b.build(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	sse := sumSq - sum*sum/n

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Left: leaf, Right: leaf, Value: sum / n})

	if depth >= b.maxDepth || len(idx) < minSamplesSplit || sse <= 0 {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sse)
	if !ok {
		return id
	}

	// partition in place: rows at or below the threshold first
	k := 0
	for j, i := range idx {
		if b.x[i][feature] <= threshold {
			idx[j], idx[k] = idx[k], idx[j]
			k++
		}
	}

	left := b.build(idx[:k], depth+1)
	right := b.build(idx[k:], depth+1)

	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = left
	b.nodes[id].Right = right
	return id
}

// bestSplit scans every feature for the threshold with the lowest summed
// squared error of the two children. Thresholds sit halfway between
// consecutive distinct values.
func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (int, float64, bool) {
	bestFeature, bestThreshold := -1, 0.0
	best := parentSSE

	sorted := b.order[:len(idx)]
	nFeatures := len(b.x[idx[0]])

	for f := 0; f < nFeatures; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		var totalSum, totalSq float64
		for _, i := range sorted {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		var leftSum, leftSq float64
		for k := 1; k < len(sorted); k++ {
			prev := sorted[k-1]
			leftSum += b.y[prev]
			leftSq += b.y[prev] * b.y[prev]

			lo, hi := b.x[prev][f], b.x[sorted[k]][f]
			if lo == hi {
				continue
			}

			nl, nr := float64(k), float64(len(sorted)-k)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < best {
				best = sse
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
