package radio

// Random Forest
//
// An ensemble of CART trees, each grown on a bootstrap sample with a random
// subset of sqrt(d) candidate features per split and Gini impurity as the
// split criterion. Leaves store the class distribution of their training
// samples; the forest probability is the mean leaf distribution over trees.
// Growth is fully deterministic for a given seed.

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

const leafFeature = -1

// ForestOptions controls random forest growth.
type ForestOptions struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures is the number of candidate features per split; 0 selects sqrt(d).
	MaxFeatures int
	Seed        uint64
}

// DefaultForestOptions mirrors a 100-tree forest seeded with 42.
func DefaultForestOptions() ForestOptions {
	return ForestOptions{Trees: 100, MaxDepth: 32, MinSamplesSplit: 2, Seed: 42}
}

type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
	Value     []float64 `json:"value,omitempty"`
}

// DecisionTree is a flattened binary tree; node 0 is the root.
type DecisionTree struct {
	Nodes []treeNode `json:"nodes"`
}

// RandomForest is a bagged ensemble of decision trees.
type RandomForest struct {
	NumClasses int            `json:"num_classes"`
	Trees      []DecisionTree `json:"trees"`
}

// FitRandomForest grows the ensemble on standardized vectors.
func FitRandomForest(x [][]float64, y []int, numClasses int, opts ForestOptions) (*RandomForest, error) {
	if len(x) == 0 {
		return nil, errors.New("no training vectors")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d vectors but %d labels", len(x), len(y))
	}
	if opts.Trees <= 0 {
		return nil, fmt.Errorf("invalid tree count: %d", opts.Trees)
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = math.MaxInt32
	}
	dim := len(x[0])
	if opts.MaxFeatures <= 0 || opts.MaxFeatures > dim {
		opts.MaxFeatures = max(1, int(math.Sqrt(float64(dim))))
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	forest := &RandomForest{NumClasses: numClasses, Trees: make([]DecisionTree, opts.Trees)}
	for t := range forest.Trees {
		treeRng := rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = treeRng.IntN(len(x))
		}
		grower := treeGrower{x: x, y: y, numClasses: numClasses, opts: opts, rng: treeRng}
		grower.grow(sample, 0)
		forest.Trees[t] = DecisionTree{Nodes: grower.nodes}
	}
	return forest, nil
}

type treeGrower struct {
	x          [][]float64
	y          []int
	numClasses int
	opts       ForestOptions
	rng        *rand.Rand
	nodes      []treeNode
}

// grow appends the subtree for the given sample indices and returns its node index.
func (g *treeGrower) grow(sample []int, depth int) int {
	counts := make([]float64, g.numClasses)
	for _, i := range sample {
		counts[g.y[i]]++
	}

	nodeIdx := len(g.nodes)
	g.nodes = append(g.nodes, treeNode{Feature: leafFeature})

	if depth >= g.opts.MaxDepth || len(sample) < g.opts.MinSamplesSplit || isPure(counts) {
		g.nodes[nodeIdx].Value = normalise(counts)
		return nodeIdx
	}

	feature, threshold, ok := g.bestSplit(sample)
	if !ok {
		g.nodes[nodeIdx].Value = normalise(counts)
		return nodeIdx
	}

	var left, right []int
	for _, i := range sample {
		if g.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	leftIdx := g.grow(left, depth+1)
	rightIdx := g.grow(right, depth+1)
	g.nodes[nodeIdx] = treeNode{Feature: feature, Threshold: threshold, Left: leftIdx, Right: rightIdx}
	return nodeIdx
}

// bestSplit searches a random subset of features for the threshold with the
// lowest weighted Gini impurity. Remaining features are tried when none of
// the sampled ones can separate the node.
func (g *treeGrower) bestSplit(sample []int) (int, float64, bool) {
	dim := len(g.x[0])
	order := g.rng.Perm(dim)

	bestFeature, bestThreshold := -1, 0.0
	bestImpurity := math.Inf(1)
	sorted := append([]int(nil), sample...)

	for n, feature := range order {
		if n >= g.opts.MaxFeatures && bestFeature >= 0 {
			break
		}
		sort.SliceStable(sorted, func(a, b int) bool {
			return g.x[sorted[a]][feature] < g.x[sorted[b]][feature]
		})

		leftCounts := make([]float64, g.numClasses)
		rightCounts := make([]float64, g.numClasses)
		for _, i := range sorted {
			rightCounts[g.y[i]]++
		}

		total := float64(len(sorted))
		for pos := 0; pos < len(sorted)-1; pos++ {
			cls := g.y[sorted[pos]]
			leftCounts[cls]++
			rightCounts[cls]--

			lo, hi := g.x[sorted[pos]][feature], g.x[sorted[pos+1]][feature]
			if lo == hi {
				continue
			}
			nLeft := float64(pos + 1)
			nRight := total - nLeft
			impurity := (nLeft*gini(leftCounts, nLeft) + nRight*gini(rightCounts, nRight)) / total
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 1.0
	for _, c := range counts {
		p := c / n
		sum -= p * p
	}
	return sum
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func normalise(counts []float64) []float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / total
	}
	return out
}

func (t DecisionTree) leaf(x []float64) []float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Feature == leafFeature {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

func (f *RandomForest) Family() string { return FamilyRandomForest }

func (f *RandomForest) Predict(x []float64) (int, []float64) {
	probs := make([]float64, f.NumClasses)
	for _, tree := range f.Trees {
		for c, p := range tree.leaf(x) {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return argmax(probs), probs
}

func (f *RandomForest) validate(dim, classes int) error {
	if f.NumClasses != classes {
		return fmt.Errorf("forest has %d classes, label table has %d", f.NumClasses, classes)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", t)
		}
		for n, node := range tree.Nodes {
			if node.Feature == leafFeature {
				if len(node.Value) != classes {
					return fmt.Errorf("tree %d leaf %d has %d class values, expected %d", t, n, len(node.Value), classes)
				}
				continue
			}
			if node.Feature < 0 || node.Feature >= dim {
				return fmt.Errorf("tree %d node %d splits on feature %d outside [0,%d)", t, n, node.Feature, dim)
			}
			// children always follow their parent, which also rules out cycles
			if node.Left <= n || node.Right <= n || node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children %d/%d", t, n, node.Left, node.Right)
			}
		}
	}
	return nil
}
