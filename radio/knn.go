package radio

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Neighbour weighting schemes.
const (
	WeightUniform  = "uniform"
	WeightDistance = "distance"
)

// KNN classifies by majority vote among the K nearest stored training vectors
// in Euclidean distance. With distance weighting every neighbour votes with
// 1 / (d + 1e-9), so an exact match dominates.
type KNN struct {
	K          int         `json:"k"`
	Weighting  string      `json:"weighting"`
	NumClasses int         `json:"num_classes"`
	Points     [][]float64 `json:"points"`
	Classes    []int       `json:"classes"`
}

type distancePair struct {
	index    int
	distance float64
}

// FitKNN memorises the standardized training set.
func FitKNN(x [][]float64, y []int, numClasses, k int, weighting string) (*KNN, error) {
	if len(x) == 0 {
		return nil, errors.New("no training vectors")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d vectors but %d labels", len(x), len(y))
	}
	if k <= 0 {
		return nil, fmt.Errorf("invalid neighbour count: %d", k)
	}
	if k > len(x) {
		k = len(x)
	}
	if weighting == "" {
		weighting = WeightUniform
	}

	points := make([][]float64, len(x))
	for i, row := range x {
		points[i] = append([]float64(nil), row...)
	}
	return &KNN{
		K:          k,
		Weighting:  weighting,
		NumClasses: numClasses,
		Points:     points,
		Classes:    append([]int(nil), y...),
	}, nil
}

func (m *KNN) Family() string { return FamilyKNN }

func (m *KNN) Predict(x []float64) (int, []float64) {
	distances := make([]distancePair, len(m.Points))
	for i, p := range m.Points {
		distances[i] = distancePair{index: i, distance: floats.Distance(x, p, 2)}
	}
	// stable sort keeps the earlier training vector first on equal distance
	sort.SliceStable(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	votes := make([]float64, m.NumClasses)
	var total float64
	for idx := 0; idx < len(distances) && idx < m.K; idx++ {
		neighbor := distances[idx]
		weight := 1.0
		if m.Weighting == WeightDistance {
			weight = 1.0 / (neighbor.distance + 1e-9)
		}
		votes[m.Classes[neighbor.index]] += weight
		total += weight
	}
	if total > 0 {
		floats.Scale(1/total, votes)
	}
	return argmax(votes), votes
}

func (m *KNN) validate(dim, classes int) error {
	if m.K <= 0 {
		return fmt.Errorf("invalid neighbour count: %d", m.K)
	}
	if m.Weighting != WeightUniform && m.Weighting != WeightDistance {
		return fmt.Errorf("unknown weighting %q", m.Weighting)
	}
	if m.NumClasses != classes {
		return fmt.Errorf("knn has %d classes, label table has %d", m.NumClasses, classes)
	}
	if len(m.Points) == 0 || len(m.Points) != len(m.Classes) {
		return fmt.Errorf("knn has %d points and %d classes", len(m.Points), len(m.Classes))
	}
	for i, p := range m.Points {
		if len(p) != dim {
			return fmt.Errorf("knn point %d has %d features, expected %d", i, len(p), dim)
		}
		if m.Classes[i] < 0 || m.Classes[i] >= classes {
			return fmt.Errorf("knn point %d has class %d outside [0,%d)", i, m.Classes[i], classes)
		}
	}
	return nil
}
