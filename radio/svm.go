package radio

// Kernel SVM
//
// One-vs-rest support vector machines with an RBF kernel, trained with the
// kernelized Pegasos sub-gradient method. Each binary machine scores
// f_c(x) = sum_s coef[c][s] * exp(-gamma * |x - sv_s|^2) and the class with the
// largest score wins. The margin scores are not calibrated, so the family
// reports no probabilities.

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// maxCachedKernel bounds the training set size for which the full kernel
// matrix is precomputed.
const maxCachedKernel = 2048

// SVMOptions controls kernel SVM training.
type SVMOptions struct {
	// C is the inverse regularisation strength.
	C float64
	// Gamma is the RBF width; 0 selects 1 / (d * Var(X)).
	Gamma float64
	// Epochs is the number of passes (in expectation) over the training set.
	Epochs int
	Seed   uint64
}

// DefaultSVMOptions returns C=1 with the data-derived gamma.
func DefaultSVMOptions() SVMOptions {
	return SVMOptions{C: 1, Epochs: 20, Seed: 42}
}

// KernelSVM is a trained one-vs-rest RBF machine.
type KernelSVM struct {
	Gamma          float64     `json:"gamma"`
	NumClasses     int         `json:"num_classes"`
	SupportVectors [][]float64 `json:"support_vectors"`
	// Coef holds one row per class with a weight per support vector.
	Coef [][]float64 `json:"coef"`
}

// FitKernelSVM trains one binary machine per class on standardized vectors.
func FitKernelSVM(x [][]float64, y []int, numClasses int, opts SVMOptions) (*KernelSVM, error) {
	n := len(x)
	if n == 0 {
		return nil, errors.New("no training vectors")
	}
	if n != len(y) {
		return nil, fmt.Errorf("%d vectors but %d labels", n, len(y))
	}
	if opts.C <= 0 {
		opts.C = 1
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 20
	}
	gamma := opts.Gamma
	if gamma <= 0 {
		gamma = scaleGamma(x)
	}

	kernel := newKernelCache(x, gamma)
	lambda := 1 / (opts.C * float64(n))
	iterations := opts.Epochs * n
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))

	// alpha[c][i] counts the margin violations of sample i for class c
	alpha := make([][]float64, numClasses)
	for c := range alpha {
		alpha[c] = make([]float64, n)
		sign := func(i int) float64 {
			if y[i] == c {
				return 1
			}
			return -1
		}
		for t := 1; t <= iterations; t++ {
			i := rng.IntN(n)
			var sum float64
			for j := 0; j < n; j++ {
				if alpha[c][j] != 0 {
					sum += alpha[c][j] * sign(j) * kernel.at(j, i)
				}
			}
			if sign(i)*sum/(lambda*float64(t)) < 1 {
				alpha[c][i]++
			}
		}
		for j := range alpha[c] {
			alpha[c][j] *= sign(j) / (lambda * float64(iterations))
		}
	}

	model := &KernelSVM{Gamma: gamma, NumClasses: numClasses, Coef: make([][]float64, numClasses)}
	for j := 0; j < n; j++ {
		used := false
		for c := range alpha {
			if alpha[c][j] != 0 {
				used = true
				break
			}
		}
		if !used {
			continue
		}
		model.SupportVectors = append(model.SupportVectors, append([]float64(nil), x[j]...))
		for c := range alpha {
			model.Coef[c] = append(model.Coef[c], alpha[c][j])
		}
	}
	if len(model.SupportVectors) == 0 {
		return nil, errors.New("svm training produced no support vectors")
	}
	return model, nil
}

// scaleGamma mirrors the common "scale" heuristic: 1 / (d * Var(X)).
func scaleGamma(x [][]float64) float64 {
	flat := make([]float64, 0, len(x)*len(x[0]))
	for _, row := range x {
		flat = append(flat, row...)
	}
	variance := stat.PopVariance(flat, nil)
	if variance <= 0 {
		return 1
	}
	return 1 / (float64(len(x[0])) * variance)
}

func rbf(a, b []float64, gamma float64) float64 {
	d := floats.Distance(a, b, 2)
	return math.Exp(-gamma * d * d)
}

type kernelCache struct {
	x      [][]float64
	gamma  float64
	matrix [][]float64
}

func newKernelCache(x [][]float64, gamma float64) *kernelCache {
	kc := &kernelCache{x: x, gamma: gamma}
	if len(x) > maxCachedKernel {
		return kc
	}
	kc.matrix = make([][]float64, len(x))
	for i := range x {
		kc.matrix[i] = make([]float64, len(x))
		for j := 0; j <= i; j++ {
			v := rbf(x[i], x[j], gamma)
			kc.matrix[i][j] = v
			kc.matrix[j][i] = v
		}
	}
	return kc
}

func (kc *kernelCache) at(i, j int) float64 {
	if kc.matrix != nil {
		return kc.matrix[i][j]
	}
	return rbf(kc.x[i], kc.x[j], kc.gamma)
}

func (m *KernelSVM) Family() string { return FamilySVM }

// Predict returns the class with the largest margin and no probabilities.
func (m *KernelSVM) Predict(x []float64) (int, []float64) {
	return argmax(m.Scores(x)), nil
}

// Scores exposes the raw one-vs-rest margins.
func (m *KernelSVM) Scores(x []float64) []float64 {
	k := make([]float64, len(m.SupportVectors))
	for s, sv := range m.SupportVectors {
		k[s] = rbf(x, sv, m.Gamma)
	}
	scores := make([]float64, m.NumClasses)
	for c := range scores {
		scores[c] = floats.Dot(m.Coef[c], k)
	}
	return scores
}

func (m *KernelSVM) validate(dim, classes int) error {
	if !(m.Gamma > 0) || math.IsInf(m.Gamma, 0) {
		return fmt.Errorf("invalid gamma %v", m.Gamma)
	}
	if m.NumClasses != classes || len(m.Coef) != classes {
		return fmt.Errorf("svm has %d classes and %d coefficient rows, label table has %d", m.NumClasses, len(m.Coef), classes)
	}
	if len(m.SupportVectors) == 0 {
		return errors.New("svm has no support vectors")
	}
	for s, sv := range m.SupportVectors {
		if len(sv) != dim {
			return fmt.Errorf("support vector %d has %d features, expected %d", s, len(sv), dim)
		}
	}
	for c, row := range m.Coef {
		if len(row) != len(m.SupportVectors) {
			return fmt.Errorf("coefficient row %d has %d entries, expected %d", c, len(row), len(m.SupportVectors))
		}
	}
	return nil
}
