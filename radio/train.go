package radio

// Training Pipeline
//
//  1. Labels are sorted to form the label table; every class needs at least
//     two examples so both splits can see it.
//  2. A stratified split holds out TestFraction of every class.
//  3. The scaler is fit on the training split only and applied to both.
//  4. Each candidate family is scored with stratified k-fold cross-validation
//     on the training split, then fit on the whole training split and scored
//     on the held-out split.
//  5. The candidate with the highest held-out accuracy wins. Candidates are
//     evaluated in a fixed order and a later candidate must be strictly
//     better to replace an earlier one.

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"rtl-ml/utils"
)

// Example is one labelled feature vector.
type Example struct {
	Features []float64 `json:"features"`
	Label    string    `json:"label"`
	Source   string    `json:"source,omitempty"`
}

// Candidate is a decision function family that can be trained.
type Candidate struct {
	Family string
	Fit    func(x [][]float64, y []int, numClasses int) (Decision, error)
}

// DefaultCandidates returns the families in evaluation order: random forest,
// kernel SVM, KNN.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Family: FamilyRandomForest, Fit: func(x [][]float64, y []int, numClasses int) (Decision, error) {
			return FitRandomForest(x, y, numClasses, DefaultForestOptions())
		}},
		{Family: FamilySVM, Fit: func(x [][]float64, y []int, numClasses int) (Decision, error) {
			return FitKernelSVM(x, y, numClasses, DefaultSVMOptions())
		}},
		{Family: FamilyKNN, Fit: func(x [][]float64, y []int, numClasses int) (Decision, error) {
			return FitKNN(x, y, numClasses, 5, WeightUniform)
		}},
	}
}

// TrainOptions configures Train.
type TrainOptions struct {
	TestFraction float64
	Folds        int
	Seed         uint64
	Candidates   []Candidate
}

// DefaultTrainOptions holds out 20% with seed 42 and runs 5-fold CV.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{TestFraction: 0.2, Folds: 5, Seed: 42, Candidates: DefaultCandidates()}
}

// CandidateResult records how one family scored.
type CandidateResult struct {
	Family        string    `json:"family"`
	CVScores      []float64 `json:"cvScores,omitempty"`
	CVMean        float64   `json:"cvMean"`
	CVStd         float64   `json:"cvStd"`
	TrainAccuracy float64   `json:"trainAccuracy"`
	TestAccuracy  float64   `json:"testAccuracy"`
	Error         string    `json:"error,omitempty"`
}

// TrainingSummary is stored with the model and printed by the training tool.
type TrainingSummary struct {
	Labels       []string          `json:"labels"`
	ClassCounts  map[string]int    `json:"classCounts"`
	TrainSize    int               `json:"trainSize"`
	TestSize     int               `json:"testSize"`
	Folds        int               `json:"folds"`
	Candidates   []CandidateResult `json:"candidates"`
	Selected     string            `json:"selected"`
	TestAccuracy float64           `json:"testAccuracy"`
	TestReport   *EvaluationReport `json:"testReport,omitempty"`
	Duration     time.Duration     `json:"duration"`
}

// Train fits every candidate and returns the best model with its summary.
func Train(examples []Example, opts TrainOptions) (*Model, *TrainingSummary, error) {
	started := time.Now()
	logger := utils.GetLogger()

	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0,1), got %v", opts.TestFraction)
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = DefaultCandidates()
	}

	labels, y, counts, err := labelTable(examples)
	if err != nil {
		return nil, nil, err
	}
	x := make([][]float64, len(examples))
	for i, ex := range examples {
		x[i] = ex.Features
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	trainIdx, testIdx := stratifiedSplit(y, len(labels), opts.TestFraction, rng)

	xTrainRaw, yTrain := gather(x, y, trainIdx)
	xTestRaw, yTest := gather(x, y, testIdx)

	scaler, err := FitFeatureScaler(xTrainRaw)
	if err != nil {
		return nil, nil, err
	}
	xTrain, _ := scaler.TransformAll(xTrainRaw)
	xTest, _ := scaler.TransformAll(xTestRaw)

	folds := opts.Folds
	if smallest := smallestClass(yTrain, len(labels)); smallest < folds {
		folds = smallest
	}

	summary := &TrainingSummary{
		Labels:      labels,
		ClassCounts: counts,
		TrainSize:   len(trainIdx),
		TestSize:    len(testIdx),
		Folds:       folds,
	}

	var best Decision
	bestAccuracy := -1.0
	for _, candidate := range opts.Candidates {
		result := CandidateResult{Family: candidate.Family}

		if folds >= 2 {
			foldOf := stratifiedFolds(yTrain, len(labels), folds, rng)
			result.CVScores = crossValidate(candidate, xTrain, yTrain, len(labels), foldOf, folds)
			result.CVMean, result.CVStd = stat.PopMeanStdDev(result.CVScores, nil)
		}

		decision, err := candidate.Fit(xTrain, yTrain, len(labels))
		if err != nil {
			result.Error = err.Error()
			summary.Candidates = append(summary.Candidates, result)
			logger.Warn("candidate failed to train", "family", candidate.Family, "error", err)
			continue
		}
		result.TrainAccuracy = accuracy(decision, xTrain, yTrain)
		result.TestAccuracy = accuracy(decision, xTest, yTest)
		summary.Candidates = append(summary.Candidates, result)

		logger.Info("candidate evaluated",
			"family", candidate.Family,
			"cv_mean", result.CVMean,
			"cv_std", result.CVStd,
			"train_accuracy", result.TrainAccuracy,
			"test_accuracy", result.TestAccuracy)

		if result.TestAccuracy > bestAccuracy {
			best = decision
			bestAccuracy = result.TestAccuracy
		}
	}
	if best == nil {
		return nil, summary, errors.New("no candidate model could be trained")
	}

	model, err := NewModel(labels, scaler, best)
	if err != nil {
		return nil, summary, err
	}
	summary.Selected = best.Family()
	summary.TestAccuracy = bestAccuracy

	report, err := Evaluate(NewClassifier(model), selectExamples(examples, testIdx))
	if err != nil {
		return nil, summary, err
	}
	summary.TestReport = &report
	summary.Duration = time.Since(started)
	model.Summary = summary

	return model, summary, nil
}

// labelTable validates examples and maps labels to sorted class indices.
func labelTable(examples []Example) ([]string, []int, map[string]int, error) {
	if len(examples) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no examples", ErrInsufficientTrainingData)
	}
	counts := make(map[string]int)
	for i, ex := range examples {
		if ex.Label == "" {
			return nil, nil, nil, fmt.Errorf("example %d has no label", i)
		}
		if len(ex.Features) != FeatureCount {
			return nil, nil, nil, fmt.Errorf("%w: example %d has %d features, expected %d",
				ErrFeatureDimensionMismatch, i, len(ex.Features), FeatureCount)
		}
		for j, v := range ex.Features {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, nil, fmt.Errorf("example %d feature %d is not finite", i, j)
			}
		}
		counts[ex.Label]++
	}
	if len(counts) < 2 {
		return nil, nil, nil, fmt.Errorf("%w: need at least 2 classes, got %d", ErrInsufficientTrainingData, len(counts))
	}

	labels := make([]string, 0, len(counts))
	for label, n := range counts {
		if n < 2 {
			return nil, nil, nil, fmt.Errorf("%w: class %q has %d example(s), need at least 2",
				ErrInsufficientTrainingData, label, n)
		}
		labels = append(labels, label)
	}
	sort.Strings(labels)

	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}
	y := make([]int, len(examples))
	for i, ex := range examples {
		y[i] = index[ex.Label]
	}
	return labels, y, counts, nil
}

// stratifiedSplit holds out round(fraction*n) examples of every class, at
// least one and never all of them.
func stratifiedSplit(y []int, numClasses int, fraction float64, rng *rand.Rand) ([]int, []int) {
	var train, test []int
	for _, members := range classMembers(y, numClasses) {
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		nTest := int(math.Round(fraction * float64(len(members))))
		nTest = max(1, min(nTest, len(members)-1))
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// stratifiedFolds deals the shuffled members of each class round-robin over k folds.
func stratifiedFolds(y []int, numClasses, k int, rng *rand.Rand) []int {
	foldOf := make([]int, len(y))
	for _, members := range classMembers(y, numClasses) {
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		for pos, idx := range members {
			foldOf[idx] = pos % k
		}
	}
	return foldOf
}

func crossValidate(candidate Candidate, x [][]float64, y []int, numClasses int, foldOf []int, k int) []float64 {
	scores := make([]float64, 0, k)
	for fold := 0; fold < k; fold++ {
		var trainX, testX [][]float64
		var trainY, testY []int
		for i := range x {
			if foldOf[i] == fold {
				testX = append(testX, x[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, x[i])
				trainY = append(trainY, y[i])
			}
		}
		decision, err := candidate.Fit(trainX, trainY, numClasses)
		if err != nil {
			scores = append(scores, 0)
			continue
		}
		scores = append(scores, accuracy(decision, testX, testY))
	}
	return scores
}

func accuracy(d Decision, x [][]float64, y []int) float64 {
	if len(x) == 0 {
		return 0
	}
	correct := 0
	for i := range x {
		if class, _ := d.Predict(x[i]); class == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}

func classMembers(y []int, numClasses int) [][]int {
	members := make([][]int, numClasses)
	for i, c := range y {
		members[c] = append(members[c], i)
	}
	return members
}

func smallestClass(y []int, numClasses int) int {
	smallest := math.MaxInt
	for _, members := range classMembers(y, numClasses) {
		smallest = min(smallest, len(members))
	}
	return smallest
}

func gather(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = x[j]
		ys[i] = y[j]
	}
	return xs, ys
}

func selectExamples(examples []Example, idx []int) []Example {
	out := make([]Example, len(idx))
	for i, j := range idx {
		out[i] = examples[j]
	}
	return out
}
