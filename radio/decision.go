package radio

// Model families.
const (
	FamilyRandomForest = "random_forest"
	FamilySVM          = "svm"
	FamilyKNN          = "knn"
)

// Decision is a trained decision function over standardized feature vectors.
// The set of implementations is closed: *RandomForest, *KernelSVM and *KNN.
type Decision interface {
	// Family names the decision function, e.g. "knn".
	Family() string
	// Predict returns the winning class index and, when the family supports
	// it, the probability of every class. probs is nil otherwise.
	Predict(x []float64) (class int, probs []float64)

	validate(dim, classes int) error
}

// argmax returns the index of the largest value, preferring the lowest index
// on ties.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
