package radio

import (
	"fmt"
	"io"
	"strings"
)

// ClassMetrics tracks per-class performance.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// EvaluationReport summarises predictions against known labels.
type EvaluationReport struct {
	Labels          []string       `json:"labels"`
	Total           int            `json:"total"`
	Correct         int            `json:"correct"`
	Skipped         int            `json:"skipped,omitempty"`
	Accuracy        float64        `json:"accuracy"`
	AvgConfidence   *float64       `json:"avgConfidence,omitempty"`
	Classes         []ClassMetrics `json:"classes"`
	ConfusionMatrix [][]int        `json:"confusionMatrix"`
}

// NewEvaluationReport builds the confusion matrix and per-class metrics from
// parallel slices of true and predicted class indices.
func NewEvaluationReport(labels []string, truth, predicted []int) EvaluationReport {
	report := EvaluationReport{
		Labels:          append([]string(nil), labels...),
		Total:           len(truth),
		ConfusionMatrix: make([][]int, len(labels)),
	}
	for i := range report.ConfusionMatrix {
		report.ConfusionMatrix[i] = make([]int, len(labels))
	}
	for i := range truth {
		report.ConfusionMatrix[truth[i]][predicted[i]]++
		if truth[i] == predicted[i] {
			report.Correct++
		}
	}
	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total)
	}

	report.Classes = make([]ClassMetrics, len(labels))
	for c, label := range labels {
		var tp, fp, fn int
		for other := range labels {
			if other == c {
				tp = report.ConfusionMatrix[c][c]
				continue
			}
			fn += report.ConfusionMatrix[c][other]
			fp += report.ConfusionMatrix[other][c]
		}
		m := ClassMetrics{Label: label, Support: tp + fn}
		if tp+fp > 0 {
			m.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			m.Recall = float64(tp) / float64(tp+fn)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes[c] = m
	}
	return report
}

// Evaluate classifies every example and compares against its label.
// Examples whose label is not in the model's label table are skipped.
func Evaluate(c *Classifier, examples []Example) (EvaluationReport, error) {
	m := c.Model()
	if m == nil {
		return EvaluationReport{}, ErrModelNotLoaded
	}
	index := make(map[string]int, len(m.Labels))
	for i, label := range m.Labels {
		index[label] = i
	}

	var truth, predicted []int
	var confidenceSum float64
	confidenceCount := 0
	skipped := 0
	for i, ex := range examples {
		want, ok := index[ex.Label]
		if !ok {
			skipped++
			continue
		}
		prediction, err := c.Predict(ex.Features)
		if err != nil {
			return EvaluationReport{}, fmt.Errorf("example %d (%s): %w", i, ex.Label, err)
		}
		truth = append(truth, want)
		predicted = append(predicted, prediction.Index)
		if prediction.Confidence != nil {
			confidenceSum += *prediction.Confidence
			confidenceCount++
		}
	}

	report := NewEvaluationReport(m.Labels, truth, predicted)
	report.Skipped = skipped
	if confidenceCount > 0 {
		avg := confidenceSum / float64(confidenceCount)
		report.AvgConfidence = &avg
	}
	return report, nil
}

// Print writes a classification report and confusion matrix.
func (r EvaluationReport) Print(w io.Writer) {
	fmt.Fprintf(w, "Accuracy: %.2f%% (%d/%d correct)\n", r.Accuracy*100, r.Correct, r.Total)
	if r.AvgConfidence != nil {
		fmt.Fprintf(w, "Average confidence: %.2f%%\n", *r.AvgConfidence*100)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-15s %10s %10s %10s %8s\n", "Class", "Precision", "Recall", "F1", "Support")
	fmt.Fprintln(w, strings.Repeat("-", 57))
	for _, m := range r.Classes {
		fmt.Fprintf(w, "%-15s %10.2f %10.2f %10.2f %8d\n", truncate(m.Label, 15), m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Confusion Matrix:")
	fmt.Fprintf(w, "%-15s", "Actual \\ Pred")
	for _, label := range r.Labels {
		fmt.Fprintf(w, " %6s", truncate(label, 6))
	}
	fmt.Fprintln(w)
	for i, label := range r.Labels {
		fmt.Fprintf(w, "%-15s", truncate(label, 15))
		for j := range r.Labels {
			if count := r.ConfusionMatrix[i][j]; count > 0 {
				fmt.Fprintf(w, " %6d", count)
			} else {
				fmt.Fprintf(w, " %6s", ".")
			}
		}
		fmt.Fprintln(w)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-2] + ".."
}
