package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"rtl-ml/dataset"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

// Explain which features drive the prediction for one stored record
func main() {
	modelPath := flag.String("model", utils.GetEnv("RTLML_MODEL_PATH", "models/rtl_ml_model.json"), "Path to trained model")
	top := flag.Int("top", 5, "Number of most unusual features to list")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: explain_classification [-model path] <record.iqz.json>")
	}

	recordPath := flag.Arg(0)
	fmt.Printf("=== Explaining Classification for: %s ===\n\n", filepath.Base(recordPath))

	classifier, err := radio.NewClassifierFromFile(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load classifier: %v", err)
	}
	model := classifier.Model()

	fmt.Printf("📊 Model Overview:\n")
	fmt.Printf("   Family: %s\n", model.Family())
	fmt.Printf("   Classes: %v\n", model.Labels)
	if model.Summary != nil {
		for _, label := range model.Labels {
			fmt.Printf("   - %s: %d training records\n", label, model.Summary.ClassCounts[label])
		}
		fmt.Printf("   Held-out accuracy: %.1f%%\n", model.Summary.TestAccuracy*100)
	}
	fmt.Println()

	rec, err := dataset.ReadRecord(recordPath)
	if err != nil {
		log.Fatalf("Read error: %v", err)
	}
	buf, err := rec.Buffer()
	if err != nil {
		log.Fatalf("Invalid record: %v", err)
	}
	fmt.Printf("📻 Record: label=%s, %.3f MHz, %d samples at %.0f S/s (%.3fs)\n\n",
		rec.Label, rec.CenterFreq/1e6, buf.Len(), buf.SampleRate, buf.Duration())

	features, err := radio.ExtractFeatureVector(buf)
	if err != nil {
		log.Fatalf("Feature extraction failed: %v", err)
	}
	scaled, err := model.Scaler.Transform(features)
	if err != nil {
		log.Fatalf("Scaling failed: %v", err)
	}

	// Standardized values are z-scores against the training set, so the
	// largest magnitudes mark what is unusual about this capture.
	names := radio.FeatureNames()
	fmt.Printf("%-20s %14s %10s\n", "Feature", "Raw", "z-score")
	for i, name := range names {
		fmt.Printf("%-20s %14.6g %10.3f\n", name, features[i], scaled[i])
	}
	fmt.Println()

	order := make([]int, len(scaled))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(scaled[order[a]]) > math.Abs(scaled[order[b]])
	})
	fmt.Printf("🔍 Most unusual features:\n")
	for _, i := range order[:min(*top, len(order))] {
		fmt.Printf("   %-20s z=%+.2f\n", names[i], scaled[i])
	}
	fmt.Println()

	prediction, err := classifier.Predict(features)
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}
	fmt.Printf("🎯 Prediction: %s\n", prediction.Label)
	if prediction.Confidence == nil {
		fmt.Printf("   %s models report no probabilities\n", prediction.Family)
	} else {
		fmt.Printf("   Confidence: %.1f%%\n", *prediction.Confidence*100)
		for _, p := range prediction.Probabilities {
			fmt.Printf("   - %-16s %.3f\n", p.Label, p.Probability)
		}
	}
	fmt.Println()

	fmt.Printf("🧪 Heuristic checks:\n")
	for _, label := range uniqueLabels(rec.Label, prediction.Label) {
		record := radio.Validate(label, buf)
		fmt.Printf("   %s (%s): passed=%v %s\n", label, record.Check, record.Passed(), record.Note)
		keys := make([]string, 0, len(record.Metrics))
		for key := range record.Metrics {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("      %s = %.4g\n", key, record.Metrics[key])
		}
	}

	if rec.Label != "" && rec.Label != prediction.Label {
		fmt.Printf("\n⚠️  Recorded as %s but predicted %s\n", rec.Label, prediction.Label)
		os.Exit(2)
	}
}

func uniqueLabels(labels ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, label := range labels {
		if label != "" && !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}
