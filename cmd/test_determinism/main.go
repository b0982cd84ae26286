package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"rtl-ml/dataset"
	"rtl-ml/radio"
	"rtl-ml/synth"
	"rtl-ml/utils"
)

// Test if feature extraction and prediction are deterministic
func main() {
	synthLabel := flag.String("synth", "", "Generate a synthetic capture for this label instead of reading a record")
	modelPath := flag.String("model", utils.GetEnv("RTLML_MODEL_PATH", ""), "Optional model for the prediction check")
	flag.Parse()

	buf, source := loadBuffer(*synthLabel, flag.Arg(0))
	log.Printf("Testing determinism with: %s\n", source)

	// Extract features 5 times from the same capture
	const numRuns = 5
	var featureSets []radio.FeatureVector

	for i := 0; i < numRuns; i++ {
		features, err := radio.ExtractFeatureVector(buf)
		if err != nil {
			log.Fatalf("Run %d failed: %v", i+1, err)
		}
		featureSets = append(featureSets, features)
		log.Printf("Run %d: First 5 features: %.10f, %.10f, %.10f, %.10f, %.10f",
			i+1, features[0], features[1], features[2], features[3], features[4])
	}

	fmt.Println("\n=== Determinism Check ===")
	allIdentical := true
	maxDiff := 0.0
	names := radio.FeatureNames()

	for i := 1; i < numRuns; i++ {
		for j := range featureSets[0] {
			diff := math.Abs(featureSets[0][j] - featureSets[i][j])
			if diff > maxDiff {
				maxDiff = diff
			}
			if diff != 0 {
				allIdentical = false
				fmt.Printf("❌ %s differs between run 1 and run %d: %.15f vs %.15f (diff: %e)\n",
					names[j], i+1, featureSets[0][j], featureSets[i][j], diff)
			}
		}
	}

	if allIdentical {
		fmt.Println("✅ All runs produced IDENTICAL features (deterministic)")
	} else {
		fmt.Printf("❌ Feature extraction is NON-DETERMINISTIC (max diff: %e)\n", maxDiff)
	}

	if *modelPath == "" {
		return
	}

	fmt.Println("\n=== Prediction Check ===")
	classifier, err := radio.NewClassifierFromFile(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	first, err := classifier.Predict(featureSets[0])
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}
	for i := 1; i < numRuns; i++ {
		next, err := classifier.Predict(featureSets[i])
		if err != nil {
			log.Fatalf("Prediction failed: %v", err)
		}
		if next.Label != first.Label || !sameConfidence(first.Confidence, next.Confidence) {
			fmt.Printf("❌ Run %d predicted %s, run 1 predicted %s\n", i+1, next.Label, first.Label)
			return
		}
	}
	fmt.Printf("✅ Every run predicted %s\n", first.Label)
}

func loadBuffer(label, path string) (radio.Buffer, string) {
	if label != "" {
		const rate = 1.024e6
		buf, err := radio.NewBuffer(synth.ForLabel(label)(int(rate/2), rate, 1), rate)
		if err != nil {
			log.Fatalf("Synthesis failed: %v", err)
		}
		return buf, "synthetic " + label
	}
	if path == "" {
		log.Fatal("Usage: test_determinism [-model path] (-synth <label> | <record.iqz.json>)")
	}
	rec, err := dataset.ReadRecord(path)
	if err != nil {
		log.Fatalf("Read error: %v", err)
	}
	buf, err := rec.Buffer()
	if err != nil {
		log.Fatalf("Invalid record: %v", err)
	}
	return buf, path
}

func sameConfidence(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
