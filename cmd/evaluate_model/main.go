package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"rtl-ml/dataset"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

// EvaluationConfig holds evaluation parameters
type EvaluationConfig struct {
	ModelPath  string
	DatasetDir string
	ReportPath string
	Verbose    bool
}

// MisclassificationInfo stores details of incorrect predictions
type MisclassificationInfo struct {
	Source         string   `json:"source"`
	TrueLabel      string   `json:"trueLabel"`
	PredictedLabel string   `json:"predictedLabel"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// Report is written to disk when -report is given
type Report struct {
	Timestamp      time.Time               `json:"timestamp"`
	ModelPath      string                  `json:"modelPath"`
	Model          radio.ModelStats        `json:"model"`
	Evaluation     radio.EvaluationReport  `json:"evaluation"`
	Misclassified  []MisclassificationInfo `json:"misclassified"`
	ProcessingTime time.Duration           `json:"processingTime"`
}

func main() {
	config := parseFlags()
	ctx := context.Background()
	started := time.Now()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation Pipeline ===")
	log.Printf("Model: %s\n", config.ModelPath)
	log.Printf("Dataset: %s\n", config.DatasetDir)
	log.Println()

	log.Println("Loading trained model...")
	classifier, err := radio.NewClassifierFromFile(config.ModelPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load model: %v", err)
	}
	stats := classifier.Stats()
	log.Printf("Loaded %s model covering %d classes\n", stats.Family, stats.LabelCount)
	log.Println()

	store, err := dataset.NewFileStore(config.DatasetDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to open dataset: %v", err)
	}
	examples, ingest, err := dataset.LoadExamples(ctx, store)
	if err != nil {
		log.Fatalf("ERROR: Failed to load records: %v", err)
	}
	log.Printf("Extracted %d/%d feature vectors\n", ingest.Succeeded, ingest.Total)

	evaluation, err := radio.Evaluate(classifier, examples)
	if err != nil {
		log.Fatalf("ERROR: Evaluation failed: %v", err)
	}
	if evaluation.Skipped > 0 {
		log.Printf("WARNING: %d records carry labels the model does not know\n", evaluation.Skipped)
	}

	misclassified := findMisclassified(classifier, examples, config.Verbose)

	evaluation.Print(os.Stdout)
	log.Printf("Misclassified: %d\n", len(misclassified))

	if config.ReportPath != "" {
		report := Report{
			Timestamp:      time.Now(),
			ModelPath:      config.ModelPath,
			Model:          stats,
			Evaluation:     evaluation,
			Misclassified:  misclassified,
			ProcessingTime: time.Since(started),
		}
		if err := saveReport(report, config.ReportPath); err != nil {
			log.Fatalf("ERROR: Failed to save report: %v", err)
		}
		log.Printf("Report saved to: %s\n", config.ReportPath)
	}
}

func parseFlags() EvaluationConfig {
	config := EvaluationConfig{}

	flag.StringVar(&config.ModelPath, "model", utils.GetEnv("RTLML_MODEL_PATH", "models/rtl_ml_model.json"),
		"Path to trained model")
	flag.StringVar(&config.DatasetDir, "dataset", utils.GetEnv("RTLML_DATASET_DIR", "rtl_ml_data"),
		"Directory containing labelled records")
	flag.StringVar(&config.ReportPath, "report", "",
		"Optional path for a JSON evaluation report")
	flag.BoolVar(&config.Verbose, "verbose", false,
		"Log every misclassification")
	flag.Parse()

	if _, err := os.Stat(config.DatasetDir); os.IsNotExist(err) {
		log.Fatalf("ERROR: Dataset directory does not exist: %s", config.DatasetDir)
	}
	return config
}

func findMisclassified(classifier *radio.Classifier, examples []radio.Example, verbose bool) []MisclassificationInfo {
	misclassified := []MisclassificationInfo{}
	for _, ex := range examples {
		prediction, err := classifier.Predict(ex.Features)
		if err != nil {
			log.Printf("  ERROR predicting %s: %v\n", filepath.Base(ex.Source), err)
			continue
		}
		if prediction.Label == ex.Label {
			continue
		}
		info := MisclassificationInfo{
			Source:         ex.Source,
			TrueLabel:      ex.Label,
			PredictedLabel: prediction.Label,
			Confidence:     prediction.Confidence,
		}
		misclassified = append(misclassified, info)
		if verbose {
			log.Printf("  ✗ %s: %s predicted as %s\n", filepath.Base(ex.Source), ex.Label, prediction.Label)
		}
	}
	return misclassified
}

func saveReport(report Report, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := utils.CreateFolder(dir); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
