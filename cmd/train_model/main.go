package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"rtl-ml/dataset"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

// Config holds training configuration
type Config struct {
	DatasetDir   string
	OutputPath   string
	TestFraction float64
	Folds        int
	Seed         uint64
	Analyze      bool
	Verbose      bool
}

func main() {
	config := parseFlags()
	ctx := context.Background()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("=== RTL-ML Classifier Training Pipeline ===\n")
	log.Printf("Dataset: %s\n", config.DatasetDir)
	log.Printf("Output model: %s\n", config.OutputPath)
	log.Println()

	startTime := time.Now()

	// Step 1: Discover dataset structure
	log.Println("Step 1: Discovering dataset...")
	store, err := dataset.NewFileStore(config.DatasetDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to open dataset: %v", err)
	}
	labels, err := store.Labels()
	if err != nil {
		log.Fatalf("ERROR: Failed to read dataset directory: %v", err)
	}
	if len(labels) == 0 {
		log.Fatalf("ERROR: No label directories found in %s", config.DatasetDir)
	}

	log.Printf("Found %d classes:\n", len(labels))
	for _, label := range labels {
		paths, _ := store.List(label)
		log.Printf("  - %s: %d records\n", label, len(paths))
	}
	log.Println()

	// Step 2: Extract features
	log.Println("Step 2: Extracting features from records...")
	var progress dataset.ProgressFunc
	if config.Verbose {
		processed := 0
		progress = func(path string, rec dataset.Record, err error) {
			processed++
			if err != nil {
				log.Printf("  [%d] %s: FAILED: %v\n", processed, path, err)
				return
			}
			log.Printf("  [%d] %s: %s, %d samples\n", processed, filepath.Base(path), rec.Label, len(rec.Samples))
		}
	}
	examples, stats, err := dataset.LoadExamplesWithProgress(ctx, store, progress)
	if err != nil {
		log.Fatalf("ERROR: Failed to load records: %v", err)
	}
	log.Printf("Successfully extracted %d/%d feature vectors\n", stats.Succeeded, stats.Total)
	if stats.Failed > 0 {
		log.Printf("WARNING: %d records failed to process\n", stats.Failed)
	}
	log.Println()

	if config.Analyze {
		analysis := radio.AnalyzeFeatureScales(examples)
		analysis.Print(os.Stdout)
		for _, issue := range analysis.CheckScaleIssues() {
			log.Printf("WARNING: %s\n", issue)
		}
	}

	// Step 3: Train and select
	log.Println("Step 3: Training candidate models...")
	opts := radio.DefaultTrainOptions()
	opts.TestFraction = config.TestFraction
	opts.Folds = config.Folds
	opts.Seed = config.Seed
	model, summary, err := radio.Train(examples, opts)
	if err != nil {
		log.Fatalf("ERROR: Training failed: %v", err)
	}
	log.Println()

	// Step 4: Save model
	log.Println("Step 4: Saving model to disk...")
	if err := radio.SaveModel(config.OutputPath, model); err != nil {
		log.Fatalf("ERROR: Failed to save model: %v", err)
	}
	log.Printf("Model saved to: %s\n", config.OutputPath)
	log.Println()

	printTrainingSummary(summary, stats, startTime)
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.DatasetDir, "dataset", utils.GetEnv("RTLML_DATASET_DIR", "rtl_ml_data"),
		"Directory containing records organized by label folders")
	flag.StringVar(&config.OutputPath, "output", utils.GetEnv("RTLML_MODEL_PATH", "models/rtl_ml_model.json"),
		"Output path for trained model")
	flag.Float64Var(&config.TestFraction, "test-fraction", 0.2,
		"Fraction of records held out for testing")
	flag.IntVar(&config.Folds, "folds", 5,
		"Cross-validation folds (capped by the smallest class)")
	flag.Uint64Var(&config.Seed, "seed", 42,
		"Seed for the split, bootstrap and SVM sampling")
	flag.BoolVar(&config.Analyze, "analyze", false,
		"Print a feature scale analysis before training")
	flag.BoolVar(&config.Verbose, "verbose", false,
		"Log every record as its features are extracted")

	flag.Parse()

	// Validate paths
	if _, err := os.Stat(config.DatasetDir); os.IsNotExist(err) {
		log.Fatalf("ERROR: Dataset directory does not exist: %s", config.DatasetDir)
	}

	return config
}

func printTrainingSummary(summary *radio.TrainingSummary, stats dataset.IngestStats, startTime time.Time) {
	elapsed := time.Since(startTime)

	log.Println("=== Training Summary ===")
	log.Println()
	log.Printf("Total records: %d\n", stats.Total)
	log.Printf("Train/test split: %d/%d\n", summary.TrainSize, summary.TestSize)
	log.Printf("Cross-validation folds: %d\n", summary.Folds)
	log.Println()

	log.Println("Class distribution:")
	labels := make([]string, 0, len(summary.ClassCounts))
	for label := range summary.ClassCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		log.Printf("  %-20s: %3d records\n", label, summary.ClassCounts[label])
	}
	log.Println()

	log.Println("Candidates:")
	for _, c := range summary.Candidates {
		if c.Error != "" {
			log.Printf("  %-14s FAILED: %s\n", c.Family, c.Error)
			continue
		}
		marker := " "
		if c.Family == summary.Selected {
			marker = "*"
		}
		log.Printf(" %s%-14s CV %.3f ± %.3f  train %.3f  test %.3f\n",
			marker, c.Family, c.CVMean, c.CVStd, c.TrainAccuracy, c.TestAccuracy)
	}
	log.Println()

	if summary.TestReport != nil {
		summary.TestReport.Print(os.Stdout)
	}

	log.Printf("Selected model: %s (test accuracy %.1f%%)\n", summary.Selected, summary.TestAccuracy*100)
	log.Printf("Total training time: %.2f seconds\n", elapsed.Seconds())
	log.Println()
	log.Println("✓ Training complete!")
}
