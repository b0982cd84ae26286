package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"rtl-ml/config"
	"rtl-ml/dataset"
	"rtl-ml/radio"
	"rtl-ml/synth"
	"rtl-ml/utils"
)

// Generates a labelled dataset from the synthetic signal models so the
// training pipeline can run without a tuner.
func main() {
	outDir := flag.String("out", utils.GetEnv("RTLML_DATASET_DIR", "rtl_ml_data"), "Dataset directory")
	labels := flag.String("labels", "ADS_B,NOAA_APT,ISM_sensors,FM_broadcast,noise", "Comma-separated labels to generate")
	samples := flag.Int("samples", 30, "Records per label")
	duration := flag.Duration("duration", 50*time.Millisecond, "Length of each record")
	rate := flag.Float64("rate", 1.024e6, "Sample rate in S/s")
	seed := flag.Uint64("seed", 1, "Base seed")
	flag.Parse()

	ctx := context.Background()
	store, err := dataset.NewFileStore(*outDir)
	if err != nil {
		log.Fatalf("failed to open dataset: %v", err)
	}

	n := int(*rate * duration.Seconds())
	if n < radio.MinSamples {
		log.Fatalf("duration %s is too short at %.0f S/s", *duration, *rate)
	}

	frequencies := map[string]float64{}
	for _, signal := range config.DefaultSignals {
		frequencies[signal.Name] = signal.Frequency
	}

	report := radio.ValidationReport{}
	for li, label := range strings.Split(*labels, ",") {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		gen := synth.ForLabel(label)
		log.Printf("Generating %d %s records (%d samples each)\n", *samples, label, n)

		for i := 0; i < *samples; i++ {
			s := *seed + uint64(li*100000+i)
			rec := &dataset.Record{
				Label:      label,
				CenterFreq: frequencies[label],
				SampleRate: *rate,
				Samples:    gen(n, *rate, s),
			}
			if _, err := store.Save(ctx, rec); err != nil {
				log.Printf("  ERROR: %v", err)
				continue
			}
		}

		buf, err := radio.NewBuffer(gen(2*n, *rate, *seed+uint64(li*100000+99999)), *rate)
		if err != nil {
			log.Fatalf("failed to build validation capture: %v", err)
		}
		report[label] = radio.Validate(label, buf)
		log.Printf("  ✓ %s validation (%s): passed=%v\n", label, report[label].Check, report[label].Passed())
	}

	if err := store.SaveReport(ctx, report); err != nil {
		log.Fatalf("failed to save validation report: %v", err)
	}
	log.Printf("Dataset written to %s\n", store.Dir())
}
