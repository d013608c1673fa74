package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"dscagg/internal/models"
	"dscagg/pkg/config"
	"dscagg/pkg/dicomio"
	"dscagg/pkg/evaluation"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "dscagg.yaml", "Path to YAML configuration file")
	gtDir := flag.String("gt", "", "Directory containing ground-truth DICOM series (one per patient)")
	predDir := flag.String("pred", "", "Directory containing prediction DICOM series")
	numCores := flag.Int("cores", runtime.NumCPU(), "Number of CPU cores to use (default: all available)")
	csvPath := flag.String("csv", "", "Write per-case metrics to this CSV file")
	saveOverlays := flag.Bool("overlays", false, "Save per-slice QC overlays for every case")
	failFast := flag.Bool("fail-fast", false, "Abort the run on the first case error")
	writeConfig := flag.Bool("write-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line flags override the config file
	if *gtDir != "" {
		cfg.Cohort.GroundTruthDir = *gtDir
	}
	if *predDir != "" {
		cfg.Cohort.PredictionDir = *predDir
	}
	if *csvPath != "" {
		cfg.Output.CSVPath = *csvPath
	}
	if *saveOverlays {
		cfg.Output.SaveOverlays = true
	}
	if *failFast {
		cfg.Evaluation.FailFast = true
	}
	cfg.Evaluation.NumCores = *numCores

	// Validate inputs
	if cfg.Cohort.GroundTruthDir == "" || cfg.Cohort.PredictionDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("COHORT-AGGREGATED DICE (DSCagg) EVALUATION")
	fmt.Println("Pooled Dice over paired 3D segmentation volumes, labels: 1=GTVp 2=GTVn")
	fmt.Println("================================")

	params := &evaluation.Params{
		Loader:       dicomio.SeriesLoader{},
		NumCores:     cfg.Evaluation.NumCores,
		FailFast:     cfg.Evaluation.FailFast,
		SaveOverlays: cfg.Output.SaveOverlays,
		OverlayDir:   cfg.Output.OverlayDir,
	}
	if cfg.Output.Verbose {
		params.Logf = log.Printf
	}

	evaluator := evaluation.NewEvaluator(params)

	cases, err := evaluator.DiscoverCases(
		cfg.Cohort.GroundTruthDir, cfg.Cohort.PredictionDir,
		cfg.Cohort.GroundTruthSuffix, cfg.Cohort.PredictionSuffix)
	if err != nil {
		log.Fatalf("Case discovery failed: %v", err)
	}
	fmt.Printf("Discovered %d cases\n", len(cases))

	fmt.Printf("Evaluating with %d cores...\n", cfg.Evaluation.NumCores)
	startTime := time.Now()
	result, err := evaluator.Run(context.Background(), cases)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nEvaluation completed in %.2f seconds\n\n", processingTime.Seconds())
	printReport(result)

	if cfg.Output.CSVPath != "" {
		if err := evaluation.WriteCSV(cfg.Output.CSVPath, result); err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
		fmt.Printf("\nPer-case metrics written to: %s\n", cfg.Output.CSVPath)
	}

	if cfg.Output.SaveOverlays {
		fmt.Printf("QC overlays written to: %s\n", cfg.Output.OverlayDir)
	}

	if len(result.Failures) > 0 {
		os.Exit(2)
	}
}

// printReport prints the per-case table and the aggregate block.
func printReport(result *evaluation.Result) {
	fmt.Println("Per-case Dice:")
	fmt.Println("==============")
	fmt.Printf("%-16s %10s %10s %12s %12s\n", "patient", "DSC GTVp", "DSC GTVn", "volGT_p mm3", "volGT_n mm3")
	for _, c := range result.Cases {
		fmt.Printf("%-16s %10.4f %10.4f %12.1f %12.1f\n",
			c.PatientID, c.DSC[0], c.DSC[1], c.VolGT[0], c.VolGT[1])
	}

	agg := result.Aggregate
	fmt.Println("\nAggregated results:")
	fmt.Println("===================")
	fmt.Printf("DSCagg GTVp (label 1): %.4f\n", agg.DSCagg[0])
	fmt.Printf("DSCagg GTVn (label 2): %.4f\n", agg.DSCagg[1])
	fmt.Printf("DSCagg mean:           %.4f\n", agg.Mean)

	fmt.Println("\nConventional mean Dice (for comparison):")
	for l := 0; l < models.NumForegroundLabels; l++ {
		fmt.Printf("label %d: %.4f over all cases, %.4f excluding empty ground truth",
			models.ForegroundLabels[l], agg.ConventionalMean[l], agg.MeanExcludingEmptyGT[l])
		if len(agg.ExcludedPatients[l]) > 0 {
			fmt.Printf(" (excluded: %s)", strings.Join(agg.ExcludedPatients[l], ", "))
		}
		fmt.Println()
	}

	if len(result.Failures) > 0 {
		fmt.Println("\nFailed cases (not part of the aggregation):")
		for _, f := range result.Failures {
			fmt.Printf("- %s: %v\n", f.PatientID, f.Err)
		}
	}
}
