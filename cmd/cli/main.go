package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"corrcov/adapters/excel"
	"corrcov/app"
	"corrcov/internal"
	"corrcov/internal/config"
)

func main() {
	var (
		regionFile = flag.String("file", "", "summary-statistics workbook (.xlsx or .csv)")
		ldFile     = flag.String("ld", "", "LD matrix file (optional when the workbook has an LD sheet)")
		n0         = flag.Int("n0", 0, "number of controls")
		n1         = flag.Int("n1", 0, "number of cases")
		threshold  = flag.Float64("threshold", 0, "report corrected coverage of the credible set at this threshold")
		desired    = flag.Float64("coverage", 0, "solve for the smallest set with this corrected coverage")
		nrep       = flag.Int("nrep", 0, "Monte-Carlo replicates per hypothesis (default from config)")
		seed       = flag.Uint64("seed", 0, "random seed (default from config)")
		interval   = flag.Bool("interval", false, "with -threshold: also report a repeated-correction confidence interval")
	)
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *regionFile == "" {
		*regionFile = appConfig.Data.RegionFile
	}
	if *ldFile == "" {
		*ldFile = appConfig.Data.LDFile
	}
	if *regionFile == "" {
		fmt.Fprintln(os.Stderr, "a summary-statistics file is required (-file or REGION_FILE)")
		flag.Usage()
		os.Exit(2)
	}
	if *threshold == 0 && *desired == 0 {
		fmt.Fprintln(os.Stderr, "one of -threshold or -coverage is required")
		flag.Usage()
		os.Exit(2)
	}

	region, err := excel.NewRegionReader(*regionFile, *ldFile).Read(*n0, *n1)
	if err != nil {
		log.Fatalf("Failed to load region: %v", err)
	}

	logger := internal.NewDefaultLogger()
	service := app.NewCorrectionService(appConfig.Correction, nil, logger)
	ctx := context.Background()

	if *threshold > 0 {
		estimate, err := service.CorrectedCoverage(ctx, app.CoverageRequest{
			Region:    region,
			Threshold: *threshold,
			NRep:      *nrep,
			Seed:      *seed,
		})
		if err != nil {
			log.Fatalf("Coverage correction failed: %v", err)
		}
		fmt.Printf("threshold            %.4f\n", estimate.Threshold)
		fmt.Printf("claimed coverage     %.4f\n", estimate.ClaimedCoverage)
		fmt.Printf("corrected coverage   %.4f\n", estimate.CorrectedCoverage)
		fmt.Printf("hypotheses simulated %d (nrep=%d)\n", estimate.NHypotheses, estimate.NRep)

		if *interval {
			ci, err := service.CorrectedCoverageInterval(ctx, app.CoverageRequest{
				Region:    region,
				Threshold: *threshold,
				NRep:      *nrep,
				Seed:      *seed,
			}, 0)
			if err != nil {
				log.Fatalf("Interval estimation failed: %v", err)
			}
			fmt.Printf("%.0f%% interval        [%.4f, %.4f] (median %.4f, %d repeats)\n",
				100*ci.Level, ci.Lower, ci.Upper, ci.Median, ci.Repeats)
		}
	}

	if *desired > 0 {
		result, err := service.CorrectedCredibleSet(ctx, app.CredibleSetRequest{
			Region:          region,
			DesiredCoverage: *desired,
			NRep:            *nrep,
			Seed:            *seed,
		})
		if err != nil {
			log.Fatalf("Credible-set correction failed: %v", err)
		}
		fmt.Printf("required threshold   %.4f\n", result.RequiredThreshold)
		fmt.Printf("corrected coverage   %.4f\n", result.CorrectedCoverage)
		fmt.Printf("set size             %d\n", result.Size)
		if !result.Converged {
			fmt.Printf("warning: search hit the iteration bound after %d iterations; accuracy tolerance may not be met\n", result.Iterations)
		}
		fmt.Printf("credible set:\n")
		for _, id := range result.CredibleSet.VariantIDs {
			fmt.Printf("  %s\n", id)
		}
	}
}
