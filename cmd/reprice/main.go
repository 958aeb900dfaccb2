package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/sedori-tools/repricer/internal/app"
	"github.com/sedori-tools/repricer/internal/audit"
	"github.com/sedori-tools/repricer/internal/config"
	replog "github.com/sedori-tools/repricer/internal/log"
	"github.com/sedori-tools/repricer/internal/output"
	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
	"github.com/sedori-tools/repricer/internal/rulestore"
	"github.com/sedori-tools/repricer/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional YAML config for codec and column settings")
		rulesPath  = flag.String("rules", "", "rules JSON file (defaults to rules.file from config)")
		mode       = flag.String("mode", string(repricer.ModePreview), "preview or apply")
		date       = flag.String("date", "", "run date YYYY-MM-DD (defaults to today)")
		outDir     = flag.String("out", "", "output directory for apply (defaults to output.dir from config)")
		asJSON     = flag.Bool("json", false, "print the full result as JSON")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <listing.csv|listing.xlsx>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	inputPath := flag.Arg(0)

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *rulesPath != "" {
		cfg.Rules.File = *rulesPath
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}

	runMode := repricer.Mode(*mode)
	if runMode != repricer.ModePreview && runMode != repricer.ModeApply {
		log.Fatalf("Invalid -mode %q: must be preview or apply", *mode)
	}
	var runDate time.Time
	if *date != "" {
		runDate, err = time.ParseInLocation("2006-01-02", *date, time.Local)
		if err != nil {
			log.Fatalf("Invalid -date %q: %v", *date, err)
		}
	}

	logger := replog.NewDevelopment().Logger
	defer logger.Sync()

	engine, err := app.NewEngine(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	svc := service.NewRepricerService(service.Deps{
		Engine: engine,
		Rules:  rulestore.NewFileStore(cfg.Rules.File),
		Runs:   repository.NewMemoryRunRepository(),
		Writer: output.NewWriter(cfg.Output.Dir),
		Audit:  audit.NewManager(audit.NewZapAuditLogger(logger)),
		Logger: logger,
	})

	data, err := os.ReadFile(inputPath)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", inputPath, err)
	}

	ctx := audit.WithActor(context.Background(), "cli")
	resp, err := svc.Run(ctx, service.RunRequest{
		Data:     data,
		FileName: filepath.Base(inputPath),
		Mode:     runMode,
		Trigger:  service.TriggerCLI,
		RunDate:  runDate,
	})
	if err != nil {
		log.Fatalf("Repricing failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		return
	}
	printSummary(resp)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func printSummary(resp *service.RunResponse) {
	s := resp.Result.Summary
	fmt.Printf("Run %s (%s, %s)\n", resp.Run.ID, resp.Run.Mode, resp.Run.RunDate.Format("2006-01-02"))
	fmt.Printf("  total rows:        %d\n", s.TotalRows)
	fmt.Printf("  updated:           %d\n", s.UpdatedRows)
	fmt.Printf("  excluded:          %d\n", s.ExcludedRows)
	fmt.Printf("  seasonal switched: %d\n", s.SeasonalSwitchedRows)
	fmt.Printf("  date unknown:      %d\n", s.DateUnknownRows)
	fmt.Printf("  failed to parse:   %d\n", s.FailedRows)

	for _, p := range resp.Result.ConfigProblems {
		fmt.Printf("  rule problem: %s\n", p)
	}
	for _, f := range resp.Result.Failures {
		fmt.Printf("  row %d: %s=%q %s\n", f.Row, f.Field, f.Value, f.Reason)
	}
	if resp.Files != nil {
		fmt.Printf("Updated listing: %s\n", resp.Files.Updated)
		fmt.Printf("Report:          %s\n", resp.Files.Report)
	}
}
