package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/vessel.sync/internal/db"
	"github.com/banshee-data/vessel.sync/internal/ingest"
	"github.com/banshee-data/vessel.sync/internal/monitoring"
	"github.com/banshee-data/vessel.sync/internal/pipeline"
	"github.com/banshee-data/vessel.sync/internal/report"
)

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cf := addConfigFlags(fs)
	metrics := fs.String("metrics", "", "Prometheus textfile to write after the run")
	fs.Parse(args)

	p, err := cf.params(fs)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *metrics != "" {
		p.MetricsPath = *metrics
	}

	logger, closer, err := monitoring.Setup(logConfig(p))
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()

	files, err := ingest.ExpandInputs(fs.Args())
	if err != nil {
		log.Fatalf("inputs: %v", err)
	}
	cat, err := loadCatalog(p.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	deps := pipeline.Deps{Catalog: cat, Logger: logger}
	if p.DBPath != "" {
		store, err := db.NewDB(p.DBPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		deps.Emitters = append(deps.Emitters, pipeline.Ledger{DB: store})
	}
	if p.Report {
		deps.Emitters = append(deps.Emitters, report.New(p.OutputDir))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := pipeline.Run(ctx, p, deps, pipeline.Input{Files: files})
	if meta == nil {
		log.Fatalf("run aborted: %v", err)
	}
	printSummary(meta)
	if err != nil {
		logger.Error("run finished with output errors", "error", err)
		os.Exit(1)
	}
}

func printSummary(meta *pipeline.RunMetadata) {
	fmt.Printf("run %s: %d observations, %d gaps, %d/%d segments kept, %.1f of %.1f hours retained\n",
		meta.RunID, meta.TotalObservations, meta.GapCount,
		meta.SegmentsAfterFilter, meta.SegmentsBeforeFilter,
		meta.RetainedDurationSeconds/3600, meta.TotalDurationSeconds/3600)
	for _, s := range meta.Segments {
		fmt.Printf("  seg %-4d %s .. %s  %6d rows  %5.1f%% filled  %s\n",
			s.SegID, s.Start.Format("2006-01-02 15:04"), s.End.Format("2006-01-02 15:04"),
			s.Rows, 100*s.Coverage, s.Path)
	}
	for _, f := range meta.Failures {
		fmt.Printf("  seg %-4d FAILED at %s: %s\n", f.SegID, f.Stage, f.Reason)
	}
}
