package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/banshee-data/vessel.sync/internal/db"
)

func handleRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cf := addConfigFlags(fs)
	limit := fs.Int("n", 10, "Number of runs to list")
	runID := fs.String("run", "", "Show the segments of one run")
	fs.Parse(args)

	p, err := cf.params(fs)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if p.DBPath == "" {
		log.Fatal("runs needs a database path (--db or VSYNC_DB_PATH)")
	}
	store, err := db.NewDB(p.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if *runID != "" {
		segs, err := store.RunSegments(ctx, *runID)
		if err != nil {
			log.Fatalf("run %s: %v", *runID, err)
		}
		if err := printRunSegments(os.Stdout, segs); err != nil {
			log.Fatalf("print: %v", err)
		}
		return
	}

	runs, err := store.RecentRuns(ctx, *limit)
	if err != nil {
		log.Fatalf("list runs: %v", err)
	}
	if err := printRuns(os.Stdout, runs); err != nil {
		log.Fatalf("print: %v", err)
	}
}

func printRuns(w io.Writer, runs []db.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RUN\tSTARTED\tOBS\tGAPS\tSEGMENTS\tFAILED\tRETAINED\tSTAGE\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d/%d\t%d\t%s\t%s\n",
			r.RunID, r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			r.Observations, r.Gaps, r.PersistedSegments, r.CandidateSegments,
			r.FailedSegments, r.RetainedDuration, r.FinalStage)
	}
	return tw.Flush()
}

func printRunSegments(w io.Writer, segs []db.SegmentRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SEG\tSTATUS\tROWS\tOUTPUT\n")
	for _, s := range segs {
		out := s.Output
		if s.Status == db.SegmentFailed {
			out = s.Reason
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", s.SegID, s.Status, s.Rows, out)
	}
	return tw.Flush()
}
