package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/banshee-data/vessel.sync/internal/config"
	"github.com/banshee-data/vessel.sync/internal/ingest"
	"github.com/banshee-data/vessel.sync/internal/monitoring"
	"github.com/banshee-data/vessel.sync/internal/telemetry"
	"github.com/banshee-data/vessel.sync/internal/timeline"
)

func handleSegments(args []string) {
	fs := flag.NewFlagSet("segments", flag.ExitOnError)
	cf := addConfigFlags(fs)
	fs.Parse(args)

	p, err := cf.params(fs)
	if err != nil {
		log.Fatalf("config: %v", err)
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
	obs, err := ingest.Reader{Workers: p.Workers, Logger: logger}.ReadFiles(context.Background(), files)
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	sorted := telemetry.SortByTime(obs)
	gaps := timeline.NewDetector(cat, p.ThresholdFactor).Detect(sorted)
	seg, err := timeline.BuildSegments(sorted, gaps.Flags, p.MinSegmentLength)
	if err != nil {
		log.Fatalf("segment: %v", err)
	}
	if err := printSegments(os.Stdout, p, gaps, seg); err != nil {
		log.Fatalf("print: %v", err)
	}
}

// printSegments lists every candidate segment in id order and marks the
// ones shorter than the minimum length.
func printSegments(w io.Writer, p config.Params, gaps timeline.GapResult, seg timeline.Segmentation) error {
	type row struct {
		s    timeline.Segment
		kept bool
	}
	rows := make([]row, 0, seg.Candidates)
	for _, s := range seg.Segments {
		rows = append(rows, row{s, true})
	}
	for _, s := range seg.Dropped {
		rows = append(rows, row{s, false})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].s.ID < rows[j].s.ID })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SEG\tSTART\tEND\tDURATION\tSTATUS\n")
	for _, r := range rows {
		status := "kept"
		if !r.kept {
			status = "dropped"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.s.ID,
			r.s.StartTime().Format("2006-01-02 15:04:05"),
			r.s.EndTime().Format("2006-01-02 15:04:05"),
			r.s.Duration(), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d gaps (factor %g), %d of %d segments reach %s; %s of %s retained\n",
		gaps.Gaps, p.ThresholdFactor, len(seg.Segments), seg.Candidates, p.MinSegmentLength,
		seg.RetainedDuration, seg.TotalDuration)
	if len(gaps.Unclassified) > 0 && err == nil {
		_, err = fmt.Fprintf(w, "sensors without a nominal interval: %v\n", gaps.Unclassified)
	}
	return err
}
