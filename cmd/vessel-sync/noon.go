package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/vessel.sync/internal/catalog"
	"github.com/banshee-data/vessel.sync/internal/ingest"
	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

func handleNoon(args []string) {
	fs := flag.NewFlagSet("noon", flag.ExitOnError)
	out := fs.String("out", "", "Long-format CSV to write (stdout when empty)")
	fields := fs.String("fields", strings.Join(catalog.DraftNoonFields, ","), "Comma-separated noon report fields to keep; empty keeps all known fields")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("Usage: vessel-sync noon [--out file] [--fields a,b] <noon_report.csv>")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open noon report: %v", err)
	}
	defer f.Close()

	res, err := ingest.ReadNoonReport(f, filepath.Base(path), catalog.NoonFieldMap(splitFields(*fields)...))
	if err != nil {
		log.Fatalf("noon report: %v", err)
	}
	for _, name := range res.Skipped {
		log.Printf("skipping unknown noon report column %q", name)
	}
	if res.NonNumeric > 0 {
		log.Printf("%d non-numeric noon report cells read as missing", res.NonNumeric)
	}

	if *out == "" {
		if err := ingest.WriteCSV(os.Stdout, res.Observations); err != nil {
			log.Fatalf("write: %v", err)
		}
	} else {
		of, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create %s: %v", *out, err)
		}
		if err := writeAndClose(of, res.Observations); err != nil {
			log.Fatalf("%s: %v", *out, err)
		}
	}
	log.Printf("melted %d noon report readings", len(res.Observations))
}

// writeAndClose writes obs as long-format CSV and closes wc. A close
// error is returned, since that is where a failed flush surfaces.
func writeAndClose(wc io.WriteCloser, obs []telemetry.Observation) error {
	if err := ingest.WriteCSV(wc, obs); err != nil {
		wc.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func splitFields(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
