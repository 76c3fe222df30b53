package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/vessel.sync/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "run":
		handleRun(args)
	case "segments":
		handleSegments(args)
	case "noon":
		handleNoon(args)
	case "runs":
		handleRuns(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`vessel-sync - Cadence-aware synchronization of vessel telemetry

Usage: vessel-sync <command> [options] [inputs...]

Commands:
  run        Detect gaps, build segments and write one synchronized CSV per segment
  segments   Dry run: print the segments a run would produce, write nothing
  noon       Melt a wide noon-report CSV into long-format observations
  runs       List runs recorded in the sqlite ledger
  migrate    Manage the ledger schema (up, down, status, version, force)
  version    Show version
  help       Show this help message

Common Flags:
  --config <file>      JSON or YAML run configuration (VSYNC_* variables override it)
  --catalog <file>     Sensor catalog (.csv or .xlsx); embedded default when empty
  --output <dir>       Output directory for segment files and run_metadata.json
  --db <file>          Sqlite run ledger; no ledger when empty

Examples:
  # Synchronize a month of exports
  vessel-sync run --config sync.yaml --output synced/ exports/2024-05-*.csv

  # Check how a stricter threshold would split the voyage
  VSYNC_THRESHOLD_FACTOR=0.25 vessel-sync segments exports/*.csv

  # Add the noon report drafts to the inputs
  vessel-sync noon --out noon_long.csv noon_report.csv

  # Show the last ten runs
  vessel-sync runs --db ledger.db`)
}
