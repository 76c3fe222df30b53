package main

import (
	"flag"
	"fmt"

	"github.com/banshee-data/vessel.sync/internal/catalog"
	"github.com/banshee-data/vessel.sync/internal/config"
	"github.com/banshee-data/vessel.sync/internal/monitoring"
)

// configFlags are the flags shared by every command that resolves a run
// configuration. Explicit flags win over the file and the environment.
type configFlags struct {
	path    string
	catalog string
	output  string
	db      string
	workers int
	report  bool
	level   string
}

func addConfigFlags(fs *flag.FlagSet) *configFlags {
	f := &configFlags{}
	fs.StringVar(&f.path, "config", "", "Run configuration file (.json, .yaml)")
	fs.StringVar(&f.catalog, "catalog", "", "Sensor catalog (.csv or .xlsx)")
	fs.StringVar(&f.output, "output", "", "Output directory")
	fs.StringVar(&f.db, "db", "", "Sqlite run ledger path")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent segment workers (0 = cores-1)")
	fs.BoolVar(&f.report, "report", false, "Write coverage.png and report.html")
	fs.StringVar(&f.level, "log-level", "", "Log level: debug, info, warn, error")
	return f
}

// params loads the file, applies the environment, then any flag the user
// set explicitly, and validates the result.
func (f *configFlags) params(fs *flag.FlagSet) (config.Params, error) {
	cfg, err := config.Load(f.path)
	if err != nil {
		return config.Params{}, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "catalog":
			cfg.CatalogPath = &f.catalog
		case "output":
			cfg.OutputDir = &f.output
		case "db":
			cfg.DBPath = &f.db
		case "workers":
			cfg.Workers = &f.workers
		case "report":
			cfg.Report = &f.report
		case "log-level":
			cfg.LogLevel = &f.level
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Params{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg.Params(), nil
}

func logConfig(p config.Params) monitoring.LogConfig {
	return monitoring.LogConfig{Level: p.LogLevel, Format: p.LogFormat, File: p.LogFile}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}
