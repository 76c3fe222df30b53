package main

import (
	"flag"
	"log"

	"github.com/banshee-data/vessel.sync/internal/db"
)

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	cf := addConfigFlags(fs)
	fs.Parse(args)

	p, err := cf.params(fs)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db.RunMigrateCommand(fs.Args(), p.DBPath)
}
