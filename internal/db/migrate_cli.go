package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}
	if dbPath == "" {
		log.Fatal("migrate needs a database path (-db or VSYNC_DB_PATH)")
	}

	action := args[0]
	if action == "help" {
		PrintMigrateHelp()
		return
	}

	// Open without migrating; the subcommand manages the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	migrations := migrationsFS()

	switch action {
	case "up":
		handleMigrateUp(database, migrations)

	case "down":
		handleMigrateDown(database, migrations)

	case "status":
		handleMigrateStatus(database, migrations)

	case "version":
		if len(args) < 2 {
			log.Fatal("Usage: vessel-sync migrate version <version_number>")
		}
		handleMigrateVersion(database, migrations, args[1])

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: vessel-sync migrate force <version_number>")
		}
		handleMigrateForce(database, migrations, args[1])

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func handleMigrateUp(database *DB, migrations fs.FS) {
	log.Printf("Running migrations...")
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	version, dirty, _ := database.MigrateVersion(migrations)
	log.Printf("All migrations applied. Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateDown(database *DB, migrations fs.FS) {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(migrations); err != nil {
		log.Fatalf("Migration down failed: %v", err)
	}
	version, dirty, _ := database.MigrateVersion(migrations)
	log.Printf("Rolled back. Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateStatus(database *DB, migrations fs.FS) {
	status, err := database.GetMigrationStatus(migrations)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", status["current_version"])
	fmt.Printf("Latest version: %d\n", status["latest_version"])
	fmt.Printf("Dirty: %v\n", status["dirty"])
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	if status["dirty"] == true {
		fmt.Println("\nWARNING: a migration failed mid-execution.")
		fmt.Println("Inspect the database, then run: vessel-sync migrate force <version>")
	}
}

func handleMigrateVersion(database *DB, migrations fs.FS, versionStr string) {
	var target uint
	if _, err := fmt.Sscanf(versionStr, "%d", &target); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	log.Printf("Migrating to version %d...", target)
	if err := database.MigrateTo(migrations, target); err != nil {
		log.Fatalf("Migration to version %d failed: %v", target, err)
	}
	log.Printf("Migrated to version %d", target)
}

func handleMigrateForce(database *DB, migrations fs.FS, versionStr string) {
	var version int
	if _, err := fmt.Sscanf(versionStr, "%d", &version); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	if err := database.MigrateForce(migrations, version); err != nil {
		log.Fatalf("Force migration failed: %v", err)
	}
	log.Printf("Migration version forced to %d", version)
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Println(`Usage: vessel-sync migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show current and latest schema version
  version <n>        Migrate up or down to version n
  force <n>          Set the recorded version without migrating (recovery only)
  help               Show this help`)
}
