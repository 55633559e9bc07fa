package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
)

// RunMigrateCommand dispatches the 'migrate' subcommand. It opens the
// database without migrating so the chosen action stays in control of
// the schema.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	migrations, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to get migrations filesystem: %v", err)
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		handleMigrateUp(database, migrations)

	case "down":
		handleMigrateDown(database, migrations)

	case "status":
		handleMigrateStatus(database, migrations)

	case "version":
		handleMigrateVersion(database, migrations, versionArg(args, action))

	case "force":
		handleMigrateForce(database, migrations, versionArg(args, action))

	case "baseline":
		handleMigrateBaseline(database, versionArg(args, action))

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func versionArg(args []string, action string) string {
	if len(args) < 2 {
		log.Fatalf("Usage: trackd migrate %s <version_number>", action)
	}
	return args[1]
}

func parseVersion(versionStr string) uint {
	var v uint
	if _, err := fmt.Sscanf(versionStr, "%d", &v); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}
	return v
}

func logSchemaVersion(database *DB, migrations fs.FS) {
	version, dirty, _ := database.MigrateVersion(migrations)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateUp(database *DB, migrations fs.FS) {
	log.Printf("Running migrations...")
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	log.Println("✓ All migrations applied successfully")
	logSchemaVersion(database, migrations)
}

func handleMigrateDown(database *DB, migrations fs.FS) {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(migrations); err != nil {
		log.Fatalf("Migration down failed: %v", err)
	}
	log.Println("✓ Migration rolled back successfully")
	logSchemaVersion(database, migrations)
}

func handleMigrateStatus(database *DB, migrations fs.FS) {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}

	status, err := database.GetMigrationStatus(migrations)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		log.Fatalf("Failed to get latest migration version: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", dirty)
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	if dirty {
		fmt.Println("\n⚠️  WARNING: a migration failed mid-execution.")
		fmt.Println("Inspect the database, repair it, then stamp the version with:")
		fmt.Println("  trackd migrate force <version>")
	}
}

func handleMigrateVersion(database *DB, migrations fs.FS, versionStr string) {
	target := parseVersion(versionStr)

	log.Printf("Migrating to version %d...", target)
	if err := database.MigrateTo(migrations, target); err != nil {
		log.Fatalf("Migration to version %d failed: %v", target, err)
	}
	log.Printf("✓ Migrated to version %d successfully", target)
}

// handleMigrateForce stamps the version table without running SQL, so
// it confirms before touching anything.
func handleMigrateForce(database *DB, migrations fs.FS, versionStr string) {
	var forceVersion int
	if _, err := fmt.Sscanf(versionStr, "%d", &forceVersion); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	fmt.Printf("⚠️  WARNING: Forcing migration version to %d\n", forceVersion)
	fmt.Println("This should only be used to recover from a dirty migration state.")
	fmt.Print("Continue? [y/N]: ")

	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		log.Println("Aborted")
		os.Exit(0)
	}

	if err := database.MigrateForce(migrations, forceVersion); err != nil {
		log.Fatalf("Force migration failed: %v", err)
	}
	log.Printf("✓ Migration version forced to %d", forceVersion)
}

func handleMigrateBaseline(database *DB, versionStr string) {
	baseline := parseVersion(versionStr)

	log.Printf("Baselining database at version %d...", baseline)
	if err := database.BaselineAtVersion(baseline); err != nil {
		log.Fatalf("Baseline failed: %v", err)
	}
	log.Printf("✓ Database baselined at version %d", baseline)
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: trackd migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  version <N>     Migrate to specific version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  baseline <N>    Set migration version to N without running migrations")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  trackd migrate up")
	fmt.Println("  trackd migrate status")
	fmt.Println("  trackd migrate version 2")
	fmt.Println("  trackd migrate baseline 1")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --db-path <path>    Path to database file (default: snaptrack.db)")
}
