package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed migrations
var migrationsFS embed.FS

// DevMode selects the on-disk migrations directory instead of the
// embedded copy, so schema edits apply without rebuilding the binary.
var DevMode bool

const devMigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migrations filesystem rooted at the
// directory containing the *.sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(devMigrationsDir); err != nil {
			return nil, fmt.Errorf("dev migrations directory unavailable: %w", err)
		}
		return os.DirFS(devMigrationsDir), nil
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}
