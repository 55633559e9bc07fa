package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/snaptrack/internal/db"
	"github.com/banshee-data/snaptrack/internal/jobqueue"
	"github.com/banshee-data/snaptrack/internal/units"
)

var (
	apiTestTemplatePath string

	testBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
)

// TestMain migrates one template database up front; each test clones
// the file instead of re-running migrations.
func TestMain(m *testing.M) {
	code := runAPITestMain(m)
	os.Exit(code)
}

func runAPITestMain(m *testing.M) int {
	tmpDir, err := os.MkdirTemp("", "snaptrack-api-template-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "API test template dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmpDir)

	apiTestTemplatePath = filepath.Join(tmpDir, "template.db")
	if err := buildTemplateDB(apiTestTemplatePath); err != nil {
		fmt.Fprintf(os.Stderr, "API test template DB: %v\n", err)
		return 1
	}

	return m.Run()
}

// buildTemplateDB migrates a fresh database and checkpoints the WAL so the
// template is one self-contained file the tests can copy byte for byte.
func buildTemplateDB(path string) error {
	templateDB, err := db.NewDB(path)
	if err != nil {
		return err
	}
	if _, err := templateDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		templateDB.Close()
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return templateDB.Close()
}

func cloneAPITestDB(t *testing.T) string {
	t.Helper()

	if apiTestTemplatePath == "" {
		t.Fatal("API test template DB not initialized")
	}

	raw, err := os.ReadFile(apiTestTemplatePath)
	if err != nil {
		t.Fatalf("failed to read API test DB template: %v", err)
	}
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := os.WriteFile(dbPath, raw, 0o600); err != nil {
		t.Fatalf("failed to clone API test DB template: %v", err)
	}
	return dbPath
}

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()

	database, err := db.OpenDB(cloneAPITestDB(t))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	queue, err := jobqueue.New(jobqueue.Config{
		Handler: func(ctx context.Context, id string) error { return nil },
	})
	if err != nil {
		t.Fatalf("failed to create test queue: %v", err)
	}
	if err := queue.Start(context.Background()); err != nil {
		t.Fatalf("failed to start test queue: %v", err)
	}
	t.Cleanup(queue.Stop)

	server := NewServer(database, queue, &fakeProber{healthy: true}, NewBroadcaster(), units.MPS)
	return server, database
}
