package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/snaptrack/internal/api"
	"github.com/banshee-data/snaptrack/internal/config"
	"github.com/banshee-data/snaptrack/internal/db"
	"github.com/banshee-data/snaptrack/internal/jobqueue"
	"github.com/banshee-data/snaptrack/internal/kalman"
	"github.com/banshee-data/snaptrack/internal/metrics"
	"github.com/banshee-data/snaptrack/internal/monitor"
	"github.com/banshee-data/snaptrack/internal/osrm"
	"github.com/banshee-data/snaptrack/internal/track"
	"github.com/banshee-data/snaptrack/internal/units"
	"github.com/banshee-data/snaptrack/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	dbFile     = flag.String("db", "snaptrack.db", "Path to the SQLite database file")
	speedUnits = flag.String("units", units.MPS, "Default display units for the stats API")
	debugLog   = flag.String("debug-log", "", "File for pipeline debug streams (empty disables them)")
)

// Main
func main() {
	// The migrate subcommand peels off before flag parsing so its
	// action arguments don't collide with the daemon flags.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("trackd %s", version.String())

	// Pipeline tunables come from the environment; .env keeps dev
	// setups out of the shell profile.
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *debugLog != "" {
		f, err := os.OpenFile(*debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open debug log: %v", err)
		}
		defer f.Close()
		track.SetLogWriters(f, f, f)
		jobqueue.SetLogWriters(f, f, f)
	}

	metrics.BuildInfo.WithLabelValues(version.Version).Set(1)

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	matcher, err := osrm.NewClient(osrm.Config{BaseURL: cfg.OSRMBaseURL})
	if err != nil {
		log.Fatalf("Failed to create OSRM client: %v", err)
	}

	smoother := kalman.NewSmoother(kalman.Config{
		ProcessNoise:     cfg.KalmanQ,
		MeasurementNoise: cfg.KalmanR,
	})

	stream := api.NewBroadcaster()

	processor, err := track.NewProcessor(track.ProcessorConfig{
		Store:               database,
		Matcher:             matcher,
		Smoother:            smoother,
		Publisher:           stream,
		StopThresholdMeters: cfg.StopThresholdMeters,
		MaxLastLocationAge:  cfg.MaxLastLocationAge,
		ContextPoints:       cfg.OSRMContextPoints,
		MinConfidence:       cfg.OSRMMinConfidence,
	})
	if err != nil {
		log.Fatalf("Failed to create processor: %v", err)
	}

	queue, err := jobqueue.New(jobqueue.Config{
		Handler: func(ctx context.Context, rawSampleID string) error {
			_, err := processor.Process(ctx, rawSampleID)
			return err
		},
		Workers:   cfg.WorkerConcurrency,
		RateLimit: cfg.QueueRateLimit,
	})
	if err != nil {
		log.Fatalf("Failed to create job queue: %v", err)
	}

	// Create a wait group for the HTTP server and queue drain routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := queue.Start(ctx); err != nil {
		log.Fatalf("Failed to start job queue: %v", err)
	}

	// Queue drain routine: on signal, stop accepting new jobs and
	// wait for in-flight work to finish.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		log.Println("draining job queue...")
		queue.Stop()
		log.Print("job queue routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(database, queue, matcher, stream, *speedUnits)
		mux := apiServer.ServeMux()

		monitor.NewCharts(database).RegisterRoutes(mux)
		database.AttachAdminRoutes(mux)
		apiServer.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runMigrate dispatches 'trackd migrate <action>'. The optional
// --db-path flag may appear anywhere after the action, so it is
// separated out by hand rather than through a FlagSet.
func runMigrate(args []string) {
	dbPath := "snaptrack.db"
	actionArgs := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		if args[i] == "--db-path" || args[i] == "-db-path" {
			if i+1 >= len(args) {
				log.Fatal("--db-path requires a value")
			}
			i++
			dbPath = args[i]
			continue
		}
		actionArgs = append(actionArgs, args[i])
	}

	db.RunMigrateCommand(actionArgs, dbPath)
}
