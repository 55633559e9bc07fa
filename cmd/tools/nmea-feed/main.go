// Command nmea-feed streams GNSS position samples into a running
// trackd server.
//
// It reads NMEA 0183 sentences from a serial receiver (or replays a
// recorded fixture file), assembles RMC/GGA pairs into raw samples,
// and POSTs each one to the server's ingest endpoint.
//
// Usage:
//
//	go run ./cmd/tools/nmea-feed [flags]
//
// Flags:
//
//	-server     Base URL of the trackd server (default: http://localhost:8080)
//	-device-id  Device id to stamp on each sample (required)
//	-trip       Trip id to stamp on each sample
//	-new-trip   Mint a random trip id for this run
//	-port       Serial device path, e.g. /dev/ttyUSB0
//	-baud       Serial baud rate (default: 9600)
//	-fixture    Path to a recorded sentence file to replay instead
//	-interval   Delay between replayed fixture sentences (default: 1s)
//	-loop       Restart the fixture from the top when it runs out
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/snaptrack/internal/nmea"
	"github.com/banshee-data/snaptrack/internal/timeutil"
	"github.com/banshee-data/snaptrack/internal/track"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Base URL of the trackd server")
	deviceID := flag.String("device-id", "", "Device id to stamp on each sample (required)")
	trip := flag.String("trip", "", "Trip id to stamp on each sample")
	newTrip := flag.Bool("new-trip", false, "Mint a random trip id for this run")
	port := flag.String("port", "", "Serial device path, e.g. /dev/ttyUSB0")
	baud := flag.Int("baud", 9600, "Serial baud rate")
	fixture := flag.String("fixture", "", "Path to a recorded sentence file to replay")
	interval := flag.Duration("interval", time.Second, "Delay between replayed fixture sentences")
	loop := flag.Bool("loop", false, "Restart the fixture from the top when it runs out")
	flag.Parse()

	if *deviceID == "" {
		log.Fatal("Error: -device-id flag is required")
	}

	tripID := *trip
	if *newTrip {
		if tripID != "" {
			log.Fatal("Error: -trip and -new-trip are mutually exclusive")
		}
		tripID = uuid.NewString()
		log.Printf("Minted trip %s", tripID)
	}

	var feed nmea.Feeder
	switch {
	case *port != "" && *fixture != "":
		log.Fatal("Error: -port and -fixture are mutually exclusive")
	case *port != "":
		f, err := nmea.NewSerialFeed(*port, *baud)
		if err != nil {
			log.Fatalf("Error opening serial port: %v", err)
		}
		feed = f
		log.Printf("Reading NMEA sentences from %s at %d baud", *port, *baud)
	case *fixture != "":
		f, err := nmea.NewFixtureFeed(*fixture, timeutil.RealClock{}, nmea.FixtureOptions{
			Interval: *interval,
			Loop:     *loop,
		})
		if err != nil {
			log.Fatalf("Error opening fixture: %v", err)
		}
		feed = f
		log.Printf("Replaying NMEA fixture %s (interval %s, loop %t)", *fixture, *interval, *loop)
	default:
		log.Fatal("Error: one of -port or -fixture is required")
	}
	defer feed.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Feed monitor stopped: %v", err)
		}
		// A drained fixture ends the run; so does a serial read error.
		stop()
	}()

	var posted, failed int
	client := &http.Client{Timeout: 10 * time.Second}
	builder := nmea.NewSampleBuilder(*deviceID, tripID)

	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := feed.Subscribe()
		defer feed.Unsubscribe(id)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				sample, err := builder.Consume(line)
				if err != nil {
					if !errors.Is(err, nmea.ErrNotSentence) {
						log.Printf("Skipping line: %v", err)
					}
					continue
				}
				if sample == nil {
					continue
				}
				if err := postSample(client, *server, sample); err != nil {
					failed++
					log.Printf("Error posting sample: %v", err)
					continue
				}
				posted++
				if posted%50 == 0 {
					log.Printf("Posted %d samples", posted)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	log.Printf("Done: %d samples posted, %d failed", posted, failed)
}

func postSample(client *http.Client, server string, sample *track.Sample) error {
	body, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	resp, err := client.Post(server+"/api/samples", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}
