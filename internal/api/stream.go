package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/snaptrack/internal/httputil"
	"github.com/banshee-data/snaptrack/internal/metrics"
	"github.com/banshee-data/snaptrack/internal/track"
)

// streamPingInterval keeps idle SSE connections from being reaped by
// intermediaries.
const streamPingInterval = 15 * time.Second

// subscriberBuffer is the per-connection send queue. A subscriber that
// falls this far behind starts losing samples rather than stalling the
// processor.
const subscriberBuffer = 16

// Broadcaster fans emitted processed samples out to live stream
// subscribers. It satisfies track.Publisher; PublishProcessed never
// blocks.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan *track.ProcessedSample]string
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan *track.ProcessedSample]string)}
}

// PublishProcessed delivers s to every subscriber whose device filter
// matches. Slow subscribers are skipped, not waited on.
func (b *Broadcaster) PublishProcessed(s *track.ProcessedSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, deviceID := range b.subs {
		if deviceID != "" && deviceID != s.DeviceID {
			continue
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// subscribe registers a new subscriber. An empty deviceID receives all
// devices.
func (b *Broadcaster) subscribe(deviceID string) chan *track.ProcessedSample {
	ch := make(chan *track.ProcessedSample, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = deviceID
	b.mu.Unlock()
	metrics.StreamSubscribers.Inc()
	return ch
}

func (b *Broadcaster) unsubscribe(ch chan *track.ProcessedSample) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	metrics.StreamSubscribers.Dec()
}

// SubscriberCount reports the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// streamSamples serves the live processed-sample feed as Server-Sent
// Events. Each emitted sample arrives as an "event: sample" message;
// comment pings keep the connection warm.
func (s *Server) streamSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	ch := s.stream.subscribe(r.URL.Query().Get("device_id"))
	defer s.stream.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := s.clock.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case sample := <-ch:
			data, err := json.Marshal(sample)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: sample\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C():
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
