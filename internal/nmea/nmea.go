// Package nmea reads NMEA 0183 sentence streams from a GNSS receiver
// and assembles raw track samples from them. A Feed owns one sentence
// source (a serial port, a fixture replay, or a mock) and fans lines
// out to any number of subscribers; parsing stays on the consumer
// side so one subscriber can log raw sentences while another builds
// samples from the same stream.
package nmea

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"io"
	"sync"
)

// subscriberBuffer absorbs short consumer stalls. A receiver emitting
// sentences at 1-10 Hz will not overrun it unless the consumer is
// wedged, in which case lines drop rather than stall the read loop.
const subscriberBuffer = 16

// Source is one stream of NMEA sentence lines. A real serial port, a
// fixture replay, and the test mock all satisfy it.
type Source interface {
	io.Reader
	io.Closer
}

// Feeder is the consumer-facing surface of a Feed, letting callers
// hold a feed without naming its concrete source type.
type Feeder interface {
	// Subscribe creates a new channel for receiving sentence lines.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reads lines from the source and fans them out to
	// subscribers.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the source.
	Close() error
}

// Feed is a sentence multiplexer: Monitor reads lines from the source
// and delivers each line to every subscriber.
type Feed[T Source] struct {
	source       T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewFeed creates a Feed over the given sentence source.
func NewFeed[T Source](source T) *Feed[T] {
	return &Feed[T]{
		source:      source,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new channel for receiving sentence lines from
// the feed. The returned ID identifies the channel when
// unsubscribing.
func (f *Feed[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the feed and closes its
// channel.
func (f *Feed[T]) Unsubscribe(id string) {
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Monitor reads lines from the source and fans them out to
// subscribers. It returns when the source is exhausted (a fixture
// replay that ran out, or a port closed underneath us), the source
// fails, or ctx is cancelled.
func (f *Feed[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(f.source)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer
	// loop can await lines and context cancellation together.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			f.closingMu.Lock()
			if f.closing {
				f.closingMu.Unlock()
				return nil
			}
			f.closingMu.Unlock()

			f.subscriberMu.Lock()
			for _, ch := range f.subscribers {
				select {
				case ch <- line:
				default:
					// if the channel is full skip so as not to block the read loop
				}
			}
			f.subscriberMu.Unlock()
		}
	}
}

// Close closes all subscriber channels and the underlying source.
func (f *Feed[T]) Close() error {
	f.closingMu.Lock()
	f.closing = true
	f.closingMu.Unlock()

	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
	return f.source.Close()
}
