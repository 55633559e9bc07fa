package nmea

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/snaptrack/internal/timeutil"
)

// FixtureOptions controls fixture replay pacing.
type FixtureOptions struct {
	// Interval is the pause after each replayed sentence. Zero
	// selects one second, roughly the sentence cadence of a real
	// receiver.
	Interval time.Duration

	// Loop restarts the fixture from the top when it runs out
	// instead of ending the feed.
	Loop bool
}

func (o FixtureOptions) withDefaults() FixtureOptions {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	return o
}

// FixtureSource replays recorded sentences through a pipe so the feed
// reads them at receiver-like pacing.
type FixtureSource struct {
	r      *io.PipeReader
	cancel chan struct{}
	once   sync.Once
}

// NewFixtureFeed loads the fixture at path and returns a Feed that
// replays its sentences, sleeping opts.Interval on the given clock
// after each line. Blank lines and '#' comments are dropped so
// fixtures can be annotated.
func NewFixtureFeed(path string, clock timeutil.Clock, opts FixtureOptions) (*Feed[*FixtureSource], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixture %s contains no sentences", path)
	}

	opts = opts.withDefaults()
	r, w := io.Pipe()
	src := &FixtureSource{r: r, cancel: make(chan struct{})}

	go func() {
		defer w.Close()
		for {
			for _, line := range lines {
				select {
				case <-src.cancel:
					return
				default:
				}
				if _, err := io.WriteString(w, line+"\r\n"); err != nil {
					return
				}
				clock.Sleep(opts.Interval)
			}
			if !opts.Loop {
				return
			}
		}
	}()

	return NewFeed(src), nil
}

func (s *FixtureSource) Read(p []byte) (int, error) { return s.r.Read(p) }

// Close stops the replay goroutine and closes the pipe.
func (s *FixtureSource) Close() error {
	s.once.Do(func() { close(s.cancel) })
	return s.r.Close()
}
