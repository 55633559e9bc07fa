// Package jobqueue dispatches raw-sample processing jobs to a worker
// pool with at-least-once delivery: jobs are deduplicated by id,
// retried with exponential backoff, rate limited at start, and
// retained after completion so replays coalesce instead of reprocessing.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/banshee-data/snaptrack/internal/metrics"
)

const (
	DefaultWorkers     = 10
	DefaultRateLimit   = 100.0
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second

	// Completed jobs are remembered for dedup until either bound hits.
	completedRetentionSize = 1000
	completedRetentionAge  = 24 * time.Hour

	// Failed jobs form the dead-letter set.
	failedRetentionSize = 5000
)

var (
	ErrNotStarted = errors.New("jobqueue: not started")
	ErrStopped    = errors.New("jobqueue: stopped")
	ErrEmptyJobID = errors.New("jobqueue: empty job id")
)

// Handler processes one job. A nil return completes the job; an error
// implementing `Retriable() bool` with a false result fails it
// immediately, any other error is retried per the queue's policy.
type Handler func(ctx context.Context, rawSampleID string) error

type Config struct {
	Handler Handler

	// Workers is the parallel worker count.
	Workers int

	// RateLimit caps job starts per second, process-wide. Retries
	// count as starts.
	RateLimit float64

	// MaxAttempts bounds handler invocations per job, first try
	// included.
	MaxAttempts int

	// BackoffBase is the first retry delay; subsequent delays double.
	BackoffBase time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:     DefaultWorkers,
		RateLimit:   DefaultRateLimit,
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
	}
}

func (c *Config) Validate() error {
	if c.Handler == nil {
		return errors.New("jobqueue: handler is required")
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	return nil
}

// Stats is a point-in-time snapshot of the queue counters.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Deduped   uint64 `json:"deduped"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Retries   uint64 `json:"retries"`
	InFlight  int    `json:"inFlight"`
	Workers   int64  `json:"runningWorkers"`
}

type Queue struct {
	config Config

	limiter *rate.Limiter

	mu       sync.Mutex
	started  bool
	stopped  bool
	ctx      context.Context
	pool     pond.Pool
	inflight map[string]struct{}

	completed *ttlcache.Cache[string, time.Time]
	failed    *ttlcache.Cache[string, string]

	enqueued atomic.Uint64
	deduped  atomic.Uint64
	done     atomic.Uint64
	dead     atomic.Uint64
	retries  atomic.Uint64
}

func New(cfg Config) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Queue{
		config:   cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		inflight: make(map[string]struct{}),
		completed: ttlcache.New(
			ttlcache.WithTTL[string, time.Time](completedRetentionAge),
			ttlcache.WithCapacity[string, time.Time](completedRetentionSize),
			ttlcache.WithDisableTouchOnHit[string, time.Time](),
		),
		failed: ttlcache.New(
			ttlcache.WithTTL[string, string](ttlcache.NoTTL),
			ttlcache.WithCapacity[string, string](failedRetentionSize),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}, nil
}

// Start brings up the worker pool. The context bounds every handler
// invocation and backoff sleep; cancelling it aborts retries.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("jobqueue: already started")
	}
	q.started = true
	q.ctx = ctx
	q.pool = pond.NewPool(q.config.Workers, pond.WithContext(ctx))
	opsf("queue started: %d workers, %.0f starts/s, %d attempts, %s backoff base",
		q.config.Workers, q.config.RateLimit, q.config.MaxAttempts, q.config.BackoffBase)
	return nil
}

// Stop closes the intake and drains in-flight jobs, retries included.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	pool := q.pool
	q.mu.Unlock()

	opsf("queue draining")
	pool.StopAndWait()
	q.completed.Stop()
	q.failed.Stop()
	opsf("queue drained")
}

// Enqueue submits a job keyed by raw sample id. Re-enqueues of an
// in-flight or retained id coalesce into the prior delivery and return
// nil.
func (q *Queue) Enqueue(rawSampleID string) error {
	if rawSampleID == "" {
		return ErrEmptyJobID
	}

	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return ErrNotStarted
	}
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	if q.isDuplicateLocked(rawSampleID) {
		q.mu.Unlock()
		q.deduped.Add(1)
		metrics.JobsEnqueued.WithLabelValues("deduplicated").Inc()
		tracef("enqueue %s coalesced", rawSampleID)
		return nil
	}
	q.inflight[rawSampleID] = struct{}{}
	q.enqueued.Add(1)
	metrics.JobsEnqueued.WithLabelValues("accepted").Inc()
	metrics.JobsInFlight.Inc()
	// Submit while holding the lock so Stop cannot begin draining
	// between the stopped check and the pool handoff.
	q.pool.Submit(func() {
		q.run(rawSampleID)
	})
	q.mu.Unlock()
	return nil
}

// isDuplicateLocked reports whether the id is in flight or retained.
// Caller holds q.mu.
func (q *Queue) isDuplicateLocked(id string) bool {
	if _, ok := q.inflight[id]; ok {
		return true
	}
	return q.completed.Get(id) != nil || q.failed.Get(id) != nil
}

func (q *Queue) run(id string) {
	start := time.Now()
	metrics.WorkersRunning.Inc()
	defer func() {
		metrics.WorkersRunning.Dec()
		metrics.JobsInFlight.Dec()
		metrics.JobDuration.Observe(time.Since(start).Seconds())

		// Retention entry is written before the in-flight claim is
		// released, so there is no window where a re-enqueue slips
		// past both checks.
		q.mu.Lock()
		delete(q.inflight, id)
		q.mu.Unlock()
	}()

	err := q.attempt(id)
	if err != nil {
		q.failed.Set(id, err.Error(), ttlcache.NoTTL)
		q.dead.Add(1)
		metrics.JobsFailed.Inc()
		metrics.JobOutcomes.WithLabelValues("failed").Inc()
		opsf("job %s failed after retries: %v", id, err)
		return
	}

	q.completed.Set(id, time.Now(), ttlcache.DefaultTTL)
	q.done.Add(1)
	metrics.JobOutcomes.WithLabelValues("completed").Inc()
	tracef("job %s completed in %s", id, time.Since(start).Round(time.Millisecond))
}

// attempt runs the handler under the retry policy: rate-limited
// starts, doubling delays, a permanent stop for non-retriable faults.
func (q *Queue) attempt(id string) error {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(q.config.BackoffBase),
		backoff.WithMultiplier(2.0),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(q.config.MaxAttempts-1)),
		q.ctx,
	)

	operation := func() error {
		if err := q.limiter.Wait(q.ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("jobqueue: start aborted: %w", err))
		}

		err := q.config.Handler(q.ctx, id)
		if err == nil {
			return nil
		}

		var r interface{ Retriable() bool }
		if errors.As(err, &r) && !r.Retriable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		q.retries.Add(1)
		metrics.JobRetries.Inc()
		diagf("job %s attempt failed, next try in %s: %v", id, next, err)
	}

	return backoff.RetryNotify(operation, policy, notify)
}

// Stats snapshots the counters for the stats endpoint.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	inFlight := len(q.inflight)
	pool := q.pool
	q.mu.Unlock()

	var workers int64
	if pool != nil {
		workers = pool.RunningWorkers()
	}

	return Stats{
		Enqueued:  q.enqueued.Load(),
		Deduped:   q.deduped.Load(),
		Completed: q.done.Load(),
		Failed:    q.dead.Load(),
		Retries:   q.retries.Load(),
		InFlight:  inFlight,
		Workers:   workers,
	}
}

// FailureReason returns the recorded error for a dead-lettered job id.
func (q *Queue) FailureReason(id string) (string, bool) {
	item := q.failed.Get(id)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}
