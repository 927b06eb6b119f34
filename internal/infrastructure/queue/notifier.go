package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	channelBuffer  = 16
	defaultJobTime = 5 * time.Second
)

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Notifier runs best-effort background jobs on a single worker. Callers never
// wait for a job; when the buffer is full the job is dropped and logged.
// Close drains what is queued so short-lived processes still deliver.
type Notifier struct {
	jobs    chan job
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewNotifier starts the worker. Each job gets jobTimeout (defaultJobTime
// when <= 0).
func NewNotifier(jobTimeout time.Duration, log zerolog.Logger) *Notifier {
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTime
	}
	n := &Notifier{
		jobs:    make(chan job, channelBuffer),
		timeout: jobTimeout,
		log:     log.With().Str("component", "notifier").Logger(),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify implements ports.Notifier.
func (n *Notifier) Notify(name string, fn func(ctx context.Context) error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.log.Warn().Str("job", name).Msg("notifier closed, job dropped")
		return
	}
	select {
	case n.jobs <- job{name: name, fn: fn}:
	default:
		n.log.Warn().Str("job", name).Msg("notifier queue full, job dropped")
	}
}

// Close stops accepting jobs and waits for the queued ones, or for ctx.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.jobs)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for j := range n.jobs {
		n.execute(j)
	}
}

func (n *Notifier) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if err := j.fn(ctx); err != nil {
		n.log.Warn().Err(err).Str("job", j.name).Msg("background job failed")
		return
	}
	n.log.Debug().Str("job", j.name).Msg("background job done")
}
