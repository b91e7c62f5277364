package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/requestcontext"
)

var (
	journalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_journal_dropped_total",
		Help: "Journal entries dropped on buffer overflow.",
	})
	journalWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_journal_write_failures_total",
		Help: "Journal entries the store refused.",
	})
)

// Publisher appends entries to the journal store. Synchronous by default;
// with an async buffer, Emit never blocks the pipeline: the newest entry
// displaces the oldest buffered one on overflow and a background worker
// drains to the store.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	dropped atomic.Int64

	mu     sync.Mutex
	inbox  chan Entry
	closed bool
	wg     sync.WaitGroup
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables the background worker with a bounded inbox.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Entry, size)
		}
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit journals one entry. A zero At is stamped from the request clock.
// In async mode Emit never returns a store error; failures surface through
// the write-failure counter and the log.
func (p *Publisher) Emit(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = requestcontext.Now(ctx)
	}

	if p.inbox == nil {
		if err := p.store.Append(ctx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append journal entry")
		}
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return dErrors.New(dErrors.CodeUnavailable, "journal publisher is closed")
	}

	select {
	case p.inbox <- e:
		return nil
	default:
	}
	// Full: the newest entry wins, the oldest buffered one goes.
	select {
	case <-p.inbox:
		p.dropped.Add(1)
		journalDropped.Inc()
	default:
	}
	select {
	case p.inbox <- e:
	default:
		p.dropped.Add(1)
		journalDropped.Inc()
	}
	return nil
}

// Dropped reports how many entries overflow has discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting entries and waits for the worker to drain the inbox.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for e := range p.inbox {
		if err := p.store.Append(context.Background(), e); err != nil {
			journalWriteFailures.Inc()
			p.logger.Error("journal append failed",
				slog.String("kind", string(e.Kind)),
				slog.String("error", err.Error()))
		}
	}
}
