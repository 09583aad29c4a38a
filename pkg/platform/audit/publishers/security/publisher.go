// Package security provides a non-blocking audit publisher for security events.
//
// Emit never blocks the request path. Events are buffered in a bounded ring
// and flushed to the store by a background goroutine; when the buffer is full
// the oldest events are dropped and counted.
//
// Use for: access_denied, emergency_access, query_rejected
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "healthcommons/pkg/platform/audit"
)

const (
	defaultBufferSize    = 10000
	defaultFlushInterval = 100 * time.Millisecond
	defaultBatchSize     = 100
)

// Publisher emits security events asynchronously.
type Publisher struct {
	store         audit.Store
	logger        *slog.Logger
	buffer        *RingBuffer
	flushInterval time.Duration
	batchSize     int

	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// New creates a security publisher and starts its flush loop.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        NewRingBuffer(defaultBufferSize),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Emit enqueues a security event. It never fails; overflow drops the oldest event.
func (p *Publisher) Emit(_ context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityInfo
	}
	p.buffer.Enqueue(event)
	if p.buffer.Len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Dropped returns the number of events discarded due to overflow.
func (p *Publisher) Dropped() int64 {
	return p.buffer.Dropped()
}

// Close stops the flush loop after draining buffered events.
func (p *Publisher) Close() error {
	p.closeMu.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			p.flush()
			return
		case <-ticker.C:
			p.flush()
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	ctx := context.Background()
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := p.store.Append(ctx, event.ToEvent()); err != nil && p.logger != nil {
				p.logger.Warn("security audit persist failed",
					"action", event.Action,
					"subject", event.Subject,
					"error", err,
				)
			}
		}
	}
}
