// Package worker relays outbox rows to the message broker.
package worker

import (
	"context"
	"log/slog"
	"time"

	"healthcommons/internal/platform/kafka"
	audit "healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/circuit"
)

// Sink publishes a batch of messages, returning only after the broker acknowledged them.
type Sink interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Worker polls the outbox and publishes pending rows. Rows are marked
// published only after a successful publish, so delivery is at-least-once.
// While the broker is failing, each tick sends a single probe row instead of
// a full batch.
type Worker struct {
	outbox      audit.Outbox
	sink        Sink
	topicPrefix string
	interval    time.Duration
	batch       int
	breaker     *circuit.Breaker
	logger      *slog.Logger
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

func NewWorker(outbox audit.Outbox, sink Sink, topicPrefix string, opts ...Option) *Worker {
	w := &Worker{
		outbox:      outbox,
		sink:        sink,
		topicPrefix: topicPrefix,
		interval:    time.Second,
		batch:       100,
		breaker:     circuit.New("audit-relay", circuit.WithFailureThreshold(3)),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Topic returns the topic events of category are published to.
func Topic(prefix string, category audit.EventCategory) string {
	return prefix + ".audit." + string(category)
}

// Topics lists every topic the worker may publish to.
func (w *Worker) Topics() []string {
	return []string{
		Topic(w.topicPrefix, audit.CategoryCompliance),
		Topic(w.topicPrefix, audit.CategorySecurity),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "audit relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were relayed.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	limit := w.batch
	if w.breaker.IsOpen() {
		limit = 1
	}
	entries, err := w.outbox.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		msgs = append(msgs, kafka.Message{
			Topic: Topic(w.topicPrefix, entry.Category),
			Key:   []byte(entry.AggregateID),
			Value: entry.Payload,
			Headers: map[string]string{
				"event_type":     entry.EventType,
				"aggregate_type": entry.AggregateType,
				"outbox_id":      entry.ID,
			},
		})
		ids = append(ids, entry.ID)
	}

	if err := w.sink.Publish(ctx, msgs...); err != nil {
		if _, change := w.breaker.RecordFailure(); change.Opened {
			w.logger.ErrorContext(ctx, "audit relay circuit opened", "error", err)
		}
		return 0, err
	}
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "audit relay circuit closed")
	}

	if err := w.outbox.MarkPublished(ctx, ids, time.Now()); err != nil {
		return 0, err
	}
	return len(entries), nil
}
