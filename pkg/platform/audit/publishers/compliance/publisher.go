// Package compliance publishes regulatory audit events fail-closed: Emit
// returns only after the event is in the audit store, and a failed write must
// fail the operation being audited. Events land in the same outbox the relay
// drains, so a committed event is eventually published.
//
// Used for consent changes, granted access, pool lifecycle, contributions
// and query outcomes.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	audit "healthcommons/pkg/platform/audit"
	"healthcommons/pkg/requestcontext"
)

var (
	errMissingAgent  = errors.New("compliance event requires an agent")
	errMissingAction = errors.New("compliance event requires an action")
)

// Publisher writes compliance events synchronously.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a publisher over store. Use an outbox-backed store in
// production so events reach the broker.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists event. Timestamp and request ID default to the values on ctx.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	if event.AgentID.IsNil() {
		return errMissingAgent
	}
	if event.Action == "" {
		return errMissingAction
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	start := time.Now()
	if err := p.store.Append(ctx, event.ToEvent()); err != nil {
		p.metrics.IncPersistFailures()
		p.logger.ErrorContext(ctx, "compliance audit write failed",
			"request_id", event.RequestID,
			"action", event.Action,
			"agent_id", event.AgentID,
			"error", err,
		)
		return fmt.Errorf("persist compliance event %s: %w", event.Action, err)
	}
	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEventsEmitted(event.Action)
	return nil
}
