// Package publisher fronts an audit sink with optional asynchronous buffering.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "chatline/pkg/domain"
	audit "chatline/pkg/platform/audit"
)

// ErrBufferFull is returned by Emit in async mode when the buffer cannot take
// another event.
var ErrBufferFull = errors.New("audit buffer full")

// ErrNotQueryable is returned by List when the sink cannot be read back.
var ErrNotQueryable = errors.New("audit sink is not queryable")

// Publisher writes events to a sink, either inline or through a bounded buffer
// drained by a single background goroutine.
type Publisher struct {
	sink   audit.Sink
	logger *slog.Logger

	buffer chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a buffer of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

// WithLogger sets a logger for async write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher over sink.
func NewPublisher(sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an event. A zero Timestamp is set to now.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.buffer == nil {
		return p.sink.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.buffer <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// List returns events for a user when the sink supports queries.
func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	store, ok := p.sink.(audit.Store)
	if !ok {
		return nil, ErrNotQueryable
	}
	return store.ListByUser(ctx, userID)
}

// Close stops accepting events and drains the buffer.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.sink.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("async audit write failed",
				"action", event.Action,
				"actor_id", event.ActorID,
				"error", err,
			)
		}
	}
}
