package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

// Emitter is the collaborator the lifecycle services hand events to.
type Emitter interface {
	Emit(ctx context.Context, ev domain.Event) error
}

// Listener consumes events. A listener returning a *repository.TransientError
// (or hitting its deadline) is retried once.
type Listener func(ctx context.Context, ev domain.Event) error

type subscription struct {
	name     string
	types    map[domain.EventType]bool // nil means every type
	listener Listener
}

// Bus fans each event out to its listeners synchronously, one bounded call
// per listener. Delivery beyond that is the sink's responsibility.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	timeout time.Duration
}

func NewBus(timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bus{timeout: timeout}
}

// Subscribe registers listener for the given event types, or for all of them
// when none are given.
func (b *Bus) Subscribe(name string, listener Listener, types ...domain.EventType) {
	var filter map[domain.EventType]bool
	if len(types) > 0 {
		filter = make(map[domain.EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, types: filter, listener: listener})
}

func (b *Bus) Emit(ctx context.Context, ev domain.Event) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if sub.types != nil && !sub.types[ev.Type] {
			continue
		}
		if err := b.deliver(ctx, sub, ev); err != nil {
			logger.Error("Event listener failed", "listener", sub.name, "event", ev.Type, "entity_id", ev.EntityID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, sub subscription, ev domain.Event) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err = sub.listener(callCtx, ev)
		cancel()
		if err == nil || !repository.IsTransient(err) {
			return err
		}
		logger.Warn("Retrying event listener", "listener", sub.name, "event", ev.Type, "attempt", attempt+1, "error", err)
	}
	return err
}

// LogListener records every event in the application log.
func LogListener(ctx context.Context, ev domain.Event) error {
	logger.InfoContext(ctx, "Lifecycle event", "event_id", ev.ID, "type", ev.Type, "entity_id", ev.EntityID,
		"status", ev.Payload[domain.PayloadStatus], "occurred_at", ev.OccurredAt)
	return nil
}

// Recorder keeps emitted events in memory; used by the dev profile and tests.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Listen(ctx context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Emit(ctx context.Context, ev domain.Event) error {
	return r.Listen(ctx, ev)
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []domain.EventType {
	evs := r.Events()
	out := make([]domain.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
