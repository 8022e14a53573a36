package service

import (
	"context"
	"time"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

// CallPolicy bounds every store call: each attempt gets Timeout, and a
// transient failure is retried Retries times before the operation fails
// with *domain.StoreUnavailableError.
type CallPolicy struct {
	Timeout time.Duration
	Retries int
}

func DefaultCallPolicy() CallPolicy {
	return CallPolicy{Timeout: 5 * time.Second, Retries: 1}
}

func (p CallPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := p.run(ctx, op, fn)
	return err
}

// run is do for writes. uncertain reports that an attempt before the last
// one failed transiently, so its effect on the store is unknown.
func (p CallPolicy) run(ctx context.Context, op string, fn func(ctx context.Context) error) (uncertain bool, err error) {
	for attempt := 0; attempt <= p.Retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		err = fn(callCtx)
		cancel()
		if err == nil || !repository.IsTransient(err) {
			return uncertain, err
		}
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		uncertain = true
		logger.Warn("Transient store failure", "op", op, "attempt", attempt+1, "error", err)
	}
	return uncertain, &domain.StoreUnavailableError{Op: op, Err: err}
}

func get[T any](ctx context.Context, p CallPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func logEmitFailure(ev domain.Event, err error) {
	logger.Error("Failed to emit lifecycle event", "event_id", ev.ID, "type", ev.Type, "entity_id", ev.EntityID, "error", err)
}
