// Package poller keeps a console view of a backend feed fresh. Each poller
// issues one request at a time, publishes every successful result, and backs
// off behind a circuit breaker while the backend is failing.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dwizi/edge-console/internal/consoleerr"
	"github.com/dwizi/edge-console/internal/heartbeat"
)

const (
	outcomeSuccess     = "success"
	outcomeError       = "error"
	outcomeBreakerOpen = "breaker_open"
)

type FetchFunc[T any] func(ctx context.Context) (T, error)

type Config struct {
	Name       string
	Interval   time.Duration
	BackoffMax time.Duration
	// Breaker overrides the breaker built from BreakerThreshold and
	// BreakerOpen.
	Breaker          *Breaker
	BreakerThreshold int
	BreakerOpen      time.Duration
	Logger           *slog.Logger
	Reporter         heartbeat.Reporter
	Metrics          *Metrics
}

type Poller[T any] struct {
	name       string
	interval   time.Duration
	backoffMax time.Duration
	breaker    *Breaker
	limiter    *rate.Limiter
	logger     *slog.Logger
	reporter   heartbeat.Reporter
	metrics    *Metrics

	fetch   FetchFunc[T]
	publish func(T)
	wait    func(ctx context.Context, d time.Duration) error
}

func New[T any](cfg Config, fetch FetchFunc[T], publish func(T)) *Poller[T] {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	backoffMax := cfg.BackoffMax
	if backoffMax < interval {
		backoffMax = 30 * interval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("poller", cfg.Name)
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			OpenDuration:     cfg.BreakerOpen,
			OnStateChange: func(from, to BreakerState) {
				cfg.Metrics.breakerChanged(cfg.Name, from, to)
				logger.Info("circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
	}
	if publish == nil {
		publish = func(T) {}
	}
	return &Poller[T]{
		name:       cfg.Name,
		interval:   interval,
		backoffMax: backoffMax,
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		logger:     logger,
		reporter:   cfg.Reporter,
		metrics:    cfg.Metrics,
		fetch:      fetch,
		publish:    publish,
		wait:       sleep,
	}
}

func (p *Poller[T]) Name() string {
	return p.name
}

func (p *Poller[T]) Component() string {
	return "poller:" + p.name
}

// Run polls until ctx is done. It never returns an error for backend
// failures; those are logged, reported and retried with backoff.
func (p *Poller[T]) Run(ctx context.Context) error {
	p.report(func(r heartbeat.Reporter) { r.Starting(p.Component(), "first poll pending") })
	failures := 0
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return p.stop(ctx)
		}
		err := p.Poll(ctx)
		if ctx.Err() != nil {
			return p.stop(ctx)
		}
		if err == nil {
			failures = 0
			continue
		}
		failures++
		delay := p.backoff(failures)
		if errors.Is(err, consoleerr.ErrCircuitOpen) {
			if remaining := p.breaker.RemainingOpen(); remaining > delay {
				delay = remaining
			}
		}
		p.logger.Warn("poll failed",
			"error", err,
			"consecutive_failures", failures,
			"retry_in", delay.String(),
			"breaker", p.breaker.State().String(),
		)
		if err := p.wait(ctx, delay); err != nil {
			return p.stop(ctx)
		}
	}
}

// Poll performs one fetch and publishes the result on success.
func (p *Poller[T]) Poll(ctx context.Context) error {
	started := time.Now()
	var value T
	err := p.breaker.Execute(func() error {
		var fetchErr error
		value, fetchErr = p.fetch(ctx)
		return fetchErr
	})
	elapsed := time.Since(started)

	switch {
	case err == nil:
		p.metrics.observePoll(p.name, outcomeSuccess, elapsed)
		p.publish(value)
		p.report(func(r heartbeat.Reporter) { r.Beat(p.Component(), "poll ok") })
		return nil
	case errors.Is(err, consoleerr.ErrCircuitOpen):
		p.metrics.observePoll(p.name, outcomeBreakerOpen, elapsed)
	default:
		if ctx.Err() != nil {
			return err
		}
		p.metrics.observePoll(p.name, outcomeError, elapsed)
	}
	p.report(func(r heartbeat.Reporter) { r.Degrade(p.Component(), "poll failed", err) })
	return err
}

// backoff doubles the interval per consecutive failure, capped.
func (p *Poller[T]) backoff(failures int) time.Duration {
	delay := p.interval
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= p.backoffMax {
			return p.backoffMax
		}
	}
	return delay
}

func (p *Poller[T]) stop(ctx context.Context) error {
	p.report(func(r heartbeat.Reporter) { r.Stopped(p.Component(), "context done") })
	p.logger.Debug("poller stopped", "reason", context.Cause(ctx))
	return nil
}

func (p *Poller[T]) report(fn func(heartbeat.Reporter)) {
	if p.reporter != nil {
		fn(p.reporter)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
