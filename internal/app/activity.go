package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

type activityRegistrar interface {
	RegisterActivity(ctx context.Context) error
}

// ActivityReporter tells the backend an operator is at the keyboard, at
// most once per interval however often Touch is called.
type ActivityReporter struct {
	backend activityRegistrar
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewActivityReporter(backend activityRegistrar, interval time.Duration, logger *slog.Logger) *ActivityReporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityReporter{
		backend: backend,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Touch reports activity unless a report went out within the interval. It
// reports whether a request was sent.
func (a *ActivityReporter) Touch(ctx context.Context) bool {
	if a == nil || a.backend == nil || !a.limiter.Allow() {
		return false
	}
	if err := a.backend.RegisterActivity(ctx); err != nil {
		a.logger.Debug("register activity failed", "error", err)
	}
	return true
}
