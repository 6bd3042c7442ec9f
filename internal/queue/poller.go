package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/metrix/internal/obs"
)

// DefaultInterval is used when Poller.Interval is not positive.
const DefaultInterval = 5 * time.Second

// Poller refreshes the gatherer on a fixed interval until its context ends.
type Poller struct {
	Gatherer *Gatherer
	Store    Store
	Interval time.Duration
	Logger   *zerolog.Logger
	Metrics  *obs.PollMetrics
}

// Run refreshes immediately, then sleeps Interval between cycles. Failed cycles are
// logged and counted; only context cancellation stops the loop.
func (p Poller) Run(ctx context.Context) error {
	if p.Gatherer == nil {
		return errors.New("queue: gatherer not configured")
	}
	if p.Store == nil {
		return ErrStoreUnavailable
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := zerolog.Nop()
	if p.Logger != nil {
		logger = *p.Logger
	}
	tracer := otel.Tracer("github.com/noah-isme/metrix/internal/queue")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cycle(ctx, tracer, logger)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p Poller) cycle(ctx context.Context, tracer trace.Tracer, logger zerolog.Logger) {
	cycleID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "metrix.refresh", trace.WithAttributes(
		attribute.String("metrix.cycle_id", cycleID),
		attribute.Int("metrix.queues", len(p.Gatherer.sets)),
	))
	defer span.End()

	start := time.Now()
	err := p.Gatherer.Refresh(ctx, p.Store)
	elapsed := time.Since(start)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	failed := FailedQueues(err)
	p.Metrics.ObserveCycle(elapsed, failed, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		logger.Warn().
			Str("cycle_id", cycleID).
			Strs("failed_queues", failed).
			Dur("duration", elapsed).
			Msg("poll cycle incomplete")
		return
	}
	logger.Debug().
		Str("cycle_id", cycleID).
		Int("queues", len(p.Gatherer.sets)).
		Dur("duration", elapsed).
		Msg("poll cycle complete")
}
