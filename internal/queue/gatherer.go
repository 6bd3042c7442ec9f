package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DefaultQueues lists the queues watched when none are configured.
var DefaultQueues = []string{
	"jobs:queued",
	"jobs:minimal",
	"jobs:development",
	"jobs:legacy",
	"jobs:queued-fungi",
	"jobs:development-fungi",
	"jobs:legacy-fungi",
}

// QueueError ties a refresh failure to the queue it happened on.
type QueueError struct {
	Queue string
	Err   error
}

func (e *QueueError) Error() string { return e.Err.Error() }

func (e *QueueError) Unwrap() error { return e.Err }

// FailedQueues lists the queues named by the QueueErrors contained in err.
func FailedQueues(err error) []string {
	if err == nil {
		return nil
	}
	var errs []error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		var qerr *QueueError
		if errors.As(e, &qerr) {
			out = append(out, qerr.Queue)
		}
	}
	return out
}

// GathererOptions configures NewGatherer.
type GathererOptions struct {
	// Registerer receives the gauges. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Location interprets job "added" timestamps. Defaults to time.Local.
	Location *time.Location
	Logger   *zerolog.Logger
}

// Gatherer refreshes the gauge sets of every configured queue.
type Gatherer struct {
	sets   []*GaugeSet
	logger zerolog.Logger
}

// NewGatherer builds one GaugeSet per queue, preserving order.
func NewGatherer(queues []string, opts GathererOptions) (*Gatherer, error) {
	if len(queues) == 0 {
		return nil, errors.New("queue: at least one queue is required")
	}
	g := &Gatherer{sets: make([]*GaugeSet, 0, len(queues)), logger: zerolog.Nop()}
	if opts.Logger != nil {
		g.logger = *opts.Logger
	}
	for _, name := range queues {
		set, err := NewGaugeSet(name, opts.Location, opts.Registerer)
		if err != nil {
			return nil, err
		}
		g.sets = append(g.sets, set)
	}
	return g, nil
}

// Queues returns the watched queue identifiers in refresh order.
func (g *Gatherer) Queues() []string {
	out := make([]string, len(g.sets))
	for i, set := range g.sets {
		out[i] = set.Queue
	}
	return out
}

// Sets exposes the gauge sets in refresh order.
func (g *Gatherer) Sets() []*GaugeSet {
	return g.sets
}

// Refresh updates every gauge set in turn. A failing queue is logged and skipped;
// the returned error aggregates all failures of the cycle.
func (g *Gatherer) Refresh(ctx context.Context, store Store) error {
	if store == nil {
		return ErrStoreUnavailable
	}
	var result *multierror.Error
	for _, set := range g.sets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := set.Update(ctx, store); err != nil {
			g.logger.Error().Err(err).Str("queue", set.Queue).Msg("refresh queue gauges")
			result = multierror.Append(result, &QueueError{Queue: set.Queue, Err: err})
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}
