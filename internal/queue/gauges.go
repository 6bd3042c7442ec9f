package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// JobKeyPrefix prefixes job IDs to form the key of their hash record.
	JobKeyPrefix = "job:"
	// AddedField is the job hash field holding the enqueue timestamp.
	AddedField = "added"
)

// List positions read for the age gauges. New jobs are pushed at the head.
const (
	newestIndex int64 = 0
	oldestIndex int64 = -1
)

// GaugeSet owns the length, newest-job and oldest-job gauges of a single queue.
type GaugeSet struct {
	Queue string
	Name  string

	Length prometheus.Gauge
	Newest prometheus.Gauge
	Oldest prometheus.Gauge

	loc *time.Location
}

// ShortName derives the metric-friendly name of a queue identifier:
// the part after the last ':' with hyphens replaced by underscores.
func ShortName(queue string) string {
	name := queue
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.ReplaceAll(name, "-", "_")
}

// JobKey returns the key of the hash holding a job's record.
func JobKey(jobID string) string {
	return JobKeyPrefix + jobID
}

// NewGaugeSet creates the three gauges for queue and registers them on reg.
func NewGaugeSet(queue string, loc *time.Location, reg prometheus.Registerer) (*GaugeSet, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, errors.New("queue: name is required")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	name := ShortName(queue)
	if name == "" {
		return nil, fmt.Errorf("queue %s: empty short name", queue)
	}
	s := &GaugeSet{
		Queue: queue,
		Name:  name,
		Length: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_" + name + "_length",
			Help: fmt.Sprintf("Length of the %s queue", queue),
		}),
		Newest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_newest_job_age",
			Help: fmt.Sprintf("Age of the newest job in the %s queue, in seconds since epoch", queue),
		}),
		Oldest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_oldest_job_age",
			Help: fmt.Sprintf("Age of the oldest job in the %s queue, in seconds since epoch", queue),
		}),
		loc: loc,
	}
	registered := make([]prometheus.Collector, 0, 3)
	for _, c := range []prometheus.Collector{s.Length, s.Newest, s.Oldest} {
		if err := reg.Register(c); err != nil {
			for _, done := range registered {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("queue %s: register gauge: %w", queue, err)
		}
		registered = append(registered, c)
	}
	return s, nil
}

// Update refreshes the gauges from store. Missing data yields zero; parse and store errors are returned.
func (s *GaugeSet) Update(ctx context.Context, store Store) error {
	length, err := store.Len(ctx, s.Queue)
	if err != nil {
		return fmt.Errorf("queue %s: length: %w", s.Queue, err)
	}
	s.Length.Set(float64(length))

	oldest, err := s.jobAdded(ctx, store, oldestIndex)
	if err != nil {
		return fmt.Errorf("queue %s: oldest job: %w", s.Queue, err)
	}
	newest, err := s.jobAdded(ctx, store, newestIndex)
	if err != nil {
		return fmt.Errorf("queue %s: newest job: %w", s.Queue, err)
	}

	s.Oldest.Set(oldest)
	s.Newest.Set(newest)
	return nil
}

func (s *GaugeSet) jobAdded(ctx context.Context, store Store, index int64) (float64, error) {
	ids, err := store.Range(ctx, s.Queue, index, index)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	added, ok, err := store.HashField(ctx, JobKey(ids[0]), AddedField)
	if err != nil {
		return 0, err
	}
	if !ok || added == "" {
		return 0, nil
	}
	return ParseAdded(added, s.loc)
}
