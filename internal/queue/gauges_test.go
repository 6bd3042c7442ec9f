package queue_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/metrix/internal/queue"
)

func epoch(t *testing.T, value string, loc *time.Location) float64 {
	t.Helper()
	ts, err := time.ParseInLocation(queue.AddedLayout, value, loc)
	require.NoError(t, err)
	return queue.EpochSeconds(ts)
}

func TestShortName(t *testing.T) {
	cases := map[string]string{
		"jobs:queued-fungi":       "queued_fungi",
		"jobs:queued":             "queued",
		"jobs:development-fungi":  "development_fungi",
		"legacy":                  "legacy",
		"prefix:jobs:legacy-long": "legacy_long",
	}
	for in, want := range cases {
		require.Equal(t, want, queue.ShortName(in), in)
	}
	require.Equal(t, "job:abc", queue.JobKey("abc"))
}

func TestGaugeSetSingleJob(t *testing.T) {
	_, client := newRedis(t)
	pushJob(t, client, "jobs:queued", "fakejob", "2024-01-15 10:30:00.000000")

	set, err := queue.NewGaugeSet("jobs:queued", nil, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, set.Update(context.Background(), queue.NewRedisStore(client)))

	want := epoch(t, "2024-01-15 10:30:00.000000", time.Local)
	require.Equal(t, float64(1), testutil.ToFloat64(set.Length))
	require.Equal(t, want, testutil.ToFloat64(set.Oldest))
	require.Equal(t, want, testutil.ToFloat64(set.Newest))
}

func TestGaugeSetEmptyQueue(t *testing.T) {
	_, client := newRedis(t)

	set, err := queue.NewGaugeSet("jobs:development", time.UTC, prometheus.NewRegistry())
	require.NoError(t, err)
	set.Oldest.Set(42)
	set.Newest.Set(42)
	require.NoError(t, set.Update(context.Background(), queue.NewRedisStore(client)))

	require.Equal(t, float64(0), testutil.ToFloat64(set.Length))
	require.Equal(t, float64(0), testutil.ToFloat64(set.Oldest))
	require.Equal(t, float64(0), testutil.ToFloat64(set.Newest))
}

func TestGaugeSetMissingAddedField(t *testing.T) {
	_, client := newRedis(t)
	pushJob(t, client, "jobs:legacy", "old", "2024-01-15 09:00:00.000000")
	pushJob(t, client, "jobs:legacy", "fieldless", "")

	set, err := queue.NewGaugeSet("jobs:legacy", time.UTC, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, set.Update(context.Background(), queue.NewRedisStore(client)))

	require.Equal(t, float64(2), testutil.ToFloat64(set.Length))
	require.Equal(t, epoch(t, "2024-01-15 09:00:00.000000", time.UTC), testutil.ToFloat64(set.Oldest))
	require.Equal(t, float64(0), testutil.ToFloat64(set.Newest))
}

func TestGaugeSetMissingJobRecord(t *testing.T) {
	_, client := newRedis(t)
	require.NoError(t, client.LPush(context.Background(), "jobs:queued", "ghost").Err())

	set, err := queue.NewGaugeSet("jobs:queued", time.UTC, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, set.Update(context.Background(), queue.NewRedisStore(client)))
	require.Equal(t, float64(1), testutil.ToFloat64(set.Length))
	require.Equal(t, float64(0), testutil.ToFloat64(set.Oldest))
}

func TestGaugeSetTrustsListOrder(t *testing.T) {
	cases := []struct {
		name       string
		first      string
		second     string
		wantOldest string
		wantNewest string
	}{
		{
			name:       "chronological pushes",
			first:      "2024-01-15 10:00:00.000000",
			second:     "2024-01-15 11:00:00.000000",
			wantOldest: "2024-01-15 10:00:00.000000",
			wantNewest: "2024-01-15 11:00:00.000000",
		},
		{
			name:       "out of order pushes",
			first:      "2024-01-15 11:00:00.000000",
			second:     "2024-01-15 10:00:00.000000",
			wantOldest: "2024-01-15 11:00:00.000000",
			wantNewest: "2024-01-15 10:00:00.000000",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, client := newRedis(t)
			// LPUSH puts the second job at index 0 and leaves the first at index -1.
			pushJob(t, client, "jobs:legacy", "a", tc.first)
			pushJob(t, client, "jobs:legacy", "b", tc.second)

			set, err := queue.NewGaugeSet("jobs:legacy", time.UTC, prometheus.NewRegistry())
			require.NoError(t, err)
			require.NoError(t, set.Update(context.Background(), queue.NewRedisStore(client)))

			require.Equal(t, float64(2), testutil.ToFloat64(set.Length))
			require.Equal(t, epoch(t, tc.wantOldest, time.UTC), testutil.ToFloat64(set.Oldest))
			require.Equal(t, epoch(t, tc.wantNewest, time.UTC), testutil.ToFloat64(set.Newest))
		})
	}
}

func TestGaugeSetBadTimestamp(t *testing.T) {
	_, client := newRedis(t)
	pushJob(t, client, "jobs:queued", "broken", "yesterday")

	set, err := queue.NewGaugeSet("jobs:queued", time.UTC, prometheus.NewRegistry())
	require.NoError(t, err)
	err = set.Update(context.Background(), queue.NewRedisStore(client))
	require.Error(t, err)

	var perr *queue.ParseError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "yesterday", perr.Value)
	require.Contains(t, err.Error(), "jobs:queued")
	require.Equal(t, float64(1), testutil.ToFloat64(set.Length))
}

func TestGaugeSetStoreError(t *testing.T) {
	mr, client := newRedis(t)
	set, err := queue.NewGaugeSet("jobs:queued", time.UTC, prometheus.NewRegistry())
	require.NoError(t, err)

	mr.Close()
	require.Error(t, set.Update(context.Background(), queue.NewRedisStore(client)))
}

func TestGaugeSetExposition(t *testing.T) {
	_, client := newRedis(t)
	pushJob(t, client, "jobs:queued-fungi", "fakejob", "2024-01-15 10:30:00.000000")

	registry := prometheus.NewRegistry()
	set, err := queue.NewGaugeSet("jobs:queued-fungi", time.UTC, registry)
	require.NoError(t, err)
	require.NoError(t, set.Update(context.Background(), queue.NewRedisStore(client)))

	expected := `
# HELP queue_queued_fungi_length Length of the jobs:queued-fungi queue
# TYPE queue_queued_fungi_length gauge
queue_queued_fungi_length 1
# HELP queued_fungi_newest_job_age Age of the newest job in the jobs:queued-fungi queue, in seconds since epoch
# TYPE queued_fungi_newest_job_age gauge
queued_fungi_newest_job_age 1.7053146e+09
# HELP queued_fungi_oldest_job_age Age of the oldest job in the jobs:queued-fungi queue, in seconds since epoch
# TYPE queued_fungi_oldest_job_age gauge
queued_fungi_oldest_job_age 1.7053146e+09
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected)))
}

func TestNewGaugeSetRejectsInvalidInput(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := queue.NewGaugeSet("  ", time.UTC, registry)
	require.Error(t, err)

	_, err = queue.NewGaugeSet("jobs:", time.UTC, registry)
	require.Error(t, err)

	_, err = queue.NewGaugeSet("jobs:queued", time.UTC, registry)
	require.NoError(t, err)
	_, err = queue.NewGaugeSet("other:queued", time.UTC, registry)
	require.Error(t, err)
}
