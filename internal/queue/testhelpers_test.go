package queue_test

import (
	"context"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// pushJob pushes jobID onto the head of queueName and records its added timestamp.
// An empty added leaves the job hash without the field.
func pushJob(t *testing.T, client *redis.Client, queueName, jobID, added string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, client.LPush(ctx, queueName, jobID).Err())
	if added != "" {
		require.NoError(t, client.HSet(ctx, "job:"+jobID, "added", added).Err())
	} else {
		require.NoError(t, client.HSet(ctx, "job:"+jobID, "state", "queued").Err())
	}
}

// memoryStore is an in-process Store used where Redis semantics are not under test.
type memoryStore struct {
	mu     sync.Mutex
	lists  map[string][]string
	hashes map[string]map[string]string
	calls  int
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{lists: map[string][]string{}, hashes: map[string]map[string]string{}}
}

func (m *memoryStore) Len(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.lists[key])), nil
}

func (m *memoryStore) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if n == 0 || start >= n || stop < start {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

func (m *memoryStore) HashField(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.hashes[key][field]
	return v, ok, nil
}

func (m *memoryStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
