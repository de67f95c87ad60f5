package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrand/trainfleet/internal/models"
)

func backdate(registry *WorkerRegistry, addr string, age time.Duration) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.workers[addr].LastSeen = time.Now().Add(-age)
}

func TestSweepEvictsStaleWorkers(t *testing.T) {
	registry := NewWorkerRegistry()
	reaper := NewReaper(registry, 5*time.Minute, time.Minute)

	registry.Upsert("10.0.0.1", "stale-box", models.Capabilities{})
	registry.Upsert("10.0.0.2", "fresh-box", models.Capabilities{})
	backdate(registry, "10.0.0.1", 6*time.Minute)

	reaper.sweep(time.Now())

	_, staleAlive := registry.Get("10.0.0.1")
	assert.False(t, staleAlive, "stale worker should be evicted")

	_, freshAlive := registry.Get("10.0.0.2")
	assert.True(t, freshAlive, "fresh worker should survive the sweep")
}

func TestSweepKeepsWorkerAtExactTimeout(t *testing.T) {
	registry := NewWorkerRegistry()
	reaper := NewReaper(registry, 5*time.Minute, time.Minute)

	registry.Upsert("10.0.0.1", "edge-box", models.Capabilities{})

	// LastSeen exactly at the cutoff is not "older than" the timeout
	now := time.Now()
	registry.mu.Lock()
	registry.workers["10.0.0.1"].LastSeen = now.Add(-5 * time.Minute)
	registry.mu.Unlock()

	reaper.sweep(now)

	_, alive := registry.Get("10.0.0.1")
	assert.True(t, alive, "worker at the exact timeout boundary should survive")
}

func TestHeartbeatBetweenSnapshotAndEvict(t *testing.T) {
	registry := NewWorkerRegistry()

	registry.Upsert("10.0.0.1", "racy-box", models.Capabilities{})
	backdate(registry, "10.0.0.1", 6*time.Minute)

	// A heartbeat lands after the reaper decided to evict but before the
	// eviction itself; the re-check under the lock must keep the worker.
	require.NoError(t, registry.Touch("10.0.0.1", models.WorkerStatusIdle, ""))

	_, evicted := registry.evictIfStale("10.0.0.1", time.Now().Add(-5*time.Minute))
	assert.False(t, evicted, "refreshed worker must not be evicted")

	_, alive := registry.Get("10.0.0.1")
	assert.True(t, alive)
}

func TestSweepDoesNotRequeueOrphanedJob(t *testing.T) {
	coord := New(Config{})
	coord.Register("10.0.0.1", "doomed-box", models.Capabilities{})
	coord.EnqueueConfig(models.JobConfig{Timesteps: 1000})

	job, err := coord.Lease("10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, job)

	backdate(coord.Registry(), "10.0.0.1", 6*time.Minute)
	coord.reaper.sweep(time.Now())

	_, alive := coord.Registry().Get("10.0.0.1")
	assert.False(t, alive, "silent worker should be evicted")

	// The in-flight job is lost with its worker, never put back in the queue
	assert.Equal(t, 0, coord.Queue().PendingCount())

	// A late report from the evicted worker is still accepted
	coord.Report("10.0.0.1", models.ReportResultRequest{JobID: job.ID, Success: true})
	assert.Equal(t, 1, coord.Queue().CompletedCount())
}

func TestReaperStartStop(t *testing.T) {
	registry := NewWorkerRegistry()
	reaper := NewReaper(registry, 5*time.Minute, 10*time.Millisecond)

	registry.Upsert("10.0.0.1", "stale-box", models.Capabilities{})
	backdate(registry, "10.0.0.1", 6*time.Minute)

	reaper.Start()
	defer reaper.Stop()

	assert.Eventually(t, func() bool {
		_, alive := registry.Get("10.0.0.1")
		return !alive
	}, time.Second, 10*time.Millisecond, "running reaper should evict the stale worker")
}
