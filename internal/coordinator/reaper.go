package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/mstrand/trainfleet/pkg/utils"
)

// Reaper periodically evicts workers that have been silent longer than the
// liveness timeout. It is the only component that deletes registry entries,
// and it does so through the same atomic Evict every other mutator would use.
// An evicted worker's in-flight job is NOT requeued; it is logged and lost
// unless the worker still reports it later.
type Reaper struct {
	registry *WorkerRegistry
	timeout  time.Duration
	interval time.Duration
	logger   *utils.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewReaper creates a reaper sweeping the registry every interval and
// evicting workers silent longer than timeout.
func NewReaper(registry *WorkerRegistry, timeout, interval time.Duration) *Reaper {
	return &Reaper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		logger:   utils.NewLogger("reaper", utils.INFO),
	}
}

// Start begins the background sweep loop
func (rp *Reaper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	rp.cancel = cancel

	rp.wg.Add(1)
	go rp.loop(ctx)

	rp.logger.Info("Reaper started (timeout: %v, interval: %v)", rp.timeout, rp.interval)
}

// Stop stops the sweep loop and waits for it to exit
func (rp *Reaper) Stop() {
	if rp.cancel != nil {
		rp.cancel()
	}
	rp.wg.Wait()
	rp.logger.Info("Reaper stopped")
}

func (rp *Reaper) loop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rp.logger.Debug("Reaper loop stopped")
			return
		case <-ticker.C:
			rp.sweep(time.Now())
		}
	}
}

// sweep evicts every worker whose LastSeen is older than the timeout. It
// iterates a snapshot, never the live map, so concurrent registrations and
// heartbeats are unaffected.
func (rp *Reaper) sweep(now time.Time) {
	cutoff := now.Add(-rp.timeout)

	for addr, worker := range rp.registry.Snapshot() {
		if !worker.LastSeen.Before(cutoff) {
			continue
		}

		evicted, ok := rp.registry.evictIfStale(addr, cutoff)
		if !ok {
			continue
		}

		rp.logger.Warn("Worker %s (%s) went offline, evicted after %v of silence",
			evicted.Hostname, addr, now.Sub(evicted.LastSeen).Truncate(time.Second))
		if evicted.CurrentJobID != "" {
			rp.logger.Warn("Job %s was assigned to evicted worker %s and is now orphaned",
				evicted.CurrentJobID, addr)
		}
	}
}
