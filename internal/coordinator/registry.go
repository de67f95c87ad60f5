package coordinator

import (
	"sync"
	"time"

	"github.com/mstrand/trainfleet/internal/models"
	"github.com/mstrand/trainfleet/pkg/utils"
)

// WorkerRegistry is the authoritative in-memory table of known workers, keyed
// by network address. Every operation is a whole-op mutation under one lock;
// callers never observe a partially updated entry, and no returned value
// aliases registry-owned memory.
type WorkerRegistry struct {
	mu      sync.RWMutex
	workers map[string]*models.Worker
	logger  *utils.Logger
}

// NewWorkerRegistry creates an empty registry
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{
		workers: make(map[string]*models.Worker),
		logger:  utils.NewLogger("registry", utils.INFO),
	}
}

// Upsert creates or replaces the entry for addr. Re-registration from the
// same address is idempotent: the prior record is overwritten wholesale.
func (r *WorkerRegistry) Upsert(addr, hostname string, caps models.Capabilities) *models.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	worker := &models.Worker{
		Address:      addr,
		Hostname:     hostname,
		Capabilities: caps,
		Status:       models.WorkerStatusIdle,
		LastSeen:     now,
		RegisteredAt: now,
	}
	if prior, exists := r.workers[addr]; exists {
		worker.RegisteredAt = prior.RegisteredAt
		r.logger.Info("Worker %s (%s) re-registered", hostname, addr)
	} else {
		r.logger.Info("Worker %s (%s) registered", hostname, addr)
	}
	r.workers[addr] = worker

	dup := *worker
	return &dup
}

// Touch updates LastSeen, status and progress for an existing entry.
func (r *WorkerRegistry) Touch(addr, status, progress string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, exists := r.workers[addr]
	if !exists {
		return models.ErrUnknownWorker
	}

	worker.LastSeen = time.Now()
	if status != "" {
		worker.Status = status
	}
	if progress != "" {
		worker.Progress = progress
	}
	return nil
}

// Assign marks the worker as training jobID.
func (r *WorkerRegistry) Assign(addr, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, exists := r.workers[addr]
	if !exists {
		return models.ErrUnknownWorker
	}

	worker.CurrentJobID = jobID
	worker.Status = models.WorkerStatusTraining
	worker.LastSeen = time.Now()
	return nil
}

// Release clears the worker's current job and returns it to idle. A miss is a
// no-op: results are accepted even from workers the reaper already evicted.
func (r *WorkerRegistry) Release(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, exists := r.workers[addr]
	if !exists {
		return
	}

	worker.CurrentJobID = ""
	worker.Progress = ""
	worker.Status = models.WorkerStatusIdle
	worker.LastSeen = time.Now()
}

// Evict removes the entry for addr, returning a copy of the removed worker.
func (r *WorkerRegistry) Evict(addr string) (*models.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, exists := r.workers[addr]
	if !exists {
		return nil, false
	}
	delete(r.workers, addr)

	dup := *worker
	return &dup, true
}

// evictIfStale removes addr only if its LastSeen is still older than cutoff.
// The re-check happens under the lock so a heartbeat that lands between a
// reaper snapshot and its evict call keeps the worker alive.
func (r *WorkerRegistry) evictIfStale(addr string, cutoff time.Time) (*models.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, exists := r.workers[addr]
	if !exists || !worker.LastSeen.Before(cutoff) {
		return nil, false
	}
	delete(r.workers, addr)

	dup := *worker
	return &dup, true
}

// Get returns a copy of the entry for addr.
func (r *WorkerRegistry) Get(addr string) (*models.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	worker, exists := r.workers[addr]
	if !exists {
		return nil, false
	}

	dup := *worker
	return &dup, true
}

// Snapshot returns a copy of all entries for reporting and dashboard use.
func (r *WorkerRegistry) Snapshot() map[string]*models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]*models.Worker, len(r.workers))
	for addr, worker := range r.workers {
		dup := *worker
		snapshot[addr] = &dup
	}
	return snapshot
}

// Count returns the number of registered workers
func (r *WorkerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.workers)
}
