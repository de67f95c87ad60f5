package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mstrand/trainfleet/internal/models"
	"github.com/mstrand/trainfleet/internal/storage"
	"github.com/mstrand/trainfleet/pkg/utils"
)

// Coordinator owns the worker registry and the job queue and implements the
// coordination protocol operations the API layer exposes. Handlers do their
// parsing outside; everything here is short, lock-bounded work.
type Coordinator struct {
	registry *WorkerRegistry
	queue    *JobQueue
	reaper   *Reaper
	history  storage.ResultStore
	logger   *utils.Logger
	jobSeq   atomic.Uint64
}

// Config holds coordinator configuration
type Config struct {
	// History receives every reported result for durable audit. Optional;
	// nil disables persistence.
	History         storage.ResultStore
	LivenessTimeout time.Duration
	ReapInterval    time.Duration
}

// New creates a coordinator with an empty registry and queue
func New(config Config) *Coordinator {
	timeout := config.LivenessTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	interval := config.ReapInterval
	if interval == 0 {
		interval = time.Minute
	}

	registry := NewWorkerRegistry()
	return &Coordinator{
		registry: registry,
		queue:    NewJobQueue(),
		reaper:   NewReaper(registry, timeout, interval),
		history:  config.History,
		logger:   utils.NewLogger("coordinator", utils.INFO),
	}
}

// Start starts the liveness reaper
func (c *Coordinator) Start() {
	c.reaper.Start()
}

// Stop stops the liveness reaper
func (c *Coordinator) Stop() {
	c.reaper.Stop()
}

// Register creates or replaces the worker entry for addr and returns the
// worker ID (the address itself). Registration always succeeds.
func (c *Coordinator) Register(addr, hostname string, caps models.Capabilities) string {
	worker := c.registry.Upsert(addr, hostname, caps)
	return worker.Address
}

// Heartbeat refreshes liveness and status for a registered worker. Returns
// ErrUnknownWorker if the address was never registered or has been evicted,
// telling the worker to re-register.
func (c *Coordinator) Heartbeat(addr, status, progress string) error {
	return c.registry.Touch(addr, status, progress)
}

// Lease pops the next pending job and assigns it to the calling worker.
// Returns (nil, nil) when the queue is empty. Unregistered callers fail
// before the queue is touched so no job can be popped into the void.
func (c *Coordinator) Lease(addr string) (*models.Job, error) {
	if _, ok := c.registry.Get(addr); !ok {
		return nil, models.ErrUnknownWorker
	}

	job, ok := c.queue.Lease()
	if !ok {
		return nil, nil
	}

	if err := c.registry.Assign(addr, job.ID); err != nil {
		// Caller evicted between the check and the pop. Undo the lease.
		c.queue.pushFront(job)
		return nil, err
	}

	c.logger.Info("Assigned job %s to worker %s", job.ID, addr)
	return job, nil
}

// Report records a completed job and returns its worker to idle. Reports are
// accepted even from workers the reaper evicted in the meantime; such workers
// re-register on their next heartbeat.
func (c *Coordinator) Report(addr string, req models.ReportResultRequest) *models.JobResult {
	hostname := "unknown"
	if worker, ok := c.registry.Get(addr); ok {
		hostname = worker.Hostname
	}

	result := &models.JobResult{
		JobID:         req.JobID,
		WorkerAddress: addr,
		WorkerName:    hostname,
		Success:       req.Success,
		Metrics:       req.Metrics,
		ModelRef:      req.ModelRef,
		Error:         req.Error,
		CompletedAt:   time.Now(),
	}

	c.queue.RecordCompletion(result)
	c.registry.Release(addr)

	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.history.Append(ctx, result); err != nil {
			c.logger.Error("Failed to persist result for job %s: %v", req.JobID, err)
		}
	}

	c.logger.Info("Job %s completed by %s (%s), success=%v", req.JobID, hostname, addr, req.Success)
	return result
}

// Status returns the read-only cluster aggregate for the status endpoint.
func (c *Coordinator) Status() models.ClusterStatus {
	return models.ClusterStatus{
		Workers:       c.registry.Snapshot(),
		JobsPending:   c.queue.PendingCount(),
		JobsCompleted: c.queue.CompletedCount(),
		Queue:         c.queue.Pending(),
		Completed:     c.queue.Completed(),
	}
}

// EnqueueConfig wraps a training configuration in a new job and queues it.
func (c *Coordinator) EnqueueConfig(cfg models.JobConfig) *models.Job {
	job := &models.Job{
		ID:        c.newJobID(),
		Config:    cfg,
		CreatedAt: time.Now(),
	}
	c.queue.Enqueue(job)
	c.logger.Info("Enqueued job %s (%s)", job.ID, cfg.Description)
	return job
}

// SeedSampleJobs enqueues the standard three-point hyperparameter sweep used
// to smoke-test a fresh cluster.
func (c *Coordinator) SeedSampleJobs() []*models.Job {
	configs := []models.JobConfig{
		{LearningRate: 0.001, BatchSize: 32, Timesteps: 50000, Description: "High learning rate, fast test"},
		{LearningRate: 0.0005, BatchSize: 32, Timesteps: 50000, Description: "Medium learning rate, fast test"},
		{LearningRate: 0.0001, BatchSize: 64, Timesteps: 50000, Description: "Low learning rate, larger batch"},
	}

	jobs := make([]*models.Job, 0, len(configs))
	for _, cfg := range configs {
		jobs = append(jobs, c.EnqueueConfig(cfg))
	}
	return jobs
}

// newJobID builds a job ID from the current timestamp plus a process-wide
// sequence suffix, so IDs created within the same second stay distinct.
func (c *Coordinator) newJobID() string {
	seq := c.jobSeq.Add(1)
	return fmt.Sprintf("job_%s_%03d", time.Now().Format("20060102_150405"), seq)
}

// Registry exposes the worker registry for tests and the reaper
func (c *Coordinator) Registry() *WorkerRegistry {
	return c.registry
}

// Queue exposes the job queue
func (c *Coordinator) Queue() *JobQueue {
	return c.queue
}
