package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mstrand/trainfleet/internal/discovery"
	"github.com/mstrand/trainfleet/internal/models"
	"github.com/mstrand/trainfleet/pkg/utils"
)

// ErrRegistrationExhausted is returned by Start when the bounded registration
// retries all failed. This is a fatal startup condition; the process exits.
var ErrRegistrationExhausted = errors.New("registration retries exhausted")

// Agent is the worker-side daemon: it finds the coordinator, registers,
// heartbeats on a fixed timer, polls for work when idle and executes leased
// jobs through its Trainer, reporting every outcome back.
type Agent struct {
	hostname  string
	caps      models.Capabilities
	trainer   Trainer
	responder *discovery.Responder

	masterURL         string
	apiPort           int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	registerAttempts  int
	registerBackoff   time.Duration

	client *Client
	logger *utils.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	status     string
	currentJob *models.Job
}

// Config holds agent configuration
type Config struct {
	// MasterURL is the coordinator base URL. Empty means discover it by
	// waiting for a coordinator broadcast probe on DiscoveryPort.
	MasterURL string
	// APIPort is the coordinator API port assumed when the coordinator is
	// found via discovery (discovery only yields an IP).
	APIPort int
	// DiscoveryPort enables the UDP responder when non-zero.
	DiscoveryPort int

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	RegisterAttempts  int
	RegisterBackoff   time.Duration

	Hostname     string
	Capabilities *models.Capabilities // nil means probe the local machine
	Trainer      Trainer
}

// NewAgent creates an agent from config, applying defaults
func NewAgent(config Config) *Agent {
	ctx, cancel := context.WithCancel(context.Background())

	hostname := config.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	caps := CollectCapabilities()
	if config.Capabilities != nil {
		caps = *config.Capabilities
	}

	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = 30 * time.Second
	}
	heartbeatInterval := config.HeartbeatInterval
	if heartbeatInterval == 0 {
		heartbeatInterval = 30 * time.Second
	}
	attempts := config.RegisterAttempts
	if attempts == 0 {
		attempts = 5
	}
	backoff := config.RegisterBackoff
	if backoff == 0 {
		backoff = 10 * time.Second
	}

	a := &Agent{
		hostname:          hostname,
		caps:              caps,
		trainer:           config.Trainer,
		masterURL:         config.MasterURL,
		apiPort:           config.APIPort,
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		registerAttempts:  attempts,
		registerBackoff:   backoff,
		logger:            utils.NewLogger(fmt.Sprintf("agent-%s", hostname), utils.INFO),
		ctx:               ctx,
		cancel:            cancel,
		status:            models.WorkerStatusIdle,
	}

	if config.DiscoveryPort > 0 {
		a.responder = discovery.NewResponder(config.DiscoveryPort, hostname, caps)
	}

	return a
}

// Start discovers the coordinator if needed, registers with bounded retries
// and launches the heartbeat and job loops. It returns an error wrapping
// ErrRegistrationExhausted if registration never succeeds.
func (a *Agent) Start() error {
	if a.responder != nil {
		if err := a.responder.Start(); err != nil {
			return err
		}
	}

	if a.masterURL == "" {
		if a.responder == nil {
			return fmt.Errorf("no master URL configured and discovery is disabled")
		}
		a.logger.Info("No master configured, waiting for coordinator probe...")
		addr, err := a.responder.AwaitProbe(a.ctx)
		if err != nil {
			return fmt.Errorf("coordinator discovery failed: %w", err)
		}
		a.masterURL = fmt.Sprintf("http://%s:%d", addr, a.apiPort)
		a.logger.Info("Found coordinator at %s", a.masterURL)
	}

	a.client = NewClient(a.masterURL)

	if err := a.registerWithRetry(); err != nil {
		return err
	}

	a.wg.Add(1)
	go a.heartbeatLoop()

	a.wg.Add(1)
	go a.jobLoop()

	a.logger.Info("Agent ready, waiting for jobs")
	return nil
}

// Stop cancels the loops immediately and waits for them to exit. An in-flight
// training run is killed through context cancellation; prefer Shutdown when
// the job should be allowed to finish.
func (a *Agent) Stop() {
	a.cancel()
	a.wg.Wait()
	if a.responder != nil {
		a.responder.Stop()
	}
	a.logger.Info("Agent stopped")
}

// Shutdown waits up to grace for the current job to finish, then stops.
func (a *Agent) Shutdown(grace time.Duration) {
	if a.CurrentJob() != nil {
		a.logger.Info("Waiting up to %v for current job to complete...", grace)
		deadline := time.After(grace)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

	wait:
		for {
			select {
			case <-deadline:
				a.logger.Warn("Timeout waiting for job completion, forcing shutdown")
				break wait
			case <-ticker.C:
				if a.CurrentJob() == nil {
					break wait
				}
			}
		}
	}

	a.Stop()
}

// CurrentJob returns the job being executed, or nil when idle
func (a *Agent) CurrentJob() *models.Job {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentJob
}

// Status returns the agent's current protocol status string
func (a *Agent) Status() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// registerWithRetry attempts registration a bounded number of times. Failure
// here is fatal by design: an agent that cannot register has nothing to do.
func (a *Agent) registerWithRetry() error {
	var lastErr error
	for attempt := 1; attempt <= a.registerAttempts; attempt++ {
		if err := a.register(); err != nil {
			lastErr = err
			a.logger.Warn("Registration attempt %d/%d failed: %v", attempt, a.registerAttempts, err)

			select {
			case <-a.ctx.Done():
				return a.ctx.Err()
			case <-time.After(a.registerBackoff):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRegistrationExhausted, a.registerAttempts, lastErr)
}

func (a *Agent) register() error {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	workerID, err := a.client.Register(ctx, a.hostname, a.caps)
	if err != nil {
		return err
	}
	a.logger.Info("Registered with coordinator as %s", workerID)
	return nil
}

// heartbeatLoop reports liveness on a fixed timer regardless of state.
// Transport errors are skipped until the next tick; an unknown-worker reply
// triggers re-registration because the reaper evicted us.
func (a *Agent) heartbeatLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Debug("Heartbeat loop stopped")
			return
		case <-ticker.C:
			a.sendHeartbeat()
		}
	}
}

func (a *Agent) sendHeartbeat() {
	a.mu.RLock()
	status := a.status
	progress := ""
	if a.currentJob != nil {
		progress = a.currentJob.ID
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	err := a.client.Heartbeat(ctx, status, progress)
	switch {
	case err == nil:
		a.logger.Debug("Heartbeat sent (status: %s)", status)
	case errors.Is(err, models.ErrUnknownWorker):
		a.logger.Warn("Coordinator no longer knows this worker, re-registering")
		if err := a.register(); err != nil {
			a.logger.Error("Re-registration failed: %v", err)
		}
	default:
		a.logger.Warn("Heartbeat failed, will retry on next tick: %v", err)
	}
}

// jobLoop polls for work when idle. Execution is synchronous: while a job
// runs, poll ticks are simply missed, which is the intended backpressure.
func (a *Agent) jobLoop() {
	defer a.wg.Done()

	// Ask immediately on startup instead of waiting out the first interval.
	a.pollForJob()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Debug("Job loop stopped")
			return
		case <-ticker.C:
			a.pollForJob()
		}
	}
}

func (a *Agent) pollForJob() {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	job, err := a.client.Lease(ctx)
	cancel()

	switch {
	case errors.Is(err, models.ErrUnknownWorker):
		a.logger.Warn("Lease refused, re-registering")
		if err := a.register(); err != nil {
			a.logger.Error("Re-registration failed: %v", err)
		}
		return
	case err != nil:
		a.logger.Warn("Failed to poll for job: %v", err)
		return
	case job == nil:
		a.logger.Debug("No jobs available")
		return
	}

	a.runJob(job)
}

// runJob executes one leased job and reports its outcome unconditionally.
func (a *Agent) runJob(job *models.Job) {
	a.mu.Lock()
	a.currentJob = job
	a.status = models.WorkerStatusTraining
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.currentJob = nil
		a.status = models.WorkerStatusIdle
		a.mu.Unlock()
	}()

	a.logger.Info("Starting job %s: %s", job.ID, job.Config.Description)
	result := a.trainer.Run(a.ctx, job.Config)

	report := models.ReportResultRequest{
		JobID:    job.ID,
		Success:  result.Success,
		Metrics:  result.Metrics,
		ModelRef: result.ModelRef,
		Error:    result.Err,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.client.Report(ctx, report); err != nil {
		a.logger.Error("Failed to report result for job %s: %v", job.ID, err)
		return
	}

	a.logger.Info("Reported result for job %s (success: %v)", job.ID, result.Success)
}
