package models

import "time"

// JobConfig is the training configuration shipped with a job. The coordinator
// never interprets it; the named fields plus the open Extra map travel to the
// worker's trainer as-is.
type JobConfig struct {
	LearningRate float64           `json:"learning_rate"`
	BatchSize    int               `json:"batch_size"`
	Timesteps    int               `json:"timesteps"`
	Description  string            `json:"description,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Job is a unit of training work waiting in, or leased from, the queue.
type Job struct {
	ID        string    `json:"job_id"`
	Config    JobConfig `json:"config"`
	CreatedAt time.Time `json:"created_at"`
}

// JobResult records a completed job in the append-only completed log.
type JobResult struct {
	JobID         string             `json:"job_id"`
	WorkerAddress string             `json:"worker"`
	WorkerName    string             `json:"worker_name"`
	Success       bool               `json:"success"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	ModelRef      string             `json:"model_ref,omitempty"`
	Error         string             `json:"error,omitempty"`
	CompletedAt   time.Time          `json:"timestamp"`
}

// ReportResultRequest is the payload a worker posts when a job finishes,
// successfully or not.
type ReportResultRequest struct {
	JobID    string             `json:"job_id"`
	Success  bool               `json:"success"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	ModelRef string             `json:"model_ref,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// CreateJobRequest is the operator-facing payload to enqueue a new job.
type CreateJobRequest struct {
	Config JobConfig `json:"config"`
}

// ClusterStatus is the read-only aggregate served by the status endpoint.
type ClusterStatus struct {
	Workers       map[string]*Worker `json:"workers"`
	JobsPending   int                `json:"jobs_pending"`
	JobsCompleted int                `json:"jobs_completed"`
	Queue         []*Job             `json:"queue"`
	Completed     []*JobResult       `json:"completed"`
}
