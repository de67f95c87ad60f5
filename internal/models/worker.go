package models

import (
	"errors"
	"time"
)

// ErrUnknownWorker signals that a call requiring prior registration hit an
// address the registry does not know. Recoverable: the worker re-registers.
var ErrUnknownWorker = errors.New("unknown worker")

// Capabilities is a worker's self-reported hardware and platform record.
type Capabilities struct {
	CPUCores   int               `json:"cpu_cores"`
	Platform   string            `json:"platform"`
	Machine    string            `json:"machine"`
	TotalMemMB uint64            `json:"total_mem_mb"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Worker represents a registered worker node as tracked by the coordinator.
// The registry owns all mutation; workers only influence it via API calls.
type Worker struct {
	Address      string       `json:"address"`
	Hostname     string       `json:"hostname"`
	Capabilities Capabilities `json:"capabilities"`
	Status       string       `json:"status"`
	LastSeen     time.Time    `json:"last_seen"`
	CurrentJobID string       `json:"current_job,omitempty"`
	Progress     string       `json:"progress,omitempty"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// RegisterRequest is the payload a worker posts to register itself.
type RegisterRequest struct {
	Hostname     string       `json:"hostname"`
	Capabilities Capabilities `json:"capabilities"`
}

// RegisterResponse acknowledges a registration with the assigned worker ID
// (the caller's observed network address).
type RegisterResponse struct {
	Status   string `json:"status"`
	WorkerID string `json:"worker_id"`
}

// HeartbeatRequest carries a worker's periodic liveness report.
type HeartbeatRequest struct {
	Status   string `json:"status"`
	Progress string `json:"progress,omitempty"`
}

// Ack is the generic single-field status reply.
type Ack struct {
	Status string `json:"status"`
}
