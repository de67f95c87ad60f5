package models

// Worker status constants
const (
	WorkerStatusIdle     = "idle"
	WorkerStatusTraining = "training"
	WorkerStatusOffline  = "offline"
)

// Wire status strings shared by the coordinator API and the agent client
const (
	ReplyRegistered    = "registered"
	ReplyOK            = "ok"
	ReplyRecorded      = "recorded"
	ReplyUnknownWorker = "unknown_worker"
)
