package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstrand/trainfleet/internal/agent"
	"github.com/mstrand/trainfleet/pkg/utils"
)

func main() {
	cfg := utils.LoadConfig()

	// Parse command-line flags; defaults come from the environment
	var (
		masterURL         = flag.String("master", cfg.MasterURL, "Coordinator URL (empty: wait for discovery)")
		apiPort           = flag.Int("api-port", cfg.CoordinatorPort, "Coordinator API port used after discovery")
		discoveryPort     = flag.Int("discovery-port", cfg.DiscoveryPort, "UDP discovery port (0 disables)")
		pollInterval      = flag.Duration("poll-interval", cfg.PollInterval, "Job polling interval")
		heartbeatInterval = flag.Duration("heartbeat-interval", cfg.HeartbeatInterval, "Heartbeat interval")
		trainCommand      = flag.String("train-command", cfg.TrainCommand, "Command that runs one training job")
		trainWorkDir      = flag.String("work-dir", cfg.TrainWorkDir, "Working directory for training runs")
		modelsDir         = flag.String("models-dir", cfg.ModelsDir, "Directory where trained models are written")
		logLevel          = flag.String("log-level", cfg.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	)

	flag.Parse()

	utils.SetDefaultLogLevel(utils.ParseLevel(*logLevel))

	utils.Info("Starting training agent")
	if *masterURL != "" {
		utils.Info("Coordinator URL: %s", *masterURL)
	} else {
		utils.Info("No coordinator configured, relying on discovery (udp/%d)", *discoveryPort)
	}
	utils.Info("Poll interval: %v", *pollInterval)
	utils.Info("Heartbeat interval: %v", *heartbeatInterval)

	trainer := agent.NewCommandTrainer(*trainCommand, *trainWorkDir, *modelsDir)

	a := agent.NewAgent(agent.Config{
		MasterURL:         *masterURL,
		APIPort:           *apiPort,
		DiscoveryPort:     *discoveryPort,
		PollInterval:      *pollInterval,
		HeartbeatInterval: *heartbeatInterval,
		Trainer:           trainer,
	})

	if err := a.Start(); err != nil {
		if errors.Is(err, agent.ErrRegistrationExhausted) {
			utils.Fatal("Could not register with coordinator, giving up: %v", err)
		}
		utils.Fatal("Agent failed to start: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	utils.Info("Received shutdown signal")

	// Let an in-flight training run finish before exiting
	a.Shutdown(30 * time.Second)

	utils.Info("Shutdown complete")
}
