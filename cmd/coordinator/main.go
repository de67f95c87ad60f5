package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstrand/trainfleet/internal/api"
	"github.com/mstrand/trainfleet/internal/coordinator"
	"github.com/mstrand/trainfleet/internal/discovery"
	"github.com/mstrand/trainfleet/internal/storage"
	"github.com/mstrand/trainfleet/pkg/utils"
)

func main() {
	cfg := utils.LoadConfig()

	// Parse command-line flags; defaults come from the environment
	var (
		host          = flag.String("host", cfg.CoordinatorHost, "API server host")
		port          = flag.Int("port", cfg.CoordinatorPort, "API server port")
		historyPath   = flag.String("history", cfg.HistoryPath, "Result history database path")
		discoveryPort = flag.Int("discovery-port", cfg.DiscoveryPort, "UDP discovery port")
		broadcastAddr = flag.String("broadcast", cfg.DiscoveryBroadcast, "Discovery broadcast address")
		seedSamples   = flag.Bool("seed-samples", false, "Enqueue the built-in sample training jobs on startup")
		logLevel      = flag.String("log-level", cfg.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	)

	flag.Parse()

	utils.SetDefaultLogLevel(utils.ParseLevel(*logLevel))

	utils.Info("Starting training fleet coordinator")
	utils.Info("API Server: %s:%d", *host, *port)
	utils.Info("Result history: %s", *historyPath)

	// Initialize the result history store
	history, err := storage.NewSQLiteStore(*historyPath)
	if err != nil {
		utils.Fatal("Failed to initialize result history: %v", err)
	}
	defer history.Close()

	utils.Info("Result history initialized successfully")

	// Create coordinator
	coord := coordinator.New(coordinator.Config{
		History:         history,
		LivenessTimeout: cfg.LivenessTimeout,
		ReapInterval:    cfg.ReapInterval,
	})

	if *seedSamples {
		coord.SeedSampleJobs()
		utils.Info("Seeded sample training jobs")
	}

	coord.Start()

	// Probe the network once at startup so the status of an already-running
	// fleet shows up without waiting for workers to poll.
	scanner := discovery.NewScanner(*broadcastAddr, *discoveryPort, cfg.DiscoveryWindow)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DiscoveryWindow+time.Second)
		defer cancel()

		found, err := scanner.Scan(ctx)
		if err != nil {
			utils.Warn("Startup discovery scan failed: %v", err)
			return
		}
		utils.Info("Startup discovery found %d worker(s)", len(found))
	}()

	// Create API server
	addr := fmt.Sprintf("%s:%d", *host, *port)
	apiServer := api.NewServer(api.Config{
		Coordinator: coord,
		Scanner:     scanner,
		History:     history,
		Addr:        addr,
	})

	// Start API server in goroutine
	go func() {
		if err := apiServer.Start(); err != nil {
			utils.Error("API server error: %v", err)
		}
	}()

	utils.Info("Coordinator started successfully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	utils.Info("Received shutdown signal")

	// Graceful shutdown
	utils.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		utils.Error("API server shutdown error: %v", err)
	}

	coord.Stop()

	utils.Info("Shutdown complete")
}
