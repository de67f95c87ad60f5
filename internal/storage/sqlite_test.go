package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mstrand/trainfleet/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	result := &models.JobResult{
		JobID:         "job_20250101_120000_001",
		WorkerAddress: "10.0.0.5",
		WorkerName:    "gpu-box",
		Success:       true,
		Metrics:       map[string]float64{"training_time_seconds": 312.5, "reward": 87.2},
		ModelRef:      "models/ppo_20250101.zip",
		CompletedAt:   time.Now(),
	}

	if err := store.Append(ctx, result); err != nil {
		t.Fatalf("Failed to append result: %v", err)
	}

	results, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to read recent results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.JobID != result.JobID || got.WorkerAddress != result.WorkerAddress || got.WorkerName != result.WorkerName {
		t.Errorf("Result attribution doesn't match. Got %+v, want %+v", got, result)
	}
	if !got.Success {
		t.Error("Success flag lost")
	}
	if got.Metrics["reward"] != 87.2 {
		t.Errorf("Metrics don't roundtrip: %+v", got.Metrics)
	}
	if got.ModelRef != result.ModelRef {
		t.Errorf("Expected model ref %s, got %s", result.ModelRef, got.ModelRef)
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := &models.JobResult{
			JobID:         fmt.Sprintf("job-%d", i),
			WorkerAddress: "10.0.0.5",
			CompletedAt:   time.Now(),
		}
		if err := store.Append(ctx, result); err != nil {
			t.Fatalf("Failed to append result %d: %v", i, err)
		}
	}

	results, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Failed to read recent results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	// Most recent insertion first
	for i, want := range []string{"job-4", "job-3", "job-2"} {
		if results[i].JobID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, results[i].JobID)
		}
	}
}

func TestFailedResultRoundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	result := &models.JobResult{
		JobID:         "job-fail",
		WorkerAddress: "10.0.0.5",
		Success:       false,
		Error:         "exit status 1: CUDA out of memory",
		CompletedAt:   time.Now(),
	}

	if err := store.Append(ctx, result); err != nil {
		t.Fatalf("Failed to append result: %v", err)
	}

	results, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to read recent results: %v", err)
	}
	if results[0].Success {
		t.Error("Failure recorded as success")
	}
	if results[0].Error != result.Error {
		t.Errorf("Expected error %q, got %q", result.Error, results[0].Error)
	}
	if len(results[0].Metrics) != 0 {
		t.Errorf("Expected no metrics, got %+v", results[0].Metrics)
	}
}

func TestCount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count results: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty store, got %d results", count)
	}

	for i := 0; i < 4; i++ {
		result := &models.JobResult{
			JobID:         fmt.Sprintf("job-%d", i),
			WorkerAddress: "10.0.0.5",
			CompletedAt:   time.Now(),
		}
		if err := store.Append(ctx, result); err != nil {
			t.Fatalf("Failed to append result: %v", err)
		}
	}

	count, err = store.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count results: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected 4 results, got %d", count)
	}
}
