package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/mstrand/trainfleet/internal/models"
)

func TestRegistryUpsertAndGet(t *testing.T) {
	registry := NewWorkerRegistry()

	caps := models.Capabilities{CPUCores: 8, Platform: "linux"}
	worker := registry.Upsert("10.0.0.5", "gpu-box", caps)

	if worker.Address != "10.0.0.5" {
		t.Errorf("Expected address 10.0.0.5, got %s", worker.Address)
	}
	if worker.Status != models.WorkerStatusIdle {
		t.Errorf("Expected new worker to be idle, got %s", worker.Status)
	}

	stored, ok := registry.Get("10.0.0.5")
	if !ok {
		t.Fatal("Expected worker to be retrievable")
	}
	if stored.Hostname != "gpu-box" || stored.Capabilities.CPUCores != 8 {
		t.Errorf("Stored worker doesn't match. Got %+v", stored)
	}
}

func TestRegistryReRegisterPreservesRegisteredAt(t *testing.T) {
	registry := NewWorkerRegistry()

	first := registry.Upsert("10.0.0.5", "gpu-box", models.Capabilities{})
	time.Sleep(10 * time.Millisecond)
	second := registry.Upsert("10.0.0.5", "gpu-box-renamed", models.Capabilities{CPUCores: 16})

	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Errorf("Re-registration changed RegisteredAt: %v vs %v", second.RegisteredAt, first.RegisteredAt)
	}
	if !second.LastSeen.After(first.LastSeen) {
		t.Error("Re-registration should refresh LastSeen")
	}
	if second.Hostname != "gpu-box-renamed" || second.Capabilities.CPUCores != 16 {
		t.Errorf("Re-registration should replace the record wholesale, got %+v", second)
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 worker after re-registration, got %d", registry.Count())
	}
}

func TestRegistryTouchUnknownWorker(t *testing.T) {
	registry := NewWorkerRegistry()

	err := registry.Touch("10.0.0.99", models.WorkerStatusIdle, "")
	if !errors.Is(err, models.ErrUnknownWorker) {
		t.Errorf("Expected ErrUnknownWorker, got %v", err)
	}
}

func TestRegistryTouchUpdatesStatus(t *testing.T) {
	registry := NewWorkerRegistry()
	registry.Upsert("10.0.0.5", "gpu-box", models.Capabilities{})

	before, _ := registry.Get("10.0.0.5")
	time.Sleep(10 * time.Millisecond)

	if err := registry.Touch("10.0.0.5", models.WorkerStatusTraining, "job-a"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	after, _ := registry.Get("10.0.0.5")
	if after.Status != models.WorkerStatusTraining {
		t.Errorf("Expected status training, got %s", after.Status)
	}
	if after.Progress != "job-a" {
		t.Errorf("Expected progress job-a, got %s", after.Progress)
	}
	if !after.LastSeen.After(before.LastSeen) {
		t.Error("Touch should refresh LastSeen")
	}

	// An empty status keeps the prior one
	if err := registry.Touch("10.0.0.5", "", ""); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	kept, _ := registry.Get("10.0.0.5")
	if kept.Status != models.WorkerStatusTraining {
		t.Errorf("Empty status should not overwrite, got %s", kept.Status)
	}
}

func TestRegistryAssignAndRelease(t *testing.T) {
	registry := NewWorkerRegistry()
	registry.Upsert("10.0.0.5", "gpu-box", models.Capabilities{})

	if err := registry.Assign("10.0.0.5", "job-a"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	worker, _ := registry.Get("10.0.0.5")
	if worker.CurrentJobID != "job-a" || worker.Status != models.WorkerStatusTraining {
		t.Errorf("Expected training on job-a, got status=%s job=%s", worker.Status, worker.CurrentJobID)
	}

	registry.Release("10.0.0.5")

	worker, _ = registry.Get("10.0.0.5")
	if worker.CurrentJobID != "" || worker.Status != models.WorkerStatusIdle {
		t.Errorf("Expected idle with no job after release, got status=%s job=%s", worker.Status, worker.CurrentJobID)
	}
}

func TestRegistryAssignUnknownWorker(t *testing.T) {
	registry := NewWorkerRegistry()

	if err := registry.Assign("10.0.0.99", "job-a"); !errors.Is(err, models.ErrUnknownWorker) {
		t.Errorf("Expected ErrUnknownWorker, got %v", err)
	}
}

func TestRegistryReleaseUnknownWorkerIsNoOp(t *testing.T) {
	registry := NewWorkerRegistry()

	// Must not panic or create an entry
	registry.Release("10.0.0.99")

	if registry.Count() != 0 {
		t.Errorf("Release of unknown worker created an entry, count=%d", registry.Count())
	}
}

func TestRegistryEvict(t *testing.T) {
	registry := NewWorkerRegistry()
	registry.Upsert("10.0.0.5", "gpu-box", models.Capabilities{})

	evicted, ok := registry.Evict("10.0.0.5")
	if !ok {
		t.Fatal("Expected eviction to succeed")
	}
	if evicted.Hostname != "gpu-box" {
		t.Errorf("Expected evicted copy of gpu-box, got %+v", evicted)
	}

	if _, ok := registry.Get("10.0.0.5"); ok {
		t.Error("Worker still present after eviction")
	}
	if _, ok := registry.Evict("10.0.0.5"); ok {
		t.Error("Second eviction should report a miss")
	}
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	registry := NewWorkerRegistry()
	registry.Upsert("10.0.0.5", "gpu-box", models.Capabilities{})

	snapshot := registry.Snapshot()
	snapshot["10.0.0.5"].Hostname = "tampered"

	stored, _ := registry.Get("10.0.0.5")
	if stored.Hostname != "gpu-box" {
		t.Errorf("Snapshot mutation leaked into the registry: %s", stored.Hostname)
	}
}
