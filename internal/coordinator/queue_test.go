package coordinator

import (
	"testing"

	"github.com/mstrand/trainfleet/internal/models"
)

func TestQueueFIFOOrder(t *testing.T) {
	queue := NewJobQueue()

	// Enqueue three jobs
	for _, id := range []string{"job-a", "job-b", "job-c"} {
		queue.Enqueue(&models.Job{ID: id})
	}

	// Lease must return them in submission order
	for _, want := range []string{"job-a", "job-b", "job-c"} {
		job, ok := queue.Lease()
		if !ok {
			t.Fatalf("Expected a job, queue reported empty")
		}
		if job.ID != want {
			t.Errorf("Expected job %s, got %s", want, job.ID)
		}
	}

	if _, ok := queue.Lease(); ok {
		t.Error("Expected empty queue after draining")
	}
}

func TestQueueLeaseEmpty(t *testing.T) {
	queue := NewJobQueue()

	job, ok := queue.Lease()
	if ok {
		t.Errorf("Expected no job from empty queue, got %v", job)
	}
	if job != nil {
		t.Errorf("Expected nil job from empty queue, got %v", job)
	}
}

func TestQueuePushFrontRestoresOrder(t *testing.T) {
	queue := NewJobQueue()
	queue.Enqueue(&models.Job{ID: "job-a"})
	queue.Enqueue(&models.Job{ID: "job-b"})

	job, ok := queue.Lease()
	if !ok || job.ID != "job-a" {
		t.Fatalf("Expected to lease job-a, got %v", job)
	}

	// Undo the lease; the job must come back at the head, not the tail
	queue.pushFront(job)

	job, ok = queue.Lease()
	if !ok || job.ID != "job-a" {
		t.Errorf("Expected job-a back at the head, got %v", job)
	}
}

func TestQueueCompletedLog(t *testing.T) {
	queue := NewJobQueue()

	queue.RecordCompletion(&models.JobResult{JobID: "job-a", Success: true})
	queue.RecordCompletion(&models.JobResult{JobID: "job-b", Success: false})

	if queue.CompletedCount() != 2 {
		t.Errorf("Expected 2 completed results, got %d", queue.CompletedCount())
	}

	completed := queue.Completed()
	if len(completed) != 2 {
		t.Fatalf("Expected 2 results in log, got %d", len(completed))
	}
	if completed[0].JobID != "job-a" || completed[1].JobID != "job-b" {
		t.Errorf("Completed log out of order: %s, %s", completed[0].JobID, completed[1].JobID)
	}
}

func TestQueuePendingSnapshot(t *testing.T) {
	queue := NewJobQueue()
	queue.Enqueue(&models.Job{ID: "job-a"})

	pending := queue.Pending()
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending job, got %d", len(pending))
	}

	// Mutating the snapshot must not affect the queue
	pending[0] = nil
	if queue.PendingCount() != 1 {
		t.Error("Snapshot mutation leaked into the queue")
	}
	if job, ok := queue.Lease(); !ok || job == nil || job.ID != "job-a" {
		t.Errorf("Expected job-a still leasable, got %v", job)
	}
}
