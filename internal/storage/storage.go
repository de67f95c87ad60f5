package storage

import (
	"context"

	"github.com/mstrand/trainfleet/internal/models"
)

// ResultStore is the durable, append-only history of reported job results.
// It is an audit log: the in-memory queue and registry remain the source of
// truth for live coordination, and nothing is ever read back from here to
// rebuild state after a restart.
type ResultStore interface {
	Append(ctx context.Context, result *models.JobResult) error
	Recent(ctx context.Context, limit int) ([]*models.JobResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
