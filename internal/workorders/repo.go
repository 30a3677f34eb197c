package workorders

import (
	"context"
	"time"
)

// Repo is the record store for issues and the work orders they belong to.
type Repo interface {
	FindIssuesByAsset(ctx context.Context, assetID string, since time.Time) ([]Issue, error)
	FindWorkOrdersByAsset(ctx context.Context, assetID string) ([]WorkOrder, error)
	GetWorkOrder(ctx context.Context, workOrderID string) (WorkOrder, error)
	// CreateWorkOrder inserts the work order and its originating issue. An
	// empty OrderID is assigned from the store sequence.
	CreateWorkOrder(ctx context.Context, wo WorkOrder, origin Issue) (WorkOrder, error)
	// AppendAndIncrement appends the note, increments the recurrence count and
	// records the issue in one step. It returns ErrConflict without applying
	// anything when the stored version differs from ExpectedVersion.
	AppendAndIncrement(ctx context.Context, c Consolidation) (WorkOrder, error)
}
