package workorders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu         sync.RWMutex
	workOrders map[string]WorkOrder
	issues     map[string][]Issue // assetId -> issues
	seq        int64
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		workOrders: make(map[string]WorkOrder),
		issues:     make(map[string][]Issue),
	}
}

// FindIssuesByAsset returns issues reported on the asset at or after since, newest first.
func (r *MemoryRepo) FindIssuesByAsset(ctx context.Context, assetID string, since time.Time) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Issue, 0, len(r.issues[assetID]))
	for _, issue := range r.issues[assetID] {
		if issue.ReportedAt.Before(since) {
			continue
		}
		out = append(out, issue)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReportedAt.After(out[j].ReportedAt)
	})
	return out, nil
}

// FindWorkOrdersByAsset returns the asset's work orders, most recently updated first.
func (r *MemoryRepo) FindWorkOrdersByAsset(ctx context.Context, assetID string) ([]WorkOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []WorkOrder
	for _, wo := range r.workOrders {
		if wo.AssetID == assetID {
			out = append(out, wo)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// GetWorkOrder returns a work order by ID.
func (r *MemoryRepo) GetWorkOrder(ctx context.Context, workOrderID string) (WorkOrder, error) {
	if err := ctx.Err(); err != nil {
		return WorkOrder{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	wo, ok := r.workOrders[workOrderID]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	return wo, nil
}

// CreateWorkOrder stores a new work order and its originating issue.
func (r *MemoryRepo) CreateWorkOrder(ctx context.Context, wo WorkOrder, origin Issue) (WorkOrder, error) {
	if err := ctx.Err(); err != nil {
		return WorkOrder{}, err
	}
	if wo.Status == "" {
		wo.Status = StatusOpen
	}
	if wo.RecurrenceCount == 0 {
		wo.RecurrenceCount = 1
	}
	if wo.UpdatedAt.IsZero() {
		wo.UpdatedAt = wo.CreatedAt
	}
	if err := wo.Validate(); err != nil {
		return WorkOrder{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workOrders[wo.ID]; exists {
		return WorkOrder{}, fmt.Errorf("work order %s already exists", wo.ID)
	}
	r.seq++
	if wo.OrderID == "" {
		wo.OrderID = FormatOrderID(r.seq)
	}
	wo.Version = 1
	r.workOrders[wo.ID] = wo
	if origin.ID != "" {
		origin.WorkOrderID = wo.ID
		r.issues[origin.AssetID] = append(r.issues[origin.AssetID], origin)
	}
	return wo, nil
}

// AppendAndIncrement applies a consolidation if the version still matches.
func (r *MemoryRepo) AppendAndIncrement(ctx context.Context, c Consolidation) (WorkOrder, error) {
	if err := ctx.Err(); err != nil {
		return WorkOrder{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wo, ok := r.workOrders[c.WorkOrderID]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	if wo.Version != c.ExpectedVersion {
		return WorkOrder{}, ErrConflict
	}
	wo.Description += c.Note
	wo.RecurrenceCount++
	if c.Escalate {
		wo.Priority = PriorityHigh
	}
	wo.UpdatedAt = c.At
	wo.Version++
	r.workOrders[wo.ID] = wo

	if c.Issue.ID != "" {
		issue := c.Issue
		issue.WorkOrderID = wo.ID
		issue.ConsolidatedInto = wo.ID
		r.issues[issue.AssetID] = append(r.issues[issue.AssetID], issue)
	}
	return wo, nil
}

// FormatOrderID renders the human-readable code for a sequence number.
func FormatOrderID(seq int64) string {
	return fmt.Sprintf("OT-%d", seq)
}

var _ Repo = (*MemoryRepo)(nil)
