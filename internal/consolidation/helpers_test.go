package consolidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"maintenance-backend/internal/workorders"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestService(t *testing.T, repo workorders.Repo) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxUpdateAttempts = 10
	svc, err := NewService(repo, cfg)
	require.NoError(t, err)
	svc.Materializer.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return svc.WithClock(fixedClock)
}

func seedWorkOrder(t *testing.T, repo workorders.Repo, wo workorders.WorkOrder) workorders.WorkOrder {
	t.Helper()
	if wo.Priority == "" {
		wo.Priority = workorders.PriorityMedium
	}
	if wo.CreatedAt.IsZero() {
		wo.CreatedAt = testNow
	}
	created, err := repo.CreateWorkOrder(context.Background(), wo, workorders.Issue{})
	require.NoError(t, err)
	return created
}

func issue(id, description string) workorders.Issue {
	return workorders.Issue{ID: id, Description: description, Status: workorders.IssueFail}
}

// flakyRepo wraps a MemoryRepo and injects lookup failures and conflicts.
type flakyRepo struct {
	*workorders.MemoryRepo

	mu           sync.Mutex
	failLookups  bool
	conflicts    int
	appendErr    error
	createErr    error
	createFailOn string
	appendCalls  int
}

func (r *flakyRepo) FindWorkOrdersByAsset(ctx context.Context, assetID string) ([]workorders.WorkOrder, error) {
	r.mu.Lock()
	fail := r.failLookups
	r.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return r.MemoryRepo.FindWorkOrdersByAsset(ctx, assetID)
}

func (r *flakyRepo) CreateWorkOrder(ctx context.Context, wo workorders.WorkOrder, origin workorders.Issue) (workorders.WorkOrder, error) {
	r.mu.Lock()
	err := r.createErr
	failOn := r.createFailOn
	r.mu.Unlock()
	if err != nil && (failOn == "" || failOn == origin.ID) {
		return workorders.WorkOrder{}, err
	}
	return r.MemoryRepo.CreateWorkOrder(ctx, wo, origin)
}

func (r *flakyRepo) AppendAndIncrement(ctx context.Context, c workorders.Consolidation) (workorders.WorkOrder, error) {
	r.mu.Lock()
	r.appendCalls++
	if r.appendErr != nil {
		err := r.appendErr
		r.mu.Unlock()
		return workorders.WorkOrder{}, err
	}
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return workorders.WorkOrder{}, workorders.ErrConflict
	}
	r.mu.Unlock()
	return r.MemoryRepo.AppendAndIncrement(ctx, c)
}
