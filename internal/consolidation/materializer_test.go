package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-backend/internal/workorders"
)

func newTestMaterializer(repo workorders.Repo, attempts int) *Materializer {
	return &Materializer{
		Repo:              repo,
		MaxUpdateAttempts: attempts,
		Now:               fixedClock,
		NewBackOff:        func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

var pumpFields = CommonFields{ChecklistID: "chk-1", AssetID: "PUMP-01", AssetName: "Bomba principal"}

func TestApplyCreatesOneWorkOrderPerIssue(t *testing.T) {
	repo := workorders.NewMemoryRepo()
	in := issue("i-1", "Fuga de aceite")
	in.Notes = "Mancha bajo la bomba"
	in.SectionTitle = "Motor"

	result := newTestMaterializer(repo, 3).Apply(context.Background(), []PlannedItem{
		{Issue: in, Action: Action{Kind: ActionCreateNew}, Priority: workorders.PriorityHigh},
		{Issue: issue("i-2", "Correa floja"), Action: Action{Kind: ActionCreateNew}},
	}, CommonFields{ChecklistID: "chk-1", AssetID: "PUMP-01", AssetName: "Bomba principal", Description: "Inspección semanal"})

	require.Equal(t, 2, result.NewWorkOrders)
	require.Len(t, result.WorkOrders, 2)
	first := result.WorkOrders[0]
	assert.Equal(t, "OT-1", first.OrderID)
	assert.Equal(t, workorders.PriorityHigh, first.Priority)
	assert.Equal(t, 1, first.RecurrenceCount)
	assert.Equal(t, "Motor", first.SectionTitle)
	assert.Equal(t, "Bomba principal", first.AssetName)
	assert.Equal(t, "Fuga de aceite", first.Head())
	assert.Contains(t, first.Description, "Notas: Mancha bajo la bomba")
	assert.Contains(t, first.Description, "Inspección semanal")
	assert.Equal(t, workorders.PriorityMedium, result.WorkOrders[1].Priority)

	issues, err := repo.FindIssuesByAsset(context.Background(), "PUMP-01", testNow.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, issues, 2)
	for _, recorded := range issues {
		assert.NotEmpty(t, recorded.WorkOrderID)
		assert.Empty(t, recorded.ConsolidatedInto)
		assert.Equal(t, "chk-1", recorded.ChecklistID)
	}
}

func TestApplyConsolidatesAndEscalates(t *testing.T) {
	repo := workorders.NewMemoryRepo()
	wo := seedWorkOrder(t, repo, workorders.WorkOrder{ID: "wo-1", AssetID: "PUMP-01", Description: "Fuga de aceite", Priority: workorders.PriorityLow})

	in := issue("i-1", "Fuga de aceite en motor")
	in.SectionTitle = "Motor"
	result := newTestMaterializer(repo, 3).Apply(context.Background(), []PlannedItem{
		{Issue: in, Action: Action{Kind: ActionConsolidate, WorkOrderID: wo.ID}},
		{Issue: issue("i-2", "Fuga de aceite"), Action: Action{Kind: ActionEscalate, WorkOrderID: wo.ID}},
	}, pumpFields)

	assert.Equal(t, 1, result.ConsolidatedIssues)
	assert.Equal(t, 1, result.Escalated)
	require.Len(t, result.WorkOrders, 1, "a work order touched twice is reported once")
	touched := result.WorkOrders[0]
	assert.Equal(t, 3, touched.RecurrenceCount)
	assert.Equal(t, workorders.PriorityHigh, touched.Priority)
	assert.Contains(t, touched.Description, "[Recurrencia #2 2026-03-10T12:00:00Z] Fuga de aceite en motor (Sección: Motor)")
	assert.Contains(t, touched.Description, "[Recurrencia #3 2026-03-10T12:00:00Z] Fuga de aceite [Escalada a prioridad Alta]")
	assert.Equal(t, "Fuga de aceite", touched.Head())

	require.Len(t, result.Consolidations, 2)
	assert.Equal(t, ConsolidationRecord{IssueID: "i-1", WorkOrderID: "wo-1", OrderID: "OT-1", RecurrenceCount: 2}, result.Consolidations[0])
	assert.Equal(t, ConsolidationRecord{IssueID: "i-2", WorkOrderID: "wo-1", OrderID: "OT-1", RecurrenceCount: 3, Escalated: true}, result.Consolidations[1])

	issues, err := repo.FindIssuesByAsset(context.Background(), "PUMP-01", testNow.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, issues, 2)
	for _, recorded := range issues {
		assert.Equal(t, "wo-1", recorded.ConsolidatedInto)
	}
}

func TestApplyRetriesConflicts(t *testing.T) {
	repo := &flakyRepo{MemoryRepo: workorders.NewMemoryRepo(), conflicts: 2}
	wo := seedWorkOrder(t, repo, workorders.WorkOrder{ID: "wo-1", AssetID: "PUMP-01", Description: "Fuga de aceite"})

	result := newTestMaterializer(repo, 3).Apply(context.Background(), []PlannedItem{
		{Issue: issue("i-1", "Fuga de aceite"), Action: Action{Kind: ActionConsolidate, WorkOrderID: wo.ID}},
	}, pumpFields)

	assert.Equal(t, 1, result.ConsolidatedIssues)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, repo.appendCalls)
	assert.Equal(t, 2, result.WorkOrders[0].RecurrenceCount)
}

func TestApplyReportsExhaustedConflictAsRetryableFailure(t *testing.T) {
	repo := &flakyRepo{MemoryRepo: workorders.NewMemoryRepo(), conflicts: 10}
	wo := seedWorkOrder(t, repo, workorders.WorkOrder{ID: "wo-1", AssetID: "PUMP-01", Description: "Fuga de aceite"})

	result := newTestMaterializer(repo, 3).Apply(context.Background(), []PlannedItem{
		{Issue: issue("i-1", "Fuga de aceite"), Action: Action{Kind: ActionConsolidate, WorkOrderID: wo.ID}},
		{Issue: issue("i-2", "Correa floja"), Action: Action{Kind: ActionCreateNew}},
	}, pumpFields)

	assert.Equal(t, 3, repo.appendCalls)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.NewWorkOrders, "a failed item does not block its siblings")
	require.Len(t, result.Items, 2)
	failed := result.Items[0]
	assert.Equal(t, ItemStatusFailed, failed.Status)
	assert.Equal(t, ErrorCodeUpdateConflict, failed.ErrorCode)
	assert.True(t, failed.Retryable)
	assert.Equal(t, "wo-1", failed.WorkOrderID)
	assert.Equal(t, []string{"i-1"}, result.FailedIssueIDs())

	current, err := repo.GetWorkOrder(context.Background(), wo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.RecurrenceCount, "nothing is partially applied")
}

func TestApplyMissingTargetIsNotRetryable(t *testing.T) {
	repo := workorders.NewMemoryRepo()
	result := newTestMaterializer(repo, 3).Apply(context.Background(), []PlannedItem{
		{Issue: issue("i-1", "Fuga de aceite"), Action: Action{Kind: ActionConsolidate, WorkOrderID: "missing"}},
	}, pumpFields)

	require.Equal(t, 1, result.Failed)
	assert.Equal(t, ErrorCodeWorkOrderNotFound, result.Items[0].ErrorCode)
	assert.False(t, result.Items[0].Retryable)
	assert.Empty(t, result.WorkOrders)
}

func TestApplyDuplicateLedgerRowIsNotRetryable(t *testing.T) {
	repo := &flakyRepo{MemoryRepo: workorders.NewMemoryRepo(), appendErr: fmt.Errorf("insert issue: %w", workorders.ErrDuplicate)}
	wo := seedWorkOrder(t, repo, workorders.WorkOrder{ID: "wo-1", AssetID: "PUMP-01", Description: "Fuga de aceite"})

	result := newTestMaterializer(repo, 3).Apply(context.Background(), []PlannedItem{
		{Issue: issue("item-7", "Fuga de aceite"), Action: Action{Kind: ActionConsolidate, WorkOrderID: wo.ID}},
	}, pumpFields)

	require.Equal(t, 1, result.Failed)
	assert.Equal(t, ErrorCodeDuplicate, result.Items[0].ErrorCode)
	assert.False(t, result.Items[0].Retryable)
	assert.Equal(t, 1, repo.appendCalls, "a duplicate is not retried")
}

func TestApplyStoreErrorIsReportedPerItem(t *testing.T) {
	repo := &flakyRepo{MemoryRepo: workorders.NewMemoryRepo(), createErr: errors.New("disk full"), createFailOn: "i-2"}
	result := newTestMaterializer(repo, 3).Apply(context.Background(), []PlannedItem{
		{Issue: issue("i-1", "Fuga de aceite"), Action: Action{Kind: ActionCreateNew}},
		{Issue: issue("i-2", "Correa floja"), Action: Action{Kind: ActionCreateNew}},
		{Issue: issue("i-3", "Ruido en rodamiento"), Action: Action{Kind: ActionCreateNew}},
	}, pumpFields)

	assert.Equal(t, 2, result.NewWorkOrders)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, ErrorCodeMaterialization, result.Items[1].ErrorCode)
	assert.True(t, result.Items[1].Retryable)
	assert.Contains(t, result.Items[1].Error, "disk full")
	assert.Equal(t, len(result.Items), result.NewWorkOrders+result.ConsolidatedIssues+result.Escalated+result.Failed)
}

func TestRecurrenceNote(t *testing.T) {
	in := issue("i-1", "Fuga\nde aceite")
	note := recurrenceNote(4, testNow, in, false)
	assert.Equal(t, "\n\n[Recurrencia #4 2026-03-10T12:00:00Z] Fuga de aceite", note)
	assert.True(t, strings.HasSuffix(recurrenceNote(4, testNow, in, true), " [Escalada a prioridad Alta]"))
}

func TestSummaryMessage(t *testing.T) {
	assert.Equal(t, "No se generaron órdenes de trabajo.", summaryMessage(SubmissionResult{}))
	assert.Equal(t, "1 orden de trabajo creada.", summaryMessage(SubmissionResult{NewWorkOrders: 1}))
	assert.Equal(t,
		"3 órdenes de trabajo creadas, 2 incidencias consolidadas y 1 incidencia escalada a prioridad Alta. 1 incidencia no pudo procesarse; puede reintentarse.",
		summaryMessage(SubmissionResult{NewWorkOrders: 3, ConsolidatedIssues: 2, Escalated: 1, Failed: 1}))
}
