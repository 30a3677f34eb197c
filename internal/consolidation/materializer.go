package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"maintenance-backend/internal/shared/metrics"
	"maintenance-backend/internal/shared/telemetry"
	"maintenance-backend/internal/workorders"
)

// PlannedItem is one issue with its resolved action.
type PlannedItem struct {
	Issue    workorders.Issue
	Action   Action
	Priority workorders.Priority
}

// CommonFields apply to every work order created by one submission.
type CommonFields struct {
	ChecklistID string
	AssetID     string
	AssetName   string
	Description string
	RequestID   string
}

// Materializer writes a resolved plan to the record store, item by item.
type Materializer struct {
	Repo              workorders.Repo
	MaxUpdateAttempts int
	Now               func() time.Time
	NewID             func() string
	// NewBackOff returns a fresh policy for each retried item. BackOff
	// implementations are stateful.
	NewBackOff func() backoff.BackOff
}

// Apply executes the plan. A failing item never aborts its siblings: it is
// reported in the result and the batch continues.
func (m *Materializer) Apply(ctx context.Context, plan []PlannedItem, common CommonFields) SubmissionResult {
	result := SubmissionResult{
		WorkOrders:     []workorders.WorkOrder{},
		Consolidations: []ConsolidationRecord{},
		Items:          make([]ItemResult, 0, len(plan)),
		Warnings:       []Warning{},
	}
	touched := make(map[string]int)
	record := func(wo workorders.WorkOrder) {
		if idx, ok := touched[wo.ID]; ok {
			result.WorkOrders[idx] = wo
			return
		}
		touched[wo.ID] = len(result.WorkOrders)
		result.WorkOrders = append(result.WorkOrders, wo)
	}

	for _, item := range plan {
		itemResult := ItemResult{IssueID: item.Issue.ID, Action: item.Action.Kind}

		var (
			wo  workorders.WorkOrder
			err error
		)
		switch item.Action.Kind {
		case ActionConsolidate, ActionEscalate:
			wo, err = m.consolidate(ctx, item, common)
		default:
			wo, err = m.createNew(ctx, item, common)
		}

		if err != nil {
			itemResult.Status = ItemStatusFailed
			itemResult.WorkOrderID = item.Action.WorkOrderID
			itemResult.ErrorCode = failureCode(err)
			itemResult.Error = err.Error()
			itemResult.Retryable = !errors.Is(err, workorders.ErrNotFound) && !errors.Is(err, workorders.ErrDuplicate)
			result.Failed++
			result.Items = append(result.Items, itemResult)
			telemetry.Error("consolidation.materialization_failed", map[string]any{
				"request_id":    common.RequestID,
				"asset_id":      common.AssetID,
				"issue_id":      item.Issue.ID,
				"action":        string(item.Action.Kind),
				"work_order_id": item.Action.WorkOrderID,
				"error_code":    itemResult.ErrorCode,
				"error":         err.Error(),
			})
			continue
		}

		itemResult.Status = ItemStatusSucceeded
		itemResult.WorkOrderID = wo.ID
		itemResult.OrderID = wo.OrderID
		result.Items = append(result.Items, itemResult)
		record(wo)

		switch item.Action.Kind {
		case ActionConsolidate, ActionEscalate:
			escalated := item.Action.Kind == ActionEscalate
			if escalated {
				result.Escalated++
			} else {
				result.ConsolidatedIssues++
			}
			result.Consolidations = append(result.Consolidations, ConsolidationRecord{
				IssueID:         item.Issue.ID,
				WorkOrderID:     wo.ID,
				OrderID:         wo.OrderID,
				RecurrenceCount: wo.RecurrenceCount,
				Escalated:       escalated,
			})
		default:
			result.NewWorkOrders++
		}
	}

	result.Message = summaryMessage(result)
	return result
}

func (m *Materializer) createNew(ctx context.Context, item PlannedItem, common CommonFields) (workorders.WorkOrder, error) {
	now := m.now()
	priority := item.Priority
	if !priority.Valid() {
		priority = workorders.PriorityMedium
	}
	wo := workorders.WorkOrder{
		ID:              m.newID(),
		AssetID:         common.AssetID,
		AssetName:       common.AssetName,
		ChecklistID:     common.ChecklistID,
		SectionTitle:    item.Issue.SectionTitle,
		Description:     newOrderDescription(item.Issue, common.Description),
		Priority:        priority,
		Status:          workorders.StatusOpen,
		RecurrenceCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := m.Repo.CreateWorkOrder(ctx, wo, ledgerIssue(item.Issue, common, now))
	if err != nil {
		return workorders.WorkOrder{}, fmt.Errorf("create work order for issue %s: %w", item.Issue.ID, err)
	}
	return created, nil
}

// consolidate re-reads the target before every attempt so the note and the
// expected version always reflect the latest stored state.
func (m *Materializer) consolidate(ctx context.Context, item PlannedItem, common CommonFields) (workorders.WorkOrder, error) {
	escalate := item.Action.Kind == ActionEscalate
	attempts := m.MaxUpdateAttempts
	if attempts < 1 {
		attempts = 1
	}

	var updated workorders.WorkOrder
	attempt := 0
	op := func() error {
		attempt++
		current, err := m.Repo.GetWorkOrder(ctx, item.Action.WorkOrderID)
		if err != nil {
			return backoff.Permanent(err)
		}
		now := m.now()
		wo, err := m.Repo.AppendAndIncrement(ctx, workorders.Consolidation{
			WorkOrderID:     current.ID,
			ExpectedVersion: current.Version,
			Note:            recurrenceNote(current.RecurrenceCount+1, now, item.Issue, escalate),
			Escalate:        escalate,
			Issue:           ledgerIssue(item.Issue, common, now),
			At:              now,
		})
		if errors.Is(err, workorders.ErrConflict) {
			metrics.IncUpdateConflict()
			telemetry.Warn("consolidation.update_conflict", map[string]any{
				"request_id":    common.RequestID,
				"issue_id":      item.Issue.ID,
				"work_order_id": current.ID,
				"attempt":       attempt,
				"max_attempts":  attempts,
			})
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		updated = wo
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return workorders.WorkOrder{}, fmt.Errorf("consolidate issue %s into %s: %w", item.Issue.ID, item.Action.WorkOrderID, err)
	}
	return updated, nil
}

func (m *Materializer) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Materializer) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func (m *Materializer) newBackOff() backoff.BackOff {
	if m.NewBackOff != nil {
		return m.NewBackOff()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	return bo
}

// ledgerIssue is the issue as recorded in the store.
func ledgerIssue(issue workorders.Issue, common CommonFields, now time.Time) workorders.Issue {
	issue.AssetID = common.AssetID
	if issue.ChecklistID == "" {
		issue.ChecklistID = common.ChecklistID
	}
	if issue.ReportedAt.IsZero() {
		issue.ReportedAt = now
	}
	issue.WorkOrderID = ""
	issue.ConsolidatedInto = ""
	return issue
}

// newOrderDescription keeps the issue text on the first line so later
// matching can tell it apart from notes and recurrence entries.
func newOrderDescription(issue workorders.Issue, common string) string {
	var b strings.Builder
	b.WriteString(singleLine(issue.Description))
	if notes := strings.TrimSpace(issue.Notes); notes != "" {
		b.WriteString("\n\nNotas: ")
		b.WriteString(notes)
	}
	if common = strings.TrimSpace(common); common != "" {
		b.WriteString("\n\n")
		b.WriteString(common)
	}
	return b.String()
}

func recurrenceNote(k int, at time.Time, issue workorders.Issue, escalate bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n[Recurrencia #%d %s] %s", k, at.UTC().Format(time.RFC3339), singleLine(issue.Description))
	if section := strings.TrimSpace(issue.SectionTitle); section != "" {
		fmt.Fprintf(&b, " (Sección: %s)", section)
	}
	if escalate {
		b.WriteString(" [Escalada a prioridad Alta]")
	}
	return b.String()
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, workorders.ErrConflict):
		return ErrorCodeUpdateConflict
	case errors.Is(err, workorders.ErrNotFound):
		return ErrorCodeWorkOrderNotFound
	case errors.Is(err, workorders.ErrDuplicate):
		return ErrorCodeDuplicate
	default:
		return ErrorCodeMaterialization
	}
}

func summaryMessage(r SubmissionResult) string {
	var parts []string
	if r.NewWorkOrders > 0 {
		parts = append(parts, plural(r.NewWorkOrders, "orden de trabajo creada", "órdenes de trabajo creadas"))
	}
	if r.ConsolidatedIssues > 0 {
		parts = append(parts, plural(r.ConsolidatedIssues, "incidencia consolidada", "incidencias consolidadas"))
	}
	if r.Escalated > 0 {
		parts = append(parts, plural(r.Escalated, "incidencia escalada a prioridad Alta", "incidencias escaladas a prioridad Alta"))
	}
	msg := "No se generaron órdenes de trabajo."
	if len(parts) > 0 {
		msg = joinSpanish(parts) + "."
	}
	if r.Failed > 0 {
		msg += " " + plural(r.Failed, "incidencia no pudo procesarse; puede reintentarse.", "incidencias no pudieron procesarse; pueden reintentarse.")
	}
	return msg
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func joinSpanish(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " y " + parts[len(parts)-1]
}
