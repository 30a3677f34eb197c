package consolidation

import (
	"fmt"
	"strings"

	"maintenance-backend/internal/workorders"
)

const (
	PriorityModeGlobal     = "global"
	PriorityModeIndividual = "individual"

	maxItemsPerSubmission = 200
)

// CheckSimilarRequest asks for matches without writing anything. WindowDays
// of 0 uses the configured window; a preview run with another window should
// pass the same value to GenerateWorkOrdersRequest so both see the same matches.
type CheckSimilarRequest struct {
	AssetID    string             `json:"assetId"`
	Items      []workorders.Issue `json:"items"`
	WindowDays int                `json:"windowDays,omitempty"`
}

// SimilarIssueResult pairs one submitted issue with its matches.
type SimilarIssueResult struct {
	Issue           workorders.Issue `json:"issue"`
	Matches         []Match          `json:"matches"`
	SuggestedChoice Choice           `json:"suggestedChoice"`
	Annotation
}

// CheckSimilarResponse lists one result per submitted item, in order.
type CheckSimilarResponse struct {
	Results  []SimilarIssueResult `json:"results"`
	Warnings []Warning            `json:"warnings"`
}

// GenerateWorkOrdersRequest is one checklist submission for one asset.
// WindowDays overrides the configured consolidation window when positive.
type GenerateWorkOrdersRequest struct {
	ChecklistID          string                         `json:"checklistId"`
	AssetID              string                         `json:"assetId"`
	AssetName            string                         `json:"assetName,omitempty"`
	Items                []workorders.Issue             `json:"items"`
	PriorityMode         string                         `json:"priorityMode,omitempty"`
	GlobalPriority       workorders.Priority            `json:"globalPriority,omitempty"`
	PerItemPriority      map[string]workorders.Priority `json:"perItemPriority,omitempty"`
	Description          string                         `json:"description,omitempty"`
	ConsolidationChoices map[string]Choice              `json:"consolidationChoices,omitempty"`
	WindowDays           int                            `json:"windowDays,omitempty"`
}

// Warning is a non-fatal problem attached to one issue.
type Warning struct {
	IssueID string `json:"issueId"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ConsolidationRecord reports one issue merged into an existing work order.
type ConsolidationRecord struct {
	IssueID         string `json:"issueId"`
	WorkOrderID     string `json:"workOrderId"`
	OrderID         string `json:"orderId"`
	RecurrenceCount int    `json:"recurrenceCount"`
	Escalated       bool   `json:"escalated"`
}

const (
	ItemStatusSucceeded = "succeeded"
	ItemStatusFailed    = "failed"
)

// ItemResult is the per-issue outcome, so callers can retry only failures.
type ItemResult struct {
	IssueID     string     `json:"issueId"`
	Action      ActionKind `json:"action"`
	Status      string     `json:"status"`
	WorkOrderID string     `json:"workOrderId,omitempty"`
	OrderID     string     `json:"orderId,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Error       string     `json:"error,omitempty"`
	Retryable   bool       `json:"retryable,omitempty"`
}

// SubmissionResult is the outcome of one submission.
type SubmissionResult struct {
	NewWorkOrders      int                    `json:"newWorkOrders"`
	ConsolidatedIssues int                    `json:"consolidatedIssues"`
	Escalated          int                    `json:"escalated"`
	Failed             int                    `json:"failed"`
	WorkOrders         []workorders.WorkOrder `json:"workOrders"`
	Consolidations     []ConsolidationRecord  `json:"consolidations"`
	Items              []ItemResult           `json:"items"`
	Warnings           []Warning              `json:"warnings"`
	Message            string                 `json:"message"`
}

// FailedIssueIDs returns the ids of items whose materialization failed.
func (r SubmissionResult) FailedIssueIDs() []string {
	var out []string
	for _, item := range r.Items {
		if item.Status == ItemStatusFailed {
			out = append(out, item.IssueID)
		}
	}
	return out
}

// Validate checks the request shape. Problems are collected, not
// short-circuited, so the caller sees all of them at once.
func (r CheckSimilarRequest) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(r.AssetID) == "" {
		verr.add("assetId", "required")
	}
	validateWindow(verr, r.WindowDays)
	validateItems(verr, r.AssetID, r.Items)
	return verr.errOrNil()
}

// Validate checks the request shape and every cross reference.
func (r GenerateWorkOrdersRequest) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(r.AssetID) == "" {
		verr.add("assetId", "required")
	}
	validateWindow(verr, r.WindowDays)
	ids := validateItems(verr, r.AssetID, r.Items)

	switch r.PriorityMode {
	case "", PriorityModeGlobal, PriorityModeIndividual:
	default:
		verr.add("priorityMode", "must be global or individual")
	}
	if r.GlobalPriority != "" && !r.GlobalPriority.Valid() {
		verr.add("globalPriority", "must be Alta, Media or Baja")
	}
	for id, p := range r.PerItemPriority {
		if _, ok := ids[id]; !ok {
			verr.add("perItemPriority."+id, "unknown issue id")
			continue
		}
		if !p.Valid() {
			verr.add("perItemPriority."+id, "must be Alta, Media or Baja")
		}
	}
	for id, choice := range r.ConsolidationChoices {
		if _, ok := ids[id]; !ok {
			verr.add("consolidationChoices."+id, "unknown issue id")
			continue
		}
		if !choice.Valid() {
			verr.add("consolidationChoices."+id, "must be consolidate, create_new or escalate")
		}
	}
	return verr.errOrNil()
}

// PriorityFor picks the priority of a new work order for one issue.
func (r GenerateWorkOrdersRequest) PriorityFor(issueID string) workorders.Priority {
	if r.PriorityMode == PriorityModeIndividual {
		if p, ok := r.PerItemPriority[issueID]; ok && p.Valid() {
			return p
		}
	}
	if r.GlobalPriority.Valid() {
		return r.GlobalPriority
	}
	return workorders.PriorityMedium
}

func validateWindow(verr *ValidationError, windowDays int) {
	if windowDays < 0 || windowDays > 365 {
		verr.add("windowDays", "must be 0 (default) or 1-365")
	}
}

func validateItems(verr *ValidationError, assetID string, items []workorders.Issue) map[string]struct{} {
	ids := make(map[string]struct{}, len(items))
	if len(items) == 0 {
		verr.add("items", "at least one item is required")
		return ids
	}
	if len(items) > maxItemsPerSubmission {
		verr.add("items", fmt.Sprintf("at most %d items per submission", maxItemsPerSubmission))
	}
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.ID) == "" {
			verr.add(field+".id", "required")
		} else if _, dup := ids[item.ID]; dup {
			verr.add(field+".id", "duplicate issue id")
		} else {
			ids[item.ID] = struct{}{}
		}
		if strings.TrimSpace(item.Description) == "" {
			verr.add(field+".description", "required")
		}
		if !item.Status.Valid() {
			verr.add(field+".status", "must be flag or fail")
		}
		if item.AssetID != "" && assetID != "" && item.AssetID != assetID {
			verr.add(field+".assetId", "must match the submission asset")
		}
	}
	return ids
}
