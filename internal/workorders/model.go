package workorders

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency level of a work order.
type Priority string

const (
	PriorityHigh   Priority = "Alta"
	PriorityMedium Priority = "Media"
	PriorityLow    Priority = "Baja"
)

// ParsePriority accepts the canonical values case-insensitively.
func ParsePriority(raw string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "alta":
		return PriorityHigh, nil
	case "media":
		return PriorityMedium, nil
	case "baja":
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("unknown priority %q", raw)
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// IssueStatus is the checklist outcome that produced an issue.
type IssueStatus string

const (
	IssueFlag IssueStatus = "flag"
	IssueFail IssueStatus = "fail"
)

// Valid reports whether s is a non-passing checklist outcome.
func (s IssueStatus) Valid() bool {
	return s == IssueFlag || s == IssueFail
}

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// IsClosedStatus reports whether a work order no longer accepts consolidations.
func IsClosedStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusResolved, StatusClosed:
		return true
	default:
		return false
	}
}

// Issue is a single defect or observation reported on one asset.
type Issue struct {
	ID               string      `json:"id"`
	AssetID          string      `json:"assetId"`
	ChecklistID      string      `json:"checklistId,omitempty"`
	Description      string      `json:"description"`
	Notes            string      `json:"notes,omitempty"`
	Status           IssueStatus `json:"status"`
	SectionTitle     string      `json:"sectionTitle,omitempty"`
	ReportedAt       time.Time   `json:"reportedAt"`
	WorkOrderID      string      `json:"workOrderId,omitempty"`
	ConsolidatedInto string      `json:"consolidatedInto,omitempty"`
}

// WorkOrder is a unit of corrective work tied to one or more issues.
type WorkOrder struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	AssetID         string    `json:"assetId"`
	AssetName       string    `json:"assetName,omitempty"`
	ChecklistID     string    `json:"checklistId,omitempty"`
	SectionTitle    string    `json:"sectionTitle,omitempty"`
	Description     string    `json:"description"`
	Priority        Priority  `json:"priority"`
	Status          string    `json:"status"`
	RecurrenceCount int       `json:"recurrenceCount"`
	AssigneeName    string    `json:"assigneeName,omitempty"`
	Version         int64     `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Head returns the first line of the description, which holds the text of the
// originating issue. Recurrence notes are appended after it.
func (w WorkOrder) Head() string {
	head, _, _ := strings.Cut(w.Description, "\n")
	return strings.TrimSpace(head)
}

// Consolidation describes one merge of an issue into an existing work order.
// The store applies it atomically together with recording the issue.
type Consolidation struct {
	WorkOrderID     string
	ExpectedVersion int64
	Note            string
	Escalate        bool
	Issue           Issue
	At              time.Time
}

// Validate checks a work order read from or written to the store.
func (w WorkOrder) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("work order id is required")
	}
	if strings.TrimSpace(w.AssetID) == "" {
		return fmt.Errorf("work order %s: asset id is required", w.ID)
	}
	if !w.Priority.Valid() {
		return fmt.Errorf("work order %s: invalid priority %q", w.ID, w.Priority)
	}
	if w.RecurrenceCount < 1 {
		return fmt.Errorf("work order %s: recurrence count must be >= 1 (got %d)", w.ID, w.RecurrenceCount)
	}
	return nil
}

// Validate checks an issue before it is recorded.
func (i Issue) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("issue id is required")
	}
	if strings.TrimSpace(i.AssetID) == "" {
		return fmt.Errorf("issue %s: asset id is required", i.ID)
	}
	if strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("issue %s: description is required", i.ID)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("issue %s: status must be flag or fail (got %q)", i.ID, i.Status)
	}
	return nil
}
