package consolidation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"maintenance-backend/internal/workorders"
)

// Match is a prior work order that likely covers the same underlying problem
// as a newly reported issue. It is recomputed on every submission.
type Match struct {
	WorkOrderID     string              `json:"workOrderId"`
	OrderID         string              `json:"orderId"`
	IssueID         string              `json:"issueId,omitempty"`
	Description     string              `json:"description"`
	SectionTitle    string              `json:"sectionTitle,omitempty"`
	RecurrenceCount int                 `json:"recurrenceCount"`
	Priority        workorders.Priority `json:"priority"`
	Status          string              `json:"status"`
	AssigneeName    string              `json:"assigneeName,omitempty"`
	Score           float64             `json:"score"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Matcher finds prior work orders on the same asset that resemble an issue.
type Matcher struct {
	Repo      workorders.Repo
	Threshold float64
	Now       func() time.Time
}

// FindSimilar returns the candidate work orders for issue, best first.
//
// Only open work orders of the same asset updated within windowDays are
// considered. A store failure is not fatal: the returned slice is empty and
// the error wraps ErrMatchLookupFailed so the caller can surface a warning
// while treating the issue as new.
func (m *Matcher) FindSimilar(ctx context.Context, assetID string, issue workorders.Issue, windowDays int) ([]Match, error) {
	matches := []Match{}
	if assetID == "" {
		return matches, nil
	}
	since := m.now().AddDate(0, 0, -windowDays)

	wos, err := m.Repo.FindWorkOrdersByAsset(ctx, assetID)
	if err != nil {
		return matches, fmt.Errorf("%w: work orders for asset %s: %v", ErrMatchLookupFailed, assetID, err)
	}
	prior, err := m.Repo.FindIssuesByAsset(ctx, assetID, since)
	if err != nil {
		return matches, fmt.Errorf("%w: issues for asset %s: %v", ErrMatchLookupFailed, assetID, err)
	}

	linked := make(map[string][]workorders.Issue)
	for _, p := range prior {
		if p.AssetID != assetID || p.WorkOrderID == "" || p.ID == issue.ID {
			continue
		}
		linked[p.WorkOrderID] = append(linked[p.WorkOrderID], p)
	}

	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultConfig().SimilarityThreshold
	}

	for _, wo := range wos {
		if wo.AssetID != assetID || workorders.IsClosedStatus(wo.Status) {
			continue
		}
		if wo.UpdatedAt.Before(since) {
			continue
		}
		if !sectionMatches(issue.SectionTitle, wo.SectionTitle, wo.Description) {
			continue
		}

		score := textScore(issue.Description, wo.Head())
		matchedIssue := ""
		for _, p := range linked[wo.ID] {
			if s := textScore(issue.Description, p.Description); s > score {
				score = s
				matchedIssue = p.ID
			}
		}
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			WorkOrderID:     wo.ID,
			OrderID:         wo.OrderID,
			IssueID:         matchedIssue,
			Description:     wo.Description,
			SectionTitle:    wo.SectionTitle,
			RecurrenceCount: wo.RecurrenceCount,
			Priority:        wo.Priority,
			Status:          wo.Status,
			AssigneeName:    wo.AssigneeName,
			Score:           score,
			UpdatedAt:       wo.UpdatedAt,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].WorkOrderID < matches[j].WorkOrderID
	})
	return matches, nil
}

func (m *Matcher) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}
