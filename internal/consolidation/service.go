package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"maintenance-backend/internal/shared/metrics"
	"maintenance-backend/internal/shared/telemetry"
	"maintenance-backend/internal/workorders"
)

// Service runs the similarity check and the work order generation pipeline.
// It holds no state between calls.
type Service struct {
	Repo         workorders.Repo
	Config       Config
	Matcher      *Matcher
	Resolver     Resolver
	Materializer *Materializer
	Now          func() time.Time
}

// NewService validates cfg and wires the engine components over repo.
func NewService(repo workorders.Repo, cfg Config) (*Service, error) {
	if repo == nil {
		return nil, errors.New("consolidation: repo is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("consolidation config: %w", err)
	}
	return &Service{
		Repo:     repo,
		Config:   cfg,
		Matcher:  &Matcher{Repo: repo, Threshold: cfg.SimilarityThreshold},
		Resolver: Resolver{EscalationThreshold: cfg.EscalationThreshold},
		Materializer: &Materializer{
			Repo:              repo,
			MaxUpdateAttempts: cfg.MaxUpdateAttempts,
		},
	}, nil
}

// WithClock pins every component to the given clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.Now = now
	s.Matcher.Now = now
	s.Materializer.Now = now
	return s
}

// CheckSimilar reports matches and recurrence annotations for each item
// without writing to the store.
func (s *Service) CheckSimilar(ctx context.Context, req CheckSimilarRequest) (CheckSimilarResponse, error) {
	req.Items = s.prepareItems(req.AssetID, "", req.Items)
	if err := req.Validate(); err != nil {
		return CheckSimilarResponse{}, err
	}
	windowDays := req.WindowDays
	if windowDays == 0 {
		windowDays = s.Config.WindowDays
	}

	resp := CheckSimilarResponse{
		Results:  make([]SimilarIssueResult, 0, len(req.Items)),
		Warnings: []Warning{},
	}
	for _, item := range req.Items {
		matches, warning := s.findSimilar(ctx, req.AssetID, item, windowDays, "")
		if warning != nil {
			resp.Warnings = append(resp.Warnings, *warning)
		}
		suggested := s.Resolver.DefaultChoice(matches)
		resp.Results = append(resp.Results, SimilarIssueResult{
			Issue:           item,
			Matches:         matches,
			SuggestedChoice: suggested,
			Annotation:      Annotate(matches, s.Config.EscalationThreshold),
		})
	}
	return resp, nil
}

// GenerateWorkOrders matches every item, resolves the caller's choices and
// materializes the plan. Matches are computed for all items before the first
// write, so items never match work orders created by the same submission.
func (s *Service) GenerateWorkOrders(ctx context.Context, req GenerateWorkOrdersRequest) (SubmissionResult, error) {
	start := time.Now()
	requestID := RequestID(ctx)

	req.Items = s.prepareItems(req.AssetID, req.ChecklistID, req.Items)
	if err := req.Validate(); err != nil {
		return SubmissionResult{}, err
	}

	windowDays := req.WindowDays
	if windowDays == 0 {
		windowDays = s.Config.WindowDays
	}

	var warnings []Warning
	plan := make([]PlannedItem, 0, len(req.Items))
	for _, item := range req.Items {
		matches, warning := s.findSimilar(ctx, req.AssetID, item, windowDays, requestID)
		if warning != nil {
			warnings = append(warnings, *warning)
		}
		choice := req.ConsolidationChoices[item.ID]
		action := s.Resolver.Resolve(matches, choice)
		if action.Overridden {
			telemetry.Info("consolidation.invalid_choice_overridden", map[string]any{
				"request_id": requestID,
				"asset_id":   req.AssetID,
				"issue_id":   item.ID,
				"choice":     string(choice),
			})
		}
		plan = append(plan, PlannedItem{
			Issue:    item,
			Action:   action,
			Priority: req.PriorityFor(item.ID),
		})
	}

	result := s.Materializer.Apply(ctx, plan, CommonFields{
		ChecklistID: req.ChecklistID,
		AssetID:     req.AssetID,
		AssetName:   req.AssetName,
		Description: req.Description,
		RequestID:   requestID,
	})
	if warnings != nil {
		result.Warnings = warnings
	}

	metrics.IncSubmissions()
	metrics.AddWorkOrdersCreated(result.NewWorkOrders)
	metrics.AddIssuesConsolidated(result.ConsolidatedIssues)
	metrics.AddWorkOrdersEscalated(result.Escalated)
	metrics.AddMaterializationFailed(result.Failed)
	durationMs := metrics.SinceMillis(start)
	metrics.ObserveSubmissionDurationMs(durationMs)

	telemetry.Info("consolidation.submission.completed", map[string]any{
		"request_id":   requestID,
		"checklist_id": req.ChecklistID,
		"asset_id":     req.AssetID,
		"items":        len(req.Items),
		"new":          result.NewWorkOrders,
		"consolidated": result.ConsolidatedIssues,
		"escalated":    result.Escalated,
		"failed":       result.Failed,
		"warnings":     len(result.Warnings),
		"duration_ms":  durationMs,
		"work_orders":  len(result.WorkOrders),
	})
	return result, nil
}

// ListWorkOrders returns the work orders of one asset, most recent first.
func (s *Service) ListWorkOrders(ctx context.Context, assetID string) ([]workorders.WorkOrder, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, &ValidationError{Problems: []FieldProblem{{Field: "assetId", Issue: "required"}}}
	}
	return s.Repo.FindWorkOrdersByAsset(ctx, assetID)
}

// GetWorkOrder returns one work order by id.
func (s *Service) GetWorkOrder(ctx context.Context, id string) (workorders.WorkOrder, error) {
	return s.Repo.GetWorkOrder(ctx, id)
}

func (s *Service) findSimilar(ctx context.Context, assetID string, item workorders.Issue, windowDays int, requestID string) ([]Match, *Warning) {
	matches, err := s.Matcher.FindSimilar(ctx, assetID, item, windowDays)
	if err == nil {
		return matches, nil
	}
	metrics.IncMatchLookupFailed()
	telemetry.Warn("consolidation.match_lookup_failed", map[string]any{
		"request_id": requestID,
		"asset_id":   assetID,
		"issue_id":   item.ID,
		"error":      err.Error(),
	})
	return []Match{}, &Warning{
		IssueID: item.ID,
		Code:    WarningMatchLookupFailed,
		Message: "no se pudo buscar incidencias similares; se tratará como nueva",
	}
}

// prepareItems fills the fields the caller may omit. Items without an id get
// a generated one and therefore cannot carry a per-item choice or priority.
func (s *Service) prepareItems(assetID, checklistID string, items []workorders.Issue) []workorders.Issue {
	now := s.now()
	out := make([]workorders.Issue, len(items))
	for i, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.AssetID == "" {
			item.AssetID = assetID
		}
		if item.ChecklistID == "" {
			item.ChecklistID = checklistID
		}
		item.Status = workorders.IssueStatus(strings.ToLower(strings.TrimSpace(string(item.Status))))
		item.Description = strings.TrimSpace(item.Description)
		item.SectionTitle = strings.TrimSpace(item.SectionTitle)
		if item.ReportedAt.IsZero() {
			item.ReportedAt = now
		}
		out[i] = item
	}
	return out
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
