package staging

import (
	"context"
	"fmt"
	"strings"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/shared/telemetry"
)

// Engine runs a submission through the consolidation pipeline.
type Engine interface {
	GenerateWorkOrders(ctx context.Context, req consolidation.GenerateWorkOrdersRequest) (consolidation.SubmissionResult, error)
}

// Replayer feeds staged submissions back into the engine.
type Replayer struct {
	Stager *Stager
	Engine Engine
}

// NewReplayer constructs a Replayer.
func NewReplayer(stager *Stager, engine Engine) *Replayer {
	return &Replayer{Stager: stager, Engine: engine}
}

// Replay runs the submission staged for checklistID.
func (r *Replayer) Replay(ctx context.Context, checklistID, requestID string) (consolidation.SubmissionResult, error) {
	key, err := StorageKey(checklistID)
	if err != nil {
		return consolidation.SubmissionResult{}, err
	}
	return r.ReplayKey(ctx, key, requestID)
}

// ReplayKey runs the submission stored at key and saves its result next to
// it. A partially applied submission is not an error: replaying it again
// would consolidate the succeeded items a second time, so the failed items
// are left to the caller through the stored result.
func (r *Replayer) ReplayKey(ctx context.Context, key, requestID string) (consolidation.SubmissionResult, error) {
	if r == nil || r.Stager == nil || r.Engine == nil {
		return consolidation.SubmissionResult{}, fmt.Errorf("replayer not configured")
	}
	req, err := r.Stager.LoadKey(ctx, key)
	if err != nil {
		return consolidation.SubmissionResult{}, err
	}

	ctx = consolidation.WithRequestID(ctx, requestID)
	result, err := r.Engine.GenerateWorkOrders(ctx, req)
	if err != nil {
		return consolidation.SubmissionResult{}, fmt.Errorf("replay %s: %w", key, err)
	}

	if strings.TrimSpace(req.ChecklistID) != "" {
		if err := r.Stager.saveResult(ctx, req.ChecklistID, result); err != nil {
			telemetry.Warn("staging.result_save_failed", map[string]any{
				"request_id":   requestID,
				"checklist_id": req.ChecklistID,
				"error":        err.Error(),
			})
		}
	}

	fields := map[string]any{
		"request_id":   requestID,
		"checklist_id": req.ChecklistID,
		"asset_id":     req.AssetID,
		"storage_key":  key,
		"new":          result.NewWorkOrders,
		"consolidated": result.ConsolidatedIssues,
		"escalated":    result.Escalated,
		"failed":       result.Failed,
	}
	if nothingApplied(result) {
		telemetry.Warn("staging.replay_nothing_applied", fields)
		return result, fmt.Errorf("replay %s: %w", key, ErrNothingApplied)
	}
	if result.Failed > 0 {
		fields["failed_issue_ids"] = result.FailedIssueIDs()
		telemetry.Warn("staging.replay_partial", fields)
	} else {
		telemetry.Info("staging.replay_completed", fields)
	}
	return result, nil
}

func nothingApplied(result consolidation.SubmissionResult) bool {
	if len(result.Items) == 0 || result.Failed != len(result.Items) {
		return false
	}
	for _, item := range result.Items {
		if !item.Retryable {
			return false
		}
	}
	return true
}
