package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/queue"
	"maintenance-backend/internal/shared/storage/object"
	"maintenance-backend/internal/shared/telemetry"
	"maintenance-backend/internal/shared/util"
)

const (
	keyPrefix       = "submissions/"
	jsonContentType = "application/json"
	maxBlobBytes    = 8 << 20
)

// Stager keeps offline submissions as JSON blobs until they can be replayed.
type Stager struct {
	Store object.ObjectStore
	Queue queue.Client
	Now   func() time.Time
}

// Receipt describes a staged submission.
type Receipt struct {
	ChecklistID string `json:"checklistId"`
	AssetID     string `json:"assetId"`
	StorageKey  string `json:"storageKey"`
	SizeBytes   int64  `json:"sizeBytes"`
	Enqueued    bool   `json:"enqueued"`
	StagedAt    string `json:"stagedAt"`
}

// NewStager constructs a Stager. q may be nil, in which case submissions are
// only stored and must be replayed explicitly.
func NewStager(store object.ObjectStore, q queue.Client) *Stager {
	return &Stager{Store: store, Queue: q}
}

// StorageKey returns the object key for a checklist submission.
func StorageKey(checklistID string) (string, error) {
	segment, err := util.SanitizeKeySegment(checklistID)
	if err != nil {
		return "", fmt.Errorf("%w: checklist id: %v", ErrInvalidSubmission, err)
	}
	return keyPrefix + segment + ".json", nil
}

// ResultKey returns the object key holding the outcome of the last replay.
func ResultKey(checklistID string) (string, error) {
	segment, err := util.SanitizeKeySegment(checklistID)
	if err != nil {
		return "", fmt.Errorf("%w: checklist id: %v", ErrInvalidSubmission, err)
	}
	return keyPrefix + segment + ".result.json", nil
}

// Stage stores the submission verbatim and enqueues a replay message when a
// queue is configured. Restaging the same checklist overwrites the blob.
func (s *Stager) Stage(ctx context.Context, req consolidation.GenerateWorkOrdersRequest, requestID string) (Receipt, error) {
	if s == nil || s.Store == nil {
		return Receipt{}, errors.New("staging store not configured")
	}
	if strings.TrimSpace(req.AssetID) == "" {
		return Receipt{}, fmt.Errorf("%w: assetId is required", ErrInvalidSubmission)
	}
	key, err := StorageKey(req.ChecklistID)
	if err != nil {
		return Receipt{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode submission: %w", err)
	}
	size, err := s.Store.Put(ctx, key, jsonContentType, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, fmt.Errorf("store submission: %w", err)
	}

	now := s.now()
	receipt := Receipt{
		ChecklistID: req.ChecklistID,
		AssetID:     req.AssetID,
		StorageKey:  key,
		SizeBytes:   size,
		StagedAt:    now.Format(time.RFC3339),
	}
	if s.Queue != nil {
		msg := queue.Message{
			ChecklistID: req.ChecklistID,
			AssetID:     req.AssetID,
			StorageKey:  key,
			RequestID:   requestID,
			EnqueuedAt:  now.Format(time.RFC3339),
			Version:     queue.MessageVersion,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			// The blob stays in place so an explicit replay can still pick it up.
			telemetry.Error("staging.enqueue_failed", map[string]any{
				"request_id":   requestID,
				"checklist_id": req.ChecklistID,
				"storage_key":  key,
				"error":        err.Error(),
			})
			return receipt, fmt.Errorf("enqueue replay: %w", err)
		}
		receipt.Enqueued = true
	}

	telemetry.Info("staging.submission_staged", map[string]any{
		"request_id":   requestID,
		"checklist_id": req.ChecklistID,
		"asset_id":     req.AssetID,
		"storage_key":  key,
		"size_bytes":   size,
		"items":        len(req.Items),
		"enqueued":     receipt.Enqueued,
	})
	return receipt, nil
}

// Load reads the staged submission of a checklist.
func (s *Stager) Load(ctx context.Context, checklistID string) (consolidation.GenerateWorkOrdersRequest, error) {
	key, err := StorageKey(checklistID)
	if err != nil {
		return consolidation.GenerateWorkOrdersRequest{}, err
	}
	return s.LoadKey(ctx, key)
}

// LoadKey reads a staged submission by its object key.
func (s *Stager) LoadKey(ctx context.Context, key string) (consolidation.GenerateWorkOrdersRequest, error) {
	var req consolidation.GenerateWorkOrdersRequest
	if s == nil || s.Store == nil {
		return req, errors.New("staging store not configured")
	}
	rc, err := s.Store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return req, fmt.Errorf("%w: %s", ErrNotStaged, key)
		}
		return req, fmt.Errorf("open submission: %w", err)
	}
	defer rc.Close()

	payload, err := io.ReadAll(io.LimitReader(rc, maxBlobBytes+1))
	if err != nil {
		return req, fmt.Errorf("read submission: %w", err)
	}
	if len(payload) > maxBlobBytes {
		return req, fmt.Errorf("%w: blob exceeds %d bytes", ErrInvalidSubmission, maxBlobBytes)
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	return req, nil
}

func (s *Stager) saveResult(ctx context.Context, checklistID string, result consolidation.SubmissionResult) error {
	key, err := ResultKey(checklistID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := s.Store.Put(ctx, key, jsonContentType, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *Stager) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
