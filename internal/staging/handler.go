package staging

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/shared/metrics"
	"maintenance-backend/internal/shared/server/middleware"
	"maintenance-backend/internal/shared/server/respond"
)

// Handler exposes offline staging and replay over HTTP.
type Handler struct {
	Stager   *Stager
	Replayer *Replayer
}

// NewHandler constructs a Handler.
func NewHandler(stager *Stager, replayer *Replayer) *Handler {
	return &Handler{Stager: stager, Replayer: replayer}
}

// RegisterRoutes attaches submission routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/submissions/offline", h.stage)
	rg.POST("/submissions/:checklistId/replay", h.replay)
}

func (h *Handler) stage(c *gin.Context) {
	var req consolidation.GenerateWorkOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	c.Set("assetId", req.AssetID)
	c.Set("checklistId", req.ChecklistID)

	receipt, err := h.Stager.Stage(c.Request.Context(), req, middleware.RequestIDFromContext(c))
	switch {
	case errors.Is(err, ErrInvalidSubmission):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	case err != nil && receipt.StorageKey == "":
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to stage submission", nil)
		return
	}
	// A stored but unqueued submission is still accepted; it waits for an
	// explicit replay.
	respond.Accepted(c, receipt)
}

func (h *Handler) replay(c *gin.Context) {
	checklistID := c.Param("checklistId")
	c.Set("checklistId", checklistID)
	requestID := middleware.RequestIDFromContext(c)

	metrics.IncReplayReceived()
	result, err := h.Replayer.Replay(c.Request.Context(), checklistID, requestID)
	if err != nil && !errors.Is(err, ErrNothingApplied) {
		metrics.IncReplayFailed()
		writeReplayError(c, err)
		return
	}
	if err != nil {
		metrics.IncReplayFailed()
	} else {
		metrics.IncReplayCompleted()
	}
	respond.OK(c, result)
}

func writeReplayError(c *gin.Context, err error) {
	var verr *consolidation.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.Error(), verr.Problems)
	case errors.Is(err, ErrInvalidSubmission):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotStaged):
		respond.Error(c, http.StatusNotFound, "not_found", "no staged submission for checklist", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to replay submission", nil)
	}
}
