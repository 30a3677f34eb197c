package consolidation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/shared/server/middleware"
	"maintenance-backend/internal/shared/server/respond"
	"maintenance-backend/internal/workorders"
)

// Handler wires HTTP handlers to the consolidation service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches work order routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/work-orders/check-similar", h.checkSimilar)
	rg.POST("/work-orders/generate", h.generate)
	rg.GET("/work-orders", h.listWorkOrders)
	rg.GET("/work-orders/:id", h.getWorkOrder)
}

func (h *Handler) checkSimilar(c *gin.Context) {
	var req CheckSimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	resp, err := h.Svc.CheckSimilar(ctx, req)
	if err != nil {
		writeServiceError(c, err, "failed to check similar issues")
		return
	}
	c.Set("assetId", req.AssetID)
	respond.OK(c, resp)
}

func (h *Handler) generate(c *gin.Context) {
	var req GenerateWorkOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	result, err := h.Svc.GenerateWorkOrders(ctx, req)
	if err != nil {
		writeServiceError(c, err, "failed to generate work orders")
		return
	}
	c.Set("assetId", req.AssetID)
	c.Set("checklistId", req.ChecklistID)
	respond.OK(c, result)
}

func (h *Handler) listWorkOrders(c *gin.Context) {
	assetID := c.Query("assetId")
	list, err := h.Svc.ListWorkOrders(c.Request.Context(), assetID)
	if err != nil {
		writeServiceError(c, err, "failed to list work orders")
		return
	}
	if list == nil {
		list = []workorders.WorkOrder{}
	}
	respond.OK(c, gin.H{"workOrders": list})
}

func (h *Handler) getWorkOrder(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "work order id is required", nil)
		return
	}
	wo, err := h.Svc.GetWorkOrder(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, "failed to fetch work order")
		return
	}
	respond.OK(c, wo)
}

func writeServiceError(c *gin.Context, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.Error(), verr.Problems)
	case errors.Is(err, workorders.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "work order not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
