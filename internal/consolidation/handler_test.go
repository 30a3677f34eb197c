package consolidation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/shared/server/middleware"
	"maintenance-backend/internal/workorders"
)

func setupRouter(t *testing.T) (*gin.Engine, *workorders.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := workorders.NewMemoryRepo()
	svc := newTestService(t, repo)

	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, repo
}

func postJSON(t *testing.T, r http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestGenerateEndpoint(t *testing.T) {
	r, repo := setupRouter(t)
	seedWorkOrder(t, repo, workorders.WorkOrder{ID: "wo-1", AssetID: "PUMP-01", Description: "Fuga de aceite"})

	resp := postJSON(t, r, "/api/v1/work-orders/generate", map[string]any{
		"checklistId":  "chk-1",
		"assetId":      "PUMP-01",
		"assetName":    "Bomba principal",
		"priorityMode": "global",
		"items": []map[string]any{
			{"id": "i-1", "description": "Fuga de aceite en motor", "status": "fail"},
			{"id": "i-2", "description": "Correa floja", "status": "flag"},
		},
		"consolidationChoices": map[string]string{"i-1": "consolidate"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result struct {
		NewWorkOrders      int `json:"newWorkOrders"`
		ConsolidatedIssues int `json:"consolidatedIssues"`
		Escalated          int `json:"escalated"`
		WorkOrders         []struct {
			OrderID         string `json:"orderId"`
			RecurrenceCount int    `json:"recurrenceCount"`
		} `json:"workOrders"`
		Consolidations []ConsolidationRecord `json:"consolidations"`
		Message        string                `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.NewWorkOrders != 1 || result.ConsolidatedIssues != 1 || result.Escalated != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.WorkOrders) != 2 {
		t.Fatalf("expected 2 work orders, got %d", len(result.WorkOrders))
	}
	if len(result.Consolidations) != 1 || result.Consolidations[0].RecurrenceCount != 2 {
		t.Fatalf("unexpected consolidations: %+v", result.Consolidations)
	}
	if result.Message == "" {
		t.Fatalf("expected summary message")
	}
}

func TestGenerateEndpointValidation(t *testing.T) {
	r, _ := setupRouter(t)

	resp := postJSON(t, r, "/api/v1/work-orders/generate", map[string]any{"assetId": "PUMP-01"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details []FieldProblem `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", body.Error.Code)
	}
	if len(body.Error.Details) == 0 || body.Error.Details[0].Field != "items" {
		t.Fatalf("expected items problem, got %+v", body.Error.Details)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/work-orders/generate", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	malformed := httptest.NewRecorder()
	r.ServeHTTP(malformed, req)
	if malformed.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for malformed JSON, got %d", malformed.Code)
	}
}

func TestCheckSimilarEndpoint(t *testing.T) {
	r, repo := setupRouter(t)
	seedWorkOrder(t, repo, workorders.WorkOrder{ID: "wo-1", AssetID: "PUMP-01", Description: "Fuga de aceite", RecurrenceCount: 2})

	resp := postJSON(t, r, "/api/v1/work-orders/check-similar", map[string]any{
		"assetId": "PUMP-01",
		"items":   []map[string]any{{"id": "i-1", "description": "fuga de aceite", "status": "flag"}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body CheckSimilarResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Results) != 1 || len(body.Results[0].Matches) != 1 {
		t.Fatalf("expected one match, got %+v", body.Results)
	}
	got := body.Results[0]
	if got.RecurrenceCount != 3 || !got.EscalationEligible || got.SuggestedChoice != ChoiceEscalate {
		t.Fatalf("unexpected annotation: %+v", got)
	}
}

func TestWorkOrderReadEndpoints(t *testing.T) {
	r, repo := setupRouter(t)
	seedWorkOrder(t, repo, workorders.WorkOrder{ID: "wo-1", AssetID: "PUMP-01", Description: "Fuga de aceite"})

	list := httptest.NewRecorder()
	r.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/v1/work-orders?assetId=PUMP-01", nil))
	if list.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", list.Code)
	}
	var listed struct {
		WorkOrders []workorders.WorkOrder `json:"workOrders"`
	}
	if err := json.NewDecoder(list.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.WorkOrders) != 1 || listed.WorkOrders[0].OrderID != "OT-1" {
		t.Fatalf("unexpected list: %+v", listed.WorkOrders)
	}

	missingAsset := httptest.NewRecorder()
	r.ServeHTTP(missingAsset, httptest.NewRequest(http.MethodGet, "/api/v1/work-orders", nil))
	if missingAsset.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without assetId, got %d", missingAsset.Code)
	}

	got := httptest.NewRecorder()
	r.ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/v1/work-orders/wo-1", nil))
	if got.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", got.Code)
	}

	missing := httptest.NewRecorder()
	r.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/v1/work-orders/nope", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", missing.Code)
	}
}
