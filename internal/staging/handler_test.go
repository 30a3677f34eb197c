package staging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/shared/server/middleware"
)

func setupRouter(t *testing.T, q *fakeQueue) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	stager := newTestStager(t, q)
	svc, _ := newEngine(t)

	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(stager, NewReplayer(stager, svc)).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func post(t *testing.T, r http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStageThenReplayEndpoints(t *testing.T) {
	q := &fakeQueue{}
	r := setupRouter(t, q)

	resp := post(t, r, "/api/v1/submissions/offline", sampleRequest())
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var receipt Receipt
	if err := json.Unmarshal(resp.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if !receipt.Enqueued || receipt.StorageKey != "submissions/chk-1.json" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if len(q.sent) != 1 || q.sent[0].RequestID == "" {
		t.Fatalf("expected message with request id, got %+v", q.sent)
	}

	resp = post(t, r, "/api/v1/submissions/chk-1/replay", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result struct {
		NewWorkOrders int `json:"newWorkOrders"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.NewWorkOrders != 2 {
		t.Fatalf("expected 2 new work orders, got %d", result.NewWorkOrders)
	}
}

func TestReplayEndpointNotStaged(t *testing.T) {
	r := setupRouter(t, &fakeQueue{})
	resp := post(t, r, "/api/v1/submissions/unknown/replay", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestStageEndpointValidation(t *testing.T) {
	r := setupRouter(t, &fakeQueue{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/offline", bytes.NewBufferString("{"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad JSON, got %d", resp.Code)
	}

	resp = post(t, r, "/api/v1/submissions/offline", map[string]any{"assetId": "PUMP-01"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing checklist id, got %d", resp.Code)
	}
}
