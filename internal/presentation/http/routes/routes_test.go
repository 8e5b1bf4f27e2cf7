package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/container"
	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/memory"
)

func newTestServer(t *testing.T) (*gin.Engine, *container.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	c := container.NewContainer(memory.NewRepositories(), attribution.DefaultModelConfig(), logger, logging.GetBroadcaster())
	return SetupRoutes(c), c
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestIngestAndQueryAttribution(t *testing.T) {
	router, c := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.WorkerPool.Start(ctx)
	defer c.WorkerPool.Stop()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	for i, channel := range []string{"paid-search", "email", "direct"} {
		w := doJSON(t, router, http.MethodPost, "/api/v1/touchpoints", map[string]any{
			"id":         fmt.Sprintf("tp-%d", i),
			"customerId": "cust-1",
			"channel":    channel,
			"timestamp":  base.AddDate(0, 0, -10+i).Format(time.RFC3339),
		}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("touchpoint %d: status = %d body = %s", i, w.Code, w.Body.String())
		}
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/conversions", map[string]any{
		"id":         "conv-1",
		"customerId": "cust-1",
		"timestamp":  base.Format(time.RFC3339),
		"revenue":    "1000",
	}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("conversion: status = %d body = %s", w.Code, w.Body.String())
	}

	// Attribution is asynchronous; poll until the worker pool has
	// persisted the result.
	deadline := time.After(3 * time.Second)
	for {
		w = doJSON(t, router, http.MethodGet, "/api/v1/attribution/conv-1?modelType=linear", nil, nil)
		if w.Code == http.StatusOK {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("result never appeared, last status %d body %s", w.Code, w.Body.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	body := decodeBody(t, w)
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 3 {
		t.Fatalf("entries = %v", body["entries"])
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/attribution/conv-1/compare", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("compare: status = %d body = %s", w.Code, w.Body.String())
	}
	cmp := decodeBody(t, w)
	results, ok := cmp["results"].(map[string]any)
	if !ok || len(results) != 5 {
		t.Fatalf("results = %v", cmp["results"])
	}
}

func TestIngestRejectsMalformedAndInvalidPayloads(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/touchpoints", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed: status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != attribution.CodeValidation {
		t.Fatalf("code = %v", body["code"])
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/touchpoints", map[string]any{
		"customerId": "cust-1",
		"channel":    "smoke-signals",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid channel: status = %d", w.Code)
	}
	body := decodeBody(t, w)
	fields, ok := body["fields"].([]any)
	if !ok || len(fields) == 0 {
		t.Fatalf("fields = %v", body["fields"])
	}
}

func TestGetAttributionUnknownConversion(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/attribution/conv-ghost?modelType=last-touch", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != attribution.CodeNotFound {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestGetAttributionRejectsUnknownModel(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/attribution/conv-1?modelType=psychic", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPerformanceEndpointValidation(t *testing.T) {
	router, _ := newTestServer(t)

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	to := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)

	// Neither channel nor campaign
	w := doJSON(t, router, http.MethodGet,
		"/api/v1/performance?modelType=linear&periodStart="+from+"&periodEnd="+to, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing key: status = %d", w.Code)
	}

	// Both at once
	w = doJSON(t, router, http.MethodGet,
		"/api/v1/performance?channel=email&campaignId=camp-1&modelType=linear&periodStart="+from+"&periodEnd="+to, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("both keys: status = %d", w.Code)
	}

	// Happy path over an empty result set still returns a snapshot,
	// flagged for missing spend.
	w = doJSON(t, router, http.MethodGet,
		"/api/v1/performance?channel=email&modelType=linear&periodStart="+from+"&periodEnd="+to, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("happy path: status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if _, ok := body["snapshot"]; !ok {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["note"]; !ok {
		t.Fatal("expected insufficient spend note")
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	router, c := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/dead-letters", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/admin/dead-letters", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", w.Code)
	}

	token, err := c.Tokens.IssueAdminToken()
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	w = doJSON(t, router, http.MethodGet, "/api/v1/admin/dead-letters", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["count"] != float64(0) {
		t.Fatalf("count = %v", body["count"])
	}
}

func TestRecomputeJobLifecycleOverHTTP(t *testing.T) {
	router, c := newTestServer(t)

	token, err := c.Tokens.IssueAdminToken()
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + token}

	w := doJSON(t, router, http.MethodPost, "/api/v1/admin/recompute", map[string]any{
		"modelType": "time-decay",
		"params":    map[string]any{"halfLifeDays": 3},
		"fromDate":  "2026-01-01T00:00:00Z",
	}, auth)
	if w.Code != http.StatusAccepted {
		t.Fatalf("recompute: status = %d body = %s", w.Code, w.Body.String())
	}
	jobID, _ := decodeBody(t, w)["jobId"].(string)
	if jobID == "" {
		t.Fatal("no jobId returned")
	}

	deadline := time.After(3 * time.Second)
	for {
		w = doJSON(t, router, http.MethodGet, "/api/v1/admin/jobs/"+jobID, nil, auth)
		if w.Code != http.StatusOK {
			t.Fatalf("status: %d body = %s", w.Code, w.Body.String())
		}
		if state, _ := decodeBody(t, w)["state"].(string); state == string(attribution.JobCompleted) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed: %s", w.Body.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A completed job can no longer be cancelled.
	w = doJSON(t, router, http.MethodPost, "/api/v1/admin/jobs/"+jobID+"/cancel", nil, auth)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("cancel completed: status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("convertlens_")) {
		t.Fatal("metrics exposition missing convertlens series")
	}
}
