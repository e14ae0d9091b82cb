package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"optionsflow/config"
	"optionsflow/internal/metrics"
	"optionsflow/logger"
	"optionsflow/models"
)

func testReport() *models.Report {
	stats := models.Stats{Count: 2, Mean: 0.25}
	return &models.Report{
		RunID:        "run-1",
		RowsRejected: 1,
		Rejections:   []models.RowRejection{{Source: "chain.csv", Line: 4, Reason: "bad strike"}},
		Summary: models.Summary{
			ByMoneyness: []models.GroupSummary{
				{Group: "ATM", Subgroup: "8-30", Records: 2, Metrics: map[models.Metric]models.Stats{models.MetricImpliedVolatility: stats, models.MetricDelta: {}}},
				{Group: "ITM", Subgroup: "8-30", Records: 0, Metrics: map[models.Metric]models.Stats{models.MetricImpliedVolatility: {}, models.MetricDelta: {}}},
			},
			ByBucket: []models.GroupSummary{
				{Group: "8-30", Subgroup: "ATM", Records: 2, Metrics: map[models.Metric]models.Stats{models.MetricImpliedVolatility: stats}},
			},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(config.DashboardConfig{Address: ":0", MetricsHistory: 10, LogHistory: 10}, t.TempDir(), logger.GetLogger())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	res := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return res, body
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                             "0.0.0.0:8080",
		"  :9090  ":                    "0.0.0.0:9090",
		"localhost":                    "localhost:8080",
		"127.0.0.1:80":                 "127.0.0.1:80",
		"[::1]:443":                    "[::1]:443",
		"*:8080":                       "0.0.0.0:8080",
		"http://10.0.0.5:8080":         "10.0.0.5:8080",
		"https://reports.example.com/": "reports.example.com:8080",
	}
	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestReportEndpointsWithoutReport(t *testing.T) {
	srv := newTestServer(t)

	res, body := get(t, srv, "/api/report")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if _, ok := body["error"]; !ok {
		t.Fatalf("expected error body, got %s", res.Body.String())
	}

	res, body = get(t, srv, "/healthz")
	if res.Code != http.StatusOK {
		t.Fatalf("healthz status %d", res.Code)
	}
	if _, ok := body["run_id"]; ok {
		t.Fatal("healthz reported a run before a report was set")
	}
}

func TestSummaryEndpointFilters(t *testing.T) {
	srv := newTestServer(t)
	srv.SetReport(testReport())

	res, body := get(t, srv, "/api/summary/by_moneyness?group=ATM&metric=implied_volatility")
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", res.Code, res.Body.String())
	}
	var groups []models.GroupSummary
	if err := json.Unmarshal(body["groups"], &groups); err != nil {
		t.Fatalf("decode groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Group != "ATM" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if len(groups[0].Metrics) != 1 || groups[0].Metrics[models.MetricImpliedVolatility].Mean != 0.25 {
		t.Fatalf("metric filter not applied: %+v", groups[0].Metrics)
	}

	if res, _ := get(t, srv, "/api/summary/by_dte"); res.Code != http.StatusOK {
		t.Fatalf("by_dte status %d", res.Code)
	}
	if res, _ := get(t, srv, "/api/summary/by_week"); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown grouping, got %d", res.Code)
	}
	if res, _ := get(t, srv, "/api/summary/by_moneyness?metric=vanna"); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown metric, got %d", res.Code)
	}

	res, body = get(t, srv, "/healthz")
	if string(body["run_id"]) != `"run-1"` {
		t.Fatalf("healthz run_id = %s", body["run_id"])
	}
}

func TestMetricsAndLogsAreCaptured(t *testing.T) {
	srv := newTestServer(t)

	metrics.EmitMetric(logger.GetLogger(), "loader", "rows_read", 5, "counter", nil)
	logger.GetLogger().WithComponent("loader").Warn("row rejected")

	res, body := get(t, srv, "/api/metrics")
	if res.Code != http.StatusOK {
		t.Fatalf("metrics status %d", res.Code)
	}
	var got []metrics.Metric
	if err := json.Unmarshal(body["metrics"], &got); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	found := false
	for _, m := range got {
		if m.Component == "loader" && m.Name == "rows_read" {
			found = true
		}
	}
	if !found {
		t.Fatalf("rows_read not captured: %+v", got)
	}

	var logs []logRecord
	_, body = get(t, srv, "/api/logs")
	if err := json.Unmarshal(body["logs"], &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	found = false
	for _, l := range logs {
		if l.Message == "row rejected" && l.Component == "loader" && l.Level == "warning" {
			found = true
		}
	}
	if !found {
		t.Fatalf("warning not captured: %+v", logs)
	}
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	h := newHistory[int](2)
	for i := 0; i < 5; i++ {
		h.add(i)
	}
	got := h.snapshot()
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("unexpected history: %v", got)
	}
}

func TestLogHistoryStopsAfterClose(t *testing.T) {
	h := newLogHistory(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.InfoLevel
	entry.Message = "stage completed"
	entry.Data = logrus.Fields{"component": "pipeline", "stage": "derive"}
	if err := h.Fire(entry); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	h.close()
	if err := h.Fire(entry); err != nil {
		t.Fatalf("Fire after close: %v", err)
	}

	got := h.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Component != "pipeline" || got[0].Fields["stage"] != "derive" {
		t.Fatalf("unexpected record: %+v", got[0])
	}
}

func TestResourceSamplerCollects(t *testing.T) {
	original := sampleResources
	t.Cleanup(func() { sampleResources = original })
	sampleResources = func(ctx context.Context, interval time.Duration, diskPath string) (resourceSample, error) {
		sleep(ctx, time.Millisecond)
		return resourceSample{Timestamp: time.Now(), CPUPercent: 42.5, MemoryPct: 50, DiskPct: 25}, nil
	}

	s := newResourceSampler(3, time.Millisecond, t.TempDir(), logger.GetLogger())
	s.start(context.Background())

	deadline := time.Now().Add(time.Second)
	for len(s.samples.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no samples collected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.stop()

	got := s.samples.snapshot()
	if len(got) > 3 {
		t.Fatalf("history exceeded limit: %d", len(got))
	}
	if last := got[len(got)-1]; last.CPUPercent != 42.5 || last.DiskPct != 25 {
		t.Fatalf("unexpected sample: %+v", last)
	}
}
