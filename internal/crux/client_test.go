package crux

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cwv-watch/internal/vitals"
)

func testClient(url string) *Client {
	return NewClient(Config{
		APIKey:       "test-key",
		BaseURL:      url,
		Timeout:      2 * time.Second,
		RequestDelay: time.Millisecond,
	})
}

func TestQueryRecordDecoding(t *testing.T) {
	payload := `{
		"record": {
			"key": {"origin": "https://good-apps.jp", "formFactor": "PHONE"},
			"metrics": {
				"largest_contentful_paint": {
					"histogram": [
						{"start": "0", "end": "2500", "density": 0.8},
						{"start": "2500", "end": "4000", "density": 0.15},
						{"start": "4000", "density": 0.05}
					],
					"percentiles": {"p75": "2100"}
				},
				"cumulative_layout_shift": {
					"histogram": [
						{"start": "0.00", "end": "0.10", "density": 0.7},
						{"start": "0.10", "end": "0.25"},
						{"start": "0.25", "density": 0.1}
					],
					"percentiles": {"p75": "0.08"}
				},
				"experimental_interaction_to_next_paint": {
					"histogram": [{"start": "0", "end": "200", "density": 1.0}]
				},
				"first_contentful_paint": {
					"histogram": [{"start": "0", "end": "1800", "density": 1.0}]
				}
			}
		}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/records:queryRecord" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing API key in query")
		}
		w.Write([]byte(payload))
	}))
	defer server.Close()

	rec, err := testClient(server.URL).QueryRecord(context.Background(), "https://good-apps.jp", Phone)
	if err != nil {
		t.Fatalf("QueryRecord() error = %v", err)
	}

	lcp, ok := rec.Metrics[vitals.LCP]
	if !ok {
		t.Fatal("LCP missing from decoded record")
	}
	if len(lcp.Histogram) != 3 {
		t.Fatalf("LCP histogram has %d buckets, want 3", len(lcp.Histogram))
	}
	if lcp.Histogram[1].Start != 2500 || lcp.Histogram[1].Density != 0.15 {
		t.Errorf("LCP bucket 1 = %+v, want start 2500 density 0.15", lcp.Histogram[1])
	}
	if !lcp.HasP75 || lcp.P75 != 2100 {
		t.Errorf("LCP p75 = %v (has=%v), want 2100", lcp.P75, lcp.HasP75)
	}

	cls := rec.Metrics[vitals.CLS]
	if !math.IsNaN(cls.Histogram[1].Density) {
		t.Errorf("missing density must decode as NaN, got %v", cls.Histogram[1].Density)
	}

	// Experimental INP canonicalizes to INP.
	if _, ok := rec.Metrics[vitals.INP]; !ok {
		t.Error("experimental INP series missing from decoded record")
	}
	// Untracked metric keys are dropped.
	if _, ok := rec.Metrics[vitals.Metric("first_contentful_paint")]; ok {
		t.Error("untracked metric leaked into decoded record")
	}
}

func TestQueryRecordNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"chrome ux report data not found","status":"NOT_FOUND"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).QueryRecord(context.Background(), "https://unknown.example", Phone)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestQueryRecordRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"record":{"metrics":{"largest_contentful_paint":{"histogram":[{"start":"0","density":1.0}]}}}}`))
	}))
	defer server.Close()

	rec, err := testClient(server.URL).QueryRecord(context.Background(), "https://good-apps.jp", Desktop)
	if err != nil {
		t.Fatalf("QueryRecord() error = %v after retries", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if _, ok := rec.Metrics[vitals.LCP]; !ok {
		t.Error("LCP missing after retried request")
	}
}

func TestQueryRecordDoesNotRetryBadRequest(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Invalid origin","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).QueryRecord(context.Background(), "not-a-url", Phone)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, client must not retry a 400", attempts)
	}
}

func TestQueryURLRecordSendsURLKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if body["url"] != "https://good-apps.jp/pricing" {
			t.Errorf("url key = %v", body["url"])
		}
		if _, ok := body["origin"]; ok {
			t.Error("page-level query must not carry an origin key")
		}
		w.Write([]byte(`{"record":{"metrics":{"largest_contentful_paint":{"histogram":[{"start":"0","density":1.0}]}}}}`))
	}))
	defer server.Close()

	rec, err := testClient(server.URL).QueryURLRecord(context.Background(), "https://good-apps.jp/pricing", Phone)
	if err != nil {
		t.Fatalf("QueryURLRecord() error = %v", err)
	}
	if _, ok := rec.Metrics[vitals.LCP]; !ok {
		t.Error("LCP missing from decoded page record")
	}
}

func TestQueryHistoryRecordDecoding(t *testing.T) {
	payload := `{
		"record": {
			"metrics": {
				"largest_contentful_paint": {
					"histogramTimeseries": [
						[{"start": "0", "density": 0.7}, {"start": "2500", "density": 0.2}, {"start": "4000", "density": 0.1}],
						[{"start": "0", "density": 0.8}, {"start": "2500", "density": 0.15}, {"start": "4000", "density": 0.05}],
						[]
					]
				},
				"cumulative_layout_shift": {
					"histogramTimeseries": [
						[{"start": "0.00", "density": 0.9}, {"start": "0.10", "density": 0.1}],
						[{"start": "0.00", "density": 0.95}, {"start": "0.10", "density": 0.05}],
						[{"start": "0.00", "density": 1.0}]
					]
				}
			},
			"collectionPeriods": [
				{"lastDate": {"year": 2026, "month": 8, "day": 8}},
				{"lastDate": {"year": 2026, "month": 8, "day": 15}},
				{"lastDate": {"year": 2026, "month": 8, "day": 22}}
			]
		}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/records:queryHistoryRecord" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(payload))
	}))
	defer server.Close()

	hist, err := testClient(server.URL).QueryHistoryRecord(context.Background(), "https://good-apps.jp", Phone)
	if err != nil {
		t.Fatalf("QueryHistoryRecord() error = %v", err)
	}
	if len(hist.Periods) != 3 {
		t.Fatalf("got %d periods, want 3", len(hist.Periods))
	}

	first := hist.Periods[0]
	if first.End != time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC) {
		t.Errorf("period 0 end = %v", first.End)
	}
	if len(first.Metrics[vitals.LCP]) != 3 {
		t.Errorf("period 0 LCP has %d buckets, want 3", len(first.Metrics[vitals.LCP]))
	}

	// The third LCP entry is empty and must be skipped, not stored as zeros.
	last := hist.Periods[2]
	if _, ok := last.Metrics[vitals.LCP]; ok {
		t.Error("empty week entry must be skipped for LCP")
	}
	if _, ok := last.Metrics[vitals.CLS]; !ok {
		t.Error("CLS data for period 2 missing")
	}
}
