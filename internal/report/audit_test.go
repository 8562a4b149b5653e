package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"cwv-watch/internal/psi"
	"cwv-watch/internal/vitals"
)

// fakeChecker serves canned PSI results keyed by URL.
type fakeChecker struct {
	mu       sync.Mutex
	inflight int32
	peak     int32
	results  map[string]*psi.PageVitals
	errs     map[string]error
}

func (f *fakeChecker) Check(_ context.Context, pageURL string, strategy psi.Strategy) (*psi.PageVitals, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	f.mu.Lock()
	if cur > f.peak {
		f.peak = cur
	}
	f.mu.Unlock()

	if err, ok := f.errs[pageURL]; ok {
		return nil, err
	}
	pv, ok := f.results[pageURL]
	if !ok {
		return nil, psi.ErrNoFieldData
	}
	copied := *pv
	copied.Strategy = strategy
	return &copied, nil
}

func poorPage(url string) *psi.PageVitals {
	return &psi.PageVitals{
		URL:     url,
		Overall: vitals.Poor,
		Metrics: map[vitals.Metric]psi.FieldMetric{
			vitals.LCP: {Category: vitals.Poor, Percentile: 4500},
			vitals.INP: {Category: vitals.Good, Percentile: 120},
		},
	}
}

func goodPage(url string) *psi.PageVitals {
	return &psi.PageVitals{
		URL:     url,
		Overall: vitals.Good,
		Metrics: map[vitals.Metric]psi.FieldMetric{
			vitals.LCP: {Category: vitals.Good, Percentile: 1500},
		},
	}
}

func TestRunAudit(t *testing.T) {
	checker := &fakeChecker{
		results: map[string]*psi.PageVitals{
			"https://good-apps.jp/slow": poorPage("https://good-apps.jp/slow"),
			"https://good-apps.jp/fast": goodPage("https://good-apps.jp/fast"),
		},
		errs: map[string]error{
			"https://good-apps.jp/broken": errors.New("connect timeout"),
		},
	}

	result, err := RunAudit(context.Background(), AuditParams{
		URLs: []string{
			"https://good-apps.jp/slow",
			"https://good-apps.jp/fast",
			"https://good-apps.jp/new",
			"https://good-apps.jp/broken",
		},
		Workers: 2,
		Checker: checker,
	})
	if err != nil {
		t.Fatalf("RunAudit() error = %v", err)
	}

	if result.Checked != 4 {
		t.Errorf("Checked = %d, want 4", result.Checked)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("Issues = %+v, want exactly the slow page", result.Issues)
	}
	issue := result.Issues[0]
	if issue.URL != "https://good-apps.jp/slow" {
		t.Errorf("issue URL = %q", issue.URL)
	}
	// Both strategies reported the poor LCP.
	for _, strategy := range psi.Strategies {
		details := issue.Slow[strategy]
		if len(details) != 1 || details[0].Metric != vitals.LCP || details[0].Value != "4.5s" {
			t.Errorf("%s details = %+v", strategy, details)
		}
	}

	// A failed fetch and a no-data page are skipped, never reported as poor.
	if result.NoData != 2 {
		t.Errorf("NoData = %d, want 2 (one page, both strategies)", result.NoData)
	}
	if result.Failed != 2 {
		t.Errorf("Failed = %d, want 2 (one page, both strategies)", result.Failed)
	}
}

func TestRunAuditRespectsWorkerLimit(t *testing.T) {
	checker := &fakeChecker{results: map[string]*psi.PageVitals{}}

	var urls []string
	for i := 0; i < 30; i++ {
		urls = append(urls, fmt.Sprintf("https://good-apps.jp/p%d", i))
	}

	if _, err := RunAudit(context.Background(), AuditParams{URLs: urls, Workers: 3, Checker: checker}); err != nil {
		t.Fatalf("RunAudit() error = %v", err)
	}
	if checker.peak > 3 {
		t.Errorf("peak concurrency = %d, want ≤ 3", checker.peak)
	}
}

func TestRunAuditEmptyURLSet(t *testing.T) {
	result, err := RunAudit(context.Background(), AuditParams{Checker: &fakeChecker{}})
	if err != nil {
		t.Fatalf("RunAudit() error = %v", err)
	}
	if result.Checked != 0 || len(result.Issues) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}
