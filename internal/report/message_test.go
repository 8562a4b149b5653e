package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"cwv-watch/internal/crux"
	"cwv-watch/internal/psi"
	"cwv-watch/internal/vitals"
)

func TestFormatDailyWithCounts(t *testing.T) {
	snap := &Snapshot{
		Date: time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
		Devices: map[crux.FormFactor]vitals.Distribution{
			crux.Phone:   {Good: 0.8, NI: 0.15, Poor: 0.05},
			crux.Desktop: {Good: 0.9, NI: 0.08, Poor: 0.02},
		},
	}

	msg := FormatDaily("https://good-apps.jp", snap, 1000)

	for _, want := range []string{
		"`https://good-apps.jp`",
		"*1000 URLs*",
		"*Mobile* → good 80.0% (800) | ni 15.0% (150) | poor 5.0% (50)",
		"*Desktop* → good 90.0% (900) | ni 8.0% (80) | poor 2.0% (20)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatDailyWithoutDenominator(t *testing.T) {
	snap := &Snapshot{
		Date: time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
		Devices: map[crux.FormFactor]vitals.Distribution{
			crux.Phone: {Good: 0.8, NI: 0.15, Poor: 0.05},
		},
	}

	msg := FormatDaily("https://good-apps.jp", snap, 0)
	if strings.Contains(msg, "URLs*") {
		t.Errorf("denominator line present without a total:\n%s", msg)
	}
	if !strings.Contains(msg, "*Mobile* → good 80.0% | ni 15.0% | poor 5.0%") {
		t.Errorf("percent-only line missing:\n%s", msg)
	}
	if !strings.Contains(msg, "*Desktop* → no field data") {
		t.Errorf("missing device class must be reported as no data:\n%s", msg)
	}
}

func TestFormatAuditAllClear(t *testing.T) {
	msg := FormatAudit("https://good-apps.jp", nil, nil, 20)
	if !strings.Contains(msg, "All pages pass") {
		t.Errorf("all-clear message missing:\n%s", msg)
	}
}

func TestFormatAuditListsIssues(t *testing.T) {
	issues := []PageIssue{
		{
			URL: "https://good-apps.jp/slow",
			Slow: map[psi.Strategy][]SlowDetail{
				psi.Mobile: {{Metric: vitals.LCP, Value: "4.5s"}, {Metric: vitals.CLS, Value: "0.31"}},
			},
		},
	}
	titles := map[string]string{"https://good-apps.jp/slow": "Slow | Page"}

	msg := FormatAudit("https://good-apps.jp", issues, titles, 20)

	if !strings.Contains(msg, "<https://good-apps.jp/slow|Slow ¦ Page>") {
		t.Errorf("link with escaped pipe missing:\n%s", msg)
	}
	if !strings.Contains(msg, "Mobile – LCP 4.5s, CLS 0.31") {
		t.Errorf("metric details missing:\n%s", msg)
	}
}

func TestFormatAuditCapsList(t *testing.T) {
	var issues []PageIssue
	for i := 0; i < 25; i++ {
		issues = append(issues, PageIssue{
			URL: fmt.Sprintf("https://good-apps.jp/p%02d", i),
			Slow: map[psi.Strategy][]SlowDetail{
				psi.Desktop: {{Metric: vitals.INP, Value: "800ms"}},
			},
		})
	}

	msg := FormatAudit("https://good-apps.jp", issues, nil, 20)

	if got := strings.Count(msg, "\n- "); got != 20 {
		t.Errorf("listed %d issue lines, want 20:\n%s", got, msg)
	}
	if !strings.Contains(msg, "…and 5 more") {
		t.Errorf("overflow suffix missing:\n%s", msg)
	}
}
