package report

import (
	"bytes"
	"testing"
	"time"

	"cwv-watch/internal/history"
	"cwv-watch/internal/vitals"
)

func trendRows(n int) []history.Row {
	rows := make([]history.Row, n)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = history.Row{
			Date:    base.AddDate(0, 0, i),
			Mobile:  vitals.Distribution{Good: 70 + float64(i), NI: 25 - float64(i), Poor: 5},
			Desktop: vitals.Distribution{Good: 85, NI: 10, Poor: 5},
		}
	}
	return rows
}

func TestRenderTrend(t *testing.T) {
	png, err := RenderTrend(trendRows(7))
	if err != nil {
		t.Fatalf("RenderTrend() error = %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("output is not a PNG")
	}
}

func TestRenderTrendNeedsTwoRows(t *testing.T) {
	for _, n := range []int{0, 1} {
		if _, err := RenderTrend(trendRows(n)); err == nil {
			t.Errorf("RenderTrend() with %d rows succeeded, want error", n)
		}
	}
}
