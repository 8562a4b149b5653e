package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cwv-watch/internal/crux"
	"cwv-watch/internal/history"
	"cwv-watch/internal/vitals"

	"github.com/rs/zerolog/log"
)

// MetricsAPI is the slice of the CrUX client the daily report needs.
type MetricsAPI interface {
	QueryRecord(ctx context.Context, origin string, ff crux.FormFactor) (*crux.Record, error)
	QueryHistoryRecord(ctx context.Context, origin string, ff crux.FormFactor) (*crux.History, error)
}

// Notifier is the slice of the Slack client the reports need.
type Notifier interface {
	PostText(ctx context.Context, text string) error
	UploadFile(ctx context.Context, filename, title string, data []byte) error
	CanUpload() bool
}

// DailyParams collects the inputs of one daily report run.
type DailyParams struct {
	Origin    string
	Policy    vitals.Policy
	TotalURLs int
	Date      time.Time
	API       MetricsAPI
	Store     *history.Store
}

// DailyResult is the assembled report, ready for delivery.
type DailyResult struct {
	Message string
	Chart   []byte // nil when the window is too short to chart
	Rows    []history.Row
}

// classifyRecord turns one CrUX record into an aggregate verdict. Metrics
// without usable histogram data are omitted from aggregation; ok is false
// when no metric had data.
func classifyRecord(rec *crux.Record, policy vitals.Policy) (vitals.Distribution, bool) {
	var dists []vitals.Distribution
	for _, m := range vitals.Metrics {
		data, ok := rec.Metrics[m]
		if !ok {
			continue
		}
		if d, ok := vitals.ClassifyHistogram(m, data.Histogram); ok {
			dists = append(dists, d)
		}
	}
	return vitals.Aggregate(policy, dists)
}

// BuildSnapshot queries the latest CrUX rollup for every device class and
// aggregates it. Device classes without data are skipped with a warning; the
// snapshot errors only when no device class has data at all.
func BuildSnapshot(ctx context.Context, api MetricsAPI, origin string, policy vitals.Policy, date time.Time) (*Snapshot, error) {
	snap := &Snapshot{Date: date, Devices: make(map[crux.FormFactor]vitals.Distribution)}

	for _, ff := range crux.FormFactors {
		rec, err := api.QueryRecord(ctx, origin, ff)
		if err != nil {
			if errors.Is(err, crux.ErrNoData) {
				log.Warn().Str("formFactor", string(ff)).Msg("No CrUX data for device class, skipping")
				continue
			}
			log.Warn().Err(err).Str("formFactor", string(ff)).Msg("CrUX query failed, skipping device class")
			continue
		}

		verdict, ok := classifyRecord(rec, policy)
		if !ok {
			log.Warn().Str("formFactor", string(ff)).Msg("CrUX record carried no classifiable metric, skipping")
			continue
		}
		snap.Devices[ff] = verdict
	}

	if len(snap.Devices) == 0 {
		return nil, fmt.Errorf("no CrUX field data available for %s on any device class", origin)
	}
	return snap, nil
}

// backfillRows seeds an empty history window from the CrUX multi-period
// history record, one row per collection period. Periods missing on one
// device class keep a zero distribution for it.
func backfillRows(ctx context.Context, api MetricsAPI, origin string, policy vitals.Policy) []history.Row {
	byDate := make(map[time.Time]*history.Row)

	for _, ff := range crux.FormFactors {
		hist, err := api.QueryHistoryRecord(ctx, origin, ff)
		if err != nil {
			log.Warn().Err(err).Str("formFactor", string(ff)).Msg("History backfill query failed, skipping device class")
			continue
		}
		for _, period := range hist.Periods {
			var dists []vitals.Distribution
			for _, m := range vitals.Metrics {
				buckets, ok := period.Metrics[m]
				if !ok {
					continue
				}
				if d, ok := vitals.ClassifyHistogram(m, buckets); ok {
					dists = append(dists, d)
				}
			}
			verdict, ok := vitals.Aggregate(policy, dists)
			if !ok {
				continue
			}

			row, exists := byDate[period.End]
			if !exists {
				row = &history.Row{Date: period.End}
				byDate[period.End] = row
			}
			if ff == crux.Phone {
				row.Mobile = verdict.Scale(100)
			} else {
				row.Desktop = verdict.Scale(100)
			}
		}
	}

	rows := make([]history.Row, 0, len(byDate))
	for _, row := range byDate {
		rows = append(rows, *row)
	}
	return rows
}

// BuildDaily runs the full daily pipeline: snapshot, history merge, message
// and chart assembly. The history file is rewritten here; delivery is the
// caller's concern.
func BuildDaily(ctx context.Context, p DailyParams) (*DailyResult, error) {
	if p.Date.IsZero() {
		p.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	snap, err := BuildSnapshot(ctx, p.API, p.Origin, p.Policy, p.Date)
	if err != nil {
		return nil, err
	}

	rows, err := p.Store.Load()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		rows = backfillRows(ctx, p.API, p.Origin, p.Policy)
		if len(rows) > 0 {
			log.Info().Int("periods", len(rows)).Msg("Seeded history window from CrUX history record")
		}
	}

	today := history.Row{Date: snap.Date}
	if d, ok := snap.Devices[crux.Phone]; ok {
		today.Mobile = d.Scale(100)
	}
	if d, ok := snap.Devices[crux.Desktop]; ok {
		today.Desktop = d.Scale(100)
	}
	rows = p.Store.Upsert(rows, today)

	if err := p.Store.Save(rows); err != nil {
		return nil, err
	}

	result := &DailyResult{
		Message: FormatDaily(p.Origin, snap, p.TotalURLs),
		Rows:    rows,
	}

	chartPNG, err := RenderTrend(rows)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping trend chart")
	} else {
		result.Chart = chartPNG
	}
	return result, nil
}

// Deliver posts the message and, when upload credentials are present, the
// chart. A failed upload degrades to the already-delivered text; a failed
// text post is a run failure.
func Deliver(ctx context.Context, n Notifier, result *DailyResult) error {
	if err := n.PostText(ctx, result.Message); err != nil {
		return fmt.Errorf("Slack delivery failed: %w", err)
	}

	if result.Chart == nil || !n.CanUpload() {
		return nil
	}
	if err := n.UploadFile(ctx, "cwv_trend.png", "Core Web Vitals trend", result.Chart); err != nil {
		log.Warn().Err(err).Msg("Chart upload failed, message delivered text-only")
	}
	return nil
}
