package crux

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"cwv-watch/internal/vitals"

	"github.com/rs/zerolog/log"
)

// flexFloat decodes a JSON value that the CrUX API serializes either as a
// number or as a quoted numeric string (bucket boundaries and percentiles
// arrive as strings for millisecond metrics, numbers for CLS).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" || s == "" {
		*f = flexFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = flexFloat(math.NaN())
		return nil
	}
	*f = flexFloat(v)
	return nil
}

type queryRequest struct {
	Origin     string   `json:"origin,omitempty"`
	URL        string   `json:"url,omitempty"`
	FormFactor string   `json:"formFactor"`
	Metrics    []string `json:"metrics,omitempty"`
}

type bucketPayload struct {
	Start   flexFloat `json:"start"`
	End     flexFloat `json:"end"`
	Density *float64  `json:"density"`
}

type percentilesPayload struct {
	P75 flexFloat `json:"p75"`
}

type metricPayload struct {
	Histogram   []bucketPayload     `json:"histogram"`
	Percentiles *percentilesPayload `json:"percentiles"`

	// History responses carry one histogram per collection period.
	HistogramTimeseries [][]bucketPayload `json:"histogramTimeseries"`
}

type queryResponse struct {
	Record struct {
		Metrics map[string]metricPayload `json:"metrics"`
	} `json:"record"`
}

type apiDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d apiDate) time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

type collectionPeriod struct {
	LastDate apiDate `json:"lastDate"`
}

type historyResponse struct {
	Record struct {
		Metrics           map[string]metricPayload `json:"metrics"`
		CollectionPeriods []collectionPeriod       `json:"collectionPeriods"`
	} `json:"record"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// MetricData is the decoded field data for one metric of one record.
type MetricData struct {
	Histogram []vitals.Bucket
	P75       float64
	HasP75    bool
}

// Record is a point-in-time CrUX record: the latest 28-day rollup per metric.
type Record struct {
	Metrics map[vitals.Metric]MetricData
}

// Period is one collection period of a history record, ending at End.
type Period struct {
	End     time.Time
	Metrics map[vitals.Metric][]vitals.Bucket
}

// History is a multi-period CrUX history record, oldest period first.
type History struct {
	Periods []Period
}

func convertBuckets(payload []bucketPayload) []vitals.Bucket {
	buckets := make([]vitals.Bucket, 0, len(payload))
	for _, b := range payload {
		density := math.NaN()
		if b.Density != nil {
			density = *b.Density
		}
		buckets = append(buckets, vitals.Bucket{Start: float64(b.Start), Density: density})
	}
	return buckets
}

// mergeMetric stores data under the canonical metric name, preferring the GA
// series over the experimental one when both appear in the same record.
func mergeMetric(dst map[vitals.Metric]MetricData, key string, data MetricData) {
	metric, ok := vitals.CanonicalMetric(key)
	if !ok {
		log.Debug().Str("metric", key).Msg("Ignoring untracked CrUX metric")
		return
	}
	if _, exists := dst[metric]; exists && vitals.IsExperimentalKey(key) {
		return
	}
	dst[metric] = data
}

func decodeRecord(resp queryResponse) *Record {
	rec := &Record{Metrics: make(map[vitals.Metric]MetricData)}
	// GA series first, then experimental series fill gaps only.
	for key, payload := range resp.Record.Metrics {
		if !vitals.IsExperimentalKey(key) {
			mergeMetric(rec.Metrics, key, metricDataFrom(payload))
		}
	}
	for key, payload := range resp.Record.Metrics {
		if vitals.IsExperimentalKey(key) {
			mergeMetric(rec.Metrics, key, metricDataFrom(payload))
		}
	}
	return rec
}

func metricDataFrom(payload metricPayload) MetricData {
	data := MetricData{Histogram: convertBuckets(payload.Histogram)}
	if payload.Percentiles != nil && !math.IsNaN(float64(payload.Percentiles.P75)) {
		data.P75 = float64(payload.Percentiles.P75)
		data.HasP75 = true
	}
	return data
}

func decodeHistory(resp historyResponse) *History {
	periodCount := len(resp.Record.CollectionPeriods)
	if periodCount == 0 {
		return &History{}
	}

	periods := make([]Period, periodCount)
	for i, cp := range resp.Record.CollectionPeriods {
		periods[i] = Period{
			End:     cp.LastDate.time(),
			Metrics: make(map[vitals.Metric][]vitals.Bucket),
		}
	}

	for key, payload := range resp.Record.Metrics {
		metric, ok := vitals.CanonicalMetric(key)
		if !ok {
			log.Debug().Str("metric", key).Msg("Ignoring untracked CrUX history metric")
			continue
		}
		for i, buckets := range payload.HistogramTimeseries {
			if i >= periodCount {
				log.Warn().Str("metric", key).Int("period", i).Msg("History series longer than collection periods, truncating")
				break
			}
			if len(buckets) == 0 {
				continue
			}
			if _, exists := periods[i].Metrics[metric]; exists && vitals.IsExperimentalKey(key) {
				continue
			}
			periods[i].Metrics[metric] = convertBuckets(buckets)
		}
	}

	return &History{Periods: periods}
}
