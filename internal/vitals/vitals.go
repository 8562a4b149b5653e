package vitals

// Metric identifies one of the Core Web Vitals tracked by this tool.
type Metric string

const (
	LCP Metric = "largest_contentful_paint"
	INP Metric = "interaction_to_next_paint"
	CLS Metric = "cumulative_layout_shift"
)

// experimentalINP is the pre-GA CrUX key for INP. It is folded into INP so
// that origins still reporting the experimental series are not dropped.
const experimentalINP = "experimental_interaction_to_next_paint"

// Metrics lists the tracked metrics in a stable order.
var Metrics = []Metric{LCP, INP, CLS}

// Category is a three-way CWV verdict bucket.
type Category string

const (
	Good             Category = "good"
	NeedsImprovement Category = "ni"
	Poor             Category = "poor"
)

// Threshold holds the two boundary values that split a metric's value range
// into good / needs-improvement / poor. A value exactly at a boundary belongs
// to the better category.
type Threshold struct {
	GoodMax float64
	PoorMin float64
}

// thresholds are the published CWV boundaries. LCP and INP are milliseconds,
// CLS is unitless. Not user-configurable.
var thresholds = map[Metric]Threshold{
	LCP: {GoodMax: 2500, PoorMin: 4000},
	INP: {GoodMax: 200, PoorMin: 500},
	CLS: {GoodMax: 0.1, PoorMin: 0.25},
}

// ThresholdFor returns the boundary pair for a metric.
func ThresholdFor(m Metric) (Threshold, bool) {
	t, ok := thresholds[m]
	return t, ok
}

// CanonicalMetric maps a raw API metric key to one of the tracked metrics.
// The experimental INP key canonicalizes to INP; unknown keys are rejected.
func CanonicalMetric(key string) (Metric, bool) {
	switch key {
	case string(LCP), string(INP), string(CLS):
		return Metric(key), true
	case experimentalINP:
		return INP, true
	}
	return "", false
}

// IsExperimentalKey reports whether the raw API key is the experimental INP
// series. Callers prefer the GA series when both are present.
func IsExperimentalKey(key string) bool {
	return key == experimentalINP
}

// CategoryNames lists the categories in reporting order.
var CategoryNames = []Category{Good, NeedsImprovement, Poor}
