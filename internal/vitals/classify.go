package vitals

import (
	"math"

	"github.com/rs/zerolog/log"
)

// Bucket is one histogram bin of a CrUX metric: the start of its value range
// and the share of page loads that fell into it. A NaN density marks a bucket
// whose density was missing or non-numeric upstream; such buckets are skipped
// during classification rather than counted as zero.
type Bucket struct {
	Start   float64
	Density float64
}

// Distribution is the share of traffic in each verdict bucket. For
// well-formed histogram input the three fields sum to ~1.0.
type Distribution struct {
	Good float64
	NI   float64
	Poor float64
}

// Sum returns the total mass of the distribution.
func (d Distribution) Sum() float64 {
	return d.Good + d.NI + d.Poor
}

// Scale returns the distribution with every field multiplied by f.
func (d Distribution) Scale(f float64) Distribution {
	return Distribution{Good: d.Good * f, NI: d.NI * f, Poor: d.Poor * f}
}

// ClassifyHistogram routes each bucket's density into the threshold range
// containing the bucket's start value. Ranges are closed on the lower end and
// open on the upper end, so a bucket starting exactly at good_max accumulates
// into needs-improvement. Buckets with an unparseable (NaN) start or a
// NaN/Inf/negative density are skipped; a malformed boundary must never land
// in a category. Returns ok=false for unknown metrics or when no bucket
// carried a usable density.
func ClassifyHistogram(m Metric, buckets []Bucket) (Distribution, bool) {
	t, ok := thresholds[m]
	if !ok {
		return Distribution{}, false
	}

	var d Distribution
	counted := 0
	for _, b := range buckets {
		if math.IsNaN(b.Start) {
			log.Debug().Str("metric", string(m)).Msg("Skipping histogram bucket with unparseable start")
			continue
		}
		if math.IsNaN(b.Density) || math.IsInf(b.Density, 0) || b.Density < 0 {
			log.Debug().Str("metric", string(m)).Float64("start", b.Start).Msg("Skipping histogram bucket with unusable density")
			continue
		}
		switch {
		case b.Start < t.GoodMax:
			d.Good += b.Density
		case b.Start < t.PoorMin:
			d.NI += b.Density
		default:
			d.Poor += b.Density
		}
		counted++
	}

	if counted == 0 {
		return Distribution{}, false
	}
	return d, true
}

// ClassifyPoint buckets a single p75 value. Boundaries belong to the better
// category: an LCP of exactly 2500ms is good, exactly 4000ms is
// needs-improvement. Returns ok=false for unknown metrics.
func ClassifyPoint(m Metric, value float64) (Category, bool) {
	t, ok := thresholds[m]
	if !ok {
		return "", false
	}
	switch {
	case value <= t.GoodMax:
		return Good, true
	case value <= t.PoorMin:
		return NeedsImprovement, true
	default:
		return Poor, true
	}
}
