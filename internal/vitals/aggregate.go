package vitals

import "fmt"

// Policy selects how per-metric distributions combine into one verdict.
// Earlier revisions of this tool shipped both semantics under the same
// function name; the policy is now an explicit configuration value so the two
// can never be silently conflated.
type Policy string

const (
	// PolicyWorstCase takes the pessimistic envelope: good is the minimum
	// good share across metrics, poor the maximum poor share.
	PolicyWorstCase Policy = "worst"

	// PolicyIndependent treats the metrics as independent events: a page
	// load is good only if every metric is good, poor if any metric is.
	PolicyIndependent Policy = "independent"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyWorstCase, PolicyIndependent:
		return Policy(s), nil
	case "":
		return PolicyWorstCase, nil
	}
	return "", fmt.Errorf("unknown aggregation policy %q (want %q or %q)", s, PolicyWorstCase, PolicyIndependent)
}

// Aggregate reduces the available per-metric distributions into one verdict.
// Metrics without data must be omitted by the caller. With zero inputs the
// result is "no data" (ok=false) and must be excluded downstream, never
// defaulted to a category. The needs-improvement share is derived as the
// remainder and clamped at zero to absorb rounding error.
func Aggregate(p Policy, dists []Distribution) (Distribution, bool) {
	if len(dists) == 0 {
		return Distribution{}, false
	}

	var good, poor float64
	switch p {
	case PolicyIndependent:
		good = 1.0
		notPoor := 1.0
		for _, d := range dists {
			good *= d.Good
			notPoor *= 1.0 - d.Poor
		}
		poor = 1.0 - notPoor
	default: // worst-case
		good = dists[0].Good
		poor = dists[0].Poor
		for _, d := range dists[1:] {
			if d.Good < good {
				good = d.Good
			}
			if d.Poor > poor {
				poor = d.Poor
			}
		}
	}

	ni := 1.0 - good - poor
	if ni < 0 {
		ni = 0
	}
	return Distribution{Good: good, NI: ni, Poor: poor}, true
}
