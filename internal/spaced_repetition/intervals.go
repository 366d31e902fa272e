package spaced_repetition

import "time"

const day = 24 * time.Hour

// DefaultIntervals is the review ladder used after graduation:
// 2 days, a week, a month, a quarter, half a year, a year.
var DefaultIntervals = Intervals{
	2 * day,
	7 * day,
	30 * day,
	90 * day,
	180 * day,
	365 * day,
}

// Intervals maps a review stage to the wait before the next review.
// Stages beyond the end of the table reuse the last interval.
type Intervals []time.Duration

// For returns the interval used for stage.
func (iv Intervals) For(stage int) time.Duration {
	if len(iv) == 0 {
		return 0
	}
	if stage < 0 {
		stage = 0
	}
	if stage > len(iv)-1 {
		stage = len(iv) - 1
	}
	return iv[stage]
}

// NextReviewAt returns now plus the interval for stage.
func (iv Intervals) NextReviewAt(stage int, now time.Time) time.Time {
	return now.Add(iv.For(stage))
}

// Ascending reports whether every interval is at least as long as the one before.
func (iv Intervals) Ascending() bool {
	for i := 1; i < len(iv); i++ {
		if iv[i] < iv[i-1] {
			return false
		}
	}
	return true
}
