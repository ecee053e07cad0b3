package domain

import "math"

const (
	// DistanceTolerancePct is the absolute distance variance still considered on plan.
	DistanceTolerancePct = 10.0
	// PaceTolerancePct is the absolute pace variance still considered on plan.
	PaceTolerancePct = 5.0
)

// VariancePercent returns (actual-planned)/planned*100 rounded to two places.
// A non-positive planned value yields 0, which means "no target" rather than
// "on target"; callers must check planned themselves.
func VariancePercent(planned, actual float64) float64 {
	if planned <= 0 {
		return 0
	}
	return round((actual-planned)/planned*100, 2)
}

// Classify maps variances and distances onto a status. The checks run in a
// fixed order: missed, extra, on track, under, over, then partial.
// A positive pace variance means the athlete ran slower than planned.
func Classify(distanceVariance, paceVariance, plannedDistance, actualDistance float64) Status {
	if actualDistance <= 0 {
		return StatusMissed
	}
	if plannedDistance <= 0 {
		return StatusExtraActivity
	}

	distanceWithin := math.Abs(distanceVariance) <= DistanceTolerancePct
	paceWithin := math.Abs(paceVariance) <= PaceTolerancePct

	switch {
	case distanceWithin && paceWithin:
		return StatusOnTrack
	case distanceVariance < -DistanceTolerancePct || paceVariance > PaceTolerancePct:
		return StatusUnderPerformed
	case distanceVariance > DistanceTolerancePct || paceVariance < -PaceTolerancePct:
		return StatusOverPerformed
	default:
		return StatusPartiallyCompleted
	}
}
