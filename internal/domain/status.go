package domain

// Status is the classification of one athlete-day.
type Status string

const (
	StatusOnTrack            Status = "On Track"
	StatusUnderPerformed     Status = "Under-performed"
	StatusOverPerformed      Status = "Over-performed"
	StatusMissed             Status = "Missed Workout"
	StatusExtraActivity      Status = "Extra Activity"
	StatusPartiallyCompleted Status = "Partially Completed"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusOnTrack,
	StatusOverPerformed,
	StatusPartiallyCompleted,
	StatusUnderPerformed,
	StatusMissed,
	StatusExtraActivity,
}

// Completed reports whether the status counts toward the team completion rate.
func (s Status) Completed() bool {
	switch s {
	case StatusOnTrack, StatusOverPerformed, StatusPartiallyCompleted:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}
