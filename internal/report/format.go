// Package report builds the daily dashboard and renders it as chat text or markdown.
package report

import (
	"fmt"
	"math"
	"sort"

	"example.com/marathon/internal/domain"
)

// FormatPace renders min/km as m:ss, or N/A for a missing pace.
func FormatPace(pace float64) string {
	if pace <= 0 || math.IsNaN(pace) || math.IsInf(pace, 0) {
		return "N/A"
	}
	minutes := int(pace)
	seconds := int((pace-float64(minutes))*60 + 1e-9)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatPacePtr is FormatPace for an optional pace.
func FormatPacePtr(pace *float64) string {
	if pace == nil {
		return "N/A"
	}
	return FormatPace(*pace)
}

// FormatDistance renders kilometres with one decimal.
func FormatDistance(km float64) string {
	if km <= 0 {
		return "0.0 km"
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatVariance renders a signed percentage with one decimal.
func FormatVariance(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}

var statusEmoji = map[domain.Status]string{
	domain.StatusOnTrack:            "✅",
	domain.StatusOverPerformed:      "💪",
	domain.StatusUnderPerformed:     "⚠️",
	domain.StatusMissed:             "❌",
	domain.StatusExtraActivity:      "➕",
	domain.StatusPartiallyCompleted: "🔄",
}

// StatusEmoji returns the chat marker for a status.
func StatusEmoji(status domain.Status) string {
	if emoji, ok := statusEmoji[status]; ok {
		return emoji
	}
	return "❓"
}

// CompletionEmoji grades the team completion rate.
func CompletionEmoji(rate float64) string {
	switch {
	case rate >= 80:
		return "🎯"
	case rate >= 60:
		return "⚠️"
	default:
		return "🚨"
	}
}

// orderedStatuses lists the statuses present in breakdown in display order,
// followed by any unknown labels sorted by name.
func orderedStatuses(breakdown map[domain.Status]int) []domain.Status {
	out := make([]domain.Status, 0, len(breakdown))
	for _, status := range domain.AllStatuses {
		if _, ok := breakdown[status]; ok {
			out = append(out, status)
		}
	}
	var unknown []domain.Status
	for status := range breakdown {
		if !status.Valid() {
			unknown = append(unknown, status)
		}
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	return append(out, unknown...)
}
