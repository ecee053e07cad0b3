package report

import (
	"fmt"
	"strings"
)

const (
	chatAthleteLimit = 4
	notesPreviewLen  = 50
)

// ChatText renders the short message sent to the team chat.
func ChatText(d Dashboard) string {
	var b strings.Builder
	b.WriteString("🏃‍♂️ Marathon Training Update\n")
	fmt.Fprintf(&b, "📅 %s\n\n", d.ReportDate.Format("2006-01-02"))

	team := d.Team
	fmt.Fprintf(&b, "%s Team: %d/%d completed (%s%%)\n",
		CompletionEmoji(team.CompletionRate), team.CompletedWorkouts, team.TotalAthletes, trimFloat(team.CompletionRate))

	if len(d.Athletes) > 0 {
		b.WriteString("\n")
	}
	for i, athlete := range d.Athletes {
		if i == chatAthleteLimit {
			break
		}
		fmt.Fprintf(&b, "%s %s: %s\n", StatusEmoji(athlete.Status), firstName(athlete.AthleteName), athlete.ActualDistance)
	}

	if len(d.TodaysWorkouts) > 0 {
		b.WriteString("\n🎯 Today's Focus:\n")
		fmt.Fprintf(&b, "Team target: %.1f km\n", d.TeamTargetKM())
	}
	return strings.TrimRight(b.String(), "\n")
}

// Markdown renders the full dashboard as a markdown document.
func Markdown(d Dashboard) string {
	var b strings.Builder
	b.WriteString("# Marathon Training Dashboard\n")
	fmt.Fprintf(&b, "**Report Date:** %s\n", d.ReportDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Generated:** %s\n\n", d.GeneratedAt.Format("2006-01-02 15:04:05"))

	team := d.Team
	b.WriteString("## Team Performance Summary\n")
	fmt.Fprintf(&b, "- **Total Athletes:** %d\n", team.TotalAthletes)
	fmt.Fprintf(&b, "- **Completed Workouts:** %d\n", team.CompletedWorkouts)
	fmt.Fprintf(&b, "- **Completion Rate:** %s%%\n", trimFloat(team.CompletionRate))
	fmt.Fprintf(&b, "- **Avg Distance Variance:** %s\n", FormatVariance(team.AvgDistanceVariancePct))
	fmt.Fprintf(&b, "- **Avg Pace Variance:** %s\n\n", FormatVariance(team.AvgPaceVariancePct))

	if len(team.StatusBreakdown) > 0 {
		b.WriteString("### Status Breakdown\n")
		for _, status := range orderedStatuses(team.StatusBreakdown) {
			fmt.Fprintf(&b, "- **%s:** %d\n", status, team.StatusBreakdown[status])
		}
		b.WriteString("\n")
	}

	if len(d.Athletes) > 0 {
		b.WriteString("## Individual Performance\n")
		b.WriteString("| Athlete | Status | Planned Distance | Actual Distance | Distance Var | Planned Pace | Actual Pace | Pace Var |\n")
		b.WriteString("|---------|--------|------------------|-----------------|--------------|--------------|-------------|----------|\n")
		for _, row := range d.Athletes {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
				row.AthleteName, row.Status, row.PlannedDistance, row.ActualDistance,
				row.DistanceVariance, row.PlannedPace, row.ActualPace, row.PaceVariance)
		}
		b.WriteString("\n")
	}

	if len(d.TodaysWorkouts) > 0 {
		b.WriteString("## Today's Planned Workouts\n")
		b.WriteString("| Athlete | Distance | Pace | Workout Type | Notes |\n")
		b.WriteString("|---------|----------|------|--------------|-------|\n")
		for _, workout := range d.TodaysWorkouts {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				workout.AthleteName, workout.PlannedDistance, workout.PlannedPace, workout.WorkoutType, preview(workout.Notes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[0]
}

func preview(notes string) string {
	runes := []rune(notes)
	if len(runes) <= notesPreviewLen {
		return notes
	}
	return string(runes[:notesPreviewLen]) + "..."
}

// trimFloat prints 50 as "50" and 33.3 as "33.3".
func trimFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}
