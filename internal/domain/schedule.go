package domain

import (
	"fmt"
	"time"
)

// ScheduleMode selects which of the two schedule fields is meaningful.
type ScheduleMode string

const (
	ScheduleDuration ScheduleMode = "duration"
	ScheduleEndTime  ScheduleMode = "end_time"
)

// Schedule bounds shared by creation and rescheduling. Rescheduling anchors
// the same bounds to "now" instead of the creation instant.
const (
	MinVoteDuration = 5 * time.Minute
	MaxVoteDuration = 31 * 24 * time.Hour
)

// Duration is a requested duration split the way the creation form sends it.
type Duration struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (d Duration) TotalMinutes() int {
	return d.Days*24*60 + d.Hours*60 + d.Minutes
}

// TotalHours is the float stored on the event row.
func (d Duration) TotalHours() float64 {
	return float64(d.Days)*24 + float64(d.Hours) + float64(d.Minutes)/60
}

func (d Duration) InBounds() bool {
	total := time.Duration(d.TotalMinutes()) * time.Minute
	return total >= MinVoteDuration && total <= MaxVoteDuration
}

// EndsAt computes the instant the event stops accepting votes. This is the
// source of truth; the persisted is_active flag is only a cache of it.
func (e *VotingEvent) EndsAt() time.Time {
	if e.ScheduleMode == ScheduleDuration {
		return e.CreatedAt.Add(time.Duration(e.DurationHours * float64(time.Hour)))
	}
	return e.EndTime
}

// ActiveAt reports whether the event is accepting votes at the given instant.
func (e *VotingEvent) ActiveAt(now time.Time) bool {
	return now.Before(e.EndsAt())
}

// RemainingText renders a countdown for active events or an elapsed-since
// string for expired ones.
func (e *VotingEvent) RemainingText(now time.Time) string {
	end := e.EndsAt()
	if now.Before(end) {
		return "ends in " + formatDelta(end.Sub(now))
	}
	return "ended " + formatDelta(now.Sub(end)) + " ago"
}

func formatDelta(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
