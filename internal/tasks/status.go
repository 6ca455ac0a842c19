package tasks

import (
	"strings"
	"time"

	"dofaline/internal/domain"
)

// DateLayout is the ISO calendar date format used by action start and end dates.
const DateLayout = "2006-01-02"

// DeriveStatus maps an action to its lifecycle state as seen at now.
// Dates are compared by calendar day in now's location, so an action is only
// delayed from the day after its end date.
func DeriveStatus(a domain.DofaAction, now time.Time) domain.ActionStatus {
	if strings.TrimSpace(a.EffectivenessFollowUp) != "" {
		return domain.StatusClosed
	}
	if a.StartDate == "" || a.EndDate == "" {
		return domain.StatusOpen
	}
	end, ok := ParseDate(a.EndDate, now.Location())
	if ok && startOfDay(now).After(end) {
		return domain.StatusDelayed
	}
	return domain.StatusInProgress
}

// ParseDate reads a calendar date (or an RFC 3339 timestamp, truncated to its
// day in loc) and returns midnight of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return startOfDay(t.In(loc)), true
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
