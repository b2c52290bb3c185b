package escalation

import (
	"log"
	"time"

	"github.com/getdatasurge/escalation-engine/internal/database"
)

// quietWindow evaluates a policy's quiet-hours window in the
// organization's local time. Actions due inside the window are deferred
// to the window's end, never dropped.
type quietWindow struct {
	enabled      bool
	startMinutes int // minutes from local midnight
	endMinutes   int
	loc          *time.Location
}

// newQuietWindow parses the policy config. A malformed window or unknown
// timezone disables deferral rather than blocking notifications.
func newQuietWindow(qh database.QuietHours, timezone string) quietWindow {
	if !qh.Enabled {
		return quietWindow{}
	}

	start, okStart := parseClock(qh.StartLocal)
	end, okEnd := parseClock(qh.EndLocal)
	if !okStart || !okEnd || start == end {
		log.Printf("Planner: ignoring malformed quiet hours window %q-%q", qh.StartLocal, qh.EndLocal)
		return quietWindow{}
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("Planner: unknown quiet hours timezone %q, falling back to UTC", timezone)
		loc = time.UTC
	}

	return quietWindow{
		enabled:      true,
		startMinutes: start,
		endMinutes:   end,
		loc:          loc,
	}
}

// parseClock parses "HH:MM" into minutes from midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// contains reports whether t falls inside the window.
func (w quietWindow) contains(t time.Time) bool {
	if !w.enabled {
		return false
	}
	local := t.In(w.loc)
	m := local.Hour()*60 + local.Minute()

	if w.startMinutes < w.endMinutes {
		return m >= w.startMinutes && m < w.endMinutes
	}
	// Window wraps midnight, e.g. 22:00-06:30.
	return m >= w.startMinutes || m < w.endMinutes
}

// deferTime pushes a due time inside the window to the window's end: the
// same local day's end for a non-wrapping window or the before-midnight
// segment of a wrapping one, the next day's end for the after-midnight
// segment.
func (w quietWindow) deferTime(t time.Time) time.Time {
	if !w.contains(t) {
		return t
	}

	local := t.In(w.loc)
	m := local.Hour()*60 + local.Minute()

	endDay := local
	if w.startMinutes > w.endMinutes && m >= w.startMinutes {
		// In the pre-midnight segment of a wrapping window; the end is
		// tomorrow.
		endDay = local.AddDate(0, 0, 1)
	}

	return time.Date(endDay.Year(), endDay.Month(), endDay.Day(),
		w.endMinutes/60, w.endMinutes%60, 0, 0, w.loc)
}
