package xp

import (
	"fmt"
	"time"
)

// Window is an inclusive time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Today runs from local midnight to now.
func Today(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: now}
}

// ThisWeek runs from Monday 00:00 local to now.
func ThisWeek(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	start := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	return Window{Start: start, End: now}
}

// AllTime covers every event up to now.
func AllTime(now time.Time) Window {
	return Window{Start: time.Unix(0, 0).UTC(), End: now}
}

func WindowByName(name string, now time.Time, loc *time.Location) (Window, error) {
	switch name {
	case "", "today":
		return Today(now, loc), nil
	case "week":
		return ThisWeek(now, loc), nil
	case "all":
		return AllTime(now), nil
	}
	return Window{}, fmt.Errorf("unknown window %q", name)
}
