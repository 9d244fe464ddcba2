package scheduler

import (
	"fmt"
	"time"
)

// Trigger decides whether a task is due at now given when it last ran.
// Implementations must be deterministic: the scheduler marks the run before
// invoking the action and asks again on every tick.
type Trigger interface {
	Due(now, lastRun time.Time) bool
}

type atTrigger struct {
	hour, minute int
}

// At fires once per day at or after the given HH:MM exchange-local time.
// A missed slot (process down, holiday tick skipped) fires on the first
// tick after the time passes, never twice in one day.
func At(hhmm string) (Trigger, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return nil, err
	}
	return &atTrigger{hour: h, minute: m}, nil
}

// MustAt is At for statically known times.
func MustAt(hhmm string) Trigger {
	t, err := At(hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *atTrigger) Due(now, lastRun time.Time) bool {
	now = now.In(ist)
	slot := time.Date(now.Year(), now.Month(), now.Day(), t.hour, t.minute, 0, 0, ist)
	if now.Before(slot) {
		return false
	}
	return lastRun.Before(slot)
}

type everyTrigger struct {
	interval               time.Duration
	fromH, fromM, toH, toM int
	windowed               bool
}

// Every fires on the given interval. With a window, only between from and
// to (inclusive) exchange-local time.
func Every(interval time.Duration) Trigger {
	return &everyTrigger{interval: interval}
}

// EveryBetween fires on the interval, restricted to the HH:MM window.
func EveryBetween(interval time.Duration, from, to string) (Trigger, error) {
	fh, fm, err := parseHHMM(from)
	if err != nil {
		return nil, err
	}
	th, tm, err := parseHHMM(to)
	if err != nil {
		return nil, err
	}
	return &everyTrigger{
		interval: interval,
		fromH:    fh, fromM: fm,
		toH: th, toM: tm,
		windowed: true,
	}, nil
}

// MustEveryBetween is EveryBetween for statically known windows.
func MustEveryBetween(interval time.Duration, from, to string) Trigger {
	t, err := EveryBetween(interval, from, to)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *everyTrigger) Due(now, lastRun time.Time) bool {
	now = now.In(ist)
	if t.windowed {
		mins := now.Hour()*60 + now.Minute()
		if mins < t.fromH*60+t.fromM || mins > t.toH*60+t.toM {
			return false
		}
	}
	return now.Sub(lastRun) >= t.interval
}

func parseHHMM(s string) (h, m int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return h, m, nil
}
