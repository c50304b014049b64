// Package schedule models the daily systemd timer that starts the backup cycle.
package schedule

import (
	"fmt"
	"time"
)

// Daily fires once a day at Hour:Minute local time.
type Daily struct {
	Hour   int
	Minute int
}

// ParseDaily parses "HH:MM". An empty string selects 02:00.
func ParseDaily(s string) (Daily, error) {
	if s == "" {
		return Daily{Hour: 2}, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Daily{}, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return Daily{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (d Daily) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// OnCalendar renders the systemd calendar expression.
func (d Daily) OnCalendar() string {
	return fmt.Sprintf("*-*-* %02d:%02d:00", d.Hour, d.Minute)
}

// NextRun returns the first fire time strictly after now.
func (d Daily) NextRun(now time.Time) time.Time {
	cand := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, now.Location())
	if !cand.After(now) {
		cand = time.Date(now.Year(), now.Month(), now.Day()+1, d.Hour, d.Minute, 0, 0, now.Location())
	}
	return cand
}

// NextUpload returns the first fire time at or after dueAt, and never before now. A zero
// dueAt means an upload is due at the next run.
func (d Daily) NextUpload(dueAt, now time.Time) time.Time {
	if dueAt.IsZero() || !dueAt.After(now) {
		return d.NextRun(now)
	}
	dueAt = dueAt.In(now.Location())
	cand := time.Date(dueAt.Year(), dueAt.Month(), dueAt.Day(), d.Hour, d.Minute, 0, 0, now.Location())
	if cand.Before(dueAt) {
		cand = time.Date(dueAt.Year(), dueAt.Month(), dueAt.Day()+1, d.Hour, d.Minute, 0, 0, now.Location())
	}
	return cand
}
