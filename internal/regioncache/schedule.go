package regioncache

import "time"

// Schedule is a fixed daily refresh boundary, Hour:00 in Location.
type Schedule struct {
	Hour     int
	Location *time.Location
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s Schedule) on(t time.Time, dayOffset int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+dayOffset, s.Hour, 0, 0, 0, s.loc())
}

// Previous is the latest boundary at or before now.
func (s Schedule) Previous(now time.Time) time.Time {
	local := now.In(s.loc())
	b := s.on(local, 0)
	if b.After(now) {
		b = s.on(local, -1)
	}
	return b
}

// Next is the first boundary strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	local := now.In(s.loc())
	b := s.on(local, 0)
	if !b.After(now) {
		b = s.on(local, 1)
	}
	return b
}
