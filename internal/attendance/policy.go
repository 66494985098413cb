// Package attendance turns raw terminal punches into daily attendance rows.
package attendance

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"studio-backend/internal/model"
)

// Clock is a minute of the day written as "HH:MM".
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", s)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c *Clock) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseClock(node.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// MinuteOf returns the minute of day of t in loc.
func MinuteOf(t time.Time, loc *time.Location) Clock {
	local := t.In(loc)
	return NewClock(local.Hour(), local.Minute())
}

// Policy holds the shift boundaries used to classify a check-in.
type Policy struct {
	ShiftStart   Clock `yaml:"shift_start"`
	OnTimeCutoff Clock `yaml:"on_time_cutoff"`
	LateCutoff   Clock `yaml:"late_cutoff"`
	AbsentCutoff Clock `yaml:"absent_cutoff"`
	ShiftEnd     Clock `yaml:"shift_end"`
}

func DefaultPolicy() Policy {
	return Policy{
		ShiftStart:   NewClock(8, 0),
		OnTimeCutoff: NewClock(8, 16),
		LateCutoff:   NewClock(9, 0),
		AbsentCutoff: NewClock(12, 0),
		ShiftEnd:     NewClock(17, 0),
	}
}

func (p Policy) Validate() error {
	if !(p.ShiftStart <= p.OnTimeCutoff && p.OnTimeCutoff <= p.LateCutoff && p.LateCutoff <= p.AbsentCutoff) {
		return fmt.Errorf("attendance policy boundaries out of order: start %s, on-time %s, late %s, absent %s",
			p.ShiftStart, p.OnTimeCutoff, p.LateCutoff, p.AbsentCutoff)
	}
	return nil
}

// LoadPolicy reads a YAML policy file. Missing keys keep their defaults and a
// missing file yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read attendance policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse attendance policy: %w", err)
	}
	return p, p.Validate()
}

// Classify derives the status of a day from its check-in minute:
//
//	minute <  on-time cutoff          present_on_time
//	minute <= late cutoff             present_late
//	minute <= absent cutoff           absent
//	otherwise                         present
func (p Policy) Classify(minute Clock) (status string, lateMinutes int) {
	switch {
	case minute < p.OnTimeCutoff:
		return model.AttendancePresentOnTime, 0
	case minute <= p.LateCutoff:
		late := int(minute - p.ShiftStart)
		if late < 0 {
			late = 0
		}
		return model.AttendancePresentLate, late
	case minute <= p.AbsentCutoff:
		return model.AttendanceAbsent, 0
	default:
		return model.AttendancePresent, 0
	}
}

// IsWorkingDay reports Monday through Friday.
func IsWorkingDay(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// DayOf returns the local calendar date of t as midnight UTC, the form stored
// in the date column.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayBounds returns [start, end) of the calendar day in loc.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
