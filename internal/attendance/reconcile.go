package attendance

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"studio-backend/internal/model"
)

// Key identifies one ledger row.
type Key struct {
	PIN string
	Day time.Time
}

// Day is the reconciled view of one employee's punches on one date.
type Day struct {
	Key
	CheckIn     time.Time
	CheckOut    *time.Time
	PunchCount  int
	Status      string
	LateMinutes int
	WorkMinutes int
}

// Reconciler groups punches into days. It is pure and idempotent: the same
// punches always produce the same days.
type Reconciler struct {
	Policy   Policy
	Location *time.Location
}

// Days folds punches per (pin, local date). Check-in is the earliest punch.
// Check-out is the latest one and only exists when the day has at least two
// distinct punch times. Duplicate timestamps from several terminals count once.
func (r Reconciler) Days(punches []model.AttendanceLog) []Day {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}

	type span struct {
		first, last time.Time
		distinct    map[int64]struct{}
	}
	acc := make(map[Key]*span)
	for _, p := range punches {
		k := Key{PIN: p.UserPIN, Day: DayOf(p.PunchedAt, loc)}
		sp, ok := acc[k]
		if !ok {
			sp = &span{first: p.PunchedAt, last: p.PunchedAt, distinct: map[int64]struct{}{}}
			acc[k] = sp
		}
		sp.distinct[p.PunchedAt.Unix()] = struct{}{}
		if p.PunchedAt.Before(sp.first) {
			sp.first = p.PunchedAt
		}
		if p.PunchedAt.After(sp.last) {
			sp.last = p.PunchedAt
		}
	}

	days := make([]Day, 0, len(acc))
	for k, sp := range acc {
		d := Day{Key: k, CheckIn: sp.first, PunchCount: len(sp.distinct)}
		if d.PunchCount >= 2 {
			out := sp.last
			d.CheckOut = &out
			d.WorkMinutes = int(out.Sub(d.CheckIn) / time.Minute)
		}
		d.Status, d.LateMinutes = r.Policy.Classify(MinuteOf(d.CheckIn, loc))
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		if !days[i].Day.Equal(days[j].Day) {
			return days[i].Day.Before(days[j].Day)
		}
		return days[i].PIN < days[j].PIN
	})
	return days
}

// Row converts a reconciled day into the ledger row for employeeID.
func (d Day) Row(employeeID uuid.UUID) model.Attendance {
	in := d.CheckIn
	return model.Attendance{
		EmployeeID:  employeeID,
		Date:        d.Day,
		CheckIn:     &in,
		CheckOut:    d.CheckOut,
		Status:      d.Status,
		LateMinutes: d.LateMinutes,
		WorkMinutes: d.WorkMinutes,
		PunchCount:  d.PunchCount,
		Source:      model.AttendanceSourceMachine,
	}
}

// AbsentRow is the synthesized row for an employee with no punches.
func AbsentRow(employeeID uuid.UUID, day time.Time) model.Attendance {
	return model.Attendance{
		EmployeeID: employeeID,
		Date:       day,
		Status:     model.AttendanceAbsent,
		Source:     model.AttendanceSourceSynthesized,
		Notes:      "no punches recorded",
	}
}

// WorkHours renders minutes as decimal hours with two places, e.g. "7.50".
func WorkHours(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).StringFixed(2)
}
