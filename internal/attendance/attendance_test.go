package attendance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/model"
)

var hcm = time.FixedZone("ICT", 7*3600)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, hcm)
}

func TestPolicy_ClassifyBoundaries(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		clock  string
		status string
		late   int
	}{
		{"07:30", model.AttendancePresentOnTime, 0},
		{"08:15", model.AttendancePresentOnTime, 0},
		{"08:16", model.AttendancePresentLate, 16}, // on-time cutoff itself is late
		{"08:59", model.AttendancePresentLate, 59},
		{"09:00", model.AttendancePresentLate, 60}, // late cutoff is inclusive
		{"09:01", model.AttendanceAbsent, 0},
		{"12:00", model.AttendanceAbsent, 0}, // absent cutoff is inclusive
		{"12:01", model.AttendancePresent, 0},
		{"18:00", model.AttendancePresent, 0},
	}
	for _, tc := range cases {
		t.Run(tc.clock, func(t *testing.T) {
			c, err := ParseClock(tc.clock)
			require.NoError(t, err)
			status, late := p.Classify(c)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.late, late)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	path := filepath.Join(t.TempDir(), "attendance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("on_time_cutoff: \"08:30\"\nlate_cutoff: \"09:15\"\n"), 0o600))
	p, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "08:30", p.OnTimeCutoff.String())
	assert.Equal(t, "09:15", p.LateCutoff.String())
	assert.Equal(t, "08:00", p.ShiftStart.String(), "unset keys keep defaults")

	require.NoError(t, os.WriteFile(path, []byte("on_time_cutoff: \"10:00\"\n"), 0o600))
	_, err = LoadPolicy(path)
	assert.Error(t, err, "on-time after late cutoff is rejected")

	require.NoError(t, os.WriteFile(path, []byte("shift_start: \"8am\"\n"), 0o600))
	_, err = LoadPolicy(path)
	assert.Error(t, err)
}

func TestReconciler_Days(t *testing.T) {
	r := Reconciler{Policy: DefaultPolicy(), Location: hcm}
	punches := []model.AttendanceLog{
		{UserPIN: "1001", PunchedAt: at(3, 17, 45)},
		{UserPIN: "1001", PunchedAt: at(3, 8, 20)},
		{UserPIN: "1001", PunchedAt: at(3, 12, 5)},
		{UserPIN: "1001", PunchedAt: at(3, 8, 20)}, // same punch seen by a second terminal
		{UserPIN: "2002", PunchedAt: at(3, 8, 0)},
		{UserPIN: "1001", PunchedAt: at(4, 7, 55)},
	}

	days := r.Days(punches)
	require.Len(t, days, 3)

	d := days[0]
	assert.Equal(t, "1001", d.PIN)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), d.Day)
	assert.True(t, d.CheckIn.Equal(at(3, 8, 20)))
	require.NotNil(t, d.CheckOut)
	assert.True(t, d.CheckOut.Equal(at(3, 17, 45)))
	assert.Equal(t, 3, d.PunchCount)
	assert.Equal(t, model.AttendancePresentLate, d.Status)
	assert.Equal(t, 20, d.LateMinutes)
	assert.Equal(t, 565, d.WorkMinutes)

	single := days[1]
	assert.Equal(t, "2002", single.PIN)
	assert.Nil(t, single.CheckOut, "a single punch has no check-out")
	assert.Equal(t, model.AttendancePresentOnTime, single.Status)
	assert.Zero(t, single.WorkMinutes)

	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), days[2].Day)
}

func TestReconciler_IsIdempotent(t *testing.T) {
	r := Reconciler{Policy: DefaultPolicy(), Location: hcm}
	punches := []model.AttendanceLog{
		{UserPIN: "1001", PunchedAt: at(3, 8, 20)},
		{UserPIN: "1001", PunchedAt: at(3, 17, 0)},
	}
	reversed := []model.AttendanceLog{punches[1], punches[0]}
	assert.Equal(t, r.Days(punches), r.Days(reversed))
	assert.Equal(t, r.Days(punches), r.Days(append(punches, punches...)))
}

func TestReconciler_UsesLocalDate(t *testing.T) {
	r := Reconciler{Policy: DefaultPolicy(), Location: hcm}
	// 23:30 UTC on the 2nd is 06:30 on the 3rd in UTC+7.
	days := r.Days([]model.AttendanceLog{{UserPIN: "1", PunchedAt: time.Date(2025, 3, 2, 23, 30, 0, 0, time.UTC)}})
	require.Len(t, days, 1)
	assert.Equal(t, 3, days[0].Day.Day())
}

func TestDayRowsAndHelpers(t *testing.T) {
	emp := uuid.New()
	days := Reconciler{Policy: DefaultPolicy(), Location: hcm}.Days([]model.AttendanceLog{{UserPIN: "1", PunchedAt: at(3, 8, 0)}})
	row := days[0].Row(emp)
	assert.Equal(t, emp, row.EmployeeID)
	assert.Equal(t, model.AttendanceSourceMachine, row.Source)
	require.NotNil(t, row.CheckIn)

	absent := AbsentRow(emp, days[0].Day)
	assert.Equal(t, model.AttendanceAbsent, absent.Status)
	assert.Equal(t, model.AttendanceSourceSynthesized, absent.Source)
	assert.Nil(t, absent.CheckIn)

	assert.True(t, IsWorkingDay(time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)))  // Friday
	assert.False(t, IsWorkingDay(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC))) // Saturday

	start, end := DayBounds(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), hcm)
	assert.True(t, start.Equal(at(3, 0, 0)))
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	assert.Equal(t, "7.50", WorkHours(450))
	assert.Equal(t, "0.00", WorkHours(-5))
}
