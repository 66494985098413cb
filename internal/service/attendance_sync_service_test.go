package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
	"studio-backend/internal/attendance"
	"studio-backend/internal/lock"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
	"studio-backend/internal/terminal"
)

type memMachines struct {
	rows map[uuid.UUID]model.AttendanceMachine
}

func (m *memMachines) Create(_ context.Context, mc *model.AttendanceMachine) error {
	for _, existing := range m.rows {
		if existing.SerialNumber == mc.SerialNumber {
			return apperr.Field("serial_number", "serial number is already registered")
		}
	}
	if mc.ID == uuid.Nil {
		mc.ID = uuid.New()
	}
	m.rows[mc.ID] = *mc
	return nil
}

func (m *memMachines) GetByID(_ context.Context, id uuid.UUID) (*model.AttendanceMachine, error) {
	if mc, ok := m.rows[id]; ok {
		return &mc, nil
	}
	return nil, apperr.NotFound("attendance machine")
}

func (m *memMachines) List(context.Context, string, int, int) ([]model.AttendanceMachine, int64, error) {
	out := make([]model.AttendanceMachine, 0, len(m.rows))
	for _, mc := range m.rows {
		out = append(out, mc)
	}
	return out, int64(len(out)), nil
}

func (m *memMachines) ListActive(context.Context) ([]model.AttendanceMachine, error) {
	var out []model.AttendanceMachine
	for _, mc := range m.rows {
		if mc.IsActive {
			out = append(out, mc)
		}
	}
	return out, nil
}

func (m *memMachines) Update(_ context.Context, mc *model.AttendanceMachine) error {
	m.rows[mc.ID] = *mc
	return nil
}

func (m *memMachines) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.rows[id]; !ok {
		return apperr.NotFound("attendance machine")
	}
	delete(m.rows, id)
	return nil
}

func (m *memMachines) MarkStatus(_ context.Context, id uuid.UUID, status string, syncedAt *time.Time) error {
	mc := m.rows[id]
	mc.Status = status
	if syncedAt != nil {
		mc.LastSyncAt = syncedAt
	}
	m.rows[id] = mc
	return nil
}

type memEmployees struct {
	rows []model.Employee
}

func (m *memEmployees) Create(_ context.Context, e *model.Employee) error {
	for _, existing := range m.rows {
		if existing.PIN == e.PIN {
			return apperr.Field("pin", "pin is already assigned")
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.rows = append(m.rows, *e)
	return nil
}

func (m *memEmployees) GetByID(_ context.Context, id uuid.UUID) (*model.Employee, error) {
	for _, e := range m.rows {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, apperr.NotFound("employee")
}

func (m *memEmployees) List(context.Context, string, int, int) ([]model.Employee, int64, error) {
	return m.rows, int64(len(m.rows)), nil
}

func (m *memEmployees) ListActive(context.Context) ([]model.Employee, error) {
	var out []model.Employee
	for _, e := range m.rows {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEmployees) FindByPINs(_ context.Context, pins []string) ([]model.Employee, error) {
	var out []model.Employee
	for _, e := range m.rows {
		for _, p := range pins {
			if e.PIN == p {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

type memPunches struct {
	rows []model.AttendanceLog
}

func (m *memPunches) InsertNew(_ context.Context, logs []model.AttendanceLog) (int, error) {
	n := 0
	for _, l := range logs {
		dup := false
		for _, existing := range m.rows {
			if existing.MachineID == l.MachineID && existing.UserPIN == l.UserPIN && existing.PunchedAt.Equal(l.PunchedAt) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		l.ID = uuid.New()
		m.rows = append(m.rows, l)
		n++
	}
	return n, nil
}

func (m *memPunches) Find(_ context.Context, f repository.PunchLogFilter) ([]model.AttendanceLog, error) {
	var out []model.AttendanceLog
	for _, l := range m.rows {
		if !f.From.IsZero() && l.PunchedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !l.PunchedAt.Before(f.To) {
			continue
		}
		if f.UnprocessedOnly && l.IsProcessed {
			continue
		}
		if len(f.PINs) > 0 {
			found := false
			for _, p := range f.PINs {
				found = found || p == l.UserPIN
			}
			if !found {
				continue
			}
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PunchedAt.Before(out[j].PunchedAt) })
	return out, nil
}

func (m *memPunches) MarkProcessed(_ context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		for i := range m.rows {
			if m.rows[i].ID == id {
				m.rows[i].IsProcessed = true
				stamp := at
				m.rows[i].ProcessedAt = &stamp
			}
		}
	}
	return nil
}

func (m *memPunches) unprocessed() int {
	n := 0
	for _, l := range m.rows {
		if !l.IsProcessed {
			n++
		}
	}
	return n
}

type dayKey struct {
	employee uuid.UUID
	day      time.Time
}

type memLedger struct {
	rows map[dayKey]model.Attendance
}

func (m *memLedger) Upsert(_ context.Context, rows []model.Attendance) error {
	for _, r := range rows {
		m.rows[dayKey{r.EmployeeID, r.Date}] = r
	}
	return nil
}

func (m *memLedger) InsertAbsent(_ context.Context, rows []model.Attendance) (int, error) {
	n := 0
	for _, r := range rows {
		k := dayKey{r.EmployeeID, r.Date}
		if _, ok := m.rows[k]; ok {
			continue
		}
		m.rows[k] = r
		n++
	}
	return n, nil
}

func (m *memLedger) List(_ context.Context, f repository.AttendanceFilter) ([]model.Attendance, int64, error) {
	var out []model.Attendance
	for _, r := range m.rows {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.EmployeeID != nil && r.EmployeeID != *f.EmployeeID {
			continue
		}
		if !f.From.IsZero() && r.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !r.Date.Before(f.To) {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (m *memLedger) get(employee uuid.UUID, day time.Time) (model.Attendance, bool) {
	r, ok := m.rows[dayKey{employee, day}]
	return r, ok
}

type memSyncLogs struct {
	rows []model.MachineSyncLog
}

func (m *memSyncLogs) Create(_ context.Context, e *model.MachineSyncLog) error {
	m.rows = append(m.rows, *e)
	return nil
}

func (m *memSyncLogs) ListByMachine(_ context.Context, id uuid.UUID, _, _ int) ([]model.MachineSyncLog, int64, error) {
	var out []model.MachineSyncLog
	for _, r := range m.rows {
		if r.MachineID == id {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

type fakeTerminal struct {
	punches  []terminal.Punch
	err      error
	failPINs map[string]bool
	users    []terminal.User
	cleared  bool
	setTime  time.Time
}

func (f *fakeTerminal) Ping(context.Context, terminal.Device) (time.Time, error) {
	return time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC), f.err
}

func (f *fakeTerminal) AttendanceLogs(context.Context, terminal.Device) ([]terminal.Punch, error) {
	return f.punches, f.err
}

func (f *fakeTerminal) SetUser(_ context.Context, _ terminal.Device, u terminal.User) error {
	if f.err != nil {
		return f.err
	}
	if f.failPINs[u.PIN] {
		return terminal.ErrDeviceRejected.Clone()
	}
	f.users = append(f.users, u)
	return nil
}

func (f *fakeTerminal) DeleteUser(context.Context, terminal.Device, string) error { return f.err }

func (f *fakeTerminal) Restart(context.Context, terminal.Device) error { return f.err }

func (f *fakeTerminal) ClearAttendance(context.Context, terminal.Device) error {
	f.cleared = f.err == nil
	return f.err
}

func (f *fakeTerminal) SetTime(_ context.Context, _ terminal.Device, t time.Time) error {
	f.setTime = t
	return f.err
}

type syncFixture struct {
	svc      AttendanceSyncService
	machines *memMachines
	staff    *memEmployees
	punches  *memPunches
	ledger   *memLedger
	syncLogs *memSyncLogs
	device   *fakeTerminal
	locker   *lock.LocalLocker
	machine  model.AttendanceMachine
	alice    model.Employee
	bob      model.Employee
	hr       model.Caller
}

// Wednesday 2025-03-05, 18:00 UTC.
var syncNow = time.Date(2025, 3, 5, 18, 0, 0, 0, time.UTC)

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		machines: &memMachines{rows: map[uuid.UUID]model.AttendanceMachine{}},
		staff:    &memEmployees{},
		punches:  &memPunches{},
		ledger:   &memLedger{rows: map[dayKey]model.Attendance{}},
		syncLogs: &memSyncLogs{},
		device:   &fakeTerminal{failPINs: map[string]bool{}},
		locker:   lock.NewLocalLocker(),
		hr:       model.Caller{ID: uuid.New(), Role: model.RoleHR},
	}
	f.machine = model.AttendanceMachine{ID: uuid.New(), Name: "Lobby", IPAddress: "10.0.0.5", Port: 80, SerialNumber: "SN1", IsActive: true}
	f.machines.rows[f.machine.ID] = f.machine
	f.alice = model.Employee{ID: uuid.New(), Name: "Alice", PIN: "1001", IsActive: true}
	f.bob = model.Employee{ID: uuid.New(), Name: "Bob", PIN: "1002", IsActive: true}
	f.staff.rows = []model.Employee{f.alice, f.bob}

	f.svc = NewAttendanceSyncService(AttendanceSyncDeps{
		Machines:   f.machines,
		Employees:  f.staff,
		Logs:       f.punches,
		Attendance: f.ledger,
		SyncLogs:   f.syncLogs,
		Tx:         memTx{},
		Client:     f.device,
		Locker:     f.locker,
		Policy:     attendance.DefaultPolicy(),
		Location:   time.UTC,
		Now:        func() time.Time { return syncNow },
	})
	return f
}

func punch(pin string, day, hour, minute int) terminal.Punch {
	return terminal.Punch{PIN: pin, Time: time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)}
}

func march(day int) time.Time {
	return time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
}

func TestSync_PullAndProcessBuildsDailyRows(t *testing.T) {
	f := newSyncFixture(t)
	f.device.punches = []terminal.Punch{
		punch("1001", 5, 8, 10),
		punch("1001", 5, 17, 30),
		punch("1001", 5, 17, 30),
		punch("9999", 5, 9, 0),
	}

	res, err := f.svc.PullAndProcess(context.Background(), f.hr, f.machine.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	alice, ok := f.ledger.get(f.alice.ID, march(5))
	require.True(t, ok)
	assert.Equal(t, model.AttendancePresentOnTime, alice.Status)
	assert.Equal(t, 2, alice.PunchCount)
	require.NotNil(t, alice.CheckOut)
	assert.Equal(t, 9*60+20, alice.WorkMinutes)

	bob, ok := f.ledger.get(f.bob.ID, march(5))
	require.True(t, ok, "active employee without punches is marked absent")
	assert.Equal(t, model.AttendanceAbsent, bob.Status)
	assert.Equal(t, model.AttendanceSourceSynthesized, bob.Source)

	assert.Equal(t, 1, f.punches.unprocessed(), "unmatched punch stays unprocessed")
	assert.Equal(t, model.MachineStatusOnline, f.machines.rows[f.machine.ID].Status)
	require.Len(t, f.syncLogs.rows, 1)
	assert.Equal(t, 3, f.syncLogs.rows[0].RecordsInserted)
}

func TestSync_ProcessingIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.device.punches = []terminal.Punch{punch("1001", 5, 8, 40), punch("1001", 5, 17, 0)}

	_, err := f.svc.PullAndProcess(ctx, f.hr, f.machine.ID, nil)
	require.NoError(t, err)
	first, _ := f.ledger.get(f.alice.ID, march(5))

	again, err := f.svc.PullAndProcess(ctx, f.hr, f.machine.ID, nil)
	require.NoError(t, err)
	second, _ := f.ledger.get(f.alice.ID, march(5))

	assert.Equal(t, first, second)
	assert.Equal(t, model.AttendancePresentLate, second.Status)
	assert.Equal(t, 40, second.LateMinutes)
	assert.Equal(t, pullReport{Fetched: 2, Inserted: 0}, again.Data.(map[string]interface{})["pull"])
}

func TestSync_LaterPunchReplacesSynthesizedAbsence(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.device.punches = []terminal.Punch{punch("1001", 5, 8, 0)}
	_, err := f.svc.PullAndProcess(ctx, f.hr, f.machine.ID, nil)
	require.NoError(t, err)

	bob, _ := f.ledger.get(f.bob.ID, march(5))
	require.Equal(t, model.AttendanceSourceSynthesized, bob.Source)

	f.device.punches = append(f.device.punches, punch("1002", 5, 13, 5))
	_, err = f.svc.PullAndProcess(ctx, f.hr, f.machine.ID, nil)
	require.NoError(t, err)

	bob, _ = f.ledger.get(f.bob.ID, march(5))
	assert.Equal(t, model.AttendanceSourceMachine, bob.Source)
	assert.Equal(t, model.AttendancePresent, bob.Status)
}

func TestSync_ProcessDateFillsWeekdayAbsencesOnly(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	saturday := march(1)
	res, err := f.svc.Process(ctx, f.hr, &saturday)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, f.ledger.rows)

	monday := march(3)
	res, err = f.svc.Process(ctx, f.hr, &monday)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data.(model.PunchProcessResult).AbsentSynthesized)

	future := march(20)
	_, err = f.svc.Process(ctx, f.hr, &future)
	require.NoError(t, err)
	_, ok := f.ledger.get(f.alice.ID, future)
	assert.False(t, ok)
}

func TestSync_BusyLockReportsFailure(t *testing.T) {
	f := newSyncFixture(t)
	release, err := f.locker.Acquire(context.Background(), lock.MachineKey(f.machine.ID), time.Minute)
	require.NoError(t, err)
	defer release()

	res, err := f.svc.PullAttendance(context.Background(), f.hr, f.machine.ID, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "already running")
	assert.Empty(t, f.punches.rows)
}

func TestSync_DeviceFailuresAreResults(t *testing.T) {
	f := newSyncFixture(t)
	f.device.err = errors.New("dial tcp 10.0.0.5:80: connection refused")

	res, err := f.svc.Restart(context.Background(), f.hr, f.machine.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "connection refused")
	assert.Equal(t, model.MachineStatusOffline, f.machines.rows[f.machine.ID].Status)
	require.Len(t, f.syncLogs.rows, 1)
	assert.False(t, f.syncLogs.rows[0].Success)
	assert.Equal(t, model.SyncOpRestart, f.syncLogs.rows[0].Operation)
}

func TestSync_SyncAllUsersContinuesPastFailures(t *testing.T) {
	f := newSyncFixture(t)
	f.device.failPINs["1001"] = true

	res, err := f.svc.SyncAllUsers(context.Background(), f.hr, f.machine.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	batch := res.Data.(model.BatchResult)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Contains(t, batch.Failures, "1001")
	require.Len(t, f.device.users, 1)
	assert.Equal(t, "1002", f.device.users[0].PIN)
}

func TestSync_DeviceAdminOperations(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	res, err := f.svc.SyncUser(ctx, f.hr, f.machine.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = f.svc.ClearData(ctx, f.hr, f.machine.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, f.device.cleared)

	res, err = f.svc.SyncTime(ctx, f.hr, f.machine.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, syncNow, f.device.setTime)

	_, err = f.svc.RemoveUser(ctx, f.hr, f.machine.ID, " ")
	assert.Contains(t, apperr.FieldsOf(err), "pin")

	logs, total, err := f.svc.SyncLogs(ctx, f.hr, f.machine.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, logs, 3)
}

func TestSync_CallerAndLookupErrors(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	_, err := f.svc.TestConnection(ctx, model.Caller{ID: uuid.New(), Role: model.RoleProducer}, f.machine.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = f.svc.TestConnection(ctx, f.hr, uuid.New())
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	res, err := f.svc.TestConnection(ctx, f.hr, f.machine.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestSync_RunScheduled(t *testing.T) {
	f := newSyncFixture(t)
	f.device.punches = []terminal.Punch{punch("1002", 5, 8, 5)}

	results := f.svc.RunScheduled(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)

	bob, ok := f.ledger.get(f.bob.ID, march(5))
	require.True(t, ok)
	assert.Equal(t, model.AttendancePresentOnTime, bob.Status)
}
