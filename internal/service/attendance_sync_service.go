package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"studio-backend/internal/apperr"
	"studio-backend/internal/attendance"
	"studio-backend/internal/lock"
	"studio-backend/internal/logging"
	"studio-backend/internal/metrics"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
	"studio-backend/internal/terminal"
	"studio-backend/pkg/pagination"
)

// DeviceClient is the terminal protocol as the pipeline uses it.
type DeviceClient interface {
	Ping(ctx context.Context, d terminal.Device) (time.Time, error)
	AttendanceLogs(ctx context.Context, d terminal.Device) ([]terminal.Punch, error)
	SetUser(ctx context.Context, d terminal.Device, u terminal.User) error
	DeleteUser(ctx context.Context, d terminal.Device, pin string) error
	Restart(ctx context.Context, d terminal.Device) error
	ClearAttendance(ctx context.Context, d terminal.Device) error
	SetTime(ctx context.Context, d terminal.Device, t time.Time) error
}

// AttendanceSyncService talks to terminals and turns their punches into
// daily attendance rows. Device failures come back as an unsuccessful
// OperationResult. Only caller and lookup failures are returned as errors.
type AttendanceSyncService interface {
	TestConnection(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error)
	PullAttendance(ctx context.Context, caller model.Caller, machineID uuid.UUID, date *time.Time) (*model.OperationResult, error)
	PullAndProcess(ctx context.Context, caller model.Caller, machineID uuid.UUID, date *time.Time) (*model.OperationResult, error)
	Process(ctx context.Context, caller model.Caller, date *time.Time) (*model.OperationResult, error)
	SyncUser(ctx context.Context, caller model.Caller, machineID, employeeID uuid.UUID) (*model.OperationResult, error)
	SyncAllUsers(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error)
	RemoveUser(ctx context.Context, caller model.Caller, machineID uuid.UUID, pin string) (*model.OperationResult, error)
	Restart(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error)
	ClearData(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error)
	SyncTime(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error)
	SyncLogs(ctx context.Context, caller model.Caller, machineID uuid.UUID, page, limit int) ([]model.MachineSyncLog, int64, error)
	// RunScheduled pulls every active machine, then processes once.
	RunScheduled(ctx context.Context) []model.OperationResult
}

type AttendanceSyncDeps struct {
	Machines   repository.MachineRepository
	Employees  repository.EmployeeRepository
	Logs       repository.AttendanceLogRepository
	Attendance repository.AttendanceRepository
	SyncLogs   repository.SyncLogRepository
	Tx         repository.TransactionManager
	Client     DeviceClient
	Locker     lock.Locker
	Policy     attendance.Policy
	Location   *time.Location
	LockTTL    time.Duration
	Now        func() time.Time
}

type attendanceSyncService struct {
	machines   repository.MachineRepository
	employees  repository.EmployeeRepository
	logs       repository.AttendanceLogRepository
	attendance repository.AttendanceRepository
	syncLogs   repository.SyncLogRepository
	tx         repository.TransactionManager
	client     DeviceClient
	locker     lock.Locker
	reconciler attendance.Reconciler
	loc        *time.Location
	lockTTL    time.Duration
	now        func() time.Time
}

func NewAttendanceSyncService(d AttendanceSyncDeps) AttendanceSyncService {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 10 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	return &attendanceSyncService{
		machines:   d.Machines,
		employees:  d.Employees,
		logs:       d.Logs,
		attendance: d.Attendance,
		syncLogs:   d.SyncLogs,
		tx:         d.Tx,
		client:     d.Client,
		locker:     d.Locker,
		reconciler: attendance.Reconciler{Policy: d.Policy, Location: d.Location},
		loc:        d.Location,
		lockTTL:    d.LockTTL,
		now:        d.Now,
	}
}

func requireAttendanceRole(caller model.Caller) error {
	if !caller.Is(model.RoleHR, model.RoleAdmin) {
		return apperr.Forbidden("only hr or admin can manage attendance")
	}
	return nil
}

func (s *attendanceSyncService) deviceOf(m *model.AttendanceMachine) terminal.Device {
	return terminal.Device{Host: m.IPAddress, Port: m.Port, CommKey: m.CommKey, Location: s.loc}
}

func (s *attendanceSyncService) machine(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.AttendanceMachine, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	return s.machines.GetByID(ctx, id)
}

// outcome is what a single device operation reports back to record.
type outcome struct {
	message  string
	data     interface{}
	fetched  int
	inserted int
	details  interface{}
}

// record persists the sync log, refreshes the machine status and counts the
// operation. It returns the result handed to the caller.
func (s *attendanceSyncService) record(ctx context.Context, m *model.AttendanceMachine, op string, started time.Time, out outcome, opErr error) *model.OperationResult {
	finished := s.now()
	result := &model.OperationResult{Success: opErr == nil, Message: out.message, Data: out.data}
	if opErr != nil {
		result.Message = fmt.Sprintf("%s failed: %s", strings.ReplaceAll(op, "_", " "), deviceMessage(opErr))
	}

	entry := &model.MachineSyncLog{
		MachineID:       m.ID,
		Operation:       op,
		Success:         result.Success,
		Message:         result.Message,
		RecordsFetched:  out.fetched,
		RecordsInserted: out.inserted,
		StartedAt:       started,
		FinishedAt:      finished,
	}
	if out.details != nil {
		if raw, err := json.Marshal(out.details); err == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}

	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"machine_id": m.ID,
		"operation":  op,
		"success":    result.Success,
	})
	if err := s.syncLogs.Create(ctx, entry); err != nil {
		log.WithError(err).Warn("failed to write machine sync log")
	}

	status := model.MachineStatusOnline
	var syncedAt *time.Time
	switch {
	case opErr == nil:
		syncedAt = &finished
	case !terminal.Rejected(opErr):
		status = model.MachineStatusOffline
	}
	if err := s.machines.MarkStatus(ctx, m.ID, status, syncedAt); err != nil {
		log.WithError(err).Warn("failed to update machine status")
	}

	metrics.RecordDeviceOperation(op, result.Success)
	if opErr != nil {
		log.WithError(opErr).Warn("device operation failed")
	} else {
		log.Info(result.Message)
	}
	return result
}

func deviceMessage(err error) string {
	if terminal.Rejected(err) {
		return "the device rejected the command"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the device did not answer in time"
	}
	return err.Error()
}

// run executes one device operation on machine id.
func (s *attendanceSyncService) run(ctx context.Context, caller model.Caller, id uuid.UUID, op string, fn func(m *model.AttendanceMachine, d terminal.Device) (outcome, error)) (*model.OperationResult, error) {
	m, err := s.machine(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	started := s.now()
	out, opErr := fn(m, s.deviceOf(m))
	return s.record(ctx, m, op, started, out, opErr), nil
}

func busy(what string) *model.OperationResult {
	return &model.OperationResult{Success: false, Message: what + " is already running"}
}

func (s *attendanceSyncService) TestConnection(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error) {
	return s.run(ctx, caller, machineID, model.SyncOpTestConnection, func(m *model.AttendanceMachine, d terminal.Device) (outcome, error) {
		deviceTime, err := s.client.Ping(ctx, d)
		if err != nil {
			return outcome{}, err
		}
		drift := s.now().Sub(deviceTime).Round(time.Second)
		return outcome{
			message: fmt.Sprintf("connected to %s", m.Name),
			data: map[string]interface{}{
				"device_time":   deviceTime,
				"drift_seconds": int(drift / time.Second),
			},
		}, nil
	})
}

func (s *attendanceSyncService) PullAttendance(ctx context.Context, caller model.Caller, machineID uuid.UUID, date *time.Time) (*model.OperationResult, error) {
	m, err := s.machine(ctx, caller, machineID)
	if err != nil {
		return nil, err
	}
	release, err := s.locker.Acquire(ctx, lock.MachineKey(m.ID), s.lockTTL)
	if errors.Is(err, lock.ErrBusy) {
		return busy("attendance pull for " + m.Name), nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer release()
	return s.pull(ctx, m, date), nil
}

type pullReport struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
}

func (s *attendanceSyncService) pull(ctx context.Context, m *model.AttendanceMachine, date *time.Time) *model.OperationResult {
	started := s.now()
	punches, err := s.client.AttendanceLogs(ctx, s.deviceOf(m))
	if err != nil {
		return s.record(ctx, m, model.SyncOpPullAttendance, started, outcome{}, err)
	}

	var from, to time.Time
	if date != nil {
		from, to = attendance.DayBounds(*date, s.loc)
	}
	rows := make([]model.AttendanceLog, 0, len(punches))
	for _, p := range punches {
		if date != nil && (p.Time.Before(from) || !p.Time.Before(to)) {
			continue
		}
		rows = append(rows, model.AttendanceLog{
			MachineID:  m.ID,
			UserPIN:    p.PIN,
			PunchedAt:  p.Time.UTC(),
			VerifyMode: p.VerifyMode,
			InOutMode:  p.InOutMode,
		})
	}

	inserted, err := s.logs.InsertNew(ctx, rows)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("failed to store attendance logs")
		return s.record(ctx, m, model.SyncOpPullAttendance, started, outcome{fetched: len(rows)}, errors.New("could not store attendance logs"))
	}
	metrics.RecordPunchesIngested(inserted)

	report := pullReport{Fetched: len(rows), Inserted: inserted}
	return s.record(ctx, m, model.SyncOpPullAttendance, started, outcome{
		message:  fmt.Sprintf("fetched %d punches, %d new", report.Fetched, report.Inserted),
		data:     report,
		fetched:  report.Fetched,
		inserted: report.Inserted,
	}, nil)
}

func (s *attendanceSyncService) PullAndProcess(ctx context.Context, caller model.Caller, machineID uuid.UUID, date *time.Time) (*model.OperationResult, error) {
	pulled, err := s.PullAttendance(ctx, caller, machineID, date)
	if err != nil || !pulled.Success {
		return pulled, err
	}
	processed := s.process(ctx, date)
	return &model.OperationResult{
		Success: processed.Success,
		Message: pulled.Message + "; " + processed.Message,
		Data: map[string]interface{}{
			"pull":    pulled.Data,
			"process": processed.Data,
		},
	}, nil
}

func (s *attendanceSyncService) Process(ctx context.Context, caller model.Caller, date *time.Time) (*model.OperationResult, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	return s.process(ctx, date), nil
}

// process promotes unprocessed punches into daily rows. With a date it only
// touches that day and also fills absences for it.
func (s *attendanceSyncService) process(ctx context.Context, date *time.Time) *model.OperationResult {
	release, err := s.locker.Acquire(ctx, lock.ProcessKey, s.lockTTL)
	if errors.Is(err, lock.ErrBusy) {
		return busy("attendance processing")
	}
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("failed to acquire processing lock")
		return &model.OperationResult{Success: false, Message: "attendance processing could not start"}
	}
	defer release()

	report, err := s.reconcile(ctx, date)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("attendance processing failed")
		return &model.OperationResult{Success: false, Message: "attendance processing failed"}
	}
	metrics.RecordAttendanceRows(model.AttendanceSourceMachine, report.AttendanceUpserted)
	metrics.RecordAttendanceRows(model.AttendanceSourceSynthesized, report.AbsentSynthesized)

	msg := fmt.Sprintf("processed %d punches into %d attendance rows, %d absences filled",
		report.LogsProcessed, report.AttendanceUpserted, report.AbsentSynthesized)
	if report.Unmatched > 0 {
		msg += fmt.Sprintf(", %d punches have no matching employee", report.Unmatched)
	}
	return &model.OperationResult{Success: true, Message: msg, Data: report}
}

func (s *attendanceSyncService) reconcile(ctx context.Context, date *time.Time) (model.PunchProcessResult, error) {
	var report model.PunchProcessResult
	today := attendance.DayOf(s.now(), s.loc)

	filter := repository.PunchLogFilter{UnprocessedOnly: true}
	covered := map[time.Time]bool{}
	if date != nil {
		day := attendance.DayOf(*date, s.loc)
		filter.From, filter.To = attendance.DayBounds(day, s.loc)
		if !day.After(today) {
			covered[day] = true
		}
	}
	pending, err := s.logs.Find(ctx, filter)
	if err != nil {
		return report, err
	}

	pins := map[string]bool{}
	for _, l := range pending {
		pins[l.UserPIN] = true
	}
	byPIN := map[string]model.Employee{}
	if len(pins) > 0 {
		employees, err := s.employees.FindByPINs(ctx, setKeys(pins))
		if err != nil {
			return report, err
		}
		for _, e := range employees {
			byPIN[e.PIN] = e
		}
	}

	var processedIDs []uuid.UUID
	for _, l := range pending {
		if _, ok := byPIN[l.UserPIN]; !ok {
			report.Unmatched++
			continue
		}
		processedIDs = append(processedIDs, l.ID)
		covered[attendance.DayOf(l.PunchedAt, s.loc)] = true
	}
	report.LogsProcessed = len(processedIDs)

	// Reload every punch of the affected employees and days so the result
	// does not depend on which punches were already processed.
	var rows []model.Attendance
	if len(processedIDs) > 0 {
		days := sortedDays(covered)
		from, _ := attendance.DayBounds(days[0], s.loc)
		_, to := attendance.DayBounds(days[len(days)-1], s.loc)
		matched := make([]string, 0, len(byPIN))
		for pin := range byPIN {
			matched = append(matched, pin)
		}
		sort.Strings(matched)
		all, err := s.logs.Find(ctx, repository.PunchLogFilter{From: from, To: to, PINs: matched})
		if err != nil {
			return report, err
		}
		for _, d := range s.reconciler.Days(all) {
			if !covered[d.Day] {
				continue
			}
			rows = append(rows, d.Row(byPIN[d.PIN].ID))
		}
	}

	var absent []model.Attendance
	if len(covered) > 0 {
		active, err := s.employees.ListActive(ctx)
		if err != nil {
			return report, err
		}
		present := map[attendance.Key]bool{}
		for _, r := range rows {
			present[attendance.Key{PIN: r.EmployeeID.String(), Day: r.Date}] = true
		}
		for _, day := range sortedDays(covered) {
			if !attendance.IsWorkingDay(day) || day.After(today) {
				continue
			}
			for _, e := range active {
				if present[attendance.Key{PIN: e.ID.String(), Day: day}] {
					continue
				}
				absent = append(absent, attendance.AbsentRow(e.ID, day))
			}
		}
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.attendance.Upsert(txCtx, rows); err != nil {
			return err
		}
		if err := s.logs.MarkProcessed(txCtx, processedIDs, s.now()); err != nil {
			return err
		}
		n, err := s.attendance.InsertAbsent(txCtx, absent)
		report.AbsentSynthesized = n
		return err
	})
	if err != nil {
		return model.PunchProcessResult{}, err
	}
	report.AttendanceUpserted = len(rows)
	return report, nil
}

func setKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedDays(set map[time.Time]bool) []time.Time {
	out := make([]time.Time, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (s *attendanceSyncService) SyncUser(ctx context.Context, caller model.Caller, machineID, employeeID uuid.UUID) (*model.OperationResult, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	emp, err := s.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, caller, machineID, model.SyncOpSyncUser, func(m *model.AttendanceMachine, d terminal.Device) (outcome, error) {
		if err := s.client.SetUser(ctx, d, terminal.User{PIN: emp.PIN, Name: emp.Name}); err != nil {
			return outcome{details: map[string]string{"pin": emp.PIN}}, err
		}
		return outcome{
			message: fmt.Sprintf("synced %s (%s) to %s", emp.Name, emp.PIN, m.Name),
			details: map[string]string{"pin": emp.PIN},
		}, nil
	})
}

// SyncAllUsers pushes every active employee and keeps going past failures.
func (s *attendanceSyncService) SyncAllUsers(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	employees, err := s.employees.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, caller, machineID, model.SyncOpSyncAllUsers, func(m *model.AttendanceMachine, d terminal.Device) (outcome, error) {
		batch := model.BatchResult{Total: len(employees), Failures: map[string]string{}}
		var lastErr error
		for _, e := range employees {
			if err := s.client.SetUser(ctx, d, terminal.User{PIN: e.PIN, Name: e.Name}); err != nil {
				batch.Failed++
				batch.Failures[e.PIN] = deviceMessage(err)
				lastErr = err
				continue
			}
			batch.Succeeded++
		}
		out := outcome{
			message:  fmt.Sprintf("synced %d of %d users to %s", batch.Succeeded, batch.Total, m.Name),
			data:     batch,
			fetched:  batch.Total,
			inserted: batch.Succeeded,
			details:  batch,
		}
		if batch.Total > 0 && batch.Succeeded == 0 {
			return out, lastErr
		}
		return out, nil
	})
}

func (s *attendanceSyncService) RemoveUser(ctx context.Context, caller model.Caller, machineID uuid.UUID, pin string) (*model.OperationResult, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil, apperr.Field("pin", "is required")
	}
	return s.run(ctx, caller, machineID, model.SyncOpRemoveUser, func(m *model.AttendanceMachine, d terminal.Device) (outcome, error) {
		details := map[string]string{"pin": pin}
		if err := s.client.DeleteUser(ctx, d, pin); err != nil {
			return outcome{details: details}, err
		}
		return outcome{message: fmt.Sprintf("removed user %s from %s", pin, m.Name), details: details}, nil
	})
}

func (s *attendanceSyncService) Restart(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error) {
	return s.run(ctx, caller, machineID, model.SyncOpRestart, func(m *model.AttendanceMachine, d terminal.Device) (outcome, error) {
		if err := s.client.Restart(ctx, d); err != nil {
			return outcome{}, err
		}
		return outcome{message: fmt.Sprintf("%s is restarting", m.Name)}, nil
	})
}

func (s *attendanceSyncService) ClearData(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error) {
	return s.run(ctx, caller, machineID, model.SyncOpClearData, func(m *model.AttendanceMachine, d terminal.Device) (outcome, error) {
		if err := s.client.ClearAttendance(ctx, d); err != nil {
			return outcome{}, err
		}
		return outcome{message: fmt.Sprintf("cleared attendance records on %s", m.Name)}, nil
	})
}

func (s *attendanceSyncService) SyncTime(ctx context.Context, caller model.Caller, machineID uuid.UUID) (*model.OperationResult, error) {
	return s.run(ctx, caller, machineID, model.SyncOpSyncTime, func(m *model.AttendanceMachine, d terminal.Device) (outcome, error) {
		now := s.now()
		if err := s.client.SetTime(ctx, d, now); err != nil {
			return outcome{}, err
		}
		local := now.In(s.loc).Format("2006-01-02 15:04:05")
		return outcome{
			message: fmt.Sprintf("set %s clock to %s", m.Name, local),
			data:    map[string]string{"device_time": local},
		}, nil
	})
}

func (s *attendanceSyncService) SyncLogs(ctx context.Context, caller model.Caller, machineID uuid.UUID, page, limit int) ([]model.MachineSyncLog, int64, error) {
	if _, err := s.machine(ctx, caller, machineID); err != nil {
		return nil, 0, err
	}
	p := pagination.Normalize(page, limit)
	return s.syncLogs.ListByMachine(ctx, machineID, p.Offset, p.Limit)
}

func (s *attendanceSyncService) RunScheduled(ctx context.Context) []model.OperationResult {
	log := logging.FromContext(ctx)
	machines, err := s.machines.ListActive(ctx)
	if err != nil {
		log.WithError(err).Error("scheduled attendance pull could not list machines")
		return nil
	}

	var results []model.OperationResult
	for i := range machines {
		res, err := s.PullAttendance(ctx, model.SystemCaller, machines[i].ID, nil)
		if err != nil {
			log.WithError(err).WithField("machine_id", machines[i].ID).Error("scheduled attendance pull failed")
			continue
		}
		results = append(results, *res)
	}
	results = append(results, *s.process(ctx, nil))
	return results
}
