package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studio-backend/internal/model"
)

type PunchLogFilter struct {
	// From and To bound punched_at as [From, To). Zero values are unbounded.
	From time.Time
	To   time.Time
	PINs []string
	// UnprocessedOnly restricts to logs not yet promoted.
	UnprocessedOnly bool
}

type AttendanceLogRepository interface {
	// InsertNew appends punches, skipping any already ingested.
	InsertNew(ctx context.Context, logs []model.AttendanceLog) (int, error)
	Find(ctx context.Context, filter PunchLogFilter) ([]model.AttendanceLog, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type attendanceLogRepository struct {
	db *gorm.DB
}

func NewAttendanceLogRepository(db *gorm.DB) AttendanceLogRepository {
	return &attendanceLogRepository{db: db}
}

func (r *attendanceLogRepository) InsertNew(ctx context.Context, logs []model.AttendanceLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}
	res := GetDB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "machine_id"}, {Name: "user_pin"}, {Name: "punched_at"}},
			DoNothing: true,
		}).
		CreateInBatches(&logs, 500)
	return int(res.RowsAffected), res.Error
}

func (r *attendanceLogRepository) Find(ctx context.Context, filter PunchLogFilter) ([]model.AttendanceLog, error) {
	db := GetDB(ctx, r.db).Model(&model.AttendanceLog{})
	if !filter.From.IsZero() {
		db = db.Where("punched_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		db = db.Where("punched_at < ?", filter.To)
	}
	if len(filter.PINs) > 0 {
		db = db.Where("user_pin IN ?", filter.PINs)
	}
	if filter.UnprocessedOnly {
		db = db.Where("is_processed = ?", false)
	}
	var logs []model.AttendanceLog
	err := db.Order("punched_at asc").Find(&logs).Error
	return logs, err
}

func (r *attendanceLogRepository) MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.AttendanceLog{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"is_processed": true, "processed_at": at}).Error
}

type AttendanceFilter struct {
	From       time.Time
	To         time.Time
	EmployeeID *uuid.UUID
	Status     string
	Offset     int
	Limit      int
}

type AttendanceRepository interface {
	// Upsert writes punch-derived rows, replacing whatever exists for the key.
	Upsert(ctx context.Context, rows []model.Attendance) error
	// InsertAbsent adds synthesized rows only where no row exists yet.
	InsertAbsent(ctx context.Context, rows []model.Attendance) (int, error)
	List(ctx context.Context, filter AttendanceFilter) ([]model.Attendance, int64, error)
}

type attendanceRepository struct {
	db *gorm.DB
}

func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) Upsert(ctx context.Context, rows []model.Attendance) error {
	if len(rows) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "employee_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"check_in", "check_out", "status", "late_minutes", "work_minutes",
				"punch_count", "source", "notes", "updated_at",
			}),
		}).
		CreateInBatches(&rows, 200).Error
}

func (r *attendanceRepository) InsertAbsent(ctx context.Context, rows []model.Attendance) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := GetDB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, 200)
	return int(res.RowsAffected), res.Error
}

func (r *attendanceRepository) List(ctx context.Context, filter AttendanceFilter) ([]model.Attendance, int64, error) {
	var rows []model.Attendance
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Attendance{})
	if !filter.From.IsZero() {
		db = db.Where("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		db = db.Where("date < ?", filter.To)
	}
	if filter.EmployeeID != nil {
		db = db.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Employee").
		Order("date desc, employee_id asc").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

type SyncLogRepository interface {
	Create(ctx context.Context, entry *model.MachineSyncLog) error
	ListByMachine(ctx context.Context, machineID uuid.UUID, offset, limit int) ([]model.MachineSyncLog, int64, error)
}

type syncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Create(ctx context.Context, entry *model.MachineSyncLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *syncLogRepository) ListByMachine(ctx context.Context, machineID uuid.UUID, offset, limit int) ([]model.MachineSyncLog, int64, error) {
	var logs []model.MachineSyncLog
	var total int64

	db := GetDB(ctx, r.db).Model(&model.MachineSyncLog{}).Where("machine_id = ?", machineID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("started_at desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
