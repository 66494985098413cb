package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
)

type MachineRepository interface {
	Create(ctx context.Context, m *model.AttendanceMachine) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttendanceMachine, error)
	List(ctx context.Context, search string, offset, limit int) ([]model.AttendanceMachine, int64, error)
	ListActive(ctx context.Context) ([]model.AttendanceMachine, error)
	Update(ctx context.Context, m *model.AttendanceMachine) error
	Delete(ctx context.Context, id uuid.UUID) error
	MarkStatus(ctx context.Context, id uuid.UUID, status string, syncedAt *time.Time) error
}

type machineRepository struct {
	db *gorm.DB
}

func NewMachineRepository(db *gorm.DB) MachineRepository {
	return &machineRepository{db: db}
}

func (r *machineRepository) Create(ctx context.Context, m *model.AttendanceMachine) error {
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return apperr.Field("serial_number", "serial number is already registered")
		}
		return err
	}
	return nil
}

func (r *machineRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttendanceMachine, error) {
	var m model.AttendanceMachine
	if err := GetDB(ctx, r.db).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "attendance machine")
	}
	return &m, nil
}

func (r *machineRepository) List(ctx context.Context, search string, offset, limit int) ([]model.AttendanceMachine, int64, error) {
	var machines []model.AttendanceMachine
	var total int64

	db := GetDB(ctx, r.db).Model(&model.AttendanceMachine{})
	if search != "" {
		like := "%" + search + "%"
		db = db.Where("name ILIKE ? OR serial_number ILIKE ? OR location ILIKE ?", like, like, like)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&machines).Error; err != nil {
		return nil, 0, err
	}
	return machines, total, nil
}

func (r *machineRepository) ListActive(ctx context.Context) ([]model.AttendanceMachine, error) {
	var machines []model.AttendanceMachine
	err := GetDB(ctx, r.db).Where("is_active = ?", true).Order("name asc").Find(&machines).Error
	return machines, err
}

func (r *machineRepository) Update(ctx context.Context, m *model.AttendanceMachine) error {
	if err := GetDB(ctx, r.db).Save(m).Error; err != nil {
		if isUniqueViolation(err) {
			return apperr.Field("serial_number", "serial number is already registered")
		}
		return err
	}
	return nil
}

func (r *machineRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.AttendanceMachine{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("attendance machine")
	}
	return nil
}

func (r *machineRepository) MarkStatus(ctx context.Context, id uuid.UUID, status string, syncedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if syncedAt != nil {
		updates["last_sync_at"] = *syncedAt
	}
	return GetDB(ctx, r.db).Model(&model.AttendanceMachine{}).Where("id = ?", id).Updates(updates).Error
}
