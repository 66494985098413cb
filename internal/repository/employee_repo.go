package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
)

type EmployeeRepository interface {
	Create(ctx context.Context, e *model.Employee) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Employee, error)
	List(ctx context.Context, search string, offset, limit int) ([]model.Employee, int64, error)
	ListActive(ctx context.Context) ([]model.Employee, error)
	FindByPINs(ctx context.Context, pins []string) ([]model.Employee, error)
}

type employeeRepository struct {
	db *gorm.DB
}

func NewEmployeeRepository(db *gorm.DB) EmployeeRepository {
	return &employeeRepository{db: db}
}

func (r *employeeRepository) Create(ctx context.Context, e *model.Employee) error {
	if err := GetDB(ctx, r.db).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return apperr.Field("pin", "pin is already assigned to another employee")
		}
		return err
	}
	return nil
}

func (r *employeeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Employee, error) {
	var e model.Employee
	if err := GetDB(ctx, r.db).First(&e, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "employee")
	}
	return &e, nil
}

func (r *employeeRepository) List(ctx context.Context, search string, offset, limit int) ([]model.Employee, int64, error) {
	var employees []model.Employee
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Employee{})
	if search != "" {
		like := "%" + search + "%"
		db = db.Where("name ILIKE ? OR pin ILIKE ? OR department ILIKE ?", like, like, like)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("name asc").Offset(offset).Limit(limit).Find(&employees).Error; err != nil {
		return nil, 0, err
	}
	return employees, total, nil
}

func (r *employeeRepository) ListActive(ctx context.Context) ([]model.Employee, error) {
	var employees []model.Employee
	err := GetDB(ctx, r.db).Where("is_active = ?", true).Order("pin asc").Find(&employees).Error
	return employees, err
}

func (r *employeeRepository) FindByPINs(ctx context.Context, pins []string) ([]model.Employee, error) {
	if len(pins) == 0 {
		return nil, nil
	}
	var employees []model.Employee
	err := GetDB(ctx, r.db).Where("pin IN ?", pins).Find(&employees).Error
	return employees, err
}
