package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"studio-backend/internal/model"
)

type StatisticsRepository interface {
	MonthlySummary(ctx context.Context, start, end time.Time) ([]model.AttendanceSummary, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

// MonthlySummary aggregates attendance rows in [start, end) per active employee.
func (r *statisticsRepository) MonthlySummary(ctx context.Context, start, end time.Time) ([]model.AttendanceSummary, error) {
	var rows []model.AttendanceSummary
	if err := GetDB(ctx, r.db).Table("employees").
		Select(`employees.id AS employee_id, employees.name AS employee_name, employees.pin AS pin,
			COUNT(*) FILTER (WHERE attendances.status = ?) AS present_on_time,
			COUNT(*) FILTER (WHERE attendances.status = ?) AS present_late,
			COUNT(*) FILTER (WHERE attendances.status = ?) AS present,
			COUNT(*) FILTER (WHERE attendances.status = ?) AS absent,
			COALESCE(SUM(attendances.late_minutes), 0) AS total_late_minutes,
			COALESCE(SUM(attendances.work_minutes), 0) AS total_work_minutes`,
			model.AttendancePresentOnTime, model.AttendancePresentLate, model.AttendancePresent, model.AttendanceAbsent).
		Joins("LEFT JOIN attendances ON attendances.employee_id = employees.id AND attendances.date >= ? AND attendances.date < ?", start, end).
		Where("employees.is_active = ?", true).
		Group("employees.id, employees.name, employees.pin").
		Order("employees.name ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query attendance summary: %w", err)
	}
	return rows, nil
}

// DashboardRepository aggregates submissions for the producer dashboard.
type DashboardRepository interface {
	CountByState(ctx context.Context, start, end time.Time) ([]model.StateCount, error)
	TopPerformers(ctx context.Context, start, end time.Time, limit int) ([]model.PerformerRanking, error)
	CreativeBudget(ctx context.Context, start, end time.Time) (decimal.Decimal, error)
}

func NewDashboardRepository(db *gorm.DB) DashboardRepository {
	return &statisticsRepository{db: db}
}

// CountByState groups submissions created in [start, end] by current state.
func (r *statisticsRepository) CountByState(ctx context.Context, start, end time.Time) ([]model.StateCount, error) {
	var rows []model.StateCount
	if err := GetDB(ctx, r.db).Model(&model.Submission{}).
		Select("current_state AS state, COUNT(*) AS count").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("current_state").
		Order("count DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count submissions by state: %w", err)
	}
	return rows, nil
}

// TopPerformers ranks approved singers by submissions completed in [start, end].
func (r *statisticsRepository) TopPerformers(ctx context.Context, start, end time.Time, limit int) ([]model.PerformerRanking, error) {
	var rows []model.PerformerRanking
	if err := GetDB(ctx, r.db).Table("submissions").
		Select("performers.id AS performer_id, performers.name AS performer_name, COUNT(*) AS completed").
		Joins("JOIN performers ON performers.id = submissions.approved_singer_id").
		Where("submissions.current_state = ? AND submissions.completed_at >= ? AND submissions.completed_at <= ?",
			model.StateCompleted, start, end).
		Group("performers.id, performers.name").
		Order("completed DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to rank performers: %w", err)
	}
	return rows, nil
}

// CreativeBudget sums the budget of submissions completed in [start, end].
func (r *statisticsRepository) CreativeBudget(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	var total struct {
		Value decimal.NullDecimal
	}
	if err := GetDB(ctx, r.db).Model(&model.Submission{}).
		Select("SUM(budget_total) AS value").
		Where("current_state = ? AND completed_at >= ? AND completed_at <= ?", model.StateCompleted, start, end).
		Scan(&total).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum creative budget: %w", err)
	}
	if !total.Value.Valid {
		return decimal.Zero, nil
	}
	return total.Value.Decimal, nil
}
