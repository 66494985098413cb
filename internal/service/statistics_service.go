package service

import (
	"context"
	"time"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
)

const topPerformerLimit = 5

type StatisticsService interface {
	GetStatistics(ctx context.Context, caller model.Caller, startDate, endDate time.Time) (*model.StudioStatistics, error)
}

type statisticsService struct {
	repo repository.DashboardRepository
}

func NewStatisticsService(repo repository.DashboardRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// GetStatistics aggregates submission throughput for submissions created
// inside the time bracket. Completions and budget use completed_at instead.
func (s *statisticsService) GetStatistics(ctx context.Context, caller model.Caller, startDate, endDate time.Time) (*model.StudioStatistics, error) {
	if !caller.Is(model.RoleProducer, model.RoleAdmin) {
		return nil, apperr.Forbidden("only producer can read studio statistics")
	}
	if endDate.Before(startDate) {
		return nil, apperr.Field("end_date", "must not be before start_date")
	}

	stats := &model.StudioStatistics{
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
		ByState:            []model.StateCount{},
	}

	byState, err := s.repo.CountByState(ctx, startDate, endDate)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	for _, sc := range byState {
		stats.Created += sc.Count
		switch sc.State {
		case model.StateCompleted:
			stats.Completed += sc.Count
		case model.StateRejected:
			stats.Rejected += sc.Count
		default:
			stats.InProgress += sc.Count
		}
		stats.ByState = append(stats.ByState, sc)
	}

	top, err := s.repo.TopPerformers(ctx, startDate, endDate, topPerformerLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if top == nil {
		top = []model.PerformerRanking{}
	}
	stats.TopPerformers = top

	budget, err := s.repo.CreativeBudget(ctx, startDate, endDate)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	stats.CreativeBudget = budget
	return stats, nil
}
