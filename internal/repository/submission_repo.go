package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
)

type SubmissionFilter struct {
	States []model.SubmissionState
	Search string
	// Visibility scopes. At most one is set per query.
	ArrangerID *uuid.UUID
	EngineerID *uuid.UUID
	CreativeID *uuid.UUID
	Offset     int
	Limit      int
}

type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	Update(ctx context.Context, s *model.Submission) error
	Delete(ctx context.Context, s *model.Submission) error
	List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, int64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, s *model.Submission) error {
	return GetDB(ctx, r.db).Omit("Song").Create(s).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var s model.Submission
	if err := GetDB(ctx, r.db).Preload("Song").First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "submission")
	}
	return &s, nil
}

// Update writes every column guarded by the revision the caller loaded.
// A concurrent writer makes this fail with Conflict and leaves s unchanged.
func (r *submissionRepository) Update(ctx context.Context, s *model.Submission) error {
	expected := s.Revision
	s.Revision = expected + 1

	res := GetDB(ctx, r.db).Model(s).
		Where("revision = ?", expected).
		Select("*").
		Omit("Song", "created_at").
		Updates(s)
	if res.Error != nil {
		s.Revision = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		s.Revision = expected
		return apperr.Conflict("submission was changed by another request, reload and try again")
	}
	return nil
}

func (r *submissionRepository) Delete(ctx context.Context, s *model.Submission) error {
	res := GetDB(ctx, r.db).Where("id = ? AND revision = ?", s.ID, s.Revision).Delete(&model.Submission{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("submission was changed by another request, reload and try again")
	}
	return nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, int64, error) {
	var subs []model.Submission
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Submission{})
	if len(filter.States) > 0 {
		db = db.Where("submissions.current_state IN ?", filter.States)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Joins("LEFT JOIN songs ON songs.id = submissions.song_id").
			Where("songs.title ILIKE ? OR songs.artist ILIKE ? OR submissions.arrangement_notes ILIKE ?", like, like, like)
	}
	switch {
	case filter.ArrangerID != nil:
		db = db.Where("submissions.music_arranger_id = ?", *filter.ArrangerID)
	case filter.EngineerID != nil:
		db = db.Where("submissions.assigned_sound_engineer_id = ? OR (submissions.assigned_sound_engineer_id IS NULL AND submissions.current_state = ?)",
			*filter.EngineerID, model.StateSoundEngineering)
	case filter.CreativeID != nil:
		db = db.Where("submissions.assigned_creative_id = ? OR (submissions.assigned_creative_id IS NULL AND submissions.current_state = ?)",
			*filter.CreativeID, model.StateCreativeWork)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Song").
		Order("submissions.created_at DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&subs).Error; err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}
