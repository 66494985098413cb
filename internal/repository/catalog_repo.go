package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"studio-backend/internal/model"
)

type SongRepository interface {
	Create(ctx context.Context, song *model.Song) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Song, error)
	List(ctx context.Context, search string, offset, limit int) ([]model.Song, int64, error)
}

type songRepository struct {
	db *gorm.DB
}

func NewSongRepository(db *gorm.DB) SongRepository {
	return &songRepository{db: db}
}

func (r *songRepository) Create(ctx context.Context, song *model.Song) error {
	return GetDB(ctx, r.db).Create(song).Error
}

func (r *songRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Song, error) {
	var song model.Song
	if err := GetDB(ctx, r.db).First(&song, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "song")
	}
	return &song, nil
}

func (r *songRepository) List(ctx context.Context, search string, offset, limit int) ([]model.Song, int64, error) {
	var songs []model.Song
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Song{})
	if search != "" {
		like := "%" + search + "%"
		db = db.Where("title ILIKE ? OR artist ILIKE ?", like, like)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("title asc").Offset(offset).Limit(limit).Find(&songs).Error; err != nil {
		return nil, 0, err
	}
	return songs, total, nil
}

type PerformerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Performer, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Performer, error)
	GetByEmail(ctx context.Context, email string) (*model.Performer, error)
	Save(ctx context.Context, p *model.Performer) error
	List(ctx context.Context, offset, limit int) ([]model.Performer, int64, error)
}

type performerRepository struct {
	db *gorm.DB
}

func NewPerformerRepository(db *gorm.DB) PerformerRepository {
	return &performerRepository{db: db}
}

func (r *performerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Performer, error) {
	var p model.Performer
	if err := GetDB(ctx, r.db).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "performer")
	}
	return &p, nil
}

func (r *performerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Performer, error) {
	var p model.Performer
	if err := GetDB(ctx, r.db).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err, "performer")
	}
	return &p, nil
}

func (r *performerRepository) GetByEmail(ctx context.Context, email string) (*model.Performer, error) {
	var p model.Performer
	if err := GetDB(ctx, r.db).First(&p, "email = ?", email).Error; err != nil {
		return nil, notFound(err, "performer")
	}
	return &p, nil
}

func (r *performerRepository) Save(ctx context.Context, p *model.Performer) error {
	if p.ID == uuid.Nil {
		return GetDB(ctx, r.db).Create(p).Error
	}
	return GetDB(ctx, r.db).Save(p).Error
}

func (r *performerRepository) List(ctx context.Context, offset, limit int) ([]model.Performer, int64, error) {
	var performers []model.Performer
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Performer{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("name asc").Offset(offset).Limit(limit).Find(&performers).Error; err != nil {
		return nil, 0, err
	}
	return performers, total, nil
}
