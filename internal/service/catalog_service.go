package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
	"studio-backend/pkg/pagination"
)

type CreateSongRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	Artist          string `json:"artist" validate:"max=255"`
	Genre           string `json:"genre" validate:"max=100"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
}

// CatalogService serves the reference entities submissions point at.
type CatalogService interface {
	CreateSong(ctx context.Context, caller model.Caller, req CreateSongRequest) (*model.Song, error)
	ListSongs(ctx context.Context, search string, page, limit int) ([]model.Song, int64, error)
	ListPerformers(ctx context.Context, page, limit int) ([]model.Performer, int64, error)
}

type catalogService struct {
	songs      repository.SongRepository
	performers repository.PerformerRepository
	audit      repository.AuditRepository
	tx         repository.TransactionManager
}

func NewCatalogService(songs repository.SongRepository, performers repository.PerformerRepository, audit repository.AuditRepository, tx repository.TransactionManager) CatalogService {
	return &catalogService{songs: songs, performers: performers, audit: audit, tx: tx}
}

func (s *catalogService) CreateSong(ctx context.Context, caller model.Caller, req CreateSongRequest) (*model.Song, error) {
	if !caller.Is(model.RoleProducer, model.RoleAdmin) {
		return nil, apperr.Forbidden("only producer can add songs")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validatePayload(req); err != nil {
		return nil, err
	}

	song := &model.Song{
		Title:           req.Title,
		Artist:          strings.TrimSpace(req.Artist),
		Genre:           strings.TrimSpace(req.Genre),
		DurationSeconds: req.DurationSeconds,
	}
	if caller.ID != uuid.Nil {
		id := caller.ID
		song.CreatedBy = &id
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.songs.Create(txCtx, song); err != nil {
			return err
		}
		details, _ := json.Marshal(map[string]interface{}{"artist": song.Artist})
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     song.CreatedBy,
			Action:     model.ActionCreateSong,
			EntityID:   song.ID.String(),
			EntityName: song.Title,
			Details:    datatypes.JSON(details),
		})
	})
	if err != nil {
		return nil, err
	}
	return song, nil
}

func (s *catalogService) ListSongs(ctx context.Context, search string, page, limit int) ([]model.Song, int64, error) {
	p := pagination.Normalize(page, limit)
	return s.songs.List(ctx, strings.TrimSpace(search), p.Offset, p.Limit)
}

func (s *catalogService) ListPerformers(ctx context.Context, page, limit int) ([]model.Performer, int64, error) {
	p := pagination.Normalize(page, limit)
	return s.performers.List(ctx, p.Offset, p.Limit)
}
