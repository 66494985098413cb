package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"sort"
	"sync"

	"github.com/google/uuid"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
	"studio-backend/internal/notification"
	"studio-backend/internal/repository"
	"studio-backend/internal/storage"
)

type memSubmissions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Submission
	// songs backs the Song preload.
	songs   *memSongs
	updates int
}

func newMemSubmissions(songs *memSongs) *memSubmissions {
	return &memSubmissions{rows: map[uuid.UUID]model.Submission{}, songs: songs}
}

func (m *memSubmissions) Create(_ context.Context, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_ = s.BeforeSave(nil)
	row := *s
	row.Song = nil
	m.rows[s.ID] = row
	return nil
}

func (m *memSubmissions) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("submission")
	}
	if m.songs != nil {
		if song, ok := m.songs.rows[row.SongID]; ok {
			row.Song = &song
		}
	}
	return &row, nil
}

func (m *memSubmissions) Update(_ context.Context, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[s.ID]
	if !ok || stored.Revision != s.Revision {
		return apperr.Conflict("submission was changed by another request, reload and try again")
	}
	s.Revision++
	_ = s.BeforeSave(nil)
	row := *s
	row.Song = nil
	m.rows[s.ID] = row
	m.updates++
	return nil
}

func (m *memSubmissions) Delete(_ context.Context, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[s.ID]
	if !ok || stored.Revision != s.Revision {
		return apperr.Conflict("submission was changed by another request, reload and try again")
	}
	delete(m.rows, s.ID)
	return nil
}

func (m *memSubmissions) List(_ context.Context, f repository.SubmissionFilter) ([]model.Submission, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, row := range m.rows {
		if len(f.States) > 0 && !containsState(f.States, row.CurrentState) {
			continue
		}
		if f.ArrangerID != nil && row.MusicArrangerID != *f.ArrangerID {
			continue
		}
		if f.EngineerID != nil && !assignedOrOpen(row.AssignedSoundEngineerID, *f.EngineerID, row.CurrentState == model.StateSoundEngineering) {
			continue
		}
		if f.CreativeID != nil && !assignedOrOpen(row.AssignedCreativeID, *f.CreativeID, row.CurrentState == model.StateCreativeWork) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	total := int64(len(out))
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memSubmissions) snapshot() map[uuid.UUID]model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]model.Submission, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out
}

func (m *memSubmissions) restore(rows map[uuid.UUID]model.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}

func containsState(list []model.SubmissionState, s model.SubmissionState) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func assignedOrOpen(assigned *uuid.UUID, me uuid.UUID, open bool) bool {
	if assigned == nil {
		return open
	}
	return *assigned == me
}

type memSongs struct {
	rows map[uuid.UUID]model.Song
}

func (m *memSongs) Create(_ context.Context, song *model.Song) error {
	if song.ID == uuid.Nil {
		song.ID = uuid.New()
	}
	m.rows[song.ID] = *song
	return nil
}

func (m *memSongs) GetByID(_ context.Context, id uuid.UUID) (*model.Song, error) {
	if s, ok := m.rows[id]; ok {
		return &s, nil
	}
	return nil, apperr.NotFound("song")
}

func (m *memSongs) List(context.Context, string, int, int) ([]model.Song, int64, error) {
	out := make([]model.Song, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}

type memPerformers struct {
	rows map[uuid.UUID]model.Performer
}

func (m *memPerformers) GetByID(_ context.Context, id uuid.UUID) (*model.Performer, error) {
	if p, ok := m.rows[id]; ok {
		return &p, nil
	}
	return nil, apperr.NotFound("performer")
}

func (m *memPerformers) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Performer, error) {
	for _, p := range m.rows {
		if p.UserID != nil && *p.UserID == userID {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("performer")
}

func (m *memPerformers) GetByEmail(_ context.Context, email string) (*model.Performer, error) {
	for _, p := range m.rows {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("performer")
}

func (m *memPerformers) Save(_ context.Context, p *model.Performer) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.rows[p.ID] = *p
	return nil
}

func (m *memPerformers) List(context.Context, int, int) ([]model.Performer, int64, error) {
	out := make([]model.Performer, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

type memUsers struct {
	rows map[uuid.UUID]model.User
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	for _, existing := range m.rows {
		if existing.Username == u.Username || existing.Email == u.Email {
			return apperr.Conflict("username or email already exists")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.rows[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := m.rows[id]; ok {
		return &u, nil
	}
	return nil, apperr.NotFound("user")
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.rows {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.rows {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *memUsers) List(_ context.Context, role model.Role, _, _ int) ([]model.User, int64, error) {
	var out []model.User
	for _, u := range m.rows {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditLog
	fail    error
}

func (m *memAudit) Log(_ context.Context, e *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) List(_ context.Context, f repository.AuditFilter) ([]model.AuditLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditLog
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (m *memAudit) ListByEntity(_ context.Context, entityID string) ([]model.AuditLog, error) {
	out, _, err := m.List(context.Background(), repository.AuditFilter{EntityID: entityID})
	return out, err
}

func (m *memAudit) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// memTx undoes submission writes when the callback fails.
type memTx struct {
	subs *memSubmissions
}

func (t memTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	var saved map[uuid.UUID]model.Submission
	if t.subs != nil {
		saved = t.subs.snapshot()
	}
	if err := fn(ctx); err != nil {
		if t.subs != nil {
			t.subs.restore(saved)
		}
		return err
	}
	return nil
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (r *recordingSink) Notify(_ context.Context, m notification.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recordingSink) to(id uuid.UUID) []notification.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Message
	for _, m := range r.msgs {
		if m.Recipient == id {
			out = append(out, m)
		}
	}
	return out
}

type memFiles struct {
	saved   []string
	removed []string
}

func (m *memFiles) Save(_ context.Context, category string, entityID uuid.UUID, fh *multipart.FileHeader) (*storage.Stored, error) {
	if fh == nil {
		return nil, apperr.Field("file", "file is required")
	}
	rel := fmt.Sprintf("%s/%s/%d-%s", category, entityID, len(m.saved)+1, fh.Filename)
	m.saved = append(m.saved, rel)
	return &storage.Stored{
		Path:         rel,
		URL:          "http://files.test/uploads/" + rel,
		OriginalName: fh.Filename,
		Size:         fh.Size,
	}, nil
}

func (m *memFiles) Remove(_ context.Context, rel string) error {
	m.removed = append(m.removed, rel)
	return nil
}
