package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"studio-backend/internal/apperr"
	"studio-backend/internal/logging"
	"studio-backend/internal/metrics"
	"studio-backend/internal/model"
	"studio-backend/internal/notification"
	"studio-backend/internal/repository"
	"studio-backend/internal/storage"
	"studio-backend/internal/workflow"
	"studio-backend/pkg/pagination"
)

// --- DTOs ---

type CreateSubmissionRequest struct {
	SongID           uuid.UUID  `json:"song_id" validate:"required"`
	ProposedSingerID *uuid.UUID `json:"proposed_singer_id"`
	ArrangementNotes string     `json:"arrangement_notes" validate:"max=5000"`
	RequestedDate    *time.Time `json:"requested_date"`
}

type UpdateSubmissionRequest struct {
	SongID           *uuid.UUID `json:"song_id"`
	ProposedSingerID *uuid.UUID `json:"proposed_singer_id"`
	ArrangementNotes *string    `json:"arrangement_notes" validate:"omitempty,max=5000"`
	RequestedDate    *time.Time `json:"requested_date"`
}

type ModifyRequest struct {
	SongID           *uuid.UUID `json:"song_id"`
	ProposedSingerID *uuid.UUID `json:"proposed_singer_id"`
	ApprovedSingerID *uuid.UUID `json:"approved_singer_id"`
	ArrangementNotes *string    `json:"arrangement_notes" validate:"omitempty,max=5000"`
	ProducerNotes    string     `json:"producer_notes" validate:"max=5000"`
	AutoApprove      bool       `json:"auto_approve"`
}

type ApproveRequest struct {
	ApprovedSingerID *uuid.UUID `json:"approved_singer_id"`
	ProducerNotes    string     `json:"producer_notes" validate:"max=5000"`
}

type FeedbackRequest struct {
	Feedback string `json:"feedback" validate:"required,max=5000"`
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=5000"`
}

// FileRequest carries a multipart upload plus optional notes.
type FileRequest struct {
	Notes string                `json:"notes" validate:"max=5000"`
	File  *multipart.FileHeader `json:"-"`
}

type QCRequest struct {
	QualityScore            int        `json:"quality_score" validate:"required,min=1,max=10"`
	Decision                string     `json:"qc_decision" validate:"required,oneof=approved needs_improvement"`
	ImprovementAreas        []string   `json:"improvement_areas" validate:"omitempty,max=20,dive,required,max=200"`
	Notes                   string     `json:"notes" validate:"max=5000"`
	AssignedSoundEngineerID *uuid.UUID `json:"assigned_sound_engineer_id"`
}

const (
	QCApproved         = "approved"
	QCNeedsImprovement = "needs_improvement"
)

type ApproveQualityRequest struct {
	TargetState        string     `json:"target_state" validate:"required,oneof=creative_work arranging"`
	Notes              string     `json:"notes" validate:"max=5000"`
	AssignedCreativeID *uuid.UUID `json:"assigned_creative_id"`
}

type CreativeWorkRequest struct {
	ScriptContent     string             `json:"script_content" validate:"required,max=20000"`
	StoryboardData    json.RawMessage    `json:"storyboard_data"`
	BudgetData        []model.BudgetLine `json:"budget_data" validate:"omitempty,max=200"`
	RecordingDate     *time.Time         `json:"recording_date"`
	RecordingLocation string             `json:"recording_location" validate:"max=255"`
	ShootingDate      *time.Time         `json:"shooting_date"`
	ShootingLocation  string             `json:"shooting_location" validate:"max=255"`
}

type TransitionRequest struct {
	NewState       string     `json:"new_state" validate:"required"`
	Notes          string     `json:"notes" validate:"max=5000"`
	AssignedUserID *uuid.UUID `json:"assigned_user_id"`
}

type SubmissionQuery struct {
	Status  string
	State   string
	Search  string
	Page    int
	PerPage int
}

// SubmissionResponse is the snapshot returned by every submission endpoint.
type SubmissionResponse struct {
	model.Submission
	AllowedActions []workflow.Action `json:"allowed_actions"`
}

// MusicWorkflowService exposes one method per (role, action) pair of the
// submission workflow. Every method takes the caller explicitly.
type MusicWorkflowService interface {
	List(ctx context.Context, caller model.Caller, q SubmissionQuery) ([]SubmissionResponse, int64, error)
	Get(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error)
	History(ctx context.Context, caller model.Caller, id uuid.UUID) ([]model.AuditLog, error)
	Create(ctx context.Context, caller model.Caller, req CreateSubmissionRequest) (*SubmissionResponse, error)
	Update(ctx context.Context, caller model.Caller, id uuid.UUID, req UpdateSubmissionRequest) (*SubmissionResponse, error)
	Delete(ctx context.Context, caller model.Caller, id uuid.UUID) error
	Transition(ctx context.Context, caller model.Caller, id uuid.UUID, req TransitionRequest) (*SubmissionResponse, error)

	Take(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error)
	Modify(ctx context.Context, caller model.Caller, id uuid.UUID, req ModifyRequest) (*SubmissionResponse, error)
	Approve(ctx context.Context, caller model.Caller, id uuid.UUID, req ApproveRequest) (*SubmissionResponse, error)
	Reject(ctx context.Context, caller model.Caller, id uuid.UUID, req FeedbackRequest) (*SubmissionResponse, error)
	StartArranging(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error)
	SubmitArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req FileRequest) (*SubmissionResponse, error)
	ApproveArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req NotesRequest) (*SubmissionResponse, error)
	RejectArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req FeedbackRequest) (*SubmissionResponse, error)
	ResubmitArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req FileRequest) (*SubmissionResponse, error)
	ProcessArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req NotesRequest) (*SubmissionResponse, error)
	QCMusic(ctx context.Context, caller model.Caller, id uuid.UUID, req QCRequest) (*SubmissionResponse, error)
	AcceptSoundEngineering(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error)
	CompleteSoundEngineering(ctx context.Context, caller model.Caller, id uuid.UUID, req FileRequest) (*SubmissionResponse, error)
	RejectBack(ctx context.Context, caller model.Caller, id uuid.UUID, req FeedbackRequest) (*SubmissionResponse, error)
	ApproveQuality(ctx context.Context, caller model.Caller, id uuid.UUID, req ApproveQualityRequest) (*SubmissionResponse, error)
	AcceptCreativeWork(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error)
	SubmitCreativeWork(ctx context.Context, caller model.Caller, id uuid.UUID, req CreativeWorkRequest) (*SubmissionResponse, error)
	FinalApprove(ctx context.Context, caller model.Caller, id uuid.UUID, req NotesRequest) (*SubmissionResponse, error)
}

type MusicWorkflowDeps struct {
	Submissions repository.SubmissionRepository
	Songs       repository.SongRepository
	Performers  repository.PerformerRepository
	Users       repository.UserRepository
	Audit       repository.AuditRepository
	Tx          repository.TransactionManager
	Notifier    notification.Sink
	Files       storage.Store
	Now         func() time.Time
}

type musicWorkflowService struct {
	subs       repository.SubmissionRepository
	songs      repository.SongRepository
	performers repository.PerformerRepository
	users      repository.UserRepository
	audit      repository.AuditRepository
	tx         repository.TransactionManager
	notifier   notification.Sink
	files      storage.Store
	now        func() time.Time
}

func NewMusicWorkflowService(d MusicWorkflowDeps) MusicWorkflowService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Notifier == nil {
		d.Notifier = notification.Discard{}
	}
	return &musicWorkflowService{
		subs:       d.Submissions,
		songs:      d.Songs,
		performers: d.Performers,
		users:      d.Users,
		audit:      d.Audit,
		tx:         d.Tx,
		notifier:   d.Notifier,
		files:      d.Files,
		now:        d.Now,
	}
}

// errNoChange makes an action succeed without writing.
var errNoChange = errors.New("no change")

type upload struct {
	category string
	file     *multipart.FileHeader
}

// mutation describes steps five and six of an action.
type mutation struct {
	action workflow.Action
	// auditAction defaults to model.ActionTransition.
	auditAction string
	payload     interface{}
	check       func(ctx context.Context, s *model.Submission) error
	upload      *upload
	apply       func(s *model.Submission, now time.Time, file *storage.Stored) error
	notes       string
	notify      func(s *model.Submission) []notification.Message
}

func resultOf(err error) string {
	if err == nil {
		return ""
	}
	if code := apperr.Code(err); code != "" {
		return code
	}
	return apperr.CodeInternal
}

// run executes an action in the fixed order: role, load, actor, state,
// payload, atomic write, snapshot.
func (s *musicWorkflowService) run(ctx context.Context, caller model.Caller, id uuid.UUID, m mutation) (resp *SubmissionResponse, err error) {
	defer func() { metrics.RecordWorkflowAction(string(m.action), resultOf(err)) }()

	rule, err := workflow.CheckRole(caller.Role, m.action)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckActor(caller, rule, sub); err != nil {
		return nil, err
	}
	if err := workflow.CheckState(rule, sub.CurrentState); err != nil {
		return nil, err
	}
	return s.commit(ctx, caller, rule, sub, m)
}

func (s *musicWorkflowService) commit(ctx context.Context, caller model.Caller, rule workflow.Rule, sub *model.Submission, m mutation) (*SubmissionResponse, error) {
	if m.payload != nil {
		if err := validatePayload(m.payload); err != nil {
			return nil, err
		}
	}
	if m.check != nil {
		if err := m.check(ctx, sub); err != nil {
			return nil, err
		}
	}

	var stored *storage.Stored
	if m.upload != nil {
		var err error
		if stored, err = s.files.Save(ctx, m.upload.category, sub.ID, m.upload.file); err != nil {
			return nil, err
		}
	}
	discard := func() {
		if stored != nil {
			if err := s.files.Remove(ctx, stored.Path); err != nil {
				logging.FromContext(ctx).WithError(err).Warn("orphaned upload could not be removed")
			}
		}
	}

	from := sub.CurrentState
	if err := m.apply(sub, s.now(), stored); err != nil {
		discard()
		if errors.Is(err, errNoChange) {
			return s.snapshot(caller, sub), nil
		}
		return nil, err
	}
	if !landed(rule, from, sub.CurrentState) {
		discard()
		return nil, apperr.Internal(fmt.Errorf("%s produced illegal state %q from %q", rule.Action, sub.CurrentState, from))
	}

	auditAction := m.auditAction
	if auditAction == "" {
		auditAction = model.ActionTransition
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.subs.Update(txCtx, sub); err != nil {
			return err
		}
		return s.audit.Log(txCtx, submissionAudit(caller, sub, auditAction, model.TransitionDetails{
			Action: string(rule.Action),
			From:   string(from),
			To:     string(sub.CurrentState),
			Notes:  m.notes,
		}))
	})
	if err != nil {
		discard()
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"submission_id": sub.ID,
		"action":        rule.Action,
		"from":          from,
		"to":            sub.CurrentState,
	}).Info("submission action applied")

	if m.notify != nil {
		for _, msg := range m.notify(sub) {
			if msg.Recipient == caller.ID {
				continue
			}
			s.notifier.Notify(ctx, msg)
		}
	}
	return s.snapshot(caller, sub), nil
}

// landed checks the outcome against the table before anything is written.
func landed(rule workflow.Rule, from, to model.SubmissionState) bool {
	if !to.Valid() {
		return false
	}
	if len(rule.To) == 0 {
		return from == to
	}
	return rule.Accepts(to)
}

func submissionAudit(caller model.Caller, sub *model.Submission, action string, details model.TransitionDetails) *model.AuditLog {
	raw, _ := json.Marshal(details)
	entry := &model.AuditLog{
		Action:   action,
		EntityID: sub.ID.String(),
		Details:  datatypes.JSON(raw),
	}
	if sub.Song != nil {
		entry.EntityName = sub.Song.Title
	}
	if caller.ID != uuid.Nil {
		id := caller.ID
		entry.UserID = &id
	}
	return entry
}

func (s *musicWorkflowService) snapshot(caller model.Caller, sub *model.Submission) *SubmissionResponse {
	return &SubmissionResponse{Submission: *sub, AllowedActions: workflow.AllowedActions(caller, sub)}
}

func message(sub *model.Submission, recipient *uuid.UUID, kind, title, body string) []notification.Message {
	if recipient == nil || *recipient == uuid.Nil {
		return nil
	}
	id := sub.ID
	return []notification.Message{{
		Recipient:    *recipient,
		Title:        title,
		Body:         body,
		Type:         kind,
		SubmissionID: &id,
	}}
}

func toArranger(kind, title, body string) func(*model.Submission) []notification.Message {
	return func(sub *model.Submission) []notification.Message {
		owner := sub.MusicArrangerID
		return message(sub, &owner, kind, title, body)
	}
}

func songTitle(sub *model.Submission) string {
	if sub.Song != nil && sub.Song.Title != "" {
		return fmt.Sprintf("%q", sub.Song.Title)
	}
	return "your submission"
}

func stamp(t time.Time) *time.Time {
	return &t
}

// --- visibility ---

// viewScope returns the repository scope for the caller, or Forbidden for
// roles that take no part in the music workflow.
func viewScope(caller model.Caller) (repository.SubmissionFilter, error) {
	id := caller.ID
	switch caller.Role {
	case model.RoleMusicArranger:
		return repository.SubmissionFilter{ArrangerID: &id}, nil
	case model.RoleSoundEngineer:
		return repository.SubmissionFilter{EngineerID: &id}, nil
	case model.RoleCreative:
		return repository.SubmissionFilter{CreativeID: &id}, nil
	case model.RoleProducer, model.RoleAdmin:
		return repository.SubmissionFilter{}, nil
	}
	return repository.SubmissionFilter{}, apperr.Forbidden(fmt.Sprintf("%s cannot view music submissions", caller.Role))
}

func canView(caller model.Caller, sub *model.Submission) error {
	switch caller.Role {
	case model.RoleMusicArranger:
		if !sub.IsOwnedBy(caller.ID) {
			return apperr.Forbidden("you can only view your own submissions")
		}
	case model.RoleSoundEngineer:
		assigned := sub.AssignedSoundEngineerID
		if !(assigned != nil && *assigned == caller.ID) && !(assigned == nil && sub.CurrentState == model.StateSoundEngineering) {
			return apperr.Forbidden("submission is not assigned to you")
		}
	case model.RoleCreative:
		assigned := sub.AssignedCreativeID
		if !(assigned != nil && *assigned == caller.ID) && !(assigned == nil && sub.CurrentState == model.StateCreativeWork) {
			return apperr.Forbidden("submission is not assigned to you")
		}
	}
	return nil
}

func (s *musicWorkflowService) load(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.Submission, error) {
	if _, err := viewScope(caller); err != nil {
		return nil, err
	}
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(caller, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *musicWorkflowService) List(ctx context.Context, caller model.Caller, q SubmissionQuery) ([]SubmissionResponse, int64, error) {
	filter, err := viewScope(caller)
	if err != nil {
		return nil, 0, err
	}

	var states []model.SubmissionState
	if q.Status != "" {
		status := model.SubmissionStatus(q.Status)
		states = model.StatesFor(status)
		if len(states) == 0 && status != model.StatusDraft {
			return nil, 0, apperr.Field("status", fmt.Sprintf("unknown status %q", q.Status))
		}
		if len(states) == 0 {
			return []SubmissionResponse{}, 0, nil
		}
	}
	if q.State != "" {
		state := model.SubmissionState(q.State)
		if !state.Valid() {
			return nil, 0, apperr.Field("state", fmt.Sprintf("unknown state %q", q.State))
		}
		if q.Status != "" && state.Status() != model.SubmissionStatus(q.Status) {
			return []SubmissionResponse{}, 0, nil
		}
		states = []model.SubmissionState{state}
	}

	page := pagination.Normalize(q.Page, q.PerPage)
	filter.States = states
	filter.Search = strings.TrimSpace(q.Search)
	filter.Offset = page.Offset
	filter.Limit = page.Limit

	subs, total, err := s.subs.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SubmissionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, *s.snapshot(caller, &subs[i]))
	}
	return out, total, nil
}

func (s *musicWorkflowService) Get(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error) {
	sub, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(caller, sub), nil
}

func (s *musicWorkflowService) History(ctx context.Context, caller model.Caller, id uuid.UUID) ([]model.AuditLog, error) {
	if _, err := s.load(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.audit.ListByEntity(ctx, id.String())
}

// --- reference checks ---

func (s *musicWorkflowService) songExists(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	_, err := s.songs.GetByID(ctx, *id)
	return err
}

func (s *musicWorkflowService) performerExists(ctx context.Context, ids ...*uuid.UUID) error {
	for _, id := range ids {
		if id == nil {
			continue
		}
		if _, err := s.performers.GetByID(ctx, *id); err != nil {
			return err
		}
	}
	return nil
}

// assignee verifies that id belongs to a user with the expected role.
func (s *musicWorkflowService) assignee(ctx context.Context, field string, id *uuid.UUID, role model.Role) error {
	if id == nil {
		return nil
	}
	user, err := s.users.GetByID(ctx, *id)
	if err != nil {
		return err
	}
	if user.Role != role {
		return apperr.Field(field, fmt.Sprintf("user must have the %s role", role))
	}
	return nil
}

func notPast(field string, date *time.Time, now time.Time) error {
	if date == nil {
		return nil
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if date.Before(today) {
		return apperr.Field(field, "must not be in the past")
	}
	return nil
}

// --- create / update / delete ---

func (s *musicWorkflowService) Create(ctx context.Context, caller model.Caller, req CreateSubmissionRequest) (resp *SubmissionResponse, err error) {
	defer func() { metrics.RecordWorkflowAction(string(workflow.ActionCreate), resultOf(err)) }()

	rule, err := workflow.CheckRole(caller.Role, workflow.ActionCreate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := merge(validatePayload(req), notPast("requested_date", req.RequestedDate, now)); err != nil {
		return nil, err
	}
	song, err := s.songs.GetByID(ctx, req.SongID)
	if err != nil {
		return nil, err
	}
	if err := s.performerExists(ctx, req.ProposedSingerID); err != nil {
		return nil, err
	}

	sub := &model.Submission{
		SongID:           req.SongID,
		Song:             song,
		MusicArrangerID:  caller.ID,
		ProposedSingerID: req.ProposedSingerID,
		ArrangementNotes: strings.TrimSpace(req.ArrangementNotes),
		RequestedDate:    req.RequestedDate,
		CurrentState:     rule.To[0],
		SubmittedAt:      stamp(now),
		Version:          1,
	}
	sub.SubmissionStatus = sub.CurrentState.Status()

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.subs.Create(txCtx, sub); err != nil {
			return err
		}
		return s.audit.Log(txCtx, submissionAudit(caller, sub, model.ActionCreateSubmission, model.TransitionDetails{
			Action: string(workflow.ActionCreate),
			To:     string(sub.CurrentState),
		}))
	})
	if err != nil {
		return nil, err
	}
	return s.snapshot(caller, sub), nil
}

func (s *musicWorkflowService) Update(ctx context.Context, caller model.Caller, id uuid.UUID, req UpdateSubmissionRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action:      workflow.ActionUpdate,
		auditAction: model.ActionUpdateSubmission,
		payload:     req,
		check: func(ctx context.Context, sub *model.Submission) error {
			if err := notPast("requested_date", req.RequestedDate, s.now()); err != nil {
				return err
			}
			if err := s.songExists(ctx, req.SongID); err != nil {
				return err
			}
			return s.performerExists(ctx, req.ProposedSingerID)
		},
		apply: func(sub *model.Submission, _ time.Time, _ *storage.Stored) error {
			if req.SongID != nil && *req.SongID != sub.SongID {
				sub.SongID = *req.SongID
				sub.Song = nil
			}
			if req.ProposedSingerID != nil {
				sub.ProposedSingerID = req.ProposedSingerID
			}
			if req.ArrangementNotes != nil {
				sub.ArrangementNotes = strings.TrimSpace(*req.ArrangementNotes)
			}
			if req.RequestedDate != nil {
				sub.RequestedDate = req.RequestedDate
			}
			return nil
		},
	})
}

func (s *musicWorkflowService) Delete(ctx context.Context, caller model.Caller, id uuid.UUID) (err error) {
	defer func() { metrics.RecordWorkflowAction(string(workflow.ActionDelete), resultOf(err)) }()

	rule, err := workflow.CheckRole(caller.Role, workflow.ActionDelete)
	if err != nil {
		return err
	}
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := workflow.CheckActor(caller, rule, sub); err != nil {
		return err
	}
	if err := workflow.CheckState(rule, sub.CurrentState); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.subs.Delete(txCtx, sub); err != nil {
			return err
		}
		return s.audit.Log(txCtx, submissionAudit(caller, sub, model.ActionDeleteSubmission, model.TransitionDetails{
			Action: string(workflow.ActionDelete),
			From:   string(sub.CurrentState),
		}))
	})
}

// --- producer intake ---

func (s *musicWorkflowService) takeMutation() mutation {
	return mutation{
		action: workflow.ActionTake,
		apply: func(sub *model.Submission, _ time.Time, _ *storage.Stored) error {
			sub.CurrentState = model.StateProducerReview
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			return toArranger(model.NotificationInfo, "Submission under review",
				fmt.Sprintf("A producer is reviewing %s.", songTitle(sub)))(sub)
		},
	}
}

func (s *musicWorkflowService) Take(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.takeMutation())
}

func (s *musicWorkflowService) Modify(ctx context.Context, caller model.Caller, id uuid.UUID, req ModifyRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action:  workflow.ActionModify,
		payload: req,
		notes:   req.ProducerNotes,
		check: func(ctx context.Context, _ *model.Submission) error {
			if err := s.songExists(ctx, req.SongID); err != nil {
				return err
			}
			return s.performerExists(ctx, req.ProposedSingerID, req.ApprovedSingerID)
		},
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			if req.SongID != nil && *req.SongID != sub.SongID {
				sub.SongID = *req.SongID
				sub.Song = nil
			}
			if req.ProposedSingerID != nil {
				sub.ProposedSingerID = req.ProposedSingerID
			}
			if req.ArrangementNotes != nil {
				sub.ArrangementNotes = strings.TrimSpace(*req.ArrangementNotes)
			}
			if notes := strings.TrimSpace(req.ProducerNotes); notes != "" {
				sub.ProducerNotes = notes
			}
			producer := caller.ID
			sub.ModifiedByProducer = &producer
			sub.ModifiedAt = stamp(now)
			if req.ApprovedSingerID != nil {
				sub.ApprovedSingerID = req.ApprovedSingerID
			}
			if req.AutoApprove {
				if sub.ApprovedSingerID == nil {
					sub.ApprovedSingerID = sub.ProposedSingerID
				}
				sub.ApprovedAt = stamp(now)
				sub.CurrentState = model.StateArranging
			} else {
				sub.CurrentState = model.StateProducerReview
			}
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			if sub.CurrentState == model.StateArranging {
				return toArranger(model.NotificationSuccess, "Submission modified and approved",
					fmt.Sprintf("A producer adjusted and approved %s. You can start arranging.", songTitle(sub)))(sub)
			}
			return toArranger(model.NotificationInfo, "Submission modified",
				fmt.Sprintf("A producer modified %s.", songTitle(sub)))(sub)
		},
	})
}

func (s *musicWorkflowService) approveMutation(req ApproveRequest) mutation {
	return mutation{
		action:  workflow.ActionApprove,
		payload: req,
		notes:   req.ProducerNotes,
		check: func(ctx context.Context, _ *model.Submission) error {
			return s.performerExists(ctx, req.ApprovedSingerID)
		},
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			sub.ApprovedSingerID = req.ApprovedSingerID
			if sub.ApprovedSingerID == nil {
				sub.ApprovedSingerID = sub.ProposedSingerID
			}
			if notes := strings.TrimSpace(req.ProducerNotes); notes != "" {
				sub.ProducerNotes = notes
			}
			sub.ApprovedAt = stamp(now)
			sub.CurrentState = model.StateArranging
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			return toArranger(model.NotificationSuccess, "Submission approved",
				fmt.Sprintf("%s was approved. You can start arranging.", songTitle(sub)))(sub)
		},
	}
}

func (s *musicWorkflowService) Approve(ctx context.Context, caller model.Caller, id uuid.UUID, req ApproveRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.approveMutation(req))
}

func (s *musicWorkflowService) rejectMutation(action workflow.Action, req FeedbackRequest) mutation {
	req.Feedback = strings.TrimSpace(req.Feedback)
	title := "Submission rejected"
	if action == workflow.ActionRejectArrangement {
		title = "Arrangement rejected"
	}
	return mutation{
		action:  action,
		payload: req,
		notes:   req.Feedback,
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			sub.ProducerFeedback = req.Feedback
			sub.RejectedAt = stamp(now)
			sub.CurrentState = model.StateRejected
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			return toArranger(model.NotificationError, title,
				fmt.Sprintf("%s was rejected: %s", songTitle(sub), req.Feedback))(sub)
		},
	}
}

func (s *musicWorkflowService) Reject(ctx context.Context, caller model.Caller, id uuid.UUID, req FeedbackRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.rejectMutation(workflow.ActionReject, req))
}

// --- arranger ---

func (s *musicWorkflowService) startArrangingMutation() mutation {
	return mutation{
		action: workflow.ActionStartArranging,
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			if sub.CurrentState == model.StateArranging && sub.ArrangementStarted {
				return errNoChange
			}
			if !sub.ArrangementStarted || sub.ArrangementStartedAt == nil {
				sub.ArrangementStartedAt = stamp(now)
			}
			sub.ArrangementStarted = true
			sub.CurrentState = model.StateArranging
			return nil
		},
	}
}

func (s *musicWorkflowService) StartArranging(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.startArrangingMutation())
}

func attachArrangement(sub *model.Submission, file *storage.Stored) {
	sub.ArrangementFilePath = file.Path
	sub.ArrangementFileURL = file.URL
	sub.ArrangementFileName = file.OriginalName
}

func (s *musicWorkflowService) SubmitArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req FileRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action:  workflow.ActionSubmitArrangement,
		payload: req,
		notes:   req.Notes,
		upload:  &upload{category: storage.CategoryArrangement, file: req.File},
		apply: func(sub *model.Submission, now time.Time, file *storage.Stored) error {
			attachArrangement(sub, file)
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				sub.ArrangementNotes = notes
			}
			sub.ArrangementCompletedAt = stamp(now)
			sub.CurrentState = model.StateArrangementReview
			return nil
		},
	})
}

func (s *musicWorkflowService) ResubmitArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req FileRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action:  workflow.ActionResubmitArrangement,
		payload: req,
		notes:   req.Notes,
		upload:  &upload{category: storage.CategoryArrangement, file: req.File},
		apply: func(sub *model.Submission, now time.Time, file *storage.Stored) error {
			attachArrangement(sub, file)
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				sub.ArrangementNotes = notes
			}
			sub.ProducerFeedback = ""
			sub.RejectedAt = nil
			sub.SubmittedAt = stamp(now)
			sub.CurrentState = model.StateSubmitted
			return nil
		},
	})
}

// --- producer arrangement review ---

func (s *musicWorkflowService) approveArrangementMutation(req NotesRequest) mutation {
	return mutation{
		action:  workflow.ActionApproveArrangement,
		payload: req,
		notes:   req.Notes,
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				sub.ProducerNotes = notes
			}
			sub.ApprovedAt = stamp(now)
			sub.CurrentState = model.StateProducerProcessing
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			return toArranger(model.NotificationSuccess, "Arrangement approved",
				fmt.Sprintf("The arrangement for %s was approved.", songTitle(sub)))(sub)
		},
	}
}

func (s *musicWorkflowService) ApproveArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req NotesRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.approveArrangementMutation(req))
}

func (s *musicWorkflowService) RejectArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req FeedbackRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.rejectMutation(workflow.ActionRejectArrangement, req))
}

func (s *musicWorkflowService) processArrangementMutation(req NotesRequest) mutation {
	return mutation{
		action:  workflow.ActionProcessArrangement,
		payload: req,
		notes:   req.Notes,
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			sub.ProcessingNotes = strings.TrimSpace(req.Notes)
			sub.ProcessedAt = stamp(now)
			sub.CurrentState = model.StateQualityControl
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			return toArranger(model.NotificationInfo, "Arrangement processed",
				fmt.Sprintf("The arrangement for %s was processed and sent to quality control.", songTitle(sub)))(sub)
		},
	}
}

func (s *musicWorkflowService) ProcessArrangement(ctx context.Context, caller model.Caller, id uuid.UUID, req NotesRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.processArrangementMutation(req))
}

func (s *musicWorkflowService) QCMusic(ctx context.Context, caller model.Caller, id uuid.UUID, req QCRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action:  workflow.ActionQCMusic,
		payload: req,
		notes:   req.Notes,
		check: func(ctx context.Context, _ *model.Submission) error {
			return s.assignee(ctx, "assigned_sound_engineer_id", req.AssignedSoundEngineerID, model.RoleSoundEngineer)
		},
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			score := req.QualityScore
			sub.QualityScore = &score
			sub.QCDecision = req.Decision
			areas, err := json.Marshal(nonNil(req.ImprovementAreas))
			if err != nil {
				return err
			}
			sub.ImprovementAreas = datatypes.JSON(areas)
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				sub.ProducerNotes = notes
			}
			sub.QCCompletedAt = stamp(now)
			if req.Decision == QCApproved {
				sub.CurrentState = model.StateCreativeWork
				sub.CreativeWorkStartedAt = nil
				return nil
			}
			if req.AssignedSoundEngineerID != nil {
				sub.AssignedSoundEngineerID = req.AssignedSoundEngineerID
			}
			sub.CurrentState = model.StateSoundEngineering
			sub.SoundEngineeringStartedAt = nil
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			if sub.CurrentState == model.StateCreativeWork {
				out := toArranger(model.NotificationSuccess, "Quality check passed",
					fmt.Sprintf("%s passed quality control with a score of %d.", songTitle(sub), req.QualityScore))(sub)
				return append(out, message(sub, sub.AssignedCreativeID, model.NotificationInfo, "Creative work ready",
					fmt.Sprintf("%s is ready for creative work.", songTitle(sub)))...)
			}
			out := toArranger(model.NotificationWarning, "Quality check needs improvement",
				fmt.Sprintf("%s needs improvement: %s", songTitle(sub), strings.Join(req.ImprovementAreas, ", ")))(sub)
			return append(out, message(sub, sub.AssignedSoundEngineerID, model.NotificationInfo, "Sound engineering requested",
				fmt.Sprintf("%s needs sound engineering: %s", songTitle(sub), strings.Join(req.ImprovementAreas, ", ")))...)
		},
	})
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// --- sound engineering ---

func (s *musicWorkflowService) AcceptSoundEngineering(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action: workflow.ActionAcceptSoundEngineering,
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			// The started stamp is cleared whenever a new round begins.
			if sub.AssignedSoundEngineerID != nil && *sub.AssignedSoundEngineerID == caller.ID && sub.SoundEngineeringStartedAt != nil {
				return errNoChange
			}
			me := caller.ID
			sub.AssignedSoundEngineerID = &me
			sub.SoundEngineeringStartedAt = stamp(now)
			return nil
		},
	})
}

func (s *musicWorkflowService) CompleteSoundEngineering(ctx context.Context, caller model.Caller, id uuid.UUID, req FileRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action:  workflow.ActionCompleteSoundEngineering,
		payload: req,
		notes:   req.Notes,
		upload:  &upload{category: storage.CategoryProcessedAudio, file: req.File},
		apply: func(sub *model.Submission, now time.Time, file *storage.Stored) error {
			if sub.AssignedSoundEngineerID == nil {
				me := caller.ID
				sub.AssignedSoundEngineerID = &me
			}
			sub.ProcessedAudioPath = file.Path
			sub.ProcessedAudioURL = file.URL
			sub.SoundEngineeringCompletedAt = stamp(now)
			sub.CurrentState = model.StateQualityControl
			return nil
		},
	})
}

func (s *musicWorkflowService) rejectBackMutation(req FeedbackRequest) mutation {
	req.Feedback = strings.TrimSpace(req.Feedback)
	return mutation{
		action:  workflow.ActionRejectBack,
		payload: req,
		notes:   req.Feedback,
		apply: func(sub *model.Submission, _ time.Time, _ *storage.Stored) error {
			sub.SoundEngineerFeedback = req.Feedback
			sub.CurrentState = model.StateArranging
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			return toArranger(model.NotificationWarning, "Arrangement sent back",
				fmt.Sprintf("Sound engineering sent %s back: %s", songTitle(sub), req.Feedback))(sub)
		},
	}
}

func (s *musicWorkflowService) RejectBack(ctx context.Context, caller model.Caller, id uuid.UUID, req FeedbackRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.rejectBackMutation(req))
}

func (s *musicWorkflowService) approveQualityMutation(req ApproveQualityRequest) mutation {
	return mutation{
		action:  workflow.ActionApproveQuality,
		payload: req,
		notes:   req.Notes,
		check: func(ctx context.Context, _ *model.Submission) error {
			if req.TargetState != string(model.StateCreativeWork) && req.AssignedCreativeID != nil {
				return apperr.Field("assigned_creative_id", "can only be set when sending to creative work")
			}
			return s.assignee(ctx, "assigned_creative_id", req.AssignedCreativeID, model.RoleCreative)
		},
		apply: func(sub *model.Submission, _ time.Time, _ *storage.Stored) error {
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				sub.ProducerNotes = notes
			}
			if req.AssignedCreativeID != nil {
				sub.AssignedCreativeID = req.AssignedCreativeID
			}
			sub.CurrentState = model.SubmissionState(req.TargetState)
			if sub.CurrentState == model.StateCreativeWork {
				sub.CreativeWorkStartedAt = nil
			}
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			if sub.CurrentState == model.StateArranging {
				return toArranger(model.NotificationWarning, "Arrangement needs rework",
					fmt.Sprintf("Quality review sent %s back to arranging.", songTitle(sub)))(sub)
			}
			out := toArranger(model.NotificationSuccess, "Quality approved",
				fmt.Sprintf("%s passed quality review and moved to creative work.", songTitle(sub)))(sub)
			return append(out, message(sub, sub.AssignedCreativeID, model.NotificationInfo, "Creative work ready",
				fmt.Sprintf("%s is ready for creative work.", songTitle(sub)))...)
		},
	}
}

func (s *musicWorkflowService) ApproveQuality(ctx context.Context, caller model.Caller, id uuid.UUID, req ApproveQualityRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.approveQualityMutation(req))
}

// --- creative ---

func (s *musicWorkflowService) AcceptCreativeWork(ctx context.Context, caller model.Caller, id uuid.UUID) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, mutation{
		action: workflow.ActionAcceptCreativeWork,
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			if sub.AssignedCreativeID != nil && *sub.AssignedCreativeID == caller.ID && sub.CreativeWorkStartedAt != nil {
				return errNoChange
			}
			me := caller.ID
			sub.AssignedCreativeID = &me
			sub.CreativeWorkStartedAt = stamp(now)
			return nil
		},
	})
}

func budgetLines(lines []model.BudgetLine) (datatypes.JSON, *decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, nil, nil
	}
	fields := apperr.Fields{}
	total := decimal.Zero
	for i, line := range lines {
		if strings.TrimSpace(line.Item) == "" {
			fields[fmt.Sprintf("budget_data[%d].item", i)] = "is required"
		}
		if line.Amount.IsNegative() {
			fields[fmt.Sprintf("budget_data[%d].amount", i)] = "must not be negative"
		}
		total = total.Add(line.Amount)
	}
	if len(fields) > 0 {
		return nil, nil, apperr.Validation(fields)
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, nil, err
	}
	total = total.Round(2)
	return datatypes.JSON(raw), &total, nil
}

func (s *musicWorkflowService) SubmitCreativeWork(ctx context.Context, caller model.Caller, id uuid.UUID, req CreativeWorkRequest) (*SubmissionResponse, error) {
	req.ScriptContent = strings.TrimSpace(req.ScriptContent)
	var (
		budget datatypes.JSON
		total  *decimal.Decimal
	)
	return s.run(ctx, caller, id, mutation{
		action:  workflow.ActionSubmitCreativeWork,
		payload: req,
		check: func(_ context.Context, _ *model.Submission) error {
			var err error
			var errs []error
			if len(req.StoryboardData) > 0 && !json.Valid(req.StoryboardData) {
				errs = append(errs, apperr.Field("storyboard_data", "must be valid JSON"))
			}
			if budget, total, err = budgetLines(req.BudgetData); err != nil {
				errs = append(errs, err)
			}
			if req.RecordingDate != nil && req.ShootingDate != nil && req.ShootingDate.Before(*req.RecordingDate) {
				errs = append(errs, apperr.Field("shooting_date", "must not be before the recording date"))
			}
			return merge(errs...)
		},
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			if sub.AssignedCreativeID == nil {
				me := caller.ID
				sub.AssignedCreativeID = &me
			}
			sub.ScriptContent = req.ScriptContent
			if len(req.StoryboardData) > 0 {
				sub.StoryboardData = datatypes.JSON(req.StoryboardData)
			}
			if budget != nil {
				sub.BudgetData = budget
				sub.BudgetTotal = total
			}
			sub.RecordingDate = req.RecordingDate
			sub.RecordingLocation = strings.TrimSpace(req.RecordingLocation)
			sub.ShootingDate = req.ShootingDate
			sub.ShootingLocation = strings.TrimSpace(req.ShootingLocation)
			sub.CreativeWorkCompletedAt = stamp(now)
			sub.CurrentState = model.StateFinalApproval
			return nil
		},
	})
}

func (s *musicWorkflowService) finalApproveMutation(req NotesRequest) mutation {
	return mutation{
		action:  workflow.ActionFinalApprove,
		payload: req,
		notes:   req.Notes,
		apply: func(sub *model.Submission, now time.Time, _ *storage.Stored) error {
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				sub.ProducerNotes = notes
			}
			sub.CompletedAt = stamp(now)
			sub.CurrentState = model.StateCompleted
			return nil
		},
		notify: func(sub *model.Submission) []notification.Message {
			return toArranger(model.NotificationSuccess, "Submission completed",
				fmt.Sprintf("%s received final approval.", songTitle(sub)))(sub)
		},
	}
}

func (s *musicWorkflowService) FinalApprove(ctx context.Context, caller model.Caller, id uuid.UUID, req NotesRequest) (*SubmissionResponse, error) {
	return s.run(ctx, caller, id, s.finalApproveMutation(req))
}

// --- generic transition ---

// Transition moves a submission along a table edge owned by the caller's
// role, reusing the side effects of the matching action.
func (s *musicWorkflowService) Transition(ctx context.Context, caller model.Caller, id uuid.UUID, req TransitionRequest) (resp *SubmissionResponse, err error) {
	defer func() { metrics.RecordWorkflowAction(string(workflow.ActionTransition), resultOf(err)) }()

	if len(workflow.Edges(caller.Role)) == 0 {
		return nil, apperr.Forbidden(fmt.Sprintf("%s cannot change submission state", caller.Role))
	}
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckActor(caller, workflow.ActorRule(caller.Role), sub); err != nil {
		return nil, err
	}
	if err := validatePayload(req); err != nil {
		return nil, err
	}
	to := model.SubmissionState(req.NewState)
	rule, err := workflow.ResolveTransition(caller.Role, sub.CurrentState, to)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckActor(caller, rule, sub); err != nil {
		return nil, err
	}

	notes := strings.TrimSpace(req.Notes)
	if rule.Notes && notes == "" {
		return nil, apperr.Field("notes", "notes are required for this transition")
	}

	var m mutation
	switch rule.Action {
	case workflow.ActionTake:
		m = s.takeMutation()
	case workflow.ActionApprove:
		m = s.approveMutation(ApproveRequest{ProducerNotes: notes})
	case workflow.ActionReject, workflow.ActionRejectArrangement:
		m = s.rejectMutation(rule.Action, FeedbackRequest{Feedback: notes})
	case workflow.ActionStartArranging:
		m = s.startArrangingMutation()
	case workflow.ActionApproveArrangement:
		m = s.approveArrangementMutation(NotesRequest{Notes: notes})
	case workflow.ActionProcessArrangement:
		m = s.processArrangementMutation(NotesRequest{Notes: notes})
	case workflow.ActionRejectBack:
		m = s.rejectBackMutation(FeedbackRequest{Feedback: notes})
	case workflow.ActionApproveQuality:
		q := ApproveQualityRequest{TargetState: string(to), Notes: notes}
		if to == model.StateCreativeWork {
			q.AssignedCreativeID = req.AssignedUserID
		}
		m = s.approveQualityMutation(q)
	case workflow.ActionFinalApprove:
		m = s.finalApproveMutation(NotesRequest{Notes: notes})
	default:
		return nil, apperr.Internal(fmt.Errorf("transition edge %s has no handler", rule.Action))
	}

	m.notes = notes
	return s.commit(ctx, caller, rule, sub, m)
}
