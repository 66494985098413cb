package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"studio-backend/internal/apperr"
	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/internal/service"
	"studio-backend/internal/workflow"
	"studio-backend/pkg/pagination"
)

type MusicWorkflowHandler struct {
	workflow  service.MusicWorkflowService
	auth      *middleware.Auth
	maxUpload int64
}

// NewMusicWorkflowHandler caps multipart bodies at maxUpload plus room for
// the form envelope.
func NewMusicWorkflowHandler(svc service.MusicWorkflowService, auth *middleware.Auth, maxUpload int64) *MusicWorkflowHandler {
	return &MusicWorkflowHandler{workflow: svc, auth: auth, maxUpload: maxUpload}
}

func (h *MusicWorkflowHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/music-workflow/submissions")
	group.Use(h.auth.RequireRole())
	{
		group.GET("", h.List)
		group.POST("", h.Create)
		group.GET("/:id", h.Get)
		group.PUT("/:id", h.Update)
		group.DELETE("/:id", h.Delete)
		group.GET("/:id/history", h.History)
		group.POST("/:id/transition", h.Transition)

		group.POST("/:id/take-request", h.TakeRequest)
		group.POST("/:id/modify-request", h.ModifyRequest)
		group.POST("/:id/approve-request", h.ApproveRequest)
		group.POST("/:id/reject-request", h.RejectRequest)
		group.POST("/:id/start-arranging", h.StartArranging)
		group.POST("/:id/submit-arrangement", h.SubmitArrangement)
		group.POST("/:id/approve-arrangement", h.ApproveArrangement)
		group.POST("/:id/reject-arrangement", h.RejectArrangement)
		group.POST("/:id/resubmit-arrangement", h.ResubmitArrangement)
		group.POST("/:id/process-arrangement", h.ProcessArrangement)
		group.POST("/:id/qc-music", h.QCMusic)
		group.POST("/:id/accept-sound-engineering-work", h.AcceptSoundEngineering)
		group.POST("/:id/complete-sound-engineering", h.CompleteSoundEngineering)
		group.POST("/:id/reject-arrangement-back-to-arranger", h.RejectBack)
		group.POST("/:id/approve-quality", h.ApproveQuality)
		group.POST("/:id/accept-creative-work", h.AcceptCreativeWork)
		group.POST("/:id/submit-creative-work", h.SubmitCreativeWork)
		group.POST("/:id/final-approve", h.FinalApprove)
	}
}

// errResponded marks a failure whose response is already written.
var errResponded = errors.New("response already written")

type submissionCall func(c *gin.Context, caller model.Caller, id uuid.UUID) (*service.SubmissionResponse, error)

// act runs one workflow action on the submission in the path. The role check
// runs before the body is read so a wrong role is always a 403.
func (h *MusicWorkflowHandler) act(c *gin.Context, action workflow.Action, message string, call submissionCall) {
	caller := callerOf(c)
	if _, err := workflow.CheckRole(caller.Role, action); err != nil {
		fail(c, err)
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	sub, err := call(c, caller, id)
	if errors.Is(err, errResponded) {
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	success(c, message, sub)
}

func noBody(fn func(context.Context, model.Caller, uuid.UUID) (*service.SubmissionResponse, error)) submissionCall {
	return func(c *gin.Context, caller model.Caller, id uuid.UUID) (*service.SubmissionResponse, error) {
		return fn(c.Request.Context(), caller, id)
	}
}

func withJSON[T any](fn func(context.Context, model.Caller, uuid.UUID, T) (*service.SubmissionResponse, error)) submissionCall {
	return func(c *gin.Context, caller model.Caller, id uuid.UUID) (*service.SubmissionResponse, error) {
		var req T
		if !bind(c, &req) {
			return nil, errResponded
		}
		return fn(c.Request.Context(), caller, id, req)
	}
}

const multipartOverhead = 1 << 20

// withFile reads the multipart "file" field and the optional "notes" field.
// The body is cut off once it passes the upload limit.
func (h *MusicWorkflowHandler) withFile(fn func(context.Context, model.Caller, uuid.UUID, service.FileRequest) (*service.SubmissionResponse, error)) submissionCall {
	return func(c *gin.Context, caller model.Caller, id uuid.UUID) (*service.SubmissionResponse, error) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

		var req service.FileRequest
		fh, err := c.FormFile("file")
		var tooLarge *http.MaxBytesError
		switch {
		case err == nil:
			req.File = fh
		case errors.As(err, &tooLarge):
			return nil, apperr.Field("file", fmt.Sprintf("file exceeds the %d MB limit", h.maxUpload/(1<<20)))
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		default:
			return nil, apperr.Field("file", "Invalid upload: "+err.Error())
		}
		req.Notes = c.PostForm("notes")
		return fn(c.Request.Context(), caller, id, req)
	}
}

// List handles GET /api/music-workflow/submissions
// @Summary      List submissions
// @Description  Returns the submissions visible to the caller's role
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        status    query     string  false  "Coarse status: pending, approved, rejected, in_progress, completed"
// @Param        state     query     string  false  "Workflow state"
// @Param        search    query     string  false  "Song title or notes contain"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        per_page  query     int     false  "Items per page (default 15)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Failure      422       {object}  response.Response
// @Router       /api/music-workflow/submissions [get]
func (h *MusicWorkflowHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.workflow.List(c.Request.Context(), callerOf(c), service.SubmissionQuery{
		Status:  c.Query("status"),
		State:   c.Query("state"),
		Search:  c.Query("search"),
		Page:    p.Page,
		PerPage: p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", items, total, p)
}

// Create handles POST /api/music-workflow/submissions
// @Summary      Create a submission
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateSubmissionRequest  true  "Submission"
// @Success      201      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      403      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/music-workflow/submissions [post]
func (h *MusicWorkflowHandler) Create(c *gin.Context) {
	caller := callerOf(c)
	if _, err := workflow.CheckRole(caller.Role, workflow.ActionCreate); err != nil {
		fail(c, err)
		return
	}
	var req service.CreateSubmissionRequest
	if !bind(c, &req) {
		return
	}
	sub, err := h.workflow.Create(c.Request.Context(), caller, req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "Submission created", sub)
}

// Get handles GET /api/music-workflow/submissions/{id}
// @Summary      Submission snapshot
// @Description  The submission plus the actions the caller may invoke now
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/music-workflow/submissions/{id} [get]
func (h *MusicWorkflowHandler) Get(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	sub, err := h.workflow.Get(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "", sub)
}

// Update handles PUT /api/music-workflow/submissions/{id}
// @Summary      Update a pending submission
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true  "Submission ID"
// @Param        payload  body      service.UpdateSubmissionRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/music-workflow/submissions/{id} [put]
func (h *MusicWorkflowHandler) Update(c *gin.Context) {
	h.act(c, workflow.ActionUpdate, "Submission updated", withJSON(h.workflow.Update))
}

// Delete handles DELETE /api/music-workflow/submissions/{id}
// @Summary      Delete a pending submission
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/music-workflow/submissions/{id} [delete]
func (h *MusicWorkflowHandler) Delete(c *gin.Context) {
	h.act(c, workflow.ActionDelete, "Submission deleted", func(c *gin.Context, caller model.Caller, id uuid.UUID) (*service.SubmissionResponse, error) {
		return nil, h.workflow.Delete(c.Request.Context(), caller, id)
	})
}

// History handles GET /api/music-workflow/submissions/{id}/history
// @Summary      Submission history
// @Description  Audit rows recorded for the submission, oldest first
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=[]model.AuditLog}
// @Failure      404  {object}  response.Response
// @Router       /api/music-workflow/submissions/{id}/history [get]
func (h *MusicWorkflowHandler) History(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	rows, err := h.workflow.History(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "", rows)
}

// Transition handles POST /api/music-workflow/submissions/{id}/transition
// @Summary      Generic transition
// @Description  Moves the submission to new_state when an edge for the caller's role allows it
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Submission ID"
// @Param        payload  body      service.TransitionRequest   true  "Target state"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/music-workflow/submissions/{id}/transition [post]
func (h *MusicWorkflowHandler) Transition(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.TransitionRequest
	if !bind(c, &req) {
		return
	}
	sub, err := h.workflow.Transition(c.Request.Context(), callerOf(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "Submission moved to "+string(sub.CurrentState), sub)
}

// TakeRequest claims a pending request for review.
// @Summary      Take request (producer)
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/take-request [post]
func (h *MusicWorkflowHandler) TakeRequest(c *gin.Context) {
	h.act(c, workflow.ActionTake, "Request taken", noBody(h.workflow.Take))
}

// @Summary      Modify request (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Submission ID"
// @Param        payload  body      service.ModifyRequest  true  "Modifications"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/modify-request [post]
func (h *MusicWorkflowHandler) ModifyRequest(c *gin.Context) {
	h.act(c, workflow.ActionModify, "Request modified", withJSON(h.workflow.Modify))
}

// @Summary      Approve request (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Submission ID"
// @Param        payload  body      service.ApproveRequest  false "Approved singer and notes"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/approve-request [post]
func (h *MusicWorkflowHandler) ApproveRequest(c *gin.Context) {
	h.act(c, workflow.ActionApprove, "Request approved", withJSON(h.workflow.Approve))
}

// @Summary      Reject request (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Submission ID"
// @Param        payload  body      service.FeedbackRequest  true  "Feedback"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/reject-request [post]
func (h *MusicWorkflowHandler) RejectRequest(c *gin.Context) {
	h.act(c, workflow.ActionReject, "Request rejected", withJSON(h.workflow.Reject))
}

// @Summary      Start arranging (music arranger)
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/start-arranging [post]
func (h *MusicWorkflowHandler) StartArranging(c *gin.Context) {
	h.act(c, workflow.ActionStartArranging, "Arranging started", noBody(h.workflow.StartArranging))
}

// @Summary      Submit arrangement (music arranger)
// @Tags         music-workflow
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Submission ID"
// @Param        file   formData  file    true   "Arrangement file"
// @Param        notes  formData  string  false  "Notes"
// @Success      200    {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/submit-arrangement [post]
func (h *MusicWorkflowHandler) SubmitArrangement(c *gin.Context) {
	h.act(c, workflow.ActionSubmitArrangement, "Arrangement submitted", h.withFile(h.workflow.SubmitArrangement))
}

// @Summary      Approve arrangement (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                true   "Submission ID"
// @Param        payload  body      service.NotesRequest  false  "Notes"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/approve-arrangement [post]
func (h *MusicWorkflowHandler) ApproveArrangement(c *gin.Context) {
	h.act(c, workflow.ActionApproveArrangement, "Arrangement approved", withJSON(h.workflow.ApproveArrangement))
}

// @Summary      Reject arrangement (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Submission ID"
// @Param        payload  body      service.FeedbackRequest  true  "Feedback"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/reject-arrangement [post]
func (h *MusicWorkflowHandler) RejectArrangement(c *gin.Context) {
	h.act(c, workflow.ActionRejectArrangement, "Arrangement rejected", withJSON(h.workflow.RejectArrangement))
}

// @Summary      Resubmit arrangement (music arranger)
// @Tags         music-workflow
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Submission ID"
// @Param        file   formData  file    true   "Revised arrangement file"
// @Param        notes  formData  string  false  "Notes"
// @Success      200    {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/resubmit-arrangement [post]
func (h *MusicWorkflowHandler) ResubmitArrangement(c *gin.Context) {
	h.act(c, workflow.ActionResubmitArrangement, "Arrangement resubmitted", h.withFile(h.workflow.ResubmitArrangement))
}

// @Summary      Process arrangement (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                true   "Submission ID"
// @Param        payload  body      service.NotesRequest  false  "Notes"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/process-arrangement [post]
func (h *MusicWorkflowHandler) ProcessArrangement(c *gin.Context) {
	h.act(c, workflow.ActionProcessArrangement, "Arrangement sent to QC", withJSON(h.workflow.ProcessArrangement))
}

// @Summary      Quality check (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "Submission ID"
// @Param        payload  body      service.QCRequest  true  "QC result"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/qc-music [post]
func (h *MusicWorkflowHandler) QCMusic(c *gin.Context) {
	h.act(c, workflow.ActionQCMusic, "Quality check recorded", withJSON(h.workflow.QCMusic))
}

// @Summary      Accept sound engineering work (sound engineer)
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/accept-sound-engineering-work [post]
func (h *MusicWorkflowHandler) AcceptSoundEngineering(c *gin.Context) {
	h.act(c, workflow.ActionAcceptSoundEngineering, "Sound engineering accepted", noBody(h.workflow.AcceptSoundEngineering))
}

// @Summary      Complete sound engineering (sound engineer)
// @Tags         music-workflow
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Submission ID"
// @Param        file   formData  file    true   "Processed audio"
// @Param        notes  formData  string  false  "Notes"
// @Success      200    {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/complete-sound-engineering [post]
func (h *MusicWorkflowHandler) CompleteSoundEngineering(c *gin.Context) {
	h.act(c, workflow.ActionCompleteSoundEngineering, "Sound engineering completed", h.withFile(h.workflow.CompleteSoundEngineering))
}

// @Summary      Send arrangement back to the arranger (sound engineer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Submission ID"
// @Param        payload  body      service.FeedbackRequest  true  "Feedback"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/reject-arrangement-back-to-arranger [post]
func (h *MusicWorkflowHandler) RejectBack(c *gin.Context) {
	h.act(c, workflow.ActionRejectBack, "Arrangement sent back to the arranger", withJSON(h.workflow.RejectBack))
}

// @Summary      Approve quality (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Submission ID"
// @Param        payload  body      service.ApproveQualityRequest  true  "Target state"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/approve-quality [post]
func (h *MusicWorkflowHandler) ApproveQuality(c *gin.Context) {
	h.act(c, workflow.ActionApproveQuality, "Quality approved", withJSON(h.workflow.ApproveQuality))
}

// @Summary      Accept creative work (creative)
// @Tags         music-workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/accept-creative-work [post]
func (h *MusicWorkflowHandler) AcceptCreativeWork(c *gin.Context) {
	h.act(c, workflow.ActionAcceptCreativeWork, "Creative work accepted", noBody(h.workflow.AcceptCreativeWork))
}

// @Summary      Submit creative work (creative)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Submission ID"
// @Param        payload  body      service.CreativeWorkRequest  true  "Script, storyboard and budget"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/submit-creative-work [post]
func (h *MusicWorkflowHandler) SubmitCreativeWork(c *gin.Context) {
	h.act(c, workflow.ActionSubmitCreativeWork, "Creative work submitted", withJSON(h.workflow.SubmitCreativeWork))
}

// @Summary      Final approval (producer)
// @Tags         music-workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                true   "Submission ID"
// @Param        payload  body      service.NotesRequest  false  "Notes"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Router       /api/music-workflow/submissions/{id}/final-approve [post]
func (h *MusicWorkflowHandler) FinalApprove(c *gin.Context) {
	h.act(c, workflow.ActionFinalApprove, "Submission completed", withJSON(h.workflow.FinalApprove))
}
