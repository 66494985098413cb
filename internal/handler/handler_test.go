package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/internal/service"
	"studio-backend/pkg/response"
)

const (
	secret    = "handler-test-secret"
	maxUpload = 1 << 20
)

func token(t *testing.T, id uuid.UUID, role model.Role) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  id.String(),
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// stubWorkflow overrides the calls a test exercises. Anything else panics on
// the nil embedded interface.
type stubWorkflow struct {
	service.MusicWorkflowService
	create func(model.Caller, service.CreateSubmissionRequest) (*service.SubmissionResponse, error)
	submit func(model.Caller, uuid.UUID, service.FileRequest) (*service.SubmissionResponse, error)
	take   func(model.Caller, uuid.UUID) (*service.SubmissionResponse, error)
}

func (s *stubWorkflow) Create(_ context.Context, caller model.Caller, req service.CreateSubmissionRequest) (*service.SubmissionResponse, error) {
	return s.create(caller, req)
}

func (s *stubWorkflow) SubmitArrangement(_ context.Context, caller model.Caller, id uuid.UUID, req service.FileRequest) (*service.SubmissionResponse, error) {
	return s.submit(caller, id, req)
}

func (s *stubWorkflow) Take(_ context.Context, caller model.Caller, id uuid.UUID) (*service.SubmissionResponse, error) {
	return s.take(caller, id)
}

type stubSync struct {
	service.AttendanceSyncService
	restart func(uuid.UUID) (*model.OperationResult, error)
}

func (s *stubSync) Restart(_ context.Context, _ model.Caller, id uuid.UUID) (*model.OperationResult, error) {
	return s.restart(id)
}

func newRouter(wf service.MusicWorkflowService, sync service.AttendanceSyncService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := middleware.NewAuth(secret, false)
	r := gin.New()
	NewMusicWorkflowHandler(wf, auth, maxUpload).RegisterRoutes(r.Group(""))
	NewAttendanceMachineHandler(nil, sync, auth, time.UTC).RegisterRoutes(r.Group(""))
	return r
}

func do(r http.Handler, method, path, tok string, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, response.Response) {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestAuth_MissingAndForbidden(t *testing.T) {
	r := newRouter(&stubWorkflow{}, &stubSync{})

	w, env := do(r, http.MethodGet, "/api/music-workflow/submissions", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	w, _ = do(r, http.MethodGet, "/api/music-workflow/submissions", "not-a-token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	producer := token(t, uuid.New(), model.RoleProducer)
	w, _ = do(r, http.MethodPost, "/api/attendance-machines/"+uuid.NewString()+"/restart", producer, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreate_RoleCheckedBeforeBody(t *testing.T) {
	var got service.CreateSubmissionRequest
	wf := &stubWorkflow{create: func(_ model.Caller, req service.CreateSubmissionRequest) (*service.SubmissionResponse, error) {
		got = req
		return &service.SubmissionResponse{}, nil
	}}
	r := newRouter(wf, &stubSync{})
	malformed := func() *bytes.Buffer { return bytes.NewBufferString(`{"song_id":`) }

	w, _ := do(r, http.MethodPost, "/api/music-workflow/submissions", token(t, uuid.New(), model.RoleProducer), malformed(), "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)

	arranger := token(t, uuid.New(), model.RoleMusicArranger)
	w, env := do(r, http.MethodPost, "/api/music-workflow/submissions", arranger, malformed(), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "body")

	songID := uuid.New()
	w, env = do(r, http.MethodPost, "/api/music-workflow/submissions", arranger,
		bytes.NewBufferString(`{"song_id":"`+songID.String()+`","arrangement_notes":"acoustic"}`), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, songID, got.SongID)
	assert.Equal(t, "acoustic", got.ArrangementNotes)
}

func TestAction_ErrorMapping(t *testing.T) {
	var next error
	wf := &stubWorkflow{take: func(model.Caller, uuid.UUID) (*service.SubmissionResponse, error) {
		return nil, next
	}}
	r := newRouter(wf, &stubSync{})
	producer := token(t, uuid.New(), model.RoleProducer)
	path := "/api/music-workflow/submissions/" + uuid.NewString() + "/take-request"

	cases := []struct {
		err    error
		status int
	}{
		{apperr.InvalidState("cannot take-request while submission is arranging", "arranging"), http.StatusBadRequest},
		{apperr.NotFound("submission"), http.StatusNotFound},
		{apperr.Conflict("submission was changed by another request"), http.StatusConflict},
		{apperr.Internal(errors.New("pq: connection reset")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		next = tc.err
		w, env := do(r, http.MethodPost, path, producer, nil, "")
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.False(t, env.Success)
		assert.NotContains(t, env.Message, "pq:")
	}

	w, _ := do(r, http.MethodPost, "/api/music-workflow/submissions/not-a-uuid/take-request", producer, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSubmitArrangement_Multipart(t *testing.T) {
	var got service.FileRequest
	wf := &stubWorkflow{submit: func(_ model.Caller, _ uuid.UUID, req service.FileRequest) (*service.SubmissionResponse, error) {
		got = req
		return &service.SubmissionResponse{}, nil
	}}
	r := newRouter(wf, &stubSync{})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("notes", "first cut"))
	part, err := mw.CreateFormFile("file", "demo.mp3")
	require.NoError(t, err)
	_, _ = part.Write([]byte("ID3 audio"))
	require.NoError(t, mw.Close())

	arranger := token(t, uuid.New(), model.RoleMusicArranger)
	w, _ := do(r, http.MethodPost, "/api/music-workflow/submissions/"+uuid.NewString()+"/submit-arrangement", arranger, body, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.File)
	assert.Equal(t, "demo.mp3", got.File.Filename)
	assert.Equal(t, "first cut", got.Notes)

	w, _ = do(r, http.MethodPost, "/api/music-workflow/submissions/"+uuid.NewString()+"/submit-arrangement", arranger, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got.File)
}

func TestSubmitArrangement_OversizedBodyIsRejected(t *testing.T) {
	called := false
	wf := &stubWorkflow{submit: func(model.Caller, uuid.UUID, service.FileRequest) (*service.SubmissionResponse, error) {
		called = true
		return &service.SubmissionResponse{}, nil
	}}
	r := newRouter(wf, &stubSync{})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "huge.wav")
	require.NoError(t, err)
	_, _ = part.Write(bytes.Repeat([]byte{0x52}, 3*maxUpload))
	require.NoError(t, mw.Close())

	arranger := token(t, uuid.New(), model.RoleMusicArranger)
	w, env := do(r, http.MethodPost, "/api/music-workflow/submissions/"+uuid.NewString()+"/submit-arrangement", arranger, body, mw.FormDataContentType())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "file")
	assert.False(t, called)
}

func TestMachineOperation_FailureIsAResult(t *testing.T) {
	sync := &stubSync{restart: func(uuid.UUID) (*model.OperationResult, error) {
		return &model.OperationResult{Success: false, Message: "restart failed: the device did not answer in time"}, nil
	}}
	r := newRouter(&stubWorkflow{}, sync)

	w, env := do(r, http.MethodPost, "/api/attendance-machines/"+uuid.NewString()+"/restart", token(t, uuid.New(), model.RoleHR), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "did not answer")
}

func TestRolesAndStatisticsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := middleware.NewAuth(secret, false)
	r := gin.New()
	NewRoleHandler(service.NewRoleService(), auth).RegisterRoutes(r.Group(""))
	NewStatisticsHandler(nil, auth).RegisterRoutes(r.Group(""))
	singer := token(t, uuid.New(), model.RoleSinger)

	w, env := do(r, http.MethodGet, "/api/roles/producer", singer, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = do(r, http.MethodGet, "/api/roles/manager", singer, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(r, http.MethodGet, "/api/statistics", singer, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := token(t, uuid.New(), model.RoleAdmin)
	w, env = do(r, http.MethodGet, "/api/statistics?start_date=yesterday", admin, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "start_date")
}
