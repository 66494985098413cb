package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
)

type userFixture struct {
	svc        UserService
	users      *memUsers
	performers *memPerformers
	audit      *memAudit
	admin      model.Caller
}

const testSecret = "test-secret"

var userNow = time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

func newUserFixture() *userFixture {
	f := &userFixture{
		users:      &memUsers{rows: map[uuid.UUID]model.User{}},
		performers: &memPerformers{rows: map[uuid.UUID]model.Performer{}},
		audit:      &memAudit{},
		admin:      model.Caller{ID: uuid.New(), Role: model.RoleAdmin},
	}
	f.svc = NewUserService(UserDeps{
		Users:      f.users,
		Performers: f.performers,
		Audit:      f.audit,
		Tx:         memTx{},
		JWTSecret:  testSecret,
		TokenTTL:   time.Hour,
		Now:        func() time.Time { return userNow },
	})
	return f
}

func TestCreateUser_SingerGetsPerformer(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	resp, err := f.svc.CreateUser(ctx, f.admin, CreateUserRequest{
		Username: "lan",
		Email:    "  Lan@Example.com ",
		Password: "secret1",
		Role:     "singer",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.PerformerID)
	assert.Equal(t, "lan@example.com", resp.Email)

	p, err := f.performers.GetByID(ctx, *resp.PerformerID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, *p.UserID)
	assert.Equal(t, "lan", p.Name)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, model.ActionCreateUser, f.audit.entries[0].Action)

	me, err := f.svc.Me(ctx, model.Caller{ID: resp.ID, Role: model.RoleSinger})
	require.NoError(t, err)
	assert.Equal(t, resp.PerformerID, me.PerformerID)
}

func TestCreateUser_AdoptsExistingPerformer(t *testing.T) {
	f := newUserFixture()
	existing := model.Performer{ID: uuid.New(), Name: "Lan Anh", Email: "lan@example.com"}
	f.performers.rows[existing.ID] = existing

	resp, err := f.svc.CreateUser(context.Background(), f.admin, CreateUserRequest{
		Username: "lan", Email: "lan@example.com", Password: "secret1", Role: "singer",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, *resp.PerformerID)
	assert.Len(t, f.performers.rows, 1)
	assert.Equal(t, "Lan Anh", f.performers.rows[existing.ID].Name)
}

func TestCreateUser_Rules(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, model.Caller{ID: uuid.New(), Role: model.RoleProducer}, CreateUserRequest{})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = f.svc.CreateUser(ctx, f.admin, CreateUserRequest{
		Username: "x", Email: "not-an-email", Password: "123", Role: "drummer",
	})
	require.True(t, apperr.Is(err, apperr.CodeValidationFailed))
	fields := apperr.FieldsOf(err)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "role")
	assert.Empty(t, f.users.rows)
}

func TestLogin(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	created, err := f.svc.CreateUser(ctx, f.admin, CreateUserRequest{
		Username: "minh", Email: "minh@example.com", Password: "secret1", Role: "producer",
	})
	require.NoError(t, err)

	tok, err := f.svc.Login(ctx, LoginUserRequest{Email: "MINH@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, userNow.Add(time.Hour), tok.ExpiresAt)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return userNow }))
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), claims["sub"])
	assert.Equal(t, "producer", claims["role"])

	_, err = f.svc.Login(ctx, LoginUserRequest{Email: "minh@example.com", Password: "wrong"})
	assert.Contains(t, apperr.FieldsOf(err), "email")

	_, err = f.svc.Login(ctx, LoginUserRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.Contains(t, apperr.FieldsOf(err), "email")
}

func TestListUsers(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	for _, r := range []string{"producer", "singer", "hr"} {
		_, err := f.svc.CreateUser(ctx, f.admin, CreateUserRequest{
			Username: r + "-user", Email: r + "@example.com", Password: "secret1", Role: r,
		})
		require.NoError(t, err)
	}

	users, total, err := f.svc.ListUsers(ctx, f.admin, "singer", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.RoleSinger, users[0].Role)

	_, _, err = f.svc.ListUsers(ctx, f.admin, "drummer", 1, 10)
	assert.Contains(t, apperr.FieldsOf(err), "role")

	_, _, err = f.svc.ListUsers(ctx, model.Caller{ID: uuid.New(), Role: model.RoleHR}, "", 1, 10)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}
