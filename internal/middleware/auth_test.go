package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/model"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParse(t *testing.T) {
	auth := NewAuth("s3cret", false)
	id := uuid.New()
	exp := time.Now().Add(time.Hour).Unix()

	caller, err := auth.Parse(sign(t, "s3cret", jwt.MapClaims{"sub": id.String(), "role": "producer", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, model.Caller{ID: id, Role: model.RoleProducer}, caller)

	_, err = auth.Parse(sign(t, "other", jwt.MapClaims{"sub": id.String(), "role": "producer", "exp": exp}))
	assert.Error(t, err)

	_, err = auth.Parse(sign(t, "s3cret", jwt.MapClaims{"sub": id.String(), "role": "manager", "exp": exp}))
	assert.Error(t, err, "roles outside the closed set are rejected")

	_, err = auth.Parse(sign(t, "s3cret", jwt.MapClaims{"sub": "42", "role": "producer", "exp": exp}))
	assert.Error(t, err)

	_, err = auth.Parse(sign(t, "s3cret", jwt.MapClaims{"sub": id.String(), "role": "producer", "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuth("s3cret", false)
	r := gin.New()
	var seen model.Caller
	r.GET("/hr", auth.RequireRole(model.RoleHR, model.RoleAdmin), func(c *gin.Context) {
		seen, _ = CallerFrom(c)
		c.Status(http.StatusNoContent)
	})

	call := func(setup func(*http.Request)) int {
		req := httptest.NewRequest(http.MethodGet, "/hr", nil)
		setup(req)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	exp := time.Now().Add(time.Hour).Unix()
	hrID := uuid.New()
	hr := sign(t, "s3cret", jwt.MapClaims{"sub": hrID.String(), "role": "hr", "exp": exp})
	singer := sign(t, "s3cret", jwt.MapClaims{"sub": uuid.NewString(), "role": "singer", "exp": exp})

	assert.Equal(t, http.StatusUnauthorized, call(func(*http.Request) {}))
	assert.Equal(t, http.StatusUnauthorized, call(func(r *http.Request) { r.Header.Set("Authorization", "Token "+hr) }))
	assert.Equal(t, http.StatusForbidden, call(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+singer) }))

	assert.Equal(t, http.StatusNoContent, call(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "access_token", Value: hr})
	}))
	assert.Equal(t, model.Caller{ID: hrID, Role: model.RoleHR}, seen)
}
