package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"studio-backend/internal/model"
	"studio-backend/pkg/response"
)

const callerKey = "caller"

// Auth validates access tokens issued by the login endpoint.
type Auth struct {
	secret []byte
	secure bool
}

func NewAuth(secret string, secureCookies bool) *Auth {
	return &Auth{secret: []byte(secret), secure: secureCookies}
}

func (a *Auth) sameSite() http.SameSite {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	// Development (same-site):   SameSiteLaxMode  + Secure=false
	if a.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Auth) SetTokenCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(a.sameSite())
	c.SetCookie("access_token", token, maxAge, "/", "", a.secure, true)
}

// ClearTokenCookie removes the access_token cookie
func (a *Auth) ClearTokenCookie(c *gin.Context) {
	c.SetSameSite(a.sameSite())
	c.SetCookie("access_token", "", -1, "/", "", a.secure, true)
}

func tokenFrom(c *gin.Context) (string, string) {
	// Try cookie first, fallback to Authorization header
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, ""
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization is missing"
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Invalid authorization format. Expected 'Bearer <token>'"
	}
	return parts[1], ""
}

// Parse turns a signed token into the caller it identifies.
func (a *Auth) Parse(tokenString string) (model.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return model.Caller{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.Caller{}, jwt.ErrTokenInvalidClaims
	}

	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return model.Caller{}, jwt.ErrTokenInvalidSubject
	}
	roleName, _ := claims["role"].(string)
	role, err := model.ParseRole(roleName)
	if err != nil {
		return model.Caller{}, jwt.ErrTokenInvalidClaims
	}
	return model.Caller{ID: id, Role: role}, nil
}

// RequireRole validates the JWT and checks the caller's role against
// allowedRoles. With no roles any authenticated caller passes.
func (a *Auth) RequireRole(allowedRoles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, problem := tokenFrom(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(problem, nil))
			return
		}

		caller, err := a.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("Invalid token: "+err.Error(), nil))
			return
		}

		if len(allowedRoles) > 0 && !caller.Is(allowedRoles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error("Access denied: insufficient permissions", nil))
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// CallerFrom returns the caller stored by RequireRole.
func CallerFrom(c *gin.Context) (model.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return model.Caller{}, false
	}
	caller, ok := v.(model.Caller)
	return caller, ok
}
