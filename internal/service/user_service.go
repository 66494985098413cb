package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
	"studio-backend/pkg/pagination"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"max=20"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required"`
}

type LoginUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Role        model.Role `json:"role"`
	PerformerID *uuid.UUID `json:"performer_id,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, caller model.Caller, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Me(ctx context.Context, caller model.Caller) (*UserResponse, error)
	ListUsers(ctx context.Context, caller model.Caller, role string, page, limit int) ([]UserResponse, int64, error)
}

type UserDeps struct {
	Users      repository.UserRepository
	Performers repository.PerformerRepository
	Audit      repository.AuditRepository
	Tx         repository.TransactionManager
	JWTSecret  string
	TokenTTL   time.Duration
	Now        func() time.Time
}

type userService struct {
	repo       repository.UserRepository
	performers repository.PerformerRepository
	audit      repository.AuditRepository
	tx         repository.TransactionManager
	secret     []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewUserService returns a new instance of UserService
func NewUserService(d UserDeps) UserService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = 24 * time.Hour
	}
	return &userService{
		repo:       d.Users,
		performers: d.Performers,
		audit:      d.Audit,
		tx:         d.Tx,
		secret:     []byte(d.JWTSecret),
		ttl:        d.TokenTTL,
		now:        d.Now,
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, caller model.Caller, req CreateUserRequest) (*UserResponse, error) {
	if !caller.Is(model.RoleAdmin) {
		return nil, apperr.Forbidden("only admin can create users")
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var roleErr error
	role, err := model.ParseRole(req.Role)
	if err != nil && req.Role != "" {
		roleErr = apperr.Field("role", err.Error())
	}
	if err := merge(validatePayload(req), roleErr); err != nil {
		return nil, err
	}

	// Hash password automatically
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Phone:    strings.TrimSpace(req.Phone),
		Password: string(hashedPassword),
		Role:     role,
	}

	var performerID *uuid.UUID
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, user); err != nil {
			return err
		}
		if user.Role == model.RoleSinger {
			p, err := s.linkPerformer(txCtx, *user)
			if err != nil {
				return err
			}
			performerID = &p.ID
		}
		details, _ := json.Marshal(map[string]interface{}{"role": user.Role, "email": user.Email})
		entry := &model.AuditLog{
			Action:     model.ActionCreateUser,
			EntityID:   user.ID.String(),
			EntityName: user.Username,
			Details:    datatypes.JSON(details),
		}
		if caller.ID != uuid.Nil {
			id := caller.ID
			entry.UserID = &id
		}
		return s.audit.Log(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	resp := mapToResponse(user)
	resp.PerformerID = performerID
	return resp, nil
}

// linkPerformer creates the singer's performer record, or adopts an existing
// one registered under the same email.
func (s *userService) linkPerformer(ctx context.Context, user model.User) (*model.Performer, error) {
	existing, err := s.performers.GetByEmail(ctx, user.Email)
	if err != nil && !apperr.Is(err, apperr.CodeNotFound) {
		return nil, err
	}
	if existing != nil && existing.UserID != nil && *existing.UserID != user.ID {
		return nil, apperr.Conflict("a performer with this email is linked to another account")
	}
	p, ok := model.PerformerFromUser(user, existing)
	if !ok {
		return nil, apperr.Internal(nil)
	}
	if err := s.performers.Save(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validatePayload(req); err != nil {
		return nil, err
	}
	invalid := apperr.Field("email", "invalid email or password")

	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	expiresAt := s.now().Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"exp":  expiresAt.Unix(),
		"iat":  s.now().Unix(),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &TokenResponse{Token: tokenString, ExpiresAt: expiresAt, User: mapToResponse(user)}, nil
}

func (s *userService) Me(ctx context.Context, caller model.Caller) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	resp := mapToResponse(user)
	if user.Role == model.RoleSinger {
		if p, err := s.performers.GetByUserID(ctx, user.ID); err == nil {
			resp.PerformerID = &p.ID
		}
	}
	return resp, nil
}

func (s *userService) ListUsers(ctx context.Context, caller model.Caller, role string, page, limit int) ([]UserResponse, int64, error) {
	if !caller.Is(model.RoleAdmin) {
		return nil, 0, apperr.Forbidden("only admin can list users")
	}
	var filter model.Role
	if role != "" {
		parsed, err := model.ParseRole(role)
		if err != nil {
			return nil, 0, apperr.Field("role", err.Error())
		}
		filter = parsed
	}
	p := pagination.Normalize(page, limit)
	users, total, err := s.repo.List(ctx, filter, p.Offset, p.Limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}
