package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/Skotchmaster/sweet_shop/internal/events"
	"github.com/Skotchmaster/sweet_shop/internal/metrics"
	"github.com/Skotchmaster/sweet_shop/internal/models"
	"github.com/Skotchmaster/sweet_shop/internal/repo"
	"github.com/Skotchmaster/sweet_shop/pkg/hash"
	"github.com/Skotchmaster/sweet_shop/pkg/logging"
	"github.com/Skotchmaster/sweet_shop/pkg/tokens"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type AuthService struct {
	Repo    *repo.GormRepo
	Tokens  *tokens.Issuer
	Events  events.Publisher
	Metrics *metrics.Metrics
}

type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email = NormalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		s.Metrics.ObserveAuth("register", "invalid")
		return nil, fmt.Errorf("email: %w", ErrValidation)
	}
	if password == "" {
		s.Metrics.ObserveAuth("register", "invalid")
		return nil, fmt.Errorf("password: %w", ErrValidation)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if err := s.Repo.CreateUserIfNotExists(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 400, "reason", "user already exist")
			s.Metrics.ObserveAuth("register", "conflict")
			return nil, fmt.Errorf("%s: %w", email, ErrConflict)
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return nil, err
	}

	res, err := s.issue(&user)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot sign token", "error", err)
		return nil, err
	}

	publish(ctx, s.Events, s.Metrics, events.TopicUsers, email,
		events.NewUserEvent(events.TypeUserRegistered, user.ID, user.Email, string(user.Role)))

	s.Metrics.ObserveAuth("register", "ok")
	return res, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if email == "" || password == "" {
		s.Metrics.ObserveAuth("login", "invalid")
		return nil, ErrValidation
	}

	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login_failed", "status", 404, "reason", "user not found")
			s.Metrics.ObserveAuth("login", "not_found")
			return nil, ErrUserNotFound
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid password")
		s.Metrics.ObserveAuth("login", "bad_credentials")
		return nil, ErrInvalidCredentials
	}

	res, err := s.issue(user)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign token", "error", err)
		return nil, err
	}

	s.Metrics.ObserveAuth("login", "ok")
	return res, nil
}

// SeedAdmin creates the admin account unless one already exists under that
// email. It reports whether a row was inserted.
func (s *AuthService) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	l := logging.FromContext(ctx).With("svc", "auth.seed_admin")

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return false, fmt.Errorf("admin credentials: %w", ErrValidation)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return false, err
	}

	admin := models.User{
		Name:         "Admin",
		Email:        email,
		PasswordHash: pwHash,
		Role:         models.RoleAdmin,
	}
	if err := s.Repo.CreateUserIfNotExists(ctx, &admin); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Info("admin_already_seeded", "email", email)
			return false, nil
		}
		return false, err
	}

	l.Info("admin_seeded", "email", email, "user_id", admin.ID)
	return true, nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, exp, err := s.Tokens.CreateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: exp, User: user}, nil
}
