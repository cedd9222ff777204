package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"fundsphere/internal/cache"
	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/repository"
	"fundsphere/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// UserService handles registration, sign-in and the caller's own profile.
type UserService struct {
	userRepo repository.UserRepository
	hashCost int
	cache    *cache.Store
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	UserType []string
}

type UpdateProfileInput struct {
	UserID   string
	Username string
	Email    string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo, hashCost: bcrypt.DefaultCost}
}

// WithCache lets profile changes drop the cached published listing, which
// embeds each creator's username and email.
func (s *UserService) WithCache(store *cache.Store) *UserService {
	s.cache = store
	return s
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

// HashPassword hashes a plain-text password with the configured cost.
func (s *UserService) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return string(hashed), nil
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	reg := validation.Registration{Username: in.Username, Email: in.Email, Password: in.Password}
	reg.Normalize()
	if reg.Missing() {
		return nil, models.NewValidationError("Username, email and password are required")
	}
	if err := reg.Validate(); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	username, email := reg.Username, reg.Email
	userTypes, err := models.ParseUserTypes(in.UserType)
	if err != nil {
		return nil, models.NewValidationError("Invalid user type. Only 'creator' or 'donor' allowed.")
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}
	existing, err = s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("Username is already taken")
	}

	hashed, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		Role:     models.RoleUser,
		UserType: userTypes,
		Status:   models.UserStatusActive,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller; deactivated accounts are refused.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		if !errors.Is(cmpErr, bcrypt.ErrMismatchedHashAndPassword) {
			middleware.Logger.WarnContext(ctx, "password hash comparison failed",
				slog.String("user_id", user.ID),
				slog.String("error", cmpErr.Error()),
			)
		}
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if !user.IsActive() {
		return nil, models.NewForbiddenError("Your account has been deactivated")
	}
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	before := *user

	if username := strings.TrimSpace(in.Username); username != "" {
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Username = username
	}
	if strings.TrimSpace(in.Email) != "" {
		email := validation.NormalizeEmail(in.Email)
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Email = email
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	if user.Username != before.Username || user.Email != before.Email {
		s.cache.InvalidatePublished(ctx)
	}
	return user, nil
}

// Deactivate marks the caller's own account inactive.
func (s *UserService) Deactivate(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Status = models.UserStatusInactive
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
