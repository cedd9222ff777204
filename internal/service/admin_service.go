package service

import (
	"context"
	"log/slog"

	"fundsphere/internal/cache"
	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/repository"
)

// AdminService implements user management for administrators.
type AdminService struct {
	userRepo repository.UserRepository
	deleter  *UserDeleter
	cache    *cache.Store
}

func NewAdminService(userRepo repository.UserRepository, deleter *UserDeleter) *AdminService {
	return &AdminService{userRepo: userRepo, deleter: deleter}
}

// WithCache lets role changes drop the cached published listing, which
// embeds each creator's role.
func (s *AdminService) WithCache(store *cache.Store) *AdminService {
	s.cache = store
	return s
}

// ListUsers returns every user except the caller, admins first.
func (s *AdminService) ListUsers(ctx context.Context, actor Actor) ([]models.User, error) {
	users, err := s.userRepo.List(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// ChangeRole switches a non-admin user between the user and moderator roles.
func (s *AdminService) ChangeRole(ctx context.Context, targetID, role string) (*models.User, error) {
	r, err := models.ParseRole(role)
	if err != nil || (r != models.RoleUser && r != models.RoleModerator) {
		return nil, models.NewValidationError("Invalid role. Only 'user' or 'moderator' allowed.")
	}

	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return nil, models.NewForbiddenError("Cannot change role of an admin")
	}

	return s.assignRole(ctx, user, r)
}

// SetRole assigns any role without the admin guard. It backs the operator CLI.
func (s *AdminService) SetRole(ctx context.Context, targetID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, models.NewValidationError("Invalid role")
	}
	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return s.assignRole(ctx, user, role)
}

func (s *AdminService) assignRole(ctx context.Context, user *models.User, role models.Role) (*models.User, error) {
	if user.Role == role {
		return user, nil
	}
	user.Role = role
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.cache.InvalidatePublished(ctx)
	return user, nil
}

func (s *AdminService) Activate(ctx context.Context, targetID string) (*models.User, error) {
	return s.setStatus(ctx, targetID, models.UserStatusActive)
}

func (s *AdminService) Deactivate(ctx context.Context, targetID string) (*models.User, error) {
	return s.setStatus(ctx, targetID, models.UserStatusInactive)
}

func (s *AdminService) setStatus(ctx context.Context, targetID string, status models.UserStatus) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if status == models.UserStatusInactive && user.IsAdmin() {
		return nil, models.NewForbiddenError("Cannot deactivate an admin")
	}
	user.Status = status
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a non-admin user and their campaigns.
func (s *AdminService) DeleteUser(ctx context.Context, actor Actor, targetID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return nil, models.NewForbiddenError("Cannot delete an admin")
	}
	if _, err := s.deleter.Delete(ctx, user.ID, actor.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUsers removes the given users, skipping admins and unknown ids.
// It returns how many users were deleted.
func (s *AdminService) DeleteUsers(ctx context.Context, actor Actor, ids []string) (int, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, models.NewValidationError("No users selected")
	}

	users, err := s.userRepo.GetByIDs(ctx, unique)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, u := range users {
		if u.IsAdmin() {
			continue
		}
		if _, err := s.deleter.Delete(ctx, u.ID, actor.ID); err != nil {
			return deleted, err
		}
		deleted++
	}

	middleware.Logger.InfoContext(ctx, "users deleted by admin",
		slog.String("actor_id", actor.ID),
		slog.Int("requested", len(unique)),
		slog.Int("deleted", deleted),
	)
	return deleted, nil
}
