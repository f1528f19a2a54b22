package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pubdesk/pubdesk/internal/perm"
)

var (
	// ErrSelfChange rejects administrators acting on their own profile.
	ErrSelfChange = errors.New("profiles: cannot change own profile")
	// ErrRoleLocked rejects permission edits on roles whose grants are
	// implicit (admin tiers are always fully granted).
	ErrRoleLocked = errors.New("profiles: role permissions are not editable")
	// ErrNotPending rejects approval of a profile that is not awaiting it.
	ErrNotPending = errors.New("profiles: profile is not awaiting approval")
	// ErrForbidden rejects operations the acting profile may not perform.
	ErrForbidden = errors.New("profiles: forbidden")
)

// Service implements identity resolution, the bootstrap policy and the
// administrative lifecycle of profiles.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Resolve maps an authenticated principal to its profile, creating one on
// first sign-in. Any store failure propagates so the caller fails closed
// and treats the principal as unauthenticated.
func (s *Service) Resolve(ctx context.Context, id, email, displayName string) (*Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}

	created, err := s.repo.CreateBootstrap(ctx, id, email, displayName)
	if err != nil {
		return nil, fmt.Errorf("bootstrap profile: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("profile created",
			slog.String("id", created.ID),
			slog.String("role", string(created.Role)))
	}
	return created, nil
}

// Get fetches a profile by principal id.
func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	return s.repo.Get(ctx, id)
}

// List returns all profiles, newest first.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	return s.repo.List(ctx)
}

// Approve moves a pending profile to member with the baseline grants:
// article access and authoring, own articles only.
func (s *Service) Approve(ctx context.Context, actor *Profile, id string) error {
	if actor != nil && actor.ID == id {
		return ErrSelfChange
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if target.Role != RolePending {
		return ErrNotPending
	}
	return s.repo.UpdateRole(ctx, id, RoleMember, perm.Baseline())
}

// Promote raises a member to administrator with every capability granted.
func (s *Service) Promote(ctx context.Context, actor *Profile, id string) error {
	if actor != nil && actor.ID == id {
		return ErrSelfChange
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if target.Role == RoleSuperAdmin || target.Role == RoleAdmin {
		return ErrRoleLocked
	}
	return s.repo.UpdateRole(ctx, id, RoleAdmin, perm.AllGranted())
}

// SetPermission toggles one capability, addressed by its dotted path.
// Admin-tier targets are rejected: their grants are implicit.
func (s *Service) SetPermission(ctx context.Context, actor *Profile, id, path string, value bool) error {
	if actor != nil && actor.ID == id {
		return ErrSelfChange
	}
	m, c, err := perm.ParsePath(path)
	if err != nil {
		return err
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if target.Role == RoleSuperAdmin || target.Role == RoleAdmin {
		return ErrRoleLocked
	}
	return s.repo.SetPermission(ctx, id, m, c, value)
}

// Delete removes a profile for good. Only a super admin may do this, and
// never to themselves.
func (s *Service) Delete(ctx context.Context, actor *Profile, id string) error {
	if actor == nil || actor.Role != RoleSuperAdmin {
		return ErrForbidden
	}
	if actor.ID == id {
		return ErrSelfChange
	}
	return s.repo.Delete(ctx, id)
}
