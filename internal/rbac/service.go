package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Store is the persistence behind Service.
type Store interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	AssignBranch(ctx context.Context, userID, branchID int64) error
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	UserBranches(ctx context.Context, userID int64) ([]int64, error)
	LocationBranch(ctx context.Context, locationID int64) (int64, error)
}

// Service orchestrates RBAC operations.
type Service struct {
	store Store
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// EnsurePermissions upserts the given permission names.
func (s *Service) EnsurePermissions(ctx context.Context, names ...string) ([]Permission, error) {
	out := make([]Permission, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		p, err := s.store.EnsurePermission(ctx, name, describePermission(name))
		if err != nil {
			return nil, fmt.Errorf("ensure permission %s: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// CreateRole inserts a role holding the named permissions.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissions ...string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	perms, err := s.EnsurePermissions(ctx, permissions...)
	if err != nil {
		return Role{}, err
	}
	role, err := s.store.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	ids := make([]int64, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	if err := s.store.SetRolePermissions(ctx, role.ID, ids); err != nil {
		return Role{}, err
	}
	return role, nil
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	return s.store.AssignRole(ctx, userID, roleID)
}

// AssignBranch lets userID act on the locations of branchID.
func (s *Service) AssignBranch(ctx context.Context, userID, branchID int64) error {
	return s.store.AssignBranch(ctx, userID, branchID)
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	perms, err := s.store.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return normalizePermissions(perms), nil
}

// Grants summarises permissions and branch assignments of a user.
func (s *Service) Grants(ctx context.Context, userID int64) (Grants, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return Grants{}, err
	}
	branches, err := s.store.UserBranches(ctx, userID)
	if err != nil {
		return Grants{}, err
	}
	slices.Sort(perms)
	return Grants{
		ActorID:     userID,
		Permissions: perms,
		Branches:    branches,
		AllBranches: slices.Contains(perms, shared.PermInventoryTransferAll),
	}, nil
}

// CanAccess reports whether userID may act on loc. Holders of
// inventory.transfer.all may act anywhere; everyone else only inside the
// branches assigned to them. A storage location belongs to its owning branch.
func (s *Service) CanAccess(ctx context.Context, userID int64, loc inventory.LocationRef) (bool, error) {
	if userID <= 0 {
		return false, nil
	}
	if err := loc.Validate(); err != nil {
		return false, err
	}
	g, err := s.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	if g.AllBranches {
		return true, nil
	}
	branchID := loc.ID
	if !loc.IsBranch() {
		branchID, err = s.store.LocationBranch(ctx, loc.ID)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return slices.Contains(g.Branches, branchID), nil
}

func describePermission(name string) string {
	switch name {
	case shared.PermInventoryView:
		return "View stock balances, history and transfers"
	case shared.PermInventoryAdjust:
		return "Post manual stock adjustments"
	case shared.PermInventoryTransfer:
		return "Create and advance transfers for assigned branches"
	case shared.PermInventoryTransferAll:
		return "Create and advance transfers for every branch"
	case shared.PermInventoryJobs:
		return "Trigger inventory background jobs"
	}
	return name
}
